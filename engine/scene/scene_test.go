package scene

import (
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/game_object"
	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/overlay"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/resource"
)

func TestBuildRequiresCamera(t *testing.T) {
	if _, err := NewSnapshotBuilder().Build(); !errors.Is(err, ErrNoCamera) {
		t.Fatalf("err = %v, want ErrNoCamera", err)
	}
}

func TestBuildRejectsBadInputs(t *testing.T) {
	l := light.NewLight(light.LightTypePoint)
	_, err := NewSnapshotBuilder().
		Camera(camera.NewCamera().State()).
		Draw(0, mgl32.Ident4(), nil).
		Light(nil).
		Light(l).
		Light(l).
		Build()
	for _, want := range []error{ErrInvalidMesh, ErrNilLight, ErrDuplicateLight} {
		if !errors.Is(err, want) {
			t.Errorf("err = %v, want it to include %v", err, want)
		}
	}
}

func TestSnapshotIsImmutable(t *testing.T) {
	l := light.NewLight(light.LightTypePoint, light.WithPosition(1, 2, 3))
	list := overlay.NewDrawList(nil).FillRect(image.Rect(0, 0, 1, 1), color.White)
	b := NewSnapshotBuilder().
		Camera(camera.NewCamera().State()).
		Draw(resource.MeshHandle(1), mgl32.Translate3D(1, 0, 0), nil).
		Light(l).
		Overlay(list)
	snap, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	l.SetPosition(9, 9, 9)
	list.FillRect(image.Rect(0, 0, 1, 1), color.Black)
	b.Draw(resource.MeshHandle(2), mgl32.Ident4(), nil)
	snap.Lights()[0].SetPosition(7, 7, 7)
	snap.Drawables()[0].Mesh = 99

	if got := snap.Lights()[0].Position(); got != (mgl32.Vec3{1, 2, 3}) {
		t.Errorf("light position = %v, want the value at Build", got)
	}
	if snap.Lights()[0].ID() != l.ID() {
		t.Error("snapshot light lost its ID")
	}
	if snap.DrawableCount() != 1 || snap.Drawable(0).Mesh != 1 {
		t.Errorf("drawables = %+v, want the single mesh 1", snap.Drawables())
	}
	if snap.Drawable(0).Material != material.Default {
		t.Error("nil material was not replaced by the default")
	}
	if snap.Overlay().Len() != 1 {
		t.Errorf("overlay has %d draws, want 1", snap.Overlay().Len())
	}
}

func TestSceneSnapshot(t *testing.T) {
	lamp := light.NewLight(light.LightTypePoint)
	carrier := game_object.NewGameObject(
		game_object.WithMesh(1),
		game_object.WithPosition(0, 4, 0),
		game_object.WithRotationSpeed(0, 1, 0),
		game_object.WithLight(lamp))
	hidden := game_object.NewGameObject(game_object.WithMesh(2), game_object.WithEnabled(false))
	spark := game_object.NewGameObject(game_object.WithMesh(3), game_object.WithEphemeral(true))
	sun := light.NewLight(light.LightTypeDirectional)

	s := NewScene("test", camera.NewCamera(),
		WithObjects(carrier, hidden),
		WithLights(sun),
		WithUpdateWorkers(2))
	defer s.Close()
	s.Add(spark)
	if s.Count() != 2 || s.CountEphemeral() != 1 {
		t.Fatalf("counts = %d, %d; want 2 persisted, 1 ephemeral", s.Count(), s.CountEphemeral())
	}

	s.Update(500 * time.Millisecond)
	if _, ry, _ := carrier.Rotation(); ry != 0.5 {
		t.Fatalf("rotation after update = %v, want 0.5", ry)
	}
	if hx, hy, hz := hidden.Rotation(); hx != 0 || hy != 0 || hz != 0 {
		t.Fatal("disabled object was advanced")
	}
	if got := lamp.Position(); got != (mgl32.Vec3{0, 4, 0}) {
		t.Fatalf("attached light at %v, want the object position", got)
	}

	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.DrawableCount() != 2 || snap.Drawable(0).Mesh != 1 || snap.Drawable(1).Mesh != 3 {
		t.Fatalf("drawables = %+v, want meshes 1 then 3", snap.Drawables())
	}
	ids := snap.LightIDs()
	if len(ids) != 2 || ids[0] != sun.ID() || ids[1] != lamp.ID() {
		t.Fatalf("light ids = %v, want sun then lamp", ids)
	}

	next, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if next.DrawableCount() != 1 || next.Frame() != snap.Frame()+1 {
		t.Fatalf("second snapshot has %d drawables at frame %d", next.DrawableCount(), next.Frame())
	}

	s.Remove(carrier.ID())
	if s.Get(carrier.ID()) != nil || len(s.Lights()) != 1 {
		t.Fatal("removed object or its light is still in the scene")
	}
}
