// Package scene holds the simulation-side view of the world and freezes it into the immutable
// Snapshot the renderer consumes once per frame.
package scene

import (
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/game_object"
	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/overlay"
)

// Scene manages a registry of GameObjects, free-standing lights and a camera. It is the mutable
// producer side of the renderer input: Update advances object motion, Snapshot freezes the
// current state into a Snapshot.
// Scenes can be hot-swapped via the Active flag to switch between different views or levels.
// Thread-safe for concurrent access.
type Scene interface {
	// Name returns the scene's identifier.
	Name() string

	// SetName sets the scene's identifier.
	SetName(name string)

	// Active returns whether this scene is currently active for rendering.
	Active() bool

	// SetActive sets whether this scene is active for rendering.
	SetActive(active bool)

	// Camera returns the scene's camera.
	Camera() camera.Camera

	// SetCamera replaces the scene's camera.
	//
	// Parameters:
	//   - cam: the new camera
	SetCamera(cam camera.Camera)

	// Count returns the number of persisted GameObjects in the scene's registry.
	//
	// Returns:
	//   - int: count of non-ephemeral GameObjects
	Count() int

	// CountEphemeral returns the number of ephemeral GameObjects waiting for the next snapshot.
	//
	// Returns:
	//   - int: count of pending ephemeral GameObjects
	CountEphemeral() int

	// Add adds a GameObject to the scene. Objects without an ID are assigned one. Ephemeral
	// objects appear in the next snapshot only.
	//
	// Parameters:
	//   - obj: the GameObject to add
	//
	// Returns:
	//   - uint64: the assigned object ID
	Add(obj game_object.GameObject) uint64

	// Get retrieves a non-ephemeral GameObject by its ID.
	// Returns nil if not found.
	//
	// Parameters:
	//   - id: the object's unique ID
	//
	// Returns:
	//   - game_object.GameObject: the object or nil
	Get(id uint64) game_object.GameObject

	// Remove removes a non-ephemeral GameObject from the registry by ID. Its attached light, if
	// any, leaves the scene with it.
	//
	// Parameters:
	//   - id: the object's unique ID
	Remove(id uint64)

	// Clear removes all objects and lights from the scene.
	Clear()

	// AddLight adds a free-standing light.
	//
	// Parameters:
	//   - l: the light
	AddLight(l light.Light)

	// RemoveLight removes a free-standing light.
	//
	// Parameters:
	//   - l: the light
	RemoveLight(l light.Light)

	// DetachLight detaches the light of an object and keeps it in the scene as a free-standing
	// light at its last position.
	//
	// Parameters:
	//   - obj: the object
	DetachLight(obj game_object.GameObject)

	// Lights returns the free-standing and attached lights.
	//
	// Returns:
	//   - []light.Light: the lights, live instances
	Lights() []light.Light

	// AmbientColor returns the ambient light color.
	AmbientColor() mgl32.Vec3

	// SetAmbientColor sets the ambient light color.
	SetAmbientColor(color mgl32.Vec3)

	// Background returns the color of pixels no geometry covers.
	Background() mgl32.Vec4

	// SetBackground sets the color of pixels no geometry covers.
	SetBackground(color mgl32.Vec4)

	// SetOverlay sets the draw list composited over the next snapshots. Pass nil to clear.
	SetOverlay(l *overlay.DrawList)

	// Update advances every enabled object by dt and moves attached lights with their objects.
	// Objects are advanced in parallel on the scene's worker pool.
	//
	// Parameters:
	//   - dt: elapsed time since the last update in seconds
	Update(dt time.Duration)

	// Snapshot freezes the enabled objects, the enabled lights and the camera into a Snapshot,
	// then drops the pending ephemeral objects.
	//
	// Returns:
	//   - *Snapshot: the snapshot
	//   - error: ErrNoCamera, ErrInvalidMesh or ErrDuplicateLight
	Snapshot() (*Snapshot, error)

	// Close stops the scene's worker pool.
	Close()
}

type scene struct {
	mu     *sync.RWMutex
	name   string
	active bool
	cam    camera.Camera

	// registry holds non-ephemeral objects; order keeps snapshot submission order stable.
	registry  map[uint64]game_object.GameObject
	order     []uint64
	ephemeral []game_object.GameObject
	nextID    uint64
	frame     uint64

	lights       []light.Light
	ambientColor mgl32.Vec3
	background   mgl32.Vec4
	overlay      *overlay.DrawList

	// updatePool advances objects in parallel. Workers persist across frames.
	updatePool    worker.DynamicWorkerPool
	updateWorkers int
}

var _ Scene = &scene{}

// NewScene creates a new Scene.
//
// Parameters:
//   - name: the name of the scene
//   - cam: the camera, may be set later with SetCamera
//   - options: functional options to further configure the scene
//
// Returns:
//   - Scene: the newly created scene
func NewScene(name string, cam camera.Camera, options ...SceneBuilderOption) Scene {
	s := &scene{
		mu:            &sync.RWMutex{},
		name:          name,
		cam:           cam,
		registry:      make(map[uint64]game_object.GameObject),
		nextID:        1,
		ambientColor:  DefaultAmbient,
		background:    DefaultBackground,
		updateWorkers: max(runtime.NumCPU()-1, 1),
	}
	for _, option := range options {
		option(s)
	}
	s.updatePool = worker.NewDynamicWorkerPool(s.updateWorkers, 256, time.Second)
	return s
}

func (s *scene) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *scene) SetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
}

func (s *scene) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *scene) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

func (s *scene) Camera() camera.Camera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cam
}

func (s *scene) SetCamera(cam camera.Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cam = cam
}

func (s *scene) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.registry)
}

func (s *scene) CountEphemeral() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ephemeral)
}

func (s *scene) Add(obj game_object.GameObject) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(obj)
}

// add registers an object. Callers hold the write lock.
func (s *scene) add(obj game_object.GameObject) uint64 {
	if obj.ID() == 0 {
		obj.SetID(s.nextID)
		s.nextID++
	}
	if obj.Ephemeral() {
		s.ephemeral = append(s.ephemeral, obj)
		return obj.ID()
	}
	if _, ok := s.registry[obj.ID()]; !ok {
		s.order = append(s.order, obj.ID())
	}
	s.registry[obj.ID()] = obj
	return obj.ID()
}

func (s *scene) Get(id uint64) game_object.GameObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry[id]
}

func (s *scene) Remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.registry[id]; !ok {
		return
	}
	delete(s.registry, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *scene) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.registry)
	s.order = s.order[:0]
	s.ephemeral = nil
	s.lights = nil
}

func (s *scene) AddLight(l light.Light) {
	if l == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lights = append(s.lights, l)
}

func (s *scene) RemoveLight(l light.Light) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.lights {
		if existing.ID() == l.ID() {
			s.lights = append(s.lights[:i], s.lights[i+1:]...)
			return
		}
	}
}

func (s *scene) DetachLight(obj game_object.GameObject) {
	l := obj.Light()
	if l == nil {
		return
	}
	obj.SetLight(nil)
	s.AddLight(l)
}

func (s *scene) Lights() []light.Light {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectLights()
}

// collectLights returns the free-standing lights followed by the lights of enabled objects.
// Callers hold a lock.
func (s *scene) collectLights() []light.Light {
	out := append([]light.Light(nil), s.lights...)
	for _, obj := range s.objects() {
		if l := obj.Light(); l != nil && obj.Enabled() {
			out = append(out, l)
		}
	}
	return out
}

// objects returns the registry in insertion order followed by the pending ephemeral objects.
// Callers hold a lock.
func (s *scene) objects() []game_object.GameObject {
	out := make([]game_object.GameObject, 0, len(s.order)+len(s.ephemeral))
	for _, id := range s.order {
		out = append(out, s.registry[id])
	}
	return append(out, s.ephemeral...)
}

func (s *scene) AmbientColor() mgl32.Vec3 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ambientColor
}

func (s *scene) SetAmbientColor(color mgl32.Vec3) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ambientColor = color
}

func (s *scene) Background() mgl32.Vec4 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.background
}

func (s *scene) SetBackground(color mgl32.Vec4) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.background = color
}

func (s *scene) SetOverlay(l *overlay.DrawList) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overlay = l.Clone()
}

func (s *scene) Update(dt time.Duration) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seconds := float32(dt.Seconds())
	objects := s.objects()
	if len(objects) == 0 {
		return
	}
	// Fan out in chunks so each task amortizes the queue hop.
	chunk := max((len(objects)+s.updateWorkers-1)/s.updateWorkers, 1)
	var wg sync.WaitGroup
	for start := 0; start < len(objects); start += chunk {
		part := objects[start:min(start+chunk, len(objects))]
		wg.Add(1)
		s.updatePool.SubmitTask(worker.Task{
			ID: start,
			Do: func() (any, error) {
				defer wg.Done()
				for _, obj := range part {
					if obj.Enabled() {
						obj.Advance(seconds)
					}
				}
				return nil, nil
			},
		})
	}
	wg.Wait()
}

func (s *scene) Snapshot() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := NewSnapshotBuilder().
		Frame(s.frame).
		CameraFrom(s.cam).
		Ambient(s.ambientColor).
		Background(s.background).
		Overlay(s.overlay)
	for _, obj := range s.objects() {
		if obj.Enabled() {
			b.Draw(obj.Mesh(), obj.WorldMatrix(), obj.Material())
		}
	}
	for _, l := range s.collectLights() {
		if l.Enabled() {
			b.Light(l)
		}
	}
	snap, err := b.Build()
	if err != nil {
		return nil, err
	}
	s.ephemeral = nil
	s.frame++
	return snap, nil
}

func (s *scene) Close() {
	s.updatePool.Stop()
}
