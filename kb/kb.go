package kb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/signalsfoundry/coverage-planner/model"
)

var (
	ErrAntennaExists   = errors.New("antenna already exists")
	ErrAntennaNotFound = errors.New("antenna not found")
	ErrWallExists      = errors.New("wall already exists")
	ErrWallNotFound    = errors.New("wall not found")
)

// EventType indicates what kind of change happened in the store.
type EventType int

const (
	EventAntennaAdded EventType = iota
	EventAntennaUpdated
	EventAntennaRemoved
	EventAntennasReplaced
	EventWallsChanged
	EventFloorChanged
)

func (t EventType) String() string {
	switch t {
	case EventAntennaAdded:
		return "antenna_added"
	case EventAntennaUpdated:
		return "antenna_updated"
	case EventAntennaRemoved:
		return "antenna_removed"
	case EventAntennasReplaced:
		return "antennas_replaced"
	case EventWallsChanged:
		return "walls_changed"
	case EventFloorChanged:
		return "floor_changed"
	}
	return fmt.Sprintf("event(%d)", int(t))
}

// Event is emitted to subscribers after every mutation.
type Event struct {
	Type    EventType
	Antenna model.Antenna
	// AntennaCount is the live antenna count after the change.
	AntennaCount int
}

// ProjectStore is an in-memory, thread-safe store for the floor, walls and
// antennas of one planning project. Insertion order is preserved so that
// antenna indices (best-server colours) stay stable.
type ProjectStore struct {
	mu sync.RWMutex

	floor    model.Floor
	ground   model.GroundPlane
	antennas []model.Antenna
	walls    []model.Wall

	subs   map[int]func(Event)
	nextID int
}

// NewProjectStore constructs an empty store over floor.
func NewProjectStore(floor model.Floor) *ProjectStore {
	return &ProjectStore{
		floor:  floor,
		ground: model.GroundPlane{Enabled: true, Attenuation: 3.0},
		subs:   make(map[int]func(Event)),
	}
}

// NewProjectStoreFromPlan seeds a store from a loaded floor plan.
func NewProjectStoreFromPlan(plan *model.FloorPlan) (*ProjectStore, error) {
	s := NewProjectStore(plan.Floor)
	s.ground = plan.Ground
	for _, w := range plan.Walls {
		if err := s.AddWall(w); err != nil {
			return nil, err
		}
	}
	for _, a := range plan.Antennas {
		if err := s.AddAntenna(a); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *ProjectStore) indexOfAntenna(id string) int {
	for i := range s.antennas {
		if s.antennas[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *ProjectStore) indexOfWall(id string) int {
	for i := range s.walls {
		if s.walls[i].ID == id {
			return i
		}
	}
	return -1
}

// AddAntenna appends a new antenna. It returns ErrAntennaExists if the ID
// is already taken.
func (s *ProjectStore) AddAntenna(a model.Antenna) error {
	s.mu.Lock()
	if s.indexOfAntenna(a.ID) >= 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrAntennaExists, a.ID)
	}
	s.antennas = append(s.antennas, a)
	s.publishLocked(Event{Type: EventAntennaAdded, Antenna: a})
	return nil
}

// UpdateAntenna replaces the stored antenna with the same ID.
func (s *ProjectStore) UpdateAntenna(a model.Antenna) error {
	s.mu.Lock()
	i := s.indexOfAntenna(a.ID)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrAntennaNotFound, a.ID)
	}
	s.antennas[i] = a
	s.publishLocked(Event{Type: EventAntennaUpdated, Antenna: a})
	return nil
}

// RemoveAntenna deletes the antenna with the given ID.
func (s *ProjectStore) RemoveAntenna(id string) error {
	s.mu.Lock()
	i := s.indexOfAntenna(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrAntennaNotFound, id)
	}
	removed := s.antennas[i]
	s.antennas = append(s.antennas[:i], s.antennas[i+1:]...)
	s.publishLocked(Event{Type: EventAntennaRemoved, Antenna: removed})
	return nil
}

// ReplaceAntennas swaps the whole antenna set in one step. IDs must be
// unique within the new set.
func (s *ProjectStore) ReplaceAntennas(antennas []model.Antenna) error {
	seen := make(map[string]bool, len(antennas))
	for _, a := range antennas {
		if seen[a.ID] {
			return fmt.Errorf("%w: %q", ErrAntennaExists, a.ID)
		}
		seen[a.ID] = true
	}
	s.mu.Lock()
	s.antennas = append([]model.Antenna(nil), antennas...)
	s.publishLocked(Event{Type: EventAntennasReplaced})
	return nil
}

// GetAntenna returns the antenna with the given ID.
func (s *ProjectStore) GetAntenna(id string) (model.Antenna, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOfAntenna(id)
	if i < 0 {
		return model.Antenna{}, fmt.Errorf("%w: %q", ErrAntennaNotFound, id)
	}
	return s.antennas[i], nil
}

// ListAntennas returns a snapshot copy in insertion order.
func (s *ProjectStore) ListAntennas() []model.Antenna {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Antenna(nil), s.antennas...)
}

// AntennaCount returns the live antenna count.
func (s *ProjectStore) AntennaCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.antennas)
}

// AddWall appends a wall. It returns ErrWallExists if the ID is taken.
func (s *ProjectStore) AddWall(w model.Wall) error {
	s.mu.Lock()
	if s.indexOfWall(w.ID) >= 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrWallExists, w.ID)
	}
	s.walls = append(s.walls, w)
	s.publishLocked(Event{Type: EventWallsChanged})
	return nil
}

// RemoveWall deletes the wall with the given ID.
func (s *ProjectStore) RemoveWall(id string) error {
	s.mu.Lock()
	i := s.indexOfWall(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrWallNotFound, id)
	}
	s.walls = append(s.walls[:i], s.walls[i+1:]...)
	s.publishLocked(Event{Type: EventWallsChanged})
	return nil
}

// ListWalls returns a snapshot copy in insertion order.
func (s *ProjectStore) ListWalls() []model.Wall {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Wall(nil), s.walls...)
}

// SetFloor resizes the planning area.
func (s *ProjectStore) SetFloor(f model.Floor) error {
	if !f.Valid() {
		return fmt.Errorf("set floor %gx%g: must have a positive area", f.Width, f.Height)
	}
	s.mu.Lock()
	s.floor = f
	s.publishLocked(Event{Type: EventFloorChanged})
	return nil
}

// Floor returns the planning area.
func (s *ProjectStore) Floor() model.Floor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.floor
}

// Snapshot returns a consistent copy of the whole project.
func (s *ProjectStore) Snapshot() model.FloorPlan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.FloorPlan{
		Floor:    s.floor,
		Walls:    append([]model.Wall(nil), s.walls...),
		Antennas: append([]model.Antenna(nil), s.antennas...),
		Ground:   s.ground,
	}
}

// publishLocked stamps the event, releases the write lock and notifies
// subscribers outside it.
func (s *ProjectStore) publishLocked(e Event) {
	e.AntennaCount = len(s.antennas)
	subs := make([]func(Event), 0, len(s.subs))
	for id := 0; id < s.nextID; id++ {
		if fn, ok := s.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(e)
	}
}

// Subscribe registers a callback for store events. It returns an
// unsubscribe function that is safe to call more than once.
func (s *ProjectStore) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}
