// Package registry owns room existence, membership, capacity and
// shared-object bookkeeping. It has no knowledge of connections or
// message routing; the relay composes it with the connection tracker.
package registry

import (
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/holomesh/holomesh/pkg/api"
	"github.com/holomesh/holomesh/pkg/clock"
	"github.com/holomesh/holomesh/pkg/config"
	"github.com/holomesh/holomesh/pkg/logger"
	"github.com/holomesh/holomesh/pkg/monitoring"
)

// Registry is an explicit owned room registry. Every mutation runs to
// completion under the registry lock, so individual updates are atomic
// with respect to the other inbound events and sweeps.
type Registry struct {
	conf      config.Rooms
	clk       clock.Clock
	log       *logger.Logger
	templates *Templates

	mu    sync.Mutex
	rooms map[string]*Room
	// creation order, keeps listing/search results stable
	order []string
}

// RoomSpec describes a room to create. A zero capacity takes the
// configured default; an empty id gets generated.
type RoomSpec struct {
	Id          string   `json:"id,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Private     bool     `json:"private,omitempty"`
	Persistent  bool     `json:"persistent,omitempty"`
	Capacity    int      `json:"capacity,omitempty"`
	Creator     string   `json:"creator,omitempty"`
	Template    string   `json:"template,omitempty"`
	Settings    Settings `json:"settings,omitempty"`
}

func New(conf config.Rooms, clk clock.Clock, log *logger.Logger) *Registry {
	return &Registry{
		conf:      conf,
		clk:       clk,
		log:       log,
		templates: NewTemplates(conf, log),
		rooms:     make(map[string]*Room, 10),
	}
}

func (r *Registry) Templates() *Templates { return r.templates }

// Create makes a new room after validating its spec.
func (r *Registry) Create(spec RoomSpec) (api.RoomInfo, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return api.RoomInfo{}, api.Errorf(api.ErrValidation, "room name is empty")
	}
	if len(name) > r.conf.NameMaxLen {
		return api.RoomInfo{}, api.Errorf(api.ErrValidation, "room name is longer than %d", r.conf.NameMaxLen)
	}
	capacity := spec.Capacity
	if capacity == 0 {
		capacity = r.conf.DefaultCapacity
	}
	if capacity < 1 || capacity > r.conf.MaxCapacity {
		return api.RoomInfo{}, api.Errorf(api.ErrValidation, "room capacity %d is out of range [1, %d]", capacity, r.conf.MaxCapacity)
	}

	var tpl *Template
	if spec.Template != "" {
		if tpl = r.templates.Get(spec.Template); tpl == nil {
			return api.RoomInfo{}, api.Errorf(api.ErrValidation, "unknown room template %q", spec.Template)
		}
	}

	id := spec.Id
	if id == "" {
		id = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[id]; ok {
		return api.RoomInfo{}, api.Errorf(api.ErrDuplicateRoom, "room %v already exists", id)
	}

	now := r.clk.Now()
	room := &Room{
		Id:           id,
		Name:         name,
		Description:  spec.Description,
		Private:      spec.Private,
		Persistent:   spec.Persistent,
		Capacity:     capacity,
		Creator:      spec.Creator,
		Template:     spec.Template,
		Settings:     spec.Settings,
		CreatedAt:    now,
		LastActivity: now,
		participants: make(map[string]*Participant),
		objects:      make(map[string]*SharedObject),
	}
	if tpl != nil {
		tpl.apply(room, now)
	}
	r.rooms[id] = room
	r.order = append(r.order, id)
	monitoring.ActiveRooms.Set(float64(len(r.rooms)))
	r.log.Info().Str("room", id).Msgf("Room %q created (cap %d)", name, capacity)
	return room.info(), nil
}

// Has says whether the room exists.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rooms[id]
	return ok
}

// Count returns the number of tracked rooms.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Info returns the public listing record of one room.
func (r *Registry) Info(id string) (api.RoomInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return api.RoomInfo{}, api.Errorf(api.ErrRoomNotFound, "no room %v", id)
	}
	return room.info(), nil
}

// AddParticipant admits a participant into the room, keeping the
// capacity invariant. A failed admission performs no mutation.
func (r *Registry) AddParticipant(roomId string, p api.Participant) error {
	if p.Id == "" {
		return api.Errorf(api.ErrValidation, "participant id is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomId]
	if !ok {
		return api.Errorf(api.ErrRoomNotFound, "no room %v", roomId)
	}
	if _, ok = room.participants[p.Id]; ok {
		return api.Errorf(api.ErrDuplicateUser, "participant %v is already in room %v", p.Id, roomId)
	}
	if len(room.participants) >= room.Capacity {
		return api.Errorf(api.ErrRoomFull, "room %v is full (%d/%d)", roomId, len(room.participants), room.Capacity)
	}

	now := r.clk.Now()
	perms := PermsDefault
	if room.Creator == "" && len(room.participants) == 0 {
		room.Creator = p.Id
	}
	if p.Id == room.Creator {
		perms |= PermHost
	}
	room.participants[p.Id] = &Participant{
		Id:           p.Id,
		DisplayData:  p.DisplayData,
		Perms:        perms,
		JoinedAt:     now,
		LastActivity: now,
	}
	room.LastActivity = now
	room.stats.totalJoins++
	if n := len(room.participants); n > room.stats.peakMembers {
		room.stats.peakMembers = n
	}
	monitoring.RoomJoins.Inc()
	return nil
}

// RemoveParticipant is no-op-safe: it reports false instead of failing
// when the room or the participant is absent. An emptied non-persistent
// room is left for the sweep, never removed synchronously.
func (r *Registry) RemoveParticipant(roomId string, participantId string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomId]
	if !ok {
		return false
	}
	p, ok := room.participants[participantId]
	if !ok {
		return false
	}
	delete(room.participants, participantId)
	now := r.clk.Now()
	room.LastActivity = now
	room.stats.leaves++
	room.stats.totalSession += now.Sub(p.JoinedAt)
	return true
}

// Snapshot returns the authoritative room state.
func (r *Registry) Snapshot(roomId string) (api.JoinRoomResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomId]
	if !ok {
		return api.JoinRoomResponse{}, api.Errorf(api.ErrRoomNotFound, "no room %v", roomId)
	}
	return room.Snapshot(), nil
}

// MemberIds lists the current member ids except the excluded one.
func (r *Registry) MemberIds(roomId string, exclude string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomId]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(room.participants))
	for id := range room.participants {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}

// HasParticipant says whether the participant is a member of the room.
func (r *Registry) HasParticipant(roomId string, participantId string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomId]
	if !ok {
		return false
	}
	_, ok = room.participants[participantId]
	return ok
}

// UpdatePosition stores the participant's last transform and bumps the
// activity timestamps. The transform stays an opaque blob.
func (r *Registry) UpdatePosition(roomId string, participantId string, transform json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomId]
	if !ok {
		return api.Errorf(api.ErrRoomNotFound, "no room %v", roomId)
	}
	p, ok := room.participants[participantId]
	if !ok {
		return api.Errorf(api.ErrParticipantNotFound, "no participant %v in room %v", participantId, roomId)
	}
	now := r.clk.Now()
	p.Transform = transform
	p.LastActivity = now
	p.Updates++
	room.LastActivity = now
	return nil
}

// Sweep removes rooms that hold no participants and have been inactive
// longer than their timeout: a short one for regular rooms, a much
// longer one for persistent ones. Rooms with members are never removed.
func (r *Registry) Sweep() (removed []string) {
	r.mu.Lock()
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	now := r.clk.Now()
	r.mu.Unlock()

	for _, id := range ids {
		r.mu.Lock()
		room, ok := r.rooms[id]
		// re-check: the room may be gone or repopulated since the snapshot
		if ok && len(room.participants) == 0 {
			ttl := r.conf.EmptyTTL
			if room.Persistent {
				ttl = r.conf.PersistentEmptyTTL
			}
			if now.Sub(room.LastActivity) >= ttl {
				r.remove(id)
				removed = append(removed, id)
			}
		}
		r.mu.Unlock()
	}
	if len(removed) > 0 {
		r.log.Info().Msgf("Room sweep reclaimed %d room(s): %v", len(removed), removed)
	}
	return removed
}

// Remove drops a room unconditionally (explicit teardown path).
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	r.remove(id)
	r.mu.Unlock()
}

// remove must be called under the registry lock.
func (r *Registry) remove(id string) {
	delete(r.rooms, id)
	for i, x := range r.order {
		if x == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	monitoring.ActiveRooms.Set(float64(len(r.rooms)))
}
