package registry

import (
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/holomesh/holomesh/pkg/api"
)

// Perms is a participant permission set.
type Perms uint8

const (
	PermSpawn Perms = 1 << iota
	PermInteract
	// PermHost allows mutating objects owned by others and is granted
	// to the room creator.
	PermHost

	PermsDefault = PermSpawn | PermInteract
)

func (p Perms) Has(x Perms) bool { return p&x != 0 }

// Participant is a room-scoped membership record of one user.
// The same external user id may be a participant of several rooms at
// once; rooms never deduplicate across each other.
type Participant struct {
	Id           string
	DisplayData  json.RawMessage
	Perms        Perms
	JoinedAt     time.Time
	LastActivity time.Time
	// position/state updates submitted within this session
	Updates uint64
	// last known transform, opaque to the registry
	Transform json.RawMessage
}

// SharedObject is a room-owned object spawned by a participant.
// The transform blob is stored and forwarded, never interpreted.
type SharedObject struct {
	Id         string
	Type       string
	Owner      string
	Transform  json.RawMessage
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Settings holds room feature toggles.
type Settings struct {
	Capabilities []string        `json:"capabilities,omitempty" fig:"capabilities"`
	Toggles      map[string]bool `json:"toggles,omitempty" fig:"toggles"`
}

func (s Settings) HasCapability(name string) bool {
	for _, c := range s.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

type roomStats struct {
	peakMembers  int
	totalJoins   int
	leaves       int
	totalSession time.Duration
}

// Room is a named, capacity-bounded container of participants and
// shared objects. All mutation goes through the owning Registry.
type Room struct {
	Id           string
	Name         string
	Description  string
	Private      bool
	Persistent   bool
	Capacity     int
	Creator      string
	Template     string
	Settings     Settings
	CreatedAt    time.Time
	LastActivity time.Time

	participants map[string]*Participant
	objects      map[string]*SharedObject
	stats        roomStats
}

func (r *Room) MemberCount() int { return len(r.participants) }
func (r *Room) ObjectCount() int { return len(r.objects) }
func (r *Room) PeakMembers() int { return r.stats.peakMembers }
func (r *Room) TotalJoins() int  { return r.stats.totalJoins }

// AvgSession returns the mean duration of the finished sessions.
func (r *Room) AvgSession() time.Duration {
	if r.stats.leaves == 0 {
		return 0
	}
	return r.stats.totalSession / time.Duration(r.stats.leaves)
}

func (r *Room) Participant(id string) *Participant { return r.participants[id] }
func (r *Room) Object(id string) *SharedObject     { return r.objects[id] }

// Members lists the current participants ordered by join time, so
// snapshots stay deterministic.
func (r *Room) Members() []*Participant {
	out := make([]*Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].Id < out[j].Id
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// Objects lists the shared objects ordered by creation time.
func (r *Room) Objects() []*SharedObject {
	out := make([]*SharedObject, 0, len(r.objects))
	for _, o := range r.objects {
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Id < out[j].Id
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Snapshot renders the authoritative room state for a joining member.
func (r *Room) Snapshot() api.JoinRoomResponse {
	res := api.JoinRoomResponse{RoomId: r.Id, Name: r.Name}
	for _, p := range r.Members() {
		res.Participants = append(res.Participants, api.Participant{Id: p.Id, DisplayData: p.DisplayData})
	}
	for _, o := range r.Objects() {
		res.Objects = append(res.Objects, api.Object{Id: o.Id, Type: o.Type, Owner: o.Owner, Transform: o.Transform})
	}
	return res
}

func (r *Room) info() api.RoomInfo {
	return api.RoomInfo{
		Id:           r.Id,
		Name:         r.Name,
		MemberCount:  len(r.participants),
		Capacity:     r.Capacity,
		Capabilities: r.Settings.Capabilities,
		LastActivity: r.LastActivity,
	}
}

// canMutate says whether the actor may modify an object owned by owner.
func (r *Room) canMutate(actor string, owner string) bool {
	p := r.participants[actor]
	if p == nil {
		return false
	}
	return actor == owner || p.Perms.Has(PermHost)
}
