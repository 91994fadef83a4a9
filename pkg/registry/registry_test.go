package registry

import (
	"strings"
	"testing"
	"time"

	"github.com/holomesh/holomesh/pkg/api"
	"github.com/holomesh/holomesh/pkg/clock"
	"github.com/holomesh/holomesh/pkg/config"
	"github.com/holomesh/holomesh/pkg/logger"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testConf() config.Rooms {
	return config.Rooms{
		DefaultCapacity:    8,
		MaxCapacity:        64,
		ObjectCap:          4,
		NameMaxLen:         64,
		EmptyTTL:           5 * time.Minute,
		PersistentEmptyTTL: 72 * time.Hour,
		RecencyWindow:      240 * time.Hour,
	}
}

func testRegistry(clk clock.Clock) *Registry {
	return New(testConf(), clk, logger.Default())
}

func TestCreate(t *testing.T) {
	r := testRegistry(clock.NewManual(epoch))

	t.Run("GeneratedId", func(t *testing.T) {
		info, err := r.Create(RoomSpec{Name: "Lobby"})
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if info.Id == "" {
			t.Error("no id was generated")
		}
		if info.Capacity != 8 {
			t.Errorf("got capacity %d, want the default 8", info.Capacity)
		}
	})

	t.Run("DuplicateId", func(t *testing.T) {
		if _, err := r.Create(RoomSpec{Id: "r1", Name: "One"}); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		_, err := r.Create(RoomSpec{Id: "r1", Name: "Two"})
		if api.CodeOf(err) != api.ErrDuplicateRoom {
			t.Errorf("got %v, want %v", err, api.ErrDuplicateRoom)
		}
	})

	t.Run("BadSpec", func(t *testing.T) {
		for _, spec := range []RoomSpec{
			{Name: ""},
			{Name: "   "},
			{Name: strings.Repeat("x", 100)},
			{Name: "TooBig", Capacity: 1000},
			{Name: "Negative", Capacity: -1},
			{Name: "NoSuchTemplate", Template: "missing"},
		} {
			if _, err := r.Create(spec); api.CodeOf(err) != api.ErrValidation {
				t.Errorf("spec %+v: got %v, want a validation error", spec, err)
			}
		}
	})

	t.Run("Template", func(t *testing.T) {
		r.Templates().Set(Template{
			Name:     "arena",
			Settings: Settings{Capabilities: []string{"video"}},
			Objects:  []api.Object{{Id: "spawn-1", Type: "marker"}},
		})
		info, err := r.Create(RoomSpec{Id: "arena-1", Name: "Arena", Template: "arena"})
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if len(info.Capabilities) != 1 || info.Capabilities[0] != "video" {
			t.Errorf("template settings not applied: %v", info.Capabilities)
		}
		snap, _ := r.Snapshot("arena-1")
		if len(snap.Objects) != 1 || snap.Objects[0].Id != "spawn-1" {
			t.Errorf("template objects not seeded: %v", snap.Objects)
		}
	})
}

func TestMembership(t *testing.T) {
	r := testRegistry(clock.NewManual(epoch))
	if _, err := r.Create(RoomSpec{Id: "lobby", Name: "Lobby", Capacity: 2}); err != nil {
		t.Fatal(err)
	}

	t.Run("CapacityInvariant", func(t *testing.T) {
		if err := r.AddParticipant("lobby", api.Participant{Id: "u1"}); err != nil {
			t.Fatal(err)
		}
		if err := r.AddParticipant("lobby", api.Participant{Id: "u2"}); err != nil {
			t.Fatal(err)
		}
		err := r.AddParticipant("lobby", api.Participant{Id: "u3"})
		if api.CodeOf(err) != api.ErrRoomFull {
			t.Fatalf("got %v, want %v", err, api.ErrRoomFull)
		}
		if ids := r.MemberIds("lobby", ""); len(ids) != 2 {
			t.Errorf("rejected join mutated the room: %v", ids)
		}
	})

	t.Run("DuplicateParticipant", func(t *testing.T) {
		err := r.AddParticipant("lobby", api.Participant{Id: "u1"})
		if api.CodeOf(err) != api.ErrDuplicateUser {
			t.Errorf("got %v, want %v", err, api.ErrDuplicateUser)
		}
	})

	t.Run("NoSuchRoom", func(t *testing.T) {
		err := r.AddParticipant("nope", api.Participant{Id: "u1"})
		if api.CodeOf(err) != api.ErrRoomNotFound {
			t.Errorf("got %v, want %v", err, api.ErrRoomNotFound)
		}
	})

	t.Run("LeaveIsNoOpSafe", func(t *testing.T) {
		if !r.RemoveParticipant("lobby", "u2") {
			t.Error("known member not removed")
		}
		if r.RemoveParticipant("lobby", "u2") {
			t.Error("second remove should report false")
		}
		if r.RemoveParticipant("nope", "u2") {
			t.Error("remove from a missing room should report false")
		}
	})

	t.Run("FirstJoinerBecomesHost", func(t *testing.T) {
		if _, err := r.Create(RoomSpec{Id: "ad-hoc", Name: "Ad hoc"}); err != nil {
			t.Fatal(err)
		}
		_ = r.AddParticipant("ad-hoc", api.Participant{Id: "first"})
		_ = r.AddParticipant("ad-hoc", api.Participant{Id: "second"})

		// the host may remove objects owned by others, a plain member may not
		if _, err := r.AddObject("ad-hoc", "second", api.Object{Id: "cube", Type: "prop"}); err != nil {
			t.Fatal(err)
		}
		if err := r.RemoveObject("ad-hoc", "first", "cube"); err != nil {
			t.Errorf("host could not remove a member's object: %v", err)
		}
	})
}

func TestSweep(t *testing.T) {
	clk := clock.NewManual(epoch)
	r := testRegistry(clk)

	mustCreate := func(spec RoomSpec) {
		t.Helper()
		if _, err := r.Create(spec); err != nil {
			t.Fatal(err)
		}
	}
	mustCreate(RoomSpec{Id: "empty", Name: "Empty"})
	mustCreate(RoomSpec{Id: "busy", Name: "Busy"})
	mustCreate(RoomSpec{Id: "keeper", Name: "Keeper", Persistent: true})
	if err := r.AddParticipant("busy", api.Participant{Id: "u1"}); err != nil {
		t.Fatal(err)
	}

	clk.Advance(time.Minute)
	if removed := r.Sweep(); len(removed) != 0 {
		t.Fatalf("sweep removed rooms before their TTL: %v", removed)
	}

	clk.Advance(10 * time.Minute)
	removed := r.Sweep()
	if len(removed) != 1 || removed[0] != "empty" {
		t.Fatalf("got %v, want [empty]", removed)
	}
	if !r.Has("busy") {
		t.Error("populated room was swept")
	}
	if !r.Has("keeper") {
		t.Error("persistent room was swept before its TTL")
	}

	clk.Advance(73 * time.Hour)
	r.Sweep()
	if r.Has("keeper") {
		t.Error("persistent room survived past its TTL")
	}
	if !r.Has("busy") {
		t.Error("populated room is never swept")
	}
}

func TestObjects(t *testing.T) {
	clk := clock.NewManual(epoch)
	r := testRegistry(clk)
	if _, err := r.Create(RoomSpec{Id: "ws", Name: "Workshop"}); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"owner", "guest"} {
		if err := r.AddParticipant("ws", api.Participant{Id: id}); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("SpawnAndCap", func(t *testing.T) {
		for _, id := range []string{"p0", "p1", "p2", "p3"} {
			if _, err := r.AddObject("ws", "guest", api.Object{Id: id, Type: "prop"}); err != nil {
				t.Fatal(err)
			}
		}
		_, err := r.AddObject("ws", "guest", api.Object{Type: "prop"})
		if api.CodeOf(err) != api.ErrObjectLimit {
			t.Errorf("got %v, want %v", err, api.ErrObjectLimit)
		}
	})

	t.Run("NonMemberCannotSpawn", func(t *testing.T) {
		_, err := r.AddObject("ws", "stranger", api.Object{Type: "prop"})
		if api.CodeOf(err) != api.ErrParticipantNotFound {
			t.Errorf("got %v, want %v", err, api.ErrParticipantNotFound)
		}
	})

	t.Run("OwnershipGuard", func(t *testing.T) {
		r2 := testRegistry(clk)
		if _, err := r2.Create(RoomSpec{Id: "ws", Name: "Workshop", Creator: "owner"}); err != nil {
			t.Fatal(err)
		}
		_ = r2.AddParticipant("ws", api.Participant{Id: "owner"})
		_ = r2.AddParticipant("ws", api.Participant{Id: "guest"})
		if _, err := r2.AddObject("ws", "owner", api.Object{Id: "table", Type: "prop"}); err != nil {
			t.Fatal(err)
		}

		_, err := r2.UpdateObject("ws", "guest", api.Object{Id: "table", Type: "bench"})
		if api.CodeOf(err) != api.ErrPermissionDenied {
			t.Errorf("got %v, want %v", err, api.ErrPermissionDenied)
		}
		if _, err = r2.UpdateObject("ws", "owner", api.Object{Id: "table", Type: "bench"}); err != nil {
			t.Errorf("owner update failed: %v", err)
		}
	})

	t.Run("Interact", func(t *testing.T) {
		if err := r.RemoveObject("ws", "guest", "p0"); err != nil {
			t.Fatal(err)
		}
		obj, err := r.AddObject("ws", "owner", api.Object{Id: "lever", Type: "switch"})
		if err != nil {
			t.Fatal(err)
		}
		if err = r.Interact("ws", "guest", obj.Id, nil); err != nil {
			t.Errorf("interact failed: %v", err)
		}
		err = r.Interact("ws", "guest", "ghost", nil)
		if api.CodeOf(err) != api.ErrObjectNotFound {
			t.Errorf("got %v, want %v", err, api.ErrObjectNotFound)
		}
	})
}
