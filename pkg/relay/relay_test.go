package relay

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/holomesh/holomesh/pkg/api"
	"github.com/holomesh/holomesh/pkg/clock"
	"github.com/holomesh/holomesh/pkg/config"
	"github.com/holomesh/holomesh/pkg/logger"
	"github.com/holomesh/holomesh/pkg/registry"
	"github.com/holomesh/holomesh/pkg/tracker"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	clk   *clock.Manual
	rooms *registry.Registry
	conns *tracker.Tracker
	relay *Relay
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.Default()
	clk := clock.NewManual(epoch)
	rooms := registry.New(config.Rooms{
		DefaultCapacity: 8,
		MaxCapacity:     64,
		ObjectCap:       16,
		NameMaxLen:      64,
		EmptyTTL:        5 * time.Minute,
		RecencyWindow:   240 * time.Hour,
	}, clk, log)
	conns := tracker.New(config.Connections{
		MaxPerParticipant:   16,
		FailedCleanup:       5 * time.Second,
		DisconnectedCleanup: 30 * time.Second,
		ClosedCleanup:       time.Second,
		ConnectingCeiling:   30 * time.Second,
		StaleAge:            10 * time.Minute,
	}, rooms, clk, log)
	r := New(config.Queue{MaxLen: 3, MaxAge: 2 * time.Minute}, rooms, conns, clk, log)
	return &fixture{clk: clk, rooms: rooms, conns: conns, relay: r}
}

// capture is a sink recording every packet pushed to one participant.
// A non-zero limit refuses pushes once that many packets were taken.
type capture struct {
	got    []api.Out
	refuse bool
	limit  int
}

func (c *capture) sink(out api.Out) bool {
	if c.refuse || (c.limit > 0 && len(c.got) >= c.limit) {
		return false
	}
	c.got = append(c.got, out)
	return true
}

func (f *fixture) join(t *testing.T, roomId string, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if _, err := f.relay.Join(roomId, api.Participant{Id: id}); err != nil {
			t.Fatal(err)
		}
	}
}

func (f *fixture) createRoom(t *testing.T, id string) {
	t.Helper()
	if _, err := f.rooms.Create(registry.RoomSpec{Id: id, Name: id}); err != nil {
		t.Fatal(err)
	}
}

func TestQueueing(t *testing.T) {
	t.Run("FlushInOrder", func(t *testing.T) {
		f := newFixture(t)
		f.createRoom(t, "r1")
		f.join(t, "r1", "a", "b")

		if err := f.relay.Signal(api.IceCandidate, api.Signal{RoomId: "r1", From: "a", To: "b"}); err == nil {
			t.Fatal("candidate for an untracked pair should fail")
		}
		for _, p := range []string{"1", "2", "3"} {
			payload, _ := json.Marshal(p)
			if err := f.relay.Signal(api.Offer, api.Signal{RoomId: "r1", From: "a", To: "b", Payload: payload}); err != nil {
				t.Fatal(err)
			}
		}
		if f.relay.QueuedTotal() != 3 {
			t.Fatalf("got %d queued, want 3", f.relay.QueuedTotal())
		}

		b := &capture{}
		f.relay.Attach("b", b.sink)
		if len(b.got) != 3 {
			t.Fatalf("got %d flushed, want 3", len(b.got))
		}
		for i, want := range []string{`"1"`, `"2"`, `"3"`} {
			sig := b.got[i].Payload.(api.Signal)
			if string(sig.Payload) != want {
				t.Errorf("message %d out of order: %s", i, sig.Payload)
			}
		}
		if f.relay.QueuedTotal() != 0 {
			t.Errorf("queue not emptied: %d left", f.relay.QueuedTotal())
		}
	})

	t.Run("DropOldestPastCap", func(t *testing.T) {
		f := newFixture(t)
		f.createRoom(t, "r1")
		f.join(t, "r1", "a", "b")

		for _, p := range []string{"1", "2", "3", "4", "5"} {
			payload, _ := json.Marshal(p)
			if err := f.relay.Signal(api.Offer, api.Signal{RoomId: "r1", From: "a", To: "b", Payload: payload}); err != nil {
				t.Fatal(err)
			}
		}
		if f.relay.QueuedTotal() != 3 {
			t.Fatalf("got %d queued, want the cap of 3", f.relay.QueuedTotal())
		}
		b := &capture{}
		f.relay.Attach("b", b.sink)
		if sig := b.got[0].Payload.(api.Signal); string(sig.Payload) != `"3"` {
			t.Errorf("oldest not dropped first, head is %s", sig.Payload)
		}
	})

	t.Run("PurgeExpired", func(t *testing.T) {
		f := newFixture(t)
		f.createRoom(t, "r1")
		f.join(t, "r1", "a", "b")

		if err := f.relay.Signal(api.Offer, api.Signal{RoomId: "r1", From: "a", To: "b"}); err != nil {
			t.Fatal(err)
		}
		f.clk.Advance(time.Minute)
		if err := f.relay.Signal(api.IceCandidate, api.Signal{RoomId: "r1", From: "a", To: "b"}); err != nil {
			t.Fatal(err)
		}

		f.clk.Advance(90 * time.Second)
		if purged := f.relay.PurgeQueues(); purged != 1 {
			t.Fatalf("got %d purged, want the expired offer only", purged)
		}
		if f.relay.QueuedTotal() != 1 {
			t.Errorf("got %d queued, want 1", f.relay.QueuedTotal())
		}
	})

	t.Run("RefusedPushRequeues", func(t *testing.T) {
		f := newFixture(t)
		f.createRoom(t, "r1")
		f.join(t, "r1", "a", "b")

		b := &capture{refuse: true}
		f.relay.Attach("b", b.sink)
		if err := f.relay.Signal(api.Offer, api.Signal{RoomId: "r1", From: "a", To: "b"}); err != nil {
			t.Fatal(err)
		}
		if f.relay.Reachable("b") {
			t.Error("refusing sink still registered")
		}
		if f.relay.QueuedTotal() != 1 {
			t.Errorf("got %d queued, want the refused message", f.relay.QueuedTotal())
		}
		if n := f.relay.Stats().SignalsPerKind["Offer"]; n != 1 {
			t.Errorf("got %d offers counted, want 1 despite the requeue", n)
		}
	})

	t.Run("PartialFlushKeepsRemainder", func(t *testing.T) {
		f := newFixture(t)
		f.createRoom(t, "r1")
		f.join(t, "r1", "a", "b")

		for _, p := range []string{"1", "2", "3"} {
			payload, _ := json.Marshal(p)
			if err := f.relay.Signal(api.Offer, api.Signal{RoomId: "r1", From: "a", To: "b", Payload: payload}); err != nil {
				t.Fatal(err)
			}
		}

		b := &capture{limit: 1}
		f.relay.Attach("b", b.sink)
		if len(b.got) != 1 {
			t.Fatalf("got %d flushed, want 1 before the refusal", len(b.got))
		}
		if f.relay.Reachable("b") {
			t.Error("refusing sink still registered")
		}
		if f.relay.QueuedTotal() != 2 {
			t.Fatalf("got %d queued, want the unflushed remainder", f.relay.QueuedTotal())
		}

		fresh := &capture{}
		f.relay.Attach("b", fresh.sink)
		if len(fresh.got) != 2 {
			t.Fatalf("got %d on reattach, want 2", len(fresh.got))
		}
		for i, want := range []string{`"2"`, `"3"`} {
			sig := fresh.got[i].Payload.(api.Signal)
			if string(sig.Payload) != want {
				t.Errorf("remainder %d out of order: %s", i, sig.Payload)
			}
		}
	})
}

func TestRoomEvents(t *testing.T) {
	t.Run("JoinNotifiesOthers", func(t *testing.T) {
		f := newFixture(t)
		f.createRoom(t, "r1")
		a, b := &capture{}, &capture{}
		f.relay.Attach("a", a.sink)
		f.relay.Attach("b", b.sink)
		f.join(t, "r1", "a")

		snapshot, err := f.relay.Join("r1", api.Participant{Id: "b"})
		if err != nil {
			t.Fatal(err)
		}
		if len(snapshot.Participants) != 2 {
			t.Errorf("joiner snapshot has %d members, want 2", len(snapshot.Participants))
		}
		if len(a.got) != 1 || a.got[0].T != api.UserJoined {
			t.Errorf("existing member not notified: %v", a.got)
		}
		if len(b.got) != 0 {
			t.Errorf("joiner notified about itself: %v", b.got)
		}
	})

	t.Run("LeaveNotifiesAndDisconnects", func(t *testing.T) {
		f := newFixture(t)
		f.createRoom(t, "r1")
		f.join(t, "r1", "a", "b")
		a := &capture{}
		f.relay.Attach("a", a.sink)
		if err := f.relay.Signal(api.Offer, api.Signal{RoomId: "r1", From: "a", To: "b"}); err != nil {
			t.Fatal(err)
		}

		if !f.relay.Leave("r1", "b") {
			t.Fatal("leave failed")
		}
		if len(a.got) != 1 || a.got[0].T != api.UserLeft {
			t.Fatalf("remaining member not notified: %v", a.got)
		}
		if conn := f.conns.Get("a", "b"); conn == nil || conn.State != tracker.StateDisconnected {
			t.Errorf("leaver connection not marked disconnected: %+v", conn)
		}
		if f.relay.Leave("r1", "b") {
			t.Error("second leave should report false")
		}
	})

	t.Run("ObjectLifecycleBroadcasts", func(t *testing.T) {
		f := newFixture(t)
		f.createRoom(t, "r1")
		f.join(t, "r1", "a", "b")
		b := &capture{}
		f.relay.Attach("b", b.sink)

		obj, err := f.relay.SpawnObject("r1", "a", api.Object{Id: "cube", Type: "prop"})
		if err != nil {
			t.Fatal(err)
		}
		if obj.Owner != "a" {
			t.Errorf("got owner %q, want the actor", obj.Owner)
		}
		if _, err = f.relay.UpdateObject("r1", "a", api.Object{Id: "cube", Type: "crate"}); err != nil {
			t.Fatal(err)
		}
		if err = f.relay.Interact("r1", "b", "cube", nil); err != nil {
			t.Fatal(err)
		}
		if err = f.relay.RemoveObject("r1", "a", "cube"); err != nil {
			t.Fatal(err)
		}

		want := []api.PT{api.SpawnObject, api.UpdateObject, api.RemoveObject}
		if len(b.got) != 3 {
			t.Fatalf("got %d broadcasts, want 3: %v", len(b.got), b.got)
		}
		for i, kind := range want {
			if b.got[i].T != kind {
				t.Errorf("broadcast %d is %v, want %v", i, b.got[i].T, kind)
			}
		}
	})

	t.Run("PositionFanOut", func(t *testing.T) {
		f := newFixture(t)
		f.createRoom(t, "r1")
		f.join(t, "r1", "a", "b", "c")
		b, c := &capture{}, &capture{}
		f.relay.Attach("b", b.sink)
		f.relay.Attach("c", c.sink)

		pos := json.RawMessage(`{"x":1}`)
		if err := f.relay.UpdatePosition("r1", "a", pos); err != nil {
			t.Fatal(err)
		}
		if len(b.got) != 1 || len(c.got) != 1 {
			t.Fatalf("fan-out incomplete: b=%d c=%d", len(b.got), len(c.got))
		}
		ev := b.got[0].Payload.(api.PositionEvent)
		if ev.ParticipantId != "a" || string(ev.Transform) != `{"x":1}` {
			t.Errorf("unexpected position event: %+v", ev)
		}
	})
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	f.createRoom(t, "r1")
	f.join(t, "r1", "a", "b")

	if err := f.relay.Signal(api.Offer, api.Signal{RoomId: "r1", From: "a", To: "b"}); err != nil {
		t.Fatal(err)
	}
	if err := f.conns.Transition("a", "b", tracker.StateConnected); err != nil {
		t.Fatal(err)
	}

	s := f.relay.Stats()
	if s.Rooms != 1 || s.Connections != 1 {
		t.Errorf("got %d rooms / %d connections, want 1/1", s.Rooms, s.Connections)
	}
	if s.QueuedMessages != 1 {
		t.Errorf("got %d queued, want the undelivered offer", s.QueuedMessages)
	}
	if s.ConnectOk != 1 || s.ConnectFail != 0 {
		t.Errorf("got ok=%d fail=%d, want 1/0", s.ConnectOk, s.ConnectFail)
	}
	if s.SignalsPerKind["Offer"] != 1 {
		t.Errorf("unexpected per-kind counts: %v", s.SignalsPerKind)
	}
}
