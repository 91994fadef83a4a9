// Package tracker owns the per-pair connection state machine and its
// admission control. It validates room context through a narrow
// interface and pushes signaling messages out through an injected
// delivery callback, staying unaware of sockets and queues.
package tracker

import (
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/holomesh/holomesh/pkg/api"
	"github.com/holomesh/holomesh/pkg/clock"
	"github.com/holomesh/holomesh/pkg/config"
	"github.com/holomesh/holomesh/pkg/logger"
	"github.com/holomesh/holomesh/pkg/monitoring"
)

// Rooms is the narrow view of the room registry the tracker needs.
type Rooms interface {
	Has(roomId string) bool
}

type Tracker struct {
	conf    config.Connections
	clk     clock.Clock
	rooms   Rooms
	deliver Deliver
	log     *logger.Logger

	mu    sync.Mutex
	conns map[PairId]*Connection

	// running totals for the stats surface
	connected   int
	okTotal     uint64
	failTotal   uint64
	avgSetup    time.Duration
	setupFolded uint64
}

func New(conf config.Connections, rooms Rooms, clk clock.Clock, log *logger.Logger) *Tracker {
	return &Tracker{
		conf:  conf,
		clk:   clk,
		rooms: rooms,
		log:   log,
		conns: make(map[PairId]*Connection, 10),
	}
}

// SetDeliver injects the relay's delivery mechanism.
func (t *Tracker) SetDeliver(d Deliver) { t.mu.Lock(); t.deliver = d; t.mu.Unlock() }

// Create admits a new tracked connection for the pair. A repeated call
// for a live pair is idempotent and returns the existing connection
// unchanged; a call for a disconnected, failed or closed pair replaces
// it with a fresh one (reconnection).
func (t *Tracker) Create(a string, b string, roomId string) (*Connection, error) {
	if a == "" || b == "" || a == b {
		return nil, api.Errorf(api.ErrValidation, "invalid participant pair (%q, %q)", a, b)
	}
	if t.rooms != nil && !t.rooms.Has(roomId) {
		return nil, api.Errorf(api.ErrRoomNotFound, "no room %v", roomId)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.create(a, b, roomId)
}

// create must be called under the tracker lock.
func (t *Tracker) create(a string, b string, roomId string) (*Connection, error) {
	pair := PairOf(a, b)
	old := t.conns[pair]
	if old != nil && !old.State.Recoverable() {
		return old, nil
	}
	if n := t.countFor(a, pair); n >= t.conf.MaxPerParticipant {
		return nil, api.Errorf(api.ErrConnLimit, "participant %v has %d tracked connections", a, n)
	}
	if n := t.countFor(b, pair); n >= t.conf.MaxPerParticipant {
		return nil, api.Errorf(api.ErrConnLimit, "participant %v has %d tracked connections", b, n)
	}
	if old != nil {
		t.drop(old)
	}

	if b < a {
		a, b = b, a
	}
	now := t.clk.Now()
	conn := &Connection{
		Pair:         pair,
		RoomId:       roomId,
		A:            a,
		B:            b,
		State:        StateNew,
		CreatedAt:    now,
		LastActivity: now,
		Channels:     make(map[string]Channel, 2),
	}
	t.conns[pair] = conn
	monitoring.TrackedConnections.Set(float64(len(t.conns)))
	t.log.Debug().Str("cid", string(pair)).Msg("Connection tracked")
	return conn, nil
}

// countFor counts tracked connections of the participant except the
// given pair (the one possibly being replaced).
func (t *Tracker) countFor(id string, except PairId) (n int) {
	for p, c := range t.conns {
		if p != except && c.Involves(id) {
			n++
		}
	}
	return
}

// Get finds a tracked connection by its pair.
func (t *Tracker) Get(a string, b string) *Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[PairOf(a, b)]
}

// Count returns the number of tracked connections.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// RecordOffer registers an offer from one participant to another,
// lazily creating the pair connection, and pushes the message towards
// the recipient.
func (t *Tracker) RecordOffer(roomId string, from string, to string, payload json.RawMessage) error {
	t.mu.Lock()
	conn := t.conns[PairOf(from, to)]
	if conn == nil || conn.State.Recoverable() {
		var err error
		if conn, err = t.create(from, to, roomId); err != nil {
			t.mu.Unlock()
			return err
		}
	}
	if conn.State == StateNew {
		t.transition(conn, StateConnecting)
	}
	conn.LastActivity = t.clk.Now()
	t.mu.Unlock()

	t.push(Message{Kind: api.Offer, RoomId: roomId, From: from, To: to, Payload: payload})
	return nil
}

// RecordAnswer registers an answer for an existing handshake. An answer
// with no matching offer is a state violation: it is logged and the
// connection is driven to failed instead of being raised to the caller.
func (t *Tracker) RecordAnswer(roomId string, from string, to string, payload json.RawMessage) error {
	t.mu.Lock()
	conn := t.conns[PairOf(from, to)]
	if conn == nil {
		t.mu.Unlock()
		return api.Errorf(api.ErrConnNotFound, "no connection for pair (%v, %v)", from, to)
	}
	if conn.State != StateConnecting && conn.State != StateConnected {
		t.log.Warn().Str("cid", string(conn.Pair)).
			Msgf("Answer in state %v with no matching offer", conn.State)
		t.transition(conn, StateFailed)
		t.mu.Unlock()
		return nil
	}
	conn.LastActivity = t.clk.Now()
	t.mu.Unlock()

	t.push(Message{Kind: api.Answer, RoomId: roomId, From: from, To: to, Payload: payload})
	return nil
}

// RecordIceCandidate relays a trickled candidate for an existing pair.
func (t *Tracker) RecordIceCandidate(roomId string, from string, to string, payload json.RawMessage) error {
	t.mu.Lock()
	conn := t.conns[PairOf(from, to)]
	if conn == nil {
		t.mu.Unlock()
		return api.Errorf(api.ErrConnNotFound, "no connection for pair (%v, %v)", from, to)
	}
	conn.LastActivity = t.clk.Now()
	t.mu.Unlock()

	t.push(Message{Kind: api.IceCandidate, RoomId: roomId, From: from, To: to, Payload: payload})
	return nil
}

func (t *Tracker) push(msg Message) {
	t.mu.Lock()
	deliver := t.deliver
	t.mu.Unlock()
	if deliver != nil {
		msg.At = t.clk.Now()
		deliver(msg)
	}
}

// Transition drives the pair state machine with its side effects.
func (t *Tracker) Transition(a string, b string, next State) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	conn := t.conns[PairOf(a, b)]
	if conn == nil {
		return api.Errorf(api.ErrConnNotFound, "no connection for pair (%v, %v)", a, b)
	}
	t.transition(conn, next)
	return nil
}

// transition must be called under the tracker lock.
func (t *Tracker) transition(conn *Connection, next State) {
	prev := conn.State
	if prev == next {
		return
	}
	now := t.clk.Now()
	conn.State = next
	conn.LastActivity = now
	if conn.cleanup != nil {
		conn.cleanup.Stop()
		conn.cleanup = nil
	}
	if prev == StateConnected {
		t.connected--
		monitoring.ActiveConnections.Set(float64(t.connected))
	}

	switch next {
	case StateConnected:
		if conn.ConnectedAt.IsZero() {
			conn.ConnectedAt = now
			t.foldSetupTime(now.Sub(conn.CreatedAt))
			t.okTotal++
			monitoring.ConnectOk.Inc()
		}
		t.connected++
		monitoring.ActiveConnections.Set(float64(t.connected))
	case StateFailed:
		t.failTotal++
		monitoring.ConnectFail.Inc()
		t.scheduleCleanup(conn, t.conf.FailedCleanup)
	case StateDisconnected:
		// a longer delay tolerates transient drops
		t.scheduleCleanup(conn, t.conf.DisconnectedCleanup)
	case StateClosed:
		t.scheduleCleanup(conn, t.conf.ClosedCleanup)
	}
	t.log.Debug().Str("cid", string(conn.Pair)).Msgf("Connection %v -> %v", prev, next)
}

// scheduleCleanup defers the removal of the connection. The task
// re-checks the current state before deleting: the pair may have
// recovered or been replaced since scheduling, in which case the task
// is a no-op.
func (t *Tracker) scheduleCleanup(conn *Connection, delay time.Duration) {
	state := conn.State
	conn.cleanup = t.clk.AfterFunc(delay, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		cur := t.conns[conn.Pair]
		if cur != conn || cur.State != state {
			return
		}
		t.drop(conn)
	})
}

// drop must be called under the tracker lock.
func (t *Tracker) drop(conn *Connection) {
	if conn.cleanup != nil {
		conn.cleanup.Stop()
		conn.cleanup = nil
	}
	if conn.State == StateConnected {
		t.connected--
		monitoring.ActiveConnections.Set(float64(t.connected))
	}
	delete(t.conns, conn.Pair)
	monitoring.TrackedConnections.Set(float64(len(t.conns)))
	t.log.Debug().Str("cid", string(conn.Pair)).Msgf("Connection dropped in state %v", conn.State)
}

// AddChannel registers a named data-channel descriptor on the pair.
func (t *Tracker) AddChannel(a string, b string, label string, protocol string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	conn := t.conns[PairOf(a, b)]
	if conn == nil {
		return api.Errorf(api.ErrConnNotFound, "no connection for pair (%v, %v)", a, b)
	}
	conn.Channels[label] = Channel{Label: label, Protocol: protocol, CreatedAt: t.clk.Now()}
	return nil
}

// RecordTransfer folds reported transfer stats into the pair totals.
func (t *Tracker) RecordTransfer(a string, b string, in uint64, out uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if conn := t.conns[PairOf(a, b)]; conn != nil {
		conn.Transfer.BytesIn += in
		conn.Transfer.BytesOut += out
		conn.Transfer.Messages++
		conn.LastActivity = t.clk.Now()
	}
}

// DropFor marks every live connection of a participant disconnected,
// used when the participant leaves without tearing its pairs down.
func (t *Tracker) DropFor(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, pair := range t.pairs() {
		conn := t.conns[pair]
		if conn != nil && conn.Involves(id) && !conn.State.Recoverable() {
			t.transition(conn, StateDisconnected)
		}
	}
}

// Sweep reclaims handshakes stuck in connecting past the ceiling
// (failed handshake) and non-connected pairs with no activity past the
// stale threshold.
func (t *Tracker) Sweep() (removed []PairId) {
	t.mu.Lock()
	pairs := t.pairs()
	now := t.clk.Now()
	for _, pair := range pairs {
		conn := t.conns[pair]
		if conn == nil {
			continue
		}
		switch {
		case conn.State == StateConnecting && now.Sub(conn.CreatedAt) >= t.conf.ConnectingCeiling:
			t.failTotal++
			monitoring.ConnectFail.Inc()
			t.drop(conn)
			removed = append(removed, pair)
		case conn.State != StateConnected && now.Sub(conn.LastActivity) >= t.conf.StaleAge:
			t.drop(conn)
			removed = append(removed, pair)
		}
	}
	t.mu.Unlock()
	if len(removed) > 0 {
		t.log.Info().Msgf("Connection sweep reclaimed %d pair(s)", len(removed))
	}
	return removed
}

// pairs snapshots the key set, must be called under the tracker lock.
func (t *Tracker) pairs() []PairId {
	out := make([]PairId, 0, len(t.conns))
	for p := range t.conns {
		out = append(out, p)
	}
	return out
}

// Totals returns the cumulative connect success/failure counts.
func (t *Tracker) Totals() (ok uint64, fail uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.okTotal, t.failTotal
}

// AvgSetupTime returns the running average of the handshake time of
// the connections that reached the connected state.
func (t *Tracker) AvgSetupTime() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.avgSetup
}

// foldSetupTime must be called under the tracker lock.
func (t *Tracker) foldSetupTime(d time.Duration) {
	t.setupFolded++
	t.avgSetup += (d - t.avgSetup) / time.Duration(t.setupFolded)
}
