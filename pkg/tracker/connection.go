package tracker

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/holomesh/holomesh/pkg/api"
	"github.com/holomesh/holomesh/pkg/clock"
)

// State of a peer pair connection setup.
type State uint8

const (
	StateNew State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Recoverable says whether an explicit create call replaces the
// connection with a fresh one (treated as a reconnection).
func (s State) Recoverable() bool {
	return s == StateDisconnected || s == StateFailed || s == StateClosed
}

// PairId is a deterministic order-independent identifier of a two
// participant connection, so PairOf(a, b) == PairOf(b, a).
type PairId string

func PairOf(a string, b string) PairId {
	if b < a {
		a, b = b, a
	}
	return PairId(a + ":" + b)
}

// Channel is a named data-channel descriptor of a connection.
type Channel struct {
	Label     string    `json:"label"`
	Protocol  string    `json:"protocol,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Transfer holds cumulative transfer statistics of a connection.
type Transfer struct {
	BytesIn  uint64 `json:"bytes_in"`
	BytesOut uint64 `json:"bytes_out"`
	Messages uint64 `json:"messages"`
}

// Connection tracks the setup state between exactly two participants.
// At most one live connection exists per unordered pair; all mutation
// goes through the owning Tracker.
type Connection struct {
	Pair   PairId
	RoomId string
	// participant ids in canonical order
	A, B string

	State        State
	CreatedAt    time.Time
	ConnectedAt  time.Time
	LastActivity time.Time
	Channels     map[string]Channel
	Transfer     Transfer

	// pending deferred removal, cancelled on recovery
	cleanup clock.Task
}

func (c *Connection) Involves(id string) bool { return c.A == id || c.B == id }

// Other returns the peer of the given participant in this pair.
func (c *Connection) Other(id string) string {
	if c.A == id {
		return c.B
	}
	return c.A
}

// Message is a signaling envelope queued or delivered to a recipient.
type Message struct {
	Kind    api.PT          `json:"kind"`
	RoomId  string          `json:"room_id"`
	From    string          `json:"from"`
	To      string          `json:"to"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

// Deliver pushes a signaling message towards its recipient: immediate
// when reachable, queued otherwise. Best-effort and non-blocking.
type Deliver func(msg Message)
