// Package api defines the wire API of the session coordination service.
//
// Each call (request, response, or push) is a JSON-encoded "packet" of
// the following structure:
//
//	id - (optional) a globally unique packet id;
//	 t - (required) one of the predefined unique packet types;
//	 p - (optional) packet payload with arbitrary data.
//
// Packets differentiate by their predefined types with which it is
// possible to unwrap the payload into distinct request/response data
// structures. The id field is used for tracking request/response pairs
// through the socket.
package api

import (
	"github.com/goccy/go-json"
)

type PT uint16

type In struct {
	Id      string          `json:"id,omitempty"`
	T       PT              `json:"t"`
	Payload json.RawMessage `json:"p,omitempty"` // raw for the 2nd unmarshal pass
}

type Out struct {
	Id      string `json:"id,omitempty"`
	T       PT     `json:"t"`
	Payload any    `json:"p,omitempty"`
}

// Packet codes:
//
//	1xx - room membership and queries
//	2xx - peer signaling
//	3xx - shared room state
//	4xx - service
const (
	JoinRoom    PT = 101
	LeaveRoom   PT = 102
	UserJoined  PT = 103
	UserLeft    PT = 104
	ListRooms   PT = 105
	SearchRooms PT = 106

	Offer        PT = 201
	Answer       PT = 202
	IceCandidate PT = 203

	SpawnObject    PT = 301
	UpdateObject   PT = 302
	RemoveObject   PT = 303
	PositionUpdate PT = 304
	InteractObject PT = 305

	GetStats PT = 401
	Error    PT = 402
)

func (p PT) String() string {
	switch p {
	case JoinRoom:
		return "JoinRoom"
	case LeaveRoom:
		return "LeaveRoom"
	case UserJoined:
		return "UserJoined"
	case UserLeft:
		return "UserLeft"
	case ListRooms:
		return "ListRooms"
	case SearchRooms:
		return "SearchRooms"
	case Offer:
		return "Offer"
	case Answer:
		return "Answer"
	case IceCandidate:
		return "IceCandidate"
	case SpawnObject:
		return "SpawnObject"
	case UpdateObject:
		return "UpdateObject"
	case RemoveObject:
		return "RemoveObject"
	case PositionUpdate:
		return "PositionUpdate"
	case InteractObject:
		return "InteractObject"
	case GetStats:
		return "GetStats"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// IsSignal says whether the packet carries an opaque peer setup payload.
func (p PT) IsSignal() bool { return p == Offer || p == Answer || p == IceCandidate }

func Unwrap[T any](data []byte) *T {
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil
	}
	return out
}
