package api

import (
	"time"

	"github.com/goccy/go-json"
)

type (
	Participant struct {
		Id          string          `json:"id"`
		DisplayData json.RawMessage `json:"display_data,omitempty"`
	}

	JoinRoomRequest struct {
		RoomId      string      `json:"room_id"`
		Participant Participant `json:"participant"`
	}
	// JoinRoomResponse is the room snapshot returned to the joining
	// participant: current members and shared objects.
	JoinRoomResponse struct {
		RoomId       string        `json:"room_id"`
		Name         string        `json:"name"`
		Participants []Participant `json:"participants"`
		Objects      []Object      `json:"objects"`
	}
	LeaveRoomRequest struct {
		RoomId        string `json:"room_id"`
		ParticipantId string `json:"participant_id"`
	}
	// UserEvent is pushed to remaining members on join/leave.
	UserEvent struct {
		RoomId      string      `json:"room_id"`
		Participant Participant `json:"participant"`
	}

	// Signal is an opaque connection setup message (offer, answer or
	// ICE candidate) relayed between two participants of one room.
	Signal struct {
		RoomId  string          `json:"room_id"`
		From    string          `json:"from"`
		To      string          `json:"to"`
		Payload json.RawMessage `json:"payload"`
	}

	Object struct {
		Id        string          `json:"id"`
		Type      string          `json:"type"`
		Owner     string          `json:"owner"`
		Transform json.RawMessage `json:"transform,omitempty"`
	}
	ObjectEvent struct {
		RoomId string `json:"room_id"`
		Object Object `json:"object"`
		// ActorId is who requested the mutation; may differ from the
		// object owner for update/remove.
		ActorId string `json:"actor_id,omitempty"`
	}
	PositionEvent struct {
		RoomId        string          `json:"room_id"`
		ParticipantId string          `json:"participant_id"`
		Transform     json.RawMessage `json:"transform"`
	}
	InteractEvent struct {
		RoomId      string          `json:"room_id"`
		ObjectId    string          `json:"object_id"`
		ActorId     string          `json:"actor_id"`
		Interaction json.RawMessage `json:"interaction"`
	}

	RoomInfo struct {
		Id           string    `json:"id"`
		Name         string    `json:"name"`
		MemberCount  int       `json:"member_count"`
		Capacity     int       `json:"capacity"`
		Capabilities []string  `json:"capabilities,omitempty"`
		LastActivity time.Time `json:"last_activity"`
	}
	SearchFilters struct {
		Capabilities []string `json:"capabilities,omitempty"`
		MinUsers     int      `json:"min_users,omitempty"`
		Template     string   `json:"template,omitempty"`
	}
	SearchRoomsRequest struct {
		Query   string        `json:"query,omitempty"`
		Filters SearchFilters `json:"filters,omitempty"`
	}
	RoomListResponse struct {
		Rooms []RoomInfo `json:"rooms"`
	}

	// StatsResponse is the read-only health surface.
	StatsResponse struct {
		Rooms          int              `json:"rooms"`
		Connections    int              `json:"connections"`
		QueuedMessages int              `json:"queued_messages"`
		ConnectOk      uint64           `json:"connect_ok"`
		ConnectFail    uint64           `json:"connect_fail"`
		SignalsPerKind map[string]int64 `json:"signals_per_kind,omitempty"`
	}
)
