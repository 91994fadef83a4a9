package api

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestPacket(t *testing.T) {
	raw := []byte(`{"id":"42","t":101,"p":{"room_id":"r1"}}`)
	var in In
	if err := json.Unmarshal(raw, &in); err != nil {
		t.Fatal(err)
	}
	if in.Id != "42" || in.T != JoinRoom {
		t.Errorf("bad envelope: %+v", in)
	}
	rq := Unwrap[JoinRoomRequest](in.Payload)
	if rq == nil || rq.RoomId != "r1" {
		t.Errorf("bad payload: %+v", rq)
	}
	if Unwrap[JoinRoomRequest]([]byte("{")) != nil {
		t.Error("broken payload should unwrap to nil")
	}
}

func TestPacketCodeRange(t *testing.T) {
	// the 3xx/4xx blocks sit above one byte
	for _, p := range []PT{SpawnObject, UpdateObject, RemoveObject, PositionUpdate, InteractObject, GetStats, Error} {
		data, err := json.Marshal(Out{T: p})
		if err != nil {
			t.Fatal(err)
		}
		var in In
		if err = json.Unmarshal(data, &in); err != nil {
			t.Fatal(err)
		}
		if in.T != p {
			t.Errorf("code %d mangled to %d on the wire", uint16(p), uint16(in.T))
		}
	}
}

func TestPT(t *testing.T) {
	for _, p := range []PT{Offer, Answer, IceCandidate} {
		if !p.IsSignal() {
			t.Errorf("%v is a signal", p)
		}
	}
	if JoinRoom.IsSignal() {
		t.Error("JoinRoom is not a signal")
	}
	if PT(0).String() != "Unknown" {
		t.Errorf("got %q for an unknown code", PT(0).String())
	}
}

func TestCodedError(t *testing.T) {
	err := Errorf(ErrRoomFull, "room %v is full", "r1")
	if CodeOf(err) != ErrRoomFull {
		t.Errorf("got %v, want %v", CodeOf(err), ErrRoomFull)
	}
	if err.Error() != "ROOM_FULL: room r1 is full" {
		t.Errorf("unexpected message: %v", err)
	}
	if CodeOf(json.Unmarshal([]byte("{"), &In{})) != "" {
		t.Error("foreign errors have no code")
	}
}
