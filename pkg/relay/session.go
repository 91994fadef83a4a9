package relay

import (
	"sync"

	"github.com/goccy/go-json"
	"github.com/holomesh/holomesh/pkg/api"
	"github.com/holomesh/holomesh/pkg/com"
	"github.com/holomesh/holomesh/pkg/logger"
	"github.com/holomesh/holomesh/pkg/network/websocket"
	"golang.org/x/time/rate"
)

// Session is one websocket client of the relay. It may join several
// rooms, each join binding a participant id to this socket for
// delivery. A socket close without explicit leaves counts as a leave
// from every joined room.
type Session struct {
	id      com.Uid
	conn    *websocket.WS
	relay   *Relay
	limiter *rate.Limiter
	log     *logger.Logger

	mu sync.Mutex
	// roomId -> participantId bound by a successful join
	memberships map[string]string
}

func NewSession(conn *websocket.WS, relay *Relay, limit rate.Limit, burst int, log *logger.Logger) *Session {
	id := com.NewUid()
	s := &Session{
		id:          id,
		conn:        conn,
		relay:       relay,
		limiter:     rate.NewLimiter(limit, burst),
		log:         log.Extend(log.With().Str("cid", id.Short())),
		memberships: make(map[string]string, 1),
	}
	conn.OnMessage = s.handleMessage
	return s
}

func (s *Session) Id() com.Uid { return s.id }

func (s *Session) Disconnect() { s.conn.Close() }

// Done signals the socket teardown.
func (s *Session) Done() chan struct{} { return s.conn.Done }

// Close releases every room membership of the session.
func (s *Session) Close() {
	s.mu.Lock()
	memberships := s.memberships
	s.memberships = map[string]string{}
	s.mu.Unlock()

	for roomId, pid := range memberships {
		s.relay.Leave(roomId, pid)
		s.relay.Detach(pid)
	}
	s.conn.Close()
	s.log.Debug().Str(logger.DirectionField, "x").Msg("Session closed")
}

// send implements the delivery Sink of this socket.
func (s *Session) send(out api.Out) bool {
	data, err := json.Marshal(&out)
	if err != nil {
		s.log.Error().Err(err).Msgf("Packet %v marshal fail", out.T)
		return false
	}
	select {
	case <-s.conn.Done:
		return false
	default:
	}
	s.log.Debug().Str(logger.DirectionField, "→").Msgf("%v", out.T)
	s.conn.Write(data)
	return true
}

func (s *Session) handleMessage(message []byte, err error) {
	if err != nil {
		s.log.Error().Err(err).Msg("Socket receive fail")
		return
	}
	if !s.limiter.Allow() {
		s.log.Warn().Msg("Rate limit exceeded, packet dropped")
		return
	}
	var in api.In
	if err = json.Unmarshal(message, &in); err != nil {
		s.log.Error().Err(err).Msg("Malformed packet")
		return
	}
	s.log.Debug().Str(logger.DirectionField, "←").Msgf("%v", in.T)
	s.handle(in)
}

func (s *Session) handle(in api.In) {
	switch in.T {
	case api.JoinRoom:
		s.handleJoin(in)
	case api.LeaveRoom:
		s.handleLeave(in)
	case api.Offer, api.Answer, api.IceCandidate:
		s.handleSignal(in)
	case api.SpawnObject:
		s.handleSpawn(in)
	case api.UpdateObject:
		s.handleUpdate(in)
	case api.RemoveObject:
		s.handleRemove(in)
	case api.PositionUpdate:
		s.handlePosition(in)
	case api.InteractObject:
		s.handleInteract(in)
	case api.ListRooms:
		s.reply(in, api.RoomListResponse{Rooms: s.relay.rooms.ListPublic()})
	case api.SearchRooms:
		s.handleSearch(in)
	case api.GetStats:
		s.reply(in, s.relay.Stats())
	default:
		s.log.Warn().Msgf("Unknown packet type %v", uint16(in.T))
	}
}

func (s *Session) handleJoin(in api.In) {
	rq := api.Unwrap[api.JoinRoomRequest](in.Payload)
	if rq == nil {
		s.fail(in, api.Errorf(api.ErrValidation, "malformed join request"))
		return
	}
	snapshot, err := s.relay.Join(rq.RoomId, rq.Participant)
	if err != nil {
		s.fail(in, err)
		return
	}
	s.mu.Lock()
	s.memberships[rq.RoomId] = rq.Participant.Id
	s.mu.Unlock()
	s.relay.Attach(rq.Participant.Id, s.send)
	s.reply(in, snapshot)
}

func (s *Session) handleLeave(in api.In) {
	rq := api.Unwrap[api.LeaveRoomRequest](in.Payload)
	if rq == nil || !s.owns(rq.ParticipantId) {
		s.fail(in, api.Errorf(api.ErrValidation, "malformed leave request"))
		return
	}
	left := s.relay.Leave(rq.RoomId, rq.ParticipantId)
	s.mu.Lock()
	delete(s.memberships, rq.RoomId)
	last := !s.ownsLocked(rq.ParticipantId)
	s.mu.Unlock()
	if last {
		s.relay.Detach(rq.ParticipantId)
	}
	s.reply(in, left)
}

// handleSignal is fire-and-forget: routing errors are logged and the
// outcome is never surfaced to the sender.
func (s *Session) handleSignal(in api.In) {
	rq := api.Unwrap[api.Signal](in.Payload)
	if rq == nil {
		s.log.Warn().Msgf("Malformed %v payload", in.T)
		return
	}
	if !s.owns(rq.From) {
		s.log.Warn().Msgf("Signal %v from a foreign participant %v", in.T, rq.From)
		return
	}
	if err := s.relay.Signal(in.T, *rq); err != nil {
		s.log.Warn().Err(err).Msgf("Signal %v not routed", in.T)
	}
}

func (s *Session) handleSpawn(in api.In) {
	rq := api.Unwrap[api.ObjectEvent](in.Payload)
	if rq == nil {
		s.fail(in, api.Errorf(api.ErrValidation, "malformed spawn request"))
		return
	}
	actor := s.actorOf(rq.RoomId)
	obj, err := s.relay.SpawnObject(rq.RoomId, actor, rq.Object)
	if err != nil {
		s.fail(in, err)
		return
	}
	s.reply(in, api.ObjectEvent{RoomId: rq.RoomId, Object: obj, ActorId: actor})
}

func (s *Session) handleUpdate(in api.In) {
	rq := api.Unwrap[api.ObjectEvent](in.Payload)
	if rq == nil {
		s.fail(in, api.Errorf(api.ErrValidation, "malformed update request"))
		return
	}
	actor := s.actorOf(rq.RoomId)
	obj, err := s.relay.UpdateObject(rq.RoomId, actor, rq.Object)
	if err != nil {
		s.fail(in, err)
		return
	}
	s.reply(in, api.ObjectEvent{RoomId: rq.RoomId, Object: obj, ActorId: actor})
}

func (s *Session) handleRemove(in api.In) {
	rq := api.Unwrap[api.ObjectEvent](in.Payload)
	if rq == nil {
		s.fail(in, api.Errorf(api.ErrValidation, "malformed remove request"))
		return
	}
	actor := s.actorOf(rq.RoomId)
	if err := s.relay.RemoveObject(rq.RoomId, actor, rq.Object.Id); err != nil {
		s.fail(in, err)
		return
	}
	s.reply(in, true)
}

func (s *Session) handlePosition(in api.In) {
	rq := api.Unwrap[api.PositionEvent](in.Payload)
	if rq == nil || !s.owns(rq.ParticipantId) {
		s.log.Warn().Msg("Malformed position update")
		return
	}
	// positions are frequent and fire-and-forget, no reply
	if err := s.relay.UpdatePosition(rq.RoomId, rq.ParticipantId, rq.Transform); err != nil {
		s.log.Warn().Err(err).Msg("Position update not applied")
	}
}

func (s *Session) handleInteract(in api.In) {
	rq := api.Unwrap[api.InteractEvent](in.Payload)
	if rq == nil {
		s.fail(in, api.Errorf(api.ErrValidation, "malformed interact request"))
		return
	}
	actor := s.actorOf(rq.RoomId)
	if err := s.relay.Interact(rq.RoomId, actor, rq.ObjectId, rq.Interaction); err != nil {
		s.fail(in, err)
		return
	}
	s.reply(in, true)
}

func (s *Session) handleSearch(in api.In) {
	rq := api.Unwrap[api.SearchRoomsRequest](in.Payload)
	if rq == nil {
		s.fail(in, api.Errorf(api.ErrValidation, "malformed search request"))
		return
	}
	s.reply(in, api.RoomListResponse{Rooms: s.relay.rooms.Search(rq.Query, rq.Filters)})
}

// actorOf resolves the participant id this session joined the room as.
func (s *Session) actorOf(roomId string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memberships[roomId]
}

// owns says whether the participant id is bound to this session.
func (s *Session) owns(pid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownsLocked(pid)
}

func (s *Session) ownsLocked(pid string) bool {
	if pid == "" {
		return false
	}
	for _, x := range s.memberships {
		if x == pid {
			return true
		}
	}
	return false
}

func (s *Session) reply(in api.In, payload any) {
	s.send(api.Out{Id: in.Id, T: in.T, Payload: payload})
}

func (s *Session) fail(in api.In, err error) {
	s.log.Debug().Err(err).Msgf("%v rejected", in.T)
	if coded, ok := err.(*api.CodedError); ok {
		s.send(api.Out{Id: in.Id, T: api.Error, Payload: coded})
		return
	}
	s.send(api.Out{Id: in.Id, T: api.Error, Payload: api.Errorf(api.ErrValidation, "%v", err)})
}
