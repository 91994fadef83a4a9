// Package relay is the entry point for inbound session events. It is
// stateless routing logic over the room registry and the connection
// tracker: validate, mutate, then push the result to the intended
// recipients. Delivery is fire-and-forget; unreachable recipients get
// their signaling messages queued, never block the sender.
package relay

import (
	"sync"

	"github.com/goccy/go-json"
	"github.com/holomesh/holomesh/pkg/api"
	"github.com/holomesh/holomesh/pkg/clock"
	"github.com/holomesh/holomesh/pkg/config"
	"github.com/holomesh/holomesh/pkg/logger"
	"github.com/holomesh/holomesh/pkg/monitoring"
	"github.com/holomesh/holomesh/pkg/registry"
	"github.com/holomesh/holomesh/pkg/tracker"
)

// Sink pushes an outbound packet to a reachable recipient.
// It must not block; a false return means the push was refused.
type Sink func(out api.Out) bool

type Relay struct {
	conf  config.Queue
	clk   clock.Clock
	rooms *registry.Registry
	conns *tracker.Tracker
	log   *logger.Logger

	mu     sync.Mutex
	sinks  map[string]Sink
	queues map[string]*queue
	kinds  map[string]int64
}

func New(conf config.Queue, rooms *registry.Registry, conns *tracker.Tracker, clk clock.Clock, log *logger.Logger) *Relay {
	r := &Relay{
		conf:   conf,
		clk:    clk,
		rooms:  rooms,
		conns:  conns,
		log:    log,
		sinks:  make(map[string]Sink, 10),
		queues: make(map[string]*queue, 10),
		kinds:  make(map[string]int64, 3),
	}
	conns.SetDeliver(r.Deliver)
	return r
}

// Attach marks the participant reachable and flushes its queued
// signaling messages in submission order.
func (r *Relay) Attach(participantId string, sink Sink) {
	r.mu.Lock()
	r.sinks[participantId] = sink
	var backlog []tracker.Message
	if q := r.queues[participantId]; q != nil {
		backlog = q.drain()
		delete(r.queues, participantId)
	}
	r.refreshQueueGauge()
	r.mu.Unlock()

	flushed := 0
	for _, msg := range backlog {
		if !sink(signalOut(msg)) {
			break
		}
		monitoring.SignalsRelayed.WithLabelValues(msg.Kind.String()).Inc()
		flushed++
	}
	if flushed < len(backlog) {
		// the sink refused mid-flush, keep the remainder for the next attach
		r.Detach(participantId)
		r.requeue(participantId, backlog[flushed:])
	}
	if flushed > 0 {
		r.log.Debug().Msgf("Flushed %d queued message(s) to %v", flushed, participantId)
	}
}

// Detach marks the participant unreachable. Queued messages are kept
// until the max-age purge.
func (r *Relay) Detach(participantId string) {
	r.mu.Lock()
	delete(r.sinks, participantId)
	r.mu.Unlock()
}

// Reachable says whether immediate delivery to the participant works.
func (r *Relay) Reachable(participantId string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sinks[participantId] != nil
}

// Deliver pushes a signaling message to its recipient or queues it.
// Plugged into the connection tracker as its delivery mechanism.
func (r *Relay) Deliver(msg tracker.Message) {
	r.mu.Lock()
	r.kinds[msg.Kind.String()]++
	r.mu.Unlock()
	r.deliver(msg)
}

func (r *Relay) deliver(msg tracker.Message) {
	r.mu.Lock()
	sink := r.sinks[msg.To]
	if sink == nil {
		q := r.queues[msg.To]
		if q == nil {
			q = &queue{}
			r.queues[msg.To] = q
		}
		if dropped := q.push(msg, r.conf.MaxLen); dropped > 0 {
			monitoring.SignalsDropped.Add(float64(dropped))
			r.log.Warn().Msgf("Queue overrun for %v, dropped %d oldest", msg.To, dropped)
		}
		r.refreshQueueGauge()
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	if !sink(signalOut(msg)) {
		// the recipient went away mid-push, requeue through the slow path
		r.Detach(msg.To)
		r.deliver(msg)
		return
	}
	monitoring.SignalsRelayed.WithLabelValues(msg.Kind.String()).Inc()
}

// requeue returns undelivered messages to the head of the recipient's
// queue, ahead of anything queued since the flush began.
func (r *Relay) requeue(participantId string, msgs []tracker.Message) {
	r.mu.Lock()
	q := r.queues[participantId]
	if q == nil {
		q = &queue{}
		r.queues[participantId] = q
	}
	if dropped := q.requeue(msgs, r.conf.MaxLen); dropped > 0 {
		monitoring.SignalsDropped.Add(float64(dropped))
		r.log.Warn().Msgf("Queue overrun for %v, dropped %d oldest", participantId, dropped)
	}
	r.refreshQueueGauge()
	r.mu.Unlock()
}

// Join admits the participant into the room, returns the current room
// snapshot for the joiner and notifies the existing members.
func (r *Relay) Join(roomId string, p api.Participant) (api.JoinRoomResponse, error) {
	if err := r.rooms.AddParticipant(roomId, p); err != nil {
		return api.JoinRoomResponse{}, err
	}
	snapshot, err := r.rooms.Snapshot(roomId)
	if err != nil {
		return api.JoinRoomResponse{}, err
	}
	r.broadcast(roomId, p.Id, api.Out{T: api.UserJoined, Payload: api.UserEvent{RoomId: roomId, Participant: p}})
	return snapshot, nil
}

// Leave removes the participant and notifies the remaining members.
// An emptied room is left to the sweep, avoiding a race with a rejoin
// within the same tick. Live pair connections of the leaver are marked
// disconnected for deferred cleanup, not destroyed synchronously.
func (r *Relay) Leave(roomId string, participantId string) bool {
	if !r.rooms.RemoveParticipant(roomId, participantId) {
		return false
	}
	r.conns.DropFor(participantId)
	r.broadcast(roomId, participantId, api.Out{
		T:       api.UserLeft,
		Payload: api.UserEvent{RoomId: roomId, Participant: api.Participant{Id: participantId}},
	})
	return true
}

// Signal routes an opaque setup message (offer, answer, candidate)
// through the connection tracker. Fire-and-forget from the sender's
// perspective: delivery failures never surface.
func (r *Relay) Signal(kind api.PT, s api.Signal) error {
	switch kind {
	case api.Offer:
		return r.conns.RecordOffer(s.RoomId, s.From, s.To, s.Payload)
	case api.Answer:
		return r.conns.RecordAnswer(s.RoomId, s.From, s.To, s.Payload)
	case api.IceCandidate:
		return r.conns.RecordIceCandidate(s.RoomId, s.From, s.To, s.Payload)
	}
	return api.Errorf(api.ErrValidation, "unknown signal kind %v", kind)
}

// SpawnObject applies the mutation to the registry first, then pushes
// the authoritative record to every other member.
func (r *Relay) SpawnObject(roomId string, actor string, obj api.Object) (api.Object, error) {
	created, err := r.rooms.AddObject(roomId, actor, obj)
	if err != nil {
		return api.Object{}, err
	}
	r.broadcast(roomId, actor, api.Out{T: api.SpawnObject, Payload: api.ObjectEvent{RoomId: roomId, Object: created, ActorId: actor}})
	return created, nil
}

func (r *Relay) UpdateObject(roomId string, actor string, obj api.Object) (api.Object, error) {
	updated, err := r.rooms.UpdateObject(roomId, actor, obj)
	if err != nil {
		return api.Object{}, err
	}
	r.broadcast(roomId, actor, api.Out{T: api.UpdateObject, Payload: api.ObjectEvent{RoomId: roomId, Object: updated, ActorId: actor}})
	return updated, nil
}

func (r *Relay) RemoveObject(roomId string, actor string, objectId string) error {
	if err := r.rooms.RemoveObject(roomId, actor, objectId); err != nil {
		return err
	}
	r.broadcast(roomId, actor, api.Out{T: api.RemoveObject, Payload: api.ObjectEvent{RoomId: roomId, Object: api.Object{Id: objectId}, ActorId: actor}})
	return nil
}

func (r *Relay) UpdatePosition(roomId string, participantId string, transform json.RawMessage) error {
	if err := r.rooms.UpdatePosition(roomId, participantId, transform); err != nil {
		return err
	}
	r.broadcast(roomId, participantId, api.Out{
		T:       api.PositionUpdate,
		Payload: api.PositionEvent{RoomId: roomId, ParticipantId: participantId, Transform: transform},
	})
	return nil
}

func (r *Relay) Interact(roomId string, actor string, objectId string, interaction json.RawMessage) error {
	if err := r.rooms.Interact(roomId, actor, objectId, interaction); err != nil {
		return err
	}
	r.broadcast(roomId, actor, api.Out{
		T:       api.InteractObject,
		Payload: api.InteractEvent{RoomId: roomId, ObjectId: objectId, ActorId: actor, Interaction: interaction},
	})
	return nil
}

// broadcast pushes a packet to every current room member except the
// originator. Best-effort: room-state packets are not queued for
// unreachable members, a fresh snapshot covers them on reconnect.
func (r *Relay) broadcast(roomId string, exclude string, out api.Out) {
	for _, id := range r.rooms.MemberIds(roomId, exclude) {
		r.mu.Lock()
		sink := r.sinks[id]
		r.mu.Unlock()
		if sink != nil {
			sink(out)
		}
	}
}

// QueuedTotal returns the number of messages waiting for delivery.
func (r *Relay) QueuedTotal() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queuedLocked()
}

func (r *Relay) queuedLocked() (n int) {
	for _, q := range r.queues {
		n += q.len()
	}
	return
}

// PurgeQueues removes expired queued messages and empty queues.
func (r *Relay) PurgeQueues() (purged int) {
	r.mu.Lock()
	now := r.clk.Now()
	for id, q := range r.queues {
		purged += q.purge(now, r.conf.MaxAge)
		if q.len() == 0 {
			delete(r.queues, id)
		}
	}
	r.refreshQueueGauge()
	r.mu.Unlock()
	if purged > 0 {
		monitoring.SignalsPurged.Add(float64(purged))
		r.log.Debug().Msgf("Queue purge dropped %d expired message(s)", purged)
	}
	return
}

// Stats renders the read-only health surface.
func (r *Relay) Stats() api.StatsResponse {
	ok, fail := r.conns.Totals()
	r.mu.Lock()
	kinds := make(map[string]int64, len(r.kinds))
	for k, v := range r.kinds {
		kinds[k] = v
	}
	queued := r.queuedLocked()
	r.mu.Unlock()
	return api.StatsResponse{
		Rooms:          r.rooms.Count(),
		Connections:    r.conns.Count(),
		QueuedMessages: queued,
		ConnectOk:      ok,
		ConnectFail:    fail,
		SignalsPerKind: kinds,
	}
}

// refreshQueueGauge must be called under the relay lock.
func (r *Relay) refreshQueueGauge() {
	monitoring.QueuedMessages.Set(float64(r.queuedLocked()))
}

func signalOut(msg tracker.Message) api.Out {
	return api.Out{T: msg.Kind, Payload: api.Signal{RoomId: msg.RoomId, From: msg.From, To: msg.To, Payload: msg.Payload}}
}
