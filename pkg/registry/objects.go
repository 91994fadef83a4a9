package registry

import (
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/holomesh/holomesh/pkg/api"
)

// AddObject spawns a shared object in the room on behalf of the actor.
// The object count is bounded by the configured cap.
func (r *Registry) AddObject(roomId string, actor string, obj api.Object) (api.Object, error) {
	if obj.Type == "" {
		return api.Object{}, api.Errorf(api.ErrValidation, "object type is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomId]
	if !ok {
		return api.Object{}, api.Errorf(api.ErrRoomNotFound, "no room %v", roomId)
	}
	p := room.participants[actor]
	if p == nil {
		return api.Object{}, api.Errorf(api.ErrParticipantNotFound, "no participant %v in room %v", actor, roomId)
	}
	if !p.Perms.Has(PermSpawn) {
		return api.Object{}, api.Errorf(api.ErrPermissionDenied, "participant %v may not spawn objects", actor)
	}
	if len(room.objects) >= r.conf.ObjectCap {
		return api.Object{}, api.Errorf(api.ErrObjectLimit, "room %v object cap %d reached", roomId, r.conf.ObjectCap)
	}
	id := obj.Id
	if id == "" {
		id = uuid.NewString()
	}
	if _, ok = room.objects[id]; ok {
		return api.Object{}, api.Errorf(api.ErrValidation, "object %v already exists in room %v", id, roomId)
	}

	now := r.clk.Now()
	owner := obj.Owner
	if owner == "" {
		owner = actor
	}
	o := &SharedObject{Id: id, Type: obj.Type, Owner: owner, Transform: obj.Transform, CreatedAt: now, ModifiedAt: now}
	room.objects[id] = o
	room.LastActivity = now
	return objOf(o), nil
}

// UpdateObject applies a partial-field merge to an existing object and
// returns the resulting authoritative record.
func (r *Registry) UpdateObject(roomId string, actor string, obj api.Object) (api.Object, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomId]
	if !ok {
		return api.Object{}, api.Errorf(api.ErrRoomNotFound, "no room %v", roomId)
	}
	o, ok := room.objects[obj.Id]
	if !ok {
		return api.Object{}, api.Errorf(api.ErrObjectNotFound, "no object %v in room %v", obj.Id, roomId)
	}
	if !room.canMutate(actor, o.Owner) {
		return api.Object{}, api.Errorf(api.ErrPermissionDenied, "participant %v may not modify object %v", actor, obj.Id)
	}
	if obj.Type != "" {
		o.Type = obj.Type
	}
	if obj.Transform != nil {
		o.Transform = obj.Transform
	}
	now := r.clk.Now()
	o.ModifiedAt = now
	room.LastActivity = now
	return objOf(o), nil
}

// RemoveObject drops an object from the room, owner or host only.
func (r *Registry) RemoveObject(roomId string, actor string, objectId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomId]
	if !ok {
		return api.Errorf(api.ErrRoomNotFound, "no room %v", roomId)
	}
	o, ok := room.objects[objectId]
	if !ok {
		return api.Errorf(api.ErrObjectNotFound, "no object %v in room %v", objectId, roomId)
	}
	if !room.canMutate(actor, o.Owner) {
		return api.Errorf(api.ErrPermissionDenied, "participant %v may not remove object %v", actor, objectId)
	}
	delete(room.objects, objectId)
	room.LastActivity = r.clk.Now()
	return nil
}

// Interact validates an interaction with an object and stamps activity.
// The interaction payload itself stays opaque and is only relayed.
func (r *Registry) Interact(roomId string, actor string, objectId string, _ json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomId]
	if !ok {
		return api.Errorf(api.ErrRoomNotFound, "no room %v", roomId)
	}
	p := room.participants[actor]
	if p == nil {
		return api.Errorf(api.ErrParticipantNotFound, "no participant %v in room %v", actor, roomId)
	}
	if !p.Perms.Has(PermInteract) {
		return api.Errorf(api.ErrPermissionDenied, "participant %v may not interact", actor)
	}
	if _, ok = room.objects[objectId]; !ok {
		return api.Errorf(api.ErrObjectNotFound, "no object %v in room %v", objectId, roomId)
	}
	now := r.clk.Now()
	p.LastActivity = now
	room.LastActivity = now
	return nil
}

func objOf(o *SharedObject) api.Object {
	return api.Object{Id: o.Id, Type: o.Type, Owner: o.Owner, Transform: o.Transform}
}
