package chat

import (
	"hash/fnv"
	"sync"
)

const registryShards = 32

// Registry is the process-wide index from room to the set of currently
// attached connections, with a reverse index from connection to its joined
// rooms for disconnect cleanup. Both indexes are sharded by key hash so
// operations on unrelated rooms (or connections) never contend on a
// common lock.
//
// Mutation ordering keeps the two indexes consistent: AddMember writes the
// reverse entry before the forward one, RemoveMember removes the forward
// entry before the reverse one. Any connection visible to fan-out through
// the forward index is therefore always covered by a reverse entry, so
// RemoveConnection cannot strand a membership.
type Registry struct {
	rooms [registryShards]roomShard
	conns [registryShards]connShard
}

type roomShard struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{} // roomID -> set of connIDs
}

type connShard struct {
	mu     sync.RWMutex
	joined map[string]map[string]struct{} // connID -> set of roomIDs
}

// NewRegistry creates an empty membership registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.rooms {
		r.rooms[i].members = make(map[string]map[string]struct{})
	}
	for i := range r.conns {
		r.conns[i].joined = make(map[string]map[string]struct{})
	}
	return r
}

func hashKey(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()
}

func shardIndex(key string) uint32 {
	return hashKey(key) % registryShards
}

func (r *Registry) roomShard(roomID string) *roomShard {
	return &r.rooms[shardIndex(roomID)]
}

func (r *Registry) connShard(connID string) *connShard {
	return &r.conns[shardIndex(connID)]
}

// AddMember registers the connection as a member of the room. Re-adding an
// existing member is a no-op.
func (r *Registry) AddMember(roomID, connID string) {
	cs := r.connShard(connID)
	cs.mu.Lock()
	if cs.joined[connID] == nil {
		cs.joined[connID] = make(map[string]struct{})
	}
	cs.joined[connID][roomID] = struct{}{}
	cs.mu.Unlock()

	rs := r.roomShard(roomID)
	rs.mu.Lock()
	if rs.members[roomID] == nil {
		rs.members[roomID] = make(map[string]struct{})
	}
	rs.members[roomID][connID] = struct{}{}
	rs.mu.Unlock()
}

// RemoveMember removes the connection from the room. Removing a connection
// that is not a member is a no-op; overlapping Leave and Disconnect cleanup
// paths rely on that.
func (r *Registry) RemoveMember(roomID, connID string) {
	rs := r.roomShard(roomID)
	rs.mu.Lock()
	if members, ok := rs.members[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(rs.members, roomID)
		}
	}
	rs.mu.Unlock()

	cs := r.connShard(connID)
	cs.mu.Lock()
	if joined, ok := cs.joined[connID]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(cs.joined, connID)
		}
	}
	cs.mu.Unlock()
}

// RemoveConnection removes the connection from every room it joined and
// returns the rooms it was removed from. Called on disconnect, including
// abrupt transport resets.
func (r *Registry) RemoveConnection(connID string) []string {
	rooms := r.RoomsOf(connID)
	for _, roomID := range rooms {
		r.RemoveMember(roomID, connID)
	}
	return rooms
}

// MembersOf returns a point-in-time snapshot of the room's member
// connections. Membership may change concurrently with the caller's use of
// the snapshot.
func (r *Registry) MembersOf(roomID string) []string {
	rs := r.roomShard(roomID)
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	members, ok := rs.members[roomID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(members))
	for connID := range members {
		out = append(out, connID)
	}
	return out
}

// RoomsOf returns a snapshot of the rooms the connection has joined.
func (r *Registry) RoomsOf(connID string) []string {
	cs := r.connShard(connID)
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	joined, ok := cs.joined[connID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(joined))
	for roomID := range joined {
		out = append(out, roomID)
	}
	return out
}

// Contains reports whether the connection is currently a member of the room.
func (r *Registry) Contains(roomID, connID string) bool {
	rs := r.roomShard(roomID)
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	members, ok := rs.members[roomID]
	if !ok {
		return false
	}
	_, ok = members[connID]
	return ok
}
