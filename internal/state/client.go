package state

import (
	"net"
	"sync"
	"time"
)

// ClientCapacity is the fixed size of the client registry.
const ClientCapacity = 100

// ClientRecord describes one connected (or formerly connected) client
// session. Fields are only ever mutated by ClientRegistry under its mutex;
// readers outside the registry should go through ClientRegistry's accessors
// rather than touching a *ClientRecord directly, since a record's slot can
// be recycled for a new connection with a bumped generation.
type ClientRecord struct {
	Conn        net.Conn
	Addr        net.Addr
	AddrText    string
	ConnectedAt time.Time
	LastActive  time.Time
	Active      bool
	Generation  uint64
}

// ClientRef is a weak reference to a client slot: an index plus the
// generation observed at the time the reference was taken. Resolving a
// ClientRef against the registry after the slot has been recycled for a
// new connection correctly yields "gone", never a stale record — this is
// how scan jobs refer back to the client that uploaded them without
// holding a strong reference to a socket that may since have closed.
type ClientRef struct {
	Slot       int
	Generation uint64
}

// ClientRegistry is the fixed-capacity, mutex-guarded table of client
// slots. At most one active record exists per transport handle; an
// inactive slot has no handle.
type ClientRegistry struct {
	mu    sync.Mutex
	slots [ClientCapacity]ClientRecord
}

// NewClientRegistry returns an empty registry.
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{}
}

// Admit claims a free slot for a newly accepted connection. It returns
// ErrResourceExhausted if no slot is free.
func (r *ClientRegistry) Admit(conn net.Conn) (ClientRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.slots {
		if !r.slots[i].Active {
			now := time.Now()
			r.slots[i].Generation++
			r.slots[i].Conn = conn
			r.slots[i].Addr = conn.RemoteAddr()
			r.slots[i].AddrText = addrText(conn.RemoteAddr())
			r.slots[i].ConnectedAt = now
			r.slots[i].LastActive = now
			r.slots[i].Active = true
			return ClientRef{Slot: i, Generation: r.slots[i].Generation}, nil
		}
	}
	return ClientRef{}, ErrResourceExhausted
}

// Touch updates the last-activity timestamp for a live slot. It is a
// no-op if the reference has gone stale (recycled or released).
func (r *ClientRegistry) Touch(ref ClientRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isLive(ref) {
		r.slots[ref.Slot].LastActive = time.Now()
	}
}

// Release clears a slot, making it available for reuse. It is a no-op if
// the reference has already gone stale.
func (r *ClientRegistry) Release(ref ClientRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isLive(ref) {
		r.slots[ref.Slot] = ClientRecord{Generation: r.slots[ref.Slot].Generation}
	}
}

// Lookup resolves a reference to a snapshot of its record. The second
// return value is false if the slot has been recycled or released since
// the reference was taken.
func (r *ClientRegistry) Lookup(ref ClientRef) (ClientRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isLive(ref) {
		return ClientRecord{}, false
	}
	return r.slots[ref.Slot], true
}

// isLive must be called with mu held.
func (r *ClientRegistry) isLive(ref ClientRef) bool {
	if ref.Slot < 0 || ref.Slot >= ClientCapacity {
		return false
	}
	s := &r.slots[ref.Slot]
	return s.Active && s.Generation == ref.Generation
}

// ActiveCount returns the number of currently active client slots. This is
// the quantity the Statistics.ActiveConnections invariant must track.
func (r *ClientRegistry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for i := range r.slots {
		if r.slots[i].Active {
			n++
		}
	}
	return n
}

// MatchingAddr returns the refs of all active slots whose textual peer
// address equals ip, for DISCONNECT_CLIENT.
func (r *ClientRegistry) MatchingAddr(ip string) []ClientRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ClientRef
	for i := range r.slots {
		if r.slots[i].Active && r.slots[i].AddrText == ip {
			out = append(out, ClientRef{Slot: i, Generation: r.slots[i].Generation})
		}
	}
	return out
}

// Each calls fn for every active client record snapshot. Used by the
// supervisor to close all active sessions during shutdown.
func (r *ClientRegistry) Each(fn func(ClientRef, ClientRecord)) {
	r.mu.Lock()
	type entry struct {
		ref ClientRef
		rec ClientRecord
	}
	var entries []entry
	for i := range r.slots {
		if r.slots[i].Active {
			entries = append(entries, entry{ClientRef{Slot: i, Generation: r.slots[i].Generation}, r.slots[i]})
		}
	}
	r.mu.Unlock()

	for _, e := range entries {
		fn(e.ref, e.rec)
	}
}

func addrText(a net.Addr) string {
	if a == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(a.String())
	if err != nil {
		return a.String()
	}
	return host
}
