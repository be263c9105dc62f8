package eventflit

import "sync"

// channelRegistry owns the client's channels keyed by name and remembers the
// order in which they were first referenced.
type channelRegistry struct {
	mu       sync.RWMutex
	channels map[string]*Channel
	order    []string
}

func newChannelRegistry() *channelRegistry {
	return &channelRegistry{
		channels: make(map[string]*Channel),
	}
}

// add returns the channel registered under name, creating it if needed.
// The second result reports whether the channel was created.
func (r *channelRegistry) add(name string, create func() *Channel) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.channels[name]; ok {
		return ch, false
	}
	ch := create()
	r.channels[name] = ch
	r.order = append(r.order, name)
	return ch, true
}

// remove deletes the channel registered under name, if any.
func (r *channelRegistry) remove(name string) *Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels[name]
	if !ok {
		return nil
	}
	delete(r.channels, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return ch
}

func (r *channelRegistry) find(name string) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[name]
	return ch, ok
}

func (r *channelRegistry) findPresence(name string) (*PresenceChannel, bool) {
	ch, ok := r.find(name)
	if !ok {
		return nil, false
	}
	return ch.Presence()
}

// list returns the channels in first-reference order.
func (r *channelRegistry) list() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Channel, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.channels[name])
	}
	return out
}

// clear removes every channel and returns them in first-reference order.
func (r *channelRegistry) clear() []*Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Channel, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.channels[name])
	}
	r.channels = make(map[string]*Channel)
	r.order = nil
	return out
}

func (r *channelRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}
