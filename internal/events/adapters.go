// Bridges connect the hub to sinks that want a callback instead of a channel.
package events

// Bridge subscribes to the hub and forwards matching events to a handler.
// Used to feed metrics and other passive consumers without coupling them
// to channel plumbing.
type Bridge struct {
	hub     *Hub
	handler func(Event)
	types   []EventType
	ch      <-chan Event
	stop    chan struct{}
	done    chan struct{}
}

// NewBridge creates a bridge for the given event types.
// With no types, the bridge receives every event.
func NewBridge(hub *Hub, handler func(Event), types ...EventType) *Bridge {
	return &Bridge{
		hub:     hub,
		handler: handler,
		types:   types,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start begins forwarding events to the handler.
func (b *Bridge) Start() {
	b.ch = b.hub.Subscribe(256, b.types...)

	go func() {
		defer close(b.done)
		for {
			select {
			case <-b.stop:
				return
			case e := <-b.ch:
				b.handler(e)
			}
		}
	}()
}

// Stop stops the bridge and detaches it from the hub.
func (b *Bridge) Stop() {
	close(b.stop)
	<-b.done
	b.hub.Unsubscribe(b.ch)
}
