package chat

import "sync"

// Hub fans every published Message out to all current subscribers, the
// publisher's own subscription included. Each subscriber has a bounded queue;
// when it is full the oldest queued message is dropped so a slow reader never
// stalls the publisher.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscription is a private receive handle returned by Hub.Subscribe.
type Subscription struct {
	hub *Hub
	ch  chan Message
}

// C returns the channel on which published messages arrive. It is closed when
// the subscription is closed or the hub shuts down.
func (s *Subscription) C() <-chan Message {
	return s.ch
}

// Close detaches the subscription from its hub. It is safe to call more than
// once.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

// Subscribe returns a subscription using the hub's default queue depth.
func (h *Hub) Subscribe() *Subscription {
	return h.SubscribeBuffered(h.buffer)
}

// SubscribeBuffered returns a subscription with a queue depth of buffer.
func (h *Hub) SubscribeBuffered(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = h.buffer
	}
	s := &Subscription{hub: h, ch: make(chan Message, buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(s.ch)
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

func (h *Hub) unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.ch)
	}
}

// Publish delivers msg to every subscriber without blocking.
func (h *Hub) Publish(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		s.offer(msg)
	}
}

// offer enqueues msg, evicting the oldest queued messages until it fits.
// Callers hold h.mu, so offer never races with close.
func (s *Subscription) offer(msg Message) {
	for {
		select {
		case s.ch <- msg:
			return
		default:
		}
		select {
		case <-s.ch:
			HubDropped.Inc()
		default:
		}
	}
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close closes every subscription; later subscriptions are returned closed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		delete(h.subs, s)
		close(s.ch)
	}
}
