package actor

import "sync"

// message is the sealed set of values that travel through a mailbox.
type message interface {
	isMessage()
}

// stopMessage is the shutdown sentinel. Everything enqueued before it is
// handled before the run loop exits.
type stopMessage struct{}

// payloadMessage carries an application payload to the handler.
type payloadMessage struct {
	payload any
}

func (stopMessage) isMessage()    {}
func (payloadMessage) isMessage() {}

// mailbox is an unbounded FIFO queue with a single consumer. Pushes never
// block. Once the stop sentinel has been pushed the mailbox is sealed and
// further pushes are rejected.
type mailbox struct {
	mu     sync.Mutex
	items  []message
	sealed bool

	// ready has capacity 1 and holds a token whenever items may be non-empty.
	ready chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

// push appends a payload. It reports false when the mailbox is sealed.
func (m *mailbox) push(msg message) bool {
	m.mu.Lock()
	if m.sealed {
		m.mu.Unlock()
		return false
	}
	if _, ok := msg.(stopMessage); ok {
		m.sealed = true
	}
	m.items = append(m.items, msg)
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
	return true
}

// seal rejects all further pushes without enqueueing a sentinel.
func (m *mailbox) seal() {
	m.mu.Lock()
	m.sealed = true
	m.mu.Unlock()
}

// pop removes the oldest message, blocking while the mailbox is empty.
func (m *mailbox) pop() message {
	for {
		m.mu.Lock()
		if len(m.items) > 0 {
			msg := m.items[0]
			m.items[0] = nil
			m.items = m.items[1:]
			remaining := len(m.items)
			m.mu.Unlock()
			if remaining > 0 {
				select {
				case m.ready <- struct{}{}:
				default:
				}
			}
			return msg
		}
		m.mu.Unlock()
		<-m.ready
	}
}

// len returns the number of queued messages.
func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// isSealed reports whether the mailbox rejects pushes.
func (m *mailbox) isSealed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sealed
}
