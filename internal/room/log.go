package room

import "github.com/ashureev/emojirooms/internal/domain"

// DefaultLogCapacity is the number of messages a room retains.
const DefaultLogCapacity = 1000

// MessageLog is a fixed-size ring of chat messages. When full, appending
// overwrites the oldest entry. It is owned by one actor and is not safe for
// concurrent use.
type MessageLog struct {
	buf  []domain.ChatMessage
	size int
	head int // next write position
	n    int // number of stored messages
}

// NewMessageLog creates a log holding at most capacity messages.
func NewMessageLog(capacity int) *MessageLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &MessageLog{
		buf:  make([]domain.ChatMessage, capacity),
		size: capacity,
	}
}

// Append adds msg as the newest entry and reports whether the oldest entry
// was dropped to make room.
func (l *MessageLog) Append(msg domain.ChatMessage) bool {
	dropped := l.n == l.size
	l.buf[l.head] = msg
	l.head = (l.head + 1) % l.size
	if !dropped {
		l.n++
	}
	return dropped
}

// Len returns the number of stored messages.
func (l *MessageLog) Len() int {
	return l.n
}

// capacity returns the maximum number of messages retained.
func (l *MessageLog) capacity() int {
	return l.size
}

// Messages returns every stored message, oldest first.
func (l *MessageLog) Messages() []domain.ChatMessage {
	return l.Last(l.n)
}

// Last returns up to the n most recent messages, oldest first.
func (l *MessageLog) Last(n int) []domain.ChatMessage {
	if n > l.n {
		n = l.n
	}
	out := make([]domain.ChatMessage, 0, n)
	if n <= 0 {
		return out
	}
	start := (l.head - n + l.size) % l.size
	if start+n <= l.size {
		return append(out, l.buf[start:start+n]...)
	}
	out = append(out, l.buf[start:]...)
	return append(out, l.buf[:l.head]...)
}

// Restore replaces the contents with msgs, keeping only the most recent
// capacity() of them.
func (l *MessageLog) Restore(msgs []domain.ChatMessage) {
	l.Reset()
	if len(msgs) > l.size {
		msgs = msgs[len(msgs)-l.size:]
	}
	for _, m := range msgs {
		l.Append(m)
	}
}

// Reset clears the log.
func (l *MessageLog) Reset() {
	clear(l.buf)
	l.head = 0
	l.n = 0
}
