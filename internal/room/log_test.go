package room

import (
	"fmt"
	"testing"

	"github.com/ashureev/emojirooms/internal/domain"
	"github.com/stretchr/testify/assert"
)

func msgs(n int) []domain.ChatMessage {
	out := make([]domain.ChatMessage, n)
	for i := range out {
		out[i] = domain.ChatMessage{Body: fmt.Sprintf("m%d", i), SentAtMillis: int64(i)}
	}
	return out
}

func bodies(ms []domain.ChatMessage) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Body
	}
	return out
}

func TestMessageLog_AppendWithinCapacity(t *testing.T) {
	l := NewMessageLog(4)
	for _, m := range msgs(3) {
		assert.False(t, l.Append(m))
	}

	assert.Equal(t, 3, l.Len())
	assert.Equal(t, []string{"m0", "m1", "m2"}, bodies(l.Messages()))
}

func TestMessageLog_OverwritesOldest(t *testing.T) {
	l := NewMessageLog(3)
	var dropped int
	for _, m := range msgs(7) {
		if l.Append(m) {
			dropped++
		}
	}

	assert.Equal(t, 4, dropped)
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, []string{"m4", "m5", "m6"}, bodies(l.Messages()))
}

func TestMessageLog_Last(t *testing.T) {
	l := NewMessageLog(5)
	for _, m := range msgs(8) {
		l.Append(m)
	}

	tests := []struct {
		n    int
		want []string
	}{
		{n: 0, want: []string{}},
		{n: -1, want: []string{}},
		{n: 2, want: []string{"m6", "m7"}},
		{n: 4, want: []string{"m4", "m5", "m6", "m7"}},
		{n: 10, want: []string{"m3", "m4", "m5", "m6", "m7"}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.n), func(t *testing.T) {
			got := l.Last(tt.n)
			assert.NotNil(t, got)
			assert.Equal(t, tt.want, bodies(got))
		})
	}
}

func TestMessageLog_RestoreKeepsNewest(t *testing.T) {
	l := NewMessageLog(3)
	l.Append(domain.ChatMessage{Body: "stale"})

	l.Restore(msgs(5))

	assert.Equal(t, []string{"m2", "m3", "m4"}, bodies(l.Messages()))
	l.Append(domain.ChatMessage{Body: "next"})
	assert.Equal(t, []string{"m3", "m4", "next"}, bodies(l.Messages()))
}

func TestMessageLog_Reset(t *testing.T) {
	l := NewMessageLog(2)
	l.Append(domain.ChatMessage{Body: "x"})
	l.Reset()

	assert.Zero(t, l.Len())
	assert.Equal(t, 2, l.capacity())
	assert.Empty(t, l.Messages())
}

func TestMessageLog_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultLogCapacity, NewMessageLog(0).capacity())
}
