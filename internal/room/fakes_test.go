package room

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/ashureev/emojirooms/internal/domain"
	"github.com/stretchr/testify/require"
)

var errSendFailed = errors.New("send failed")

type received struct {
	Type      string               `json:"type"`
	Messages  []domain.ChatMessage `json:"messages"`
	Message   domain.ChatMessage   `json:"message"`
	GameState domain.GameState     `json:"gameState"`
}

type fakeSession struct {
	id string

	mu       sync.Mutex
	payloads [][]byte
	fail     bool
	failOn   string // payload type that fails to send, if set
}

func newFakeSession(id string) *fakeSession {
	return &fakeSession{id: id}
}

func (f *fakeSession) ID() string { return f.id }

func (f *fakeSession) Send(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errSendFailed
	}
	if f.failOn != "" {
		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(p, &env); err == nil && env.Type == f.failOn {
			return errSendFailed
		}
	}
	f.payloads = append(f.payloads, append([]byte(nil), p...))
	return nil
}

func (f *fakeSession) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func (f *fakeSession) setFailOn(typ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn = typ
}

func (f *fakeSession) received(t *testing.T) []received {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]received, 0, len(f.payloads))
	for _, p := range f.payloads {
		var r received
		require.NoError(t, json.Unmarshal(p, &r))
		out = append(out, r)
	}
	return out
}

func (f *fakeSession) ofType(t *testing.T, typ string) []received {
	t.Helper()
	var out []received
	for _, r := range f.received(t) {
		if r.Type == typ {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeSession) systemBodies(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, r := range f.ofType(t, domain.TypeMessage) {
		if r.Message.IsSystem {
			out = append(out, r.Message.Body)
		}
	}
	return out
}

type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	failPut bool
	puts    int

	// When gate is set, Put signals entered and blocks until gate closes.
	gate    chan struct{}
	entered chan struct{}
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func newGatedStore() *memStore {
	m := newMemStore()
	m.gate = make(chan struct{})
	m.entered = make(chan struct{}, 1)
	return m
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (m *memStore) Put(_ context.Context, key string, value []byte) error {
	if m.gate != nil {
		select {
		case m.entered <- struct{}{}:
		default:
		}
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.failPut {
		return errors.New("store unavailable")
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memStore) decode(t *testing.T, key string, v any) {
	t.Helper()
	m.mu.Lock()
	raw, ok := m.data[key]
	m.mu.Unlock()
	require.True(t, ok, "key %q not persisted", key)
	require.NoError(t, json.Unmarshal(raw, v))
}

// seqRand replays vals in order, wrapping around.
type seqRand struct {
	mu   sync.Mutex
	vals []int
	i    int
}

func (r *seqRand) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.vals) == 0 {
		return 0
	}
	v := r.vals[r.i%len(r.vals)]
	r.i++
	return v % n
}

func chatPayload(userID, userName, body string) []byte {
	data, _ := json.Marshal(map[string]string{
		"type":     domain.TypeMessage,
		"userId":   userID,
		"userName": userName,
		"message":  body,
	})
	return data
}
