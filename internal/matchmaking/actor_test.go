package matchmaking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/emojirooms/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	Type        string `json:"type"`
	Position    int    `json:"position"`
	Message     string `json:"message"`
	RoomID      string `json:"roomId"`
	PartnerID   string `json:"partnerId"`
	PartnerName string `json:"partnerName"`
}

type fakeSession struct {
	id string

	mu       sync.Mutex
	payloads [][]byte
	fail     bool
	dead     bool
}

func newFakeSession(id string) *fakeSession {
	return &fakeSession{id: id}
}

func (f *fakeSession) ID() string { return f.id }

func (f *fakeSession) Send(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("send failed")
	}
	f.payloads = append(f.payloads, append([]byte(nil), p...))
	return nil
}

func (f *fakeSession) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.dead
}

func (f *fakeSession) set(fail, dead bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail, f.dead = fail, dead
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

func (f *fakeSession) last(t *testing.T) received {
	t.Helper()
	got := f.received(t)
	require.NotEmpty(t, got)
	return got[len(got)-1]
}

type fakeRecorder struct {
	mu   sync.Mutex
	recs []domain.PairRecord
	ttls []time.Duration
	err  error
}

func (r *fakeRecorder) RecordPair(_ context.Context, rec domain.PairRecord, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	r.ttls = append(r.ttls, ttl)
	return r.err
}

func (r *fakeRecorder) records() []domain.PairRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.PairRecord(nil), r.recs...)
}

// stepClock advances one millisecond per call.
func stepClock() func() time.Time {
	var n atomic.Int64
	base := time.UnixMilli(1_700_000_000_000)
	return func() time.Time {
		return base.Add(time.Duration(n.Add(1)) * time.Millisecond)
	}
}

func newTestActor(t *testing.T, rec PairRecorder) *Actor {
	t.Helper()
	var rooms atomic.Int32
	a := New(rec, Options{
		Now:       stepClock(),
		NewRoomID: func() string { return fmt.Sprintf("pair_test-%d", rooms.Add(1)) },
	})
	t.Cleanup(a.Stop)
	return a
}

func attachAndJoin(t *testing.T, a *Actor, s *fakeSession, name string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, a.Attach(ctx, s))
	payload := fmt.Sprintf(`{"type":"join","userId":"id-%s","userName":"%s"}`, name, name)
	require.NoError(t, a.ReceiveText(ctx, s, []byte(payload)))
}

func TestActor_AttachSendsInitialStatus(t *testing.T) {
	a := newTestActor(t, &fakeRecorder{})
	x, y := newFakeSession("x"), newFakeSession("y")
	attachAndJoin(t, a, x, "X")

	require.NoError(t, a.Attach(context.Background(), y))

	got := y.last(t)
	assert.Equal(t, domain.TypeWaiting, got.Type)
	assert.Equal(t, 2, got.Position)
	assert.Equal(t, "You've joined the waiting room. Please wait to be paired with someone.", got.Message)

	st, err := a.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Status{Waiting: 1, Connected: 2}, st)
}

func TestActor_JoinBroadcastsPositions(t *testing.T) {
	a := newTestActor(t, &fakeRecorder{})
	x, y := newFakeSession("x"), newFakeSession("y")
	attachAndJoin(t, a, x, "X")
	attachAndJoin(t, a, y, "Y")

	assert.Equal(t, 1, x.last(t).Position)
	assert.Equal(t, "You are #1 in line. Please wait to be paired.", x.last(t).Message)
	assert.Equal(t, 2, y.last(t).Position)
}

func TestActor_RepeatedJoinKeepsPlace(t *testing.T) {
	ctx := context.Background()
	a := newTestActor(t, &fakeRecorder{})
	x, y := newFakeSession("x"), newFakeSession("y")
	attachAndJoin(t, a, x, "X")
	attachAndJoin(t, a, y, "Y")

	require.NoError(t, a.ReceiveText(ctx, x, []byte(`{"type":"join","userId":"id-X","userName":"Xavier"}`)))

	waiting, err := a.waiting(ctx)
	require.NoError(t, err)
	require.Len(t, waiting, 2)
	assert.Equal(t, "x", waiting[0].SessionID)
	assert.Equal(t, "Xavier", waiting[0].UserName)
}

func TestActor_PairsOldestTwo(t *testing.T) {
	ctx := context.Background()
	rec := &fakeRecorder{}
	a := newTestActor(t, rec)
	x, y, z := newFakeSession("x"), newFakeSession("y"), newFakeSession("z")
	attachAndJoin(t, a, x, "X")
	attachAndJoin(t, a, y, "Y")
	attachAndJoin(t, a, z, "Z")

	require.NoError(t, a.Tick(ctx))

	px, py := x.last(t), y.last(t)
	assert.Equal(t, domain.TypePaired, px.Type)
	assert.Equal(t, domain.TypePaired, py.Type)
	assert.Equal(t, px.RoomID, py.RoomID)
	assert.True(t, strings.HasPrefix(px.RoomID, "pair_"))
	assert.Equal(t, "id-Y", px.PartnerID)
	assert.Equal(t, "Y", px.PartnerName)
	assert.Equal(t, "id-X", py.PartnerID)
	assert.Equal(t, "You've been paired with Y. Joining chat room...", px.Message)

	pz := z.last(t)
	assert.Equal(t, domain.TypeWaiting, pz.Type)
	assert.Equal(t, 1, pz.Position)

	recs := rec.records()
	require.Len(t, recs, 1)
	assert.Equal(t, px.RoomID, recs[0].RoomID)
	assert.Equal(t, domain.Participant{ID: "id-X", Name: "X"}, recs[0].Participant1)
	assert.Equal(t, domain.Participant{ID: "id-Y", Name: "Y"}, recs[0].Participant2)
	assert.Equal(t, DefaultPairTTL, rec.ttls[0])

	st, err := a.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Status{Waiting: 1, Connected: 1}, st, "paired sessions are released")
}

func TestActor_TickWithOneWaitingIsNoop(t *testing.T) {
	rec := &fakeRecorder{}
	a := newTestActor(t, rec)
	x := newFakeSession("x")
	attachAndJoin(t, a, x, "X")
	before := len(x.received(t))

	require.NoError(t, a.Tick(context.Background()))

	assert.Len(t, x.received(t), before)
	assert.Empty(t, rec.records())
}

func TestActor_AttachedButNotJoinedIsNotPaired(t *testing.T) {
	rec := &fakeRecorder{}
	a := newTestActor(t, rec)
	x, y := newFakeSession("x"), newFakeSession("y")
	attachAndJoin(t, a, x, "X")
	require.NoError(t, a.Attach(context.Background(), y))

	require.NoError(t, a.Tick(context.Background()))

	assert.Empty(t, rec.records())
}

func TestActor_DetachRemovesEntry(t *testing.T) {
	ctx := context.Background()
	a := newTestActor(t, &fakeRecorder{})
	x, y, z := newFakeSession("x"), newFakeSession("y"), newFakeSession("z")
	attachAndJoin(t, a, x, "X")
	attachAndJoin(t, a, y, "Y")
	attachAndJoin(t, a, z, "Z")

	require.NoError(t, a.Detach(ctx, x))
	require.NoError(t, a.Detach(ctx, x))

	assert.Equal(t, 1, y.last(t).Position)
	assert.Equal(t, 2, z.last(t).Position)
	st, err := a.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Waiting)
}

func TestActor_DeadEntriesArePrunedBeforePairing(t *testing.T) {
	ctx := context.Background()
	rec := &fakeRecorder{}
	a := newTestActor(t, rec)
	x, y, z := newFakeSession("x"), newFakeSession("y"), newFakeSession("z")
	attachAndJoin(t, a, x, "X")
	attachAndJoin(t, a, y, "Y")
	attachAndJoin(t, a, z, "Z")

	x.set(false, true)
	require.NoError(t, a.Tick(ctx))

	recs := rec.records()
	require.Len(t, recs, 1)
	assert.Equal(t, "id-Y", recs[0].Participant1.ID)
	assert.Equal(t, "id-Z", recs[0].Participant2.ID)
	assert.Equal(t, domain.TypePaired, y.last(t).Type)
	assert.NotEqual(t, domain.TypePaired, x.last(t).Type)
}

func TestActor_RecordFailureStillNotifies(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("kv down")}
	a := newTestActor(t, rec)
	x, y := newFakeSession("x"), newFakeSession("y")
	attachAndJoin(t, a, x, "X")
	attachAndJoin(t, a, y, "Y")

	require.NoError(t, a.Tick(context.Background()))

	assert.Equal(t, domain.TypePaired, x.last(t).Type)
	assert.Equal(t, domain.TypePaired, y.last(t).Type)
}

func TestActor_SendFailureDropsWaitingSession(t *testing.T) {
	ctx := context.Background()
	a := newTestActor(t, &fakeRecorder{})
	x, y, z := newFakeSession("x"), newFakeSession("y"), newFakeSession("z")
	attachAndJoin(t, a, x, "X")
	attachAndJoin(t, a, y, "Y")

	x.set(true, false)
	attachAndJoin(t, a, z, "Z")

	waiting, err := a.waiting(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "z"}, sessionIDs(waiting))
	assert.Equal(t, 2, z.last(t).Position)
}

func TestActor_MalformedPayloadsAreDropped(t *testing.T) {
	ctx := context.Background()
	a := newTestActor(t, &fakeRecorder{})
	x := newFakeSession("x")
	require.NoError(t, a.Attach(ctx, x))

	for _, p := range []string{`{`, `{"type":"message","message":"hi"}`, `{"type":"join"}`} {
		require.NoError(t, a.ReceiveText(ctx, x, []byte(p)))
	}
	require.NoError(t, a.ReceiveText(ctx, newFakeSession("stranger"), []byte(`{"type":"join","userId":"s"}`)))

	st, err := a.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Waiting)
}

func TestActor_StartPairsPeriodically(t *testing.T) {
	rec := &fakeRecorder{}
	a := New(rec, Options{PairingInterval: 10 * time.Millisecond})
	t.Cleanup(a.Stop)
	x, y := newFakeSession("x"), newFakeSession("y")
	attachAndJoin(t, a, x, "X")
	attachAndJoin(t, a, y, "Y")

	a.Start()

	require.Eventually(t, func() bool { return len(rec.records()) == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, strings.HasPrefix(rec.records()[0].RoomID, "pair_"))
}

func TestNewRoomID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewRoomID()
		require.False(t, seen[id])
		seen[id] = true
	}
}
