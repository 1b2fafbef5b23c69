// Package matchmaking implements the waiting-room actor that pairs queued
// participants, oldest first, into freshly named rooms.
package matchmaking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/emojirooms/internal/actor"
	"github.com/ashureev/emojirooms/internal/domain"
)

const (
	// DefaultPairingInterval is the period of the pairing tick.
	DefaultPairingInterval = 5 * time.Second
	// DefaultPairTTL bounds how long a pair record is kept.
	DefaultPairTTL = 24 * time.Hour

	defaultRecordTimeout = 5 * time.Second
)

// Session is a waiting client's connection.
type Session interface {
	ID() string
	// Send queues payload without blocking. An error means the session can no
	// longer be written to.
	Send(payload []byte) error
	// Alive reports whether the connection is still open.
	Alive() bool
}

// PairRecorder writes the audit record of a pairing with an expiry.
type PairRecorder interface {
	RecordPair(ctx context.Context, rec domain.PairRecord, ttl time.Duration) error
}

// Options tunes the matchmaking actor. Zero values select defaults.
type Options struct {
	PairingInterval time.Duration
	PairTTL         time.Duration
	RecordTimeout   time.Duration
	MailboxSize     int
	Now             func() time.Time
	NewRoomID       func() string
	Logger          *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.PairingInterval <= 0 {
		o.PairingInterval = DefaultPairingInterval
	}
	if o.PairTTL <= 0 {
		o.PairTTL = DefaultPairTTL
	}
	if o.RecordTimeout <= 0 {
		o.RecordTimeout = defaultRecordTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewRoomID == nil {
		o.NewRoomID = NewRoomID
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// NewRoomID returns a fresh, globally unique room id for a pair.
func NewRoomID() string {
	return "pair_" + uuid.NewString()
}

// Status summarises the actor's state.
type Status struct {
	Waiting   int `json:"waitingCount"`
	Connected int `json:"connected"`
}

// Actor owns the waiting queue. State below the mailbox is touched only from
// the mailbox goroutine.
type Actor struct {
	recorder PairRecorder
	opts     Options
	logger   *slog.Logger
	mailbox  *actor.Mailbox

	sessions map[string]Session
	queue    *Queue
}

// New creates the matchmaking actor. Call Start to begin periodic pairing.
func New(recorder PairRecorder, opts Options) *Actor {
	opts = opts.withDefaults()
	logger := opts.Logger.With("actor", "matchmaking")
	return &Actor{
		recorder: recorder,
		opts:     opts,
		logger:   logger,
		mailbox:  actor.NewMailbox(opts.MailboxSize, logger),
		sessions: make(map[string]Session),
		queue:    NewQueue(),
	}
}

// Start schedules the pairing tick every PairingInterval until Stop.
func (a *Actor) Start() {
	a.mailbox.Every(a.opts.PairingInterval, a.pairingTick)
	a.logger.Info("Pairing started", "interval", a.opts.PairingInterval)
}

// Attach registers s as a candidate and sends it the initial waiting status.
func (a *Actor) Attach(ctx context.Context, s Session) error {
	return a.mailbox.Do(ctx, func() { a.attach(s) })
}

// Join queues s under who. Joining again from the same session updates the
// identity and keeps the original place in line.
func (a *Actor) Join(ctx context.Context, s Session, who domain.Identity) error {
	return a.mailbox.Do(ctx, func() { a.join(s, who) })
}

// Detach forgets s and any queue entry it holds.
func (a *Actor) Detach(ctx context.Context, s Session) error {
	return a.mailbox.Do(ctx, func() { a.detach(s) })
}

// ReceiveText handles one raw payload sent by s.
func (a *Actor) ReceiveText(ctx context.Context, s Session, payload []byte) error {
	return a.mailbox.Do(ctx, func() { a.receiveText(s, payload) })
}

// Tick runs one pairing pass immediately.
func (a *Actor) Tick(ctx context.Context) error {
	return a.mailbox.Do(ctx, a.pairingTick)
}

// Status reports the queue length and the number of registered sessions.
func (a *Actor) Status(ctx context.Context) (Status, error) {
	var st Status
	err := a.mailbox.Do(ctx, func() {
		st = Status{Waiting: a.queue.Len(), Connected: len(a.sessions)}
	})
	return st, err
}

// waiting returns a copy of the queue, head first.
func (a *Actor) waiting(ctx context.Context) ([]domain.WaitingEntry, error) {
	var out []domain.WaitingEntry
	err := a.mailbox.Do(ctx, func() { out = a.queue.Entries() })
	return out, err
}

// Stop halts the actor and its pairing tick.
func (a *Actor) Stop() {
	a.mailbox.Stop()
	a.logger.Info("Matchmaking actor stopped")
}

func (a *Actor) attach(s Session) {
	if _, ok := a.sessions[s.ID()]; ok {
		return
	}
	a.sessions[s.ID()] = s
	a.logger.Info("Waiting session attached", "session_id", s.ID(), "connected", len(a.sessions))

	if err := a.send(s, domain.WaitingEnvelope{
		Type:     domain.TypeWaiting,
		Position: a.queue.Len() + 1,
		Message:  "You've joined the waiting room. Please wait to be paired with someone.",
	}); err != nil {
		a.dropSession(s, err)
	}
}

func (a *Actor) join(s Session, who domain.Identity) {
	if _, ok := a.sessions[s.ID()]; !ok {
		a.logger.Debug("Dropping join from unattached session", "session_id", s.ID())
		return
	}
	if !a.queue.Update(s.ID(), who.UserID, who.UserName) {
		a.queue.Enqueue(domain.WaitingEntry{
			UserID:         who.UserID,
			UserName:       who.UserName,
			JoinedAtMillis: a.opts.Now().UnixMilli(),
			SessionID:      s.ID(),
		})
		a.logger.Info("Participant queued", "session_id", s.ID(), "user_id", who.UserID, "waiting", a.queue.Len())
	}
	a.broadcastPositions()
}

func (a *Actor) detach(s Session) {
	if _, ok := a.sessions[s.ID()]; !ok {
		return
	}
	delete(a.sessions, s.ID())
	queued := a.queue.Remove(s.ID())
	a.logger.Info("Waiting session detached", "session_id", s.ID(), "was_queued", queued)
	if queued {
		a.broadcastPositions()
	}
}

func (a *Actor) receiveText(s Session, payload []byte) {
	var in domain.InboundEnvelope
	if err := json.Unmarshal(payload, &in); err != nil {
		a.logger.Debug("Dropping malformed payload", "session_id", s.ID(), "error", err)
		return
	}
	if in.Type != domain.TypeJoin {
		a.logger.Debug("Dropping payload with unknown type", "session_id", s.ID(), "type", in.Type)
		return
	}
	if in.UserID == "" {
		a.logger.Debug("Dropping join without userId", "session_id", s.ID())
		return
	}
	name := in.UserName
	if name == "" {
		name = in.UserID
	}
	a.join(s, domain.Identity{UserID: in.UserID, UserName: name})
}

// pairingTick pairs the two oldest live entries. Entries whose session has
// gone away are pruned first so a pair is never formed with a dead client.
func (a *Actor) pairingTick() {
	pruned := a.pruneDead()

	first, second, ok := a.queue.PopPair()
	if !ok {
		if pruned {
			a.broadcastPositions()
		}
		return
	}

	rec := domain.PairRecord{
		RoomID:         a.opts.NewRoomID(),
		Participant1:   domain.Participant{ID: first.UserID, Name: first.UserName},
		Participant2:   domain.Participant{ID: second.UserID, Name: second.UserName},
		PairedAtMillis: a.opts.Now().UnixMilli(),
	}
	a.record(rec)
	a.logger.Info("Participants paired", "room_id", rec.RoomID, "user1", first.UserID, "user2", second.UserID)

	a.notifyPaired(first, second, rec.RoomID)
	a.notifyPaired(second, first, rec.RoomID)

	a.broadcastPositions()
}

func (a *Actor) pruneDead() bool {
	var pruned bool
	for _, e := range a.queue.Entries() {
		s, ok := a.sessions[e.SessionID]
		if ok && s.Alive() {
			continue
		}
		a.queue.Remove(e.SessionID)
		delete(a.sessions, e.SessionID)
		a.logger.Info("Pruned stale waiting entry", "session_id", e.SessionID, "user_id", e.UserID)
		pruned = true
	}
	return pruned
}

func (a *Actor) record(rec domain.PairRecord) {
	if a.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.opts.RecordTimeout)
	defer cancel()
	if err := a.recorder.RecordPair(ctx, rec, a.opts.PairTTL); err != nil {
		a.logger.Error("Failed to record pair", "room_id", rec.RoomID, "error", err)
	}
}

// notifyPaired tells e's session about its partner and releases the session.
func (a *Actor) notifyPaired(e, partner domain.WaitingEntry, roomID string) {
	s, ok := a.sessions[e.SessionID]
	if !ok {
		return
	}
	delete(a.sessions, e.SessionID)
	if err := a.send(s, domain.PairedEnvelope{
		Type:        domain.TypePaired,
		RoomID:      roomID,
		PartnerID:   partner.UserID,
		PartnerName: partner.UserName,
		Message:     fmt.Sprintf("You've been paired with %s. Joining chat room...", partner.UserName),
	}); err != nil {
		a.logger.Warn("Failed to notify paired participant", "session_id", e.SessionID, "room_id", roomID, "error", err)
	}
}

// broadcastPositions sends every queued session its 1-based place. Sessions
// that fail are detached after the loop.
func (a *Actor) broadcastPositions() {
	type failure struct {
		session Session
		err     error
	}
	var failed []failure
	for i, e := range a.queue.Entries() {
		s, ok := a.sessions[e.SessionID]
		if !ok {
			continue
		}
		if err := a.send(s, domain.WaitingEnvelope{
			Type:     domain.TypeWaiting,
			Position: i + 1,
			Message:  fmt.Sprintf("You are #%d in line. Please wait to be paired.", i+1),
		}); err != nil {
			failed = append(failed, failure{s, err})
		}
	}
	for _, f := range failed {
		a.dropSession(f.session, f.err)
	}
}

func (a *Actor) dropSession(s Session, err error) {
	if _, ok := a.sessions[s.ID()]; !ok {
		return
	}
	a.logger.Warn("Send failed, dropping waiting session", "session_id", s.ID(), "error", err)
	a.detach(s)
}

func (a *Actor) send(s Session, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return s.Send(data)
}
