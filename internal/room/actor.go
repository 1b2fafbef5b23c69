// Package room implements the room actor: the single writer that owns one
// chat room's sessions, message log and round game.
package room

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ashureev/emojirooms/internal/actor"
	"github.com/ashureev/emojirooms/internal/domain"
)

// Durable Store keys.
const (
	KeyMessages  = "messages"
	KeyGameState = "gameState"
)

const (
	// DefaultHistoryLimit is how many recent messages a new session receives.
	DefaultHistoryLimit = 100
	// DefaultNextRoundDelay separates a round's results from the next round.
	DefaultNextRoundDelay = 10 * time.Second

	defaultPersistTimeout = 5 * time.Second
	minPlayers            = 2
)

// Session is a connected client as seen by a room.
type Session interface {
	ID() string
	// Send queues payload for delivery without blocking. An error means the
	// session can no longer be written to.
	Send(payload []byte) error
}

// Store is the room's durable key-value storage. Get returns nil, nil for an
// absent key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Options tunes a room actor. Zero values select defaults.
type Options struct {
	LogCapacity    int
	HistoryLimit   int
	NextRoundDelay time.Duration
	PersistTimeout time.Duration
	MailboxSize    int
	Prompts        []string
	Rand           Rand
	Now            func() time.Time
	Logger         *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.LogCapacity <= 0 {
		o.LogCapacity = DefaultLogCapacity
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = DefaultHistoryLimit
	}
	if o.NextRoundDelay <= 0 {
		o.NextRoundDelay = DefaultNextRoundDelay
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = defaultPersistTimeout
	}
	if len(o.Prompts) == 0 {
		o.Prompts = DefaultPrompts
	}
	if o.Rand == nil {
		o.Rand = defaultRand{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Snapshot is a copy of a room's state taken between operations.
type Snapshot struct {
	Messages  []domain.ChatMessage
	GameState domain.GameState
	Connected int
	IdleSince time.Time
}

type attachment struct {
	session Session
	who     domain.Identity
}

// Actor owns one room. All state below the mailbox is touched only from the
// mailbox goroutine.
type Actor struct {
	id      string
	store   Store
	opts    Options
	logger  *slog.Logger
	mailbox *actor.Mailbox

	log       *MessageLog
	game      *Game
	sessions  []attachment
	connected int
	nextRound *time.Timer
	idleSince time.Time
	retired   atomic.Bool
}

// New creates the actor for roomID and starts restoring its state from st.
// Operations submitted before the restore finishes wait behind it.
func New(roomID string, st Store, opts Options) *Actor {
	opts = opts.withDefaults()
	logger := opts.Logger.With("room_id", roomID)
	a := &Actor{
		id:        roomID,
		store:     st,
		opts:      opts,
		logger:    logger,
		mailbox:   actor.NewMailbox(opts.MailboxSize, logger),
		log:       NewMessageLog(opts.LogCapacity),
		game:      NewGame(domain.NewGameState()),
		idleSince: opts.Now(),
	}
	a.mailbox.Post(a.restore)
	return a
}

// ID returns the room id.
func (a *Actor) ID() string {
	return a.id
}

// Attach registers s under who and sends it the room history.
func (a *Actor) Attach(ctx context.Context, s Session, who domain.Identity) error {
	return a.do(ctx, func() { a.attach(s, who) })
}

// Detach unregisters s. Detaching an unknown session is a no-op.
func (a *Actor) Detach(ctx context.Context, s Session) error {
	return a.do(ctx, func() { a.detach(s) })
}

// ReceiveText handles one raw payload sent by s.
func (a *Actor) ReceiveText(ctx context.Context, s Session, payload []byte) error {
	return a.do(ctx, func() { a.receiveText(s, payload) })
}

// StartRound starts a new round if enough players are connected.
func (a *Actor) StartRound(ctx context.Context) error {
	return a.do(ctx, a.startRound)
}

// Submit records an answer for the open round.
func (a *Actor) Submit(ctx context.Context, who domain.Identity, answer string) error {
	return a.do(ctx, func() { a.submit(who, answer) })
}

// Snapshot returns the current messages, game state and player count.
func (a *Actor) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := a.do(ctx, func() {
		snap = Snapshot{
			Messages:  a.log.Messages(),
			GameState: a.game.State(),
			Connected: a.connected,
			IdleSince: a.idleSince,
		}
	})
	return snap, err
}

// RetireIfIdle retires the room when it has had no sessions for at least ttl
// as of now. The check and the retirement happen in one operation, so no
// session can attach in between. A retired room rejects every later
// operation with actor.ErrStopped; the owner still calls Stop to release it.
func (a *Actor) RetireIfIdle(ctx context.Context, now time.Time, ttl time.Duration) (bool, error) {
	var retired bool
	err := a.do(ctx, func() { retired = a.retireIfIdle(now, ttl) })
	return retired, err
}

// Retired reports whether the room has retired.
func (a *Actor) Retired() bool {
	return a.retired.Load()
}

// Stop cancels pending timers and halts the actor.
func (a *Actor) Stop() {
	_ = a.mailbox.Do(context.Background(), a.cancelNextRound)
	a.mailbox.Stop()
	a.logger.Info("Room actor stopped")
}

// do runs fn in the mailbox unless the room has retired.
func (a *Actor) do(ctx context.Context, fn func()) error {
	var rejected bool
	err := a.mailbox.Do(ctx, func() {
		if a.retired.Load() {
			rejected = true
			return
		}
		fn()
	})
	if err == nil && rejected {
		return actor.ErrStopped
	}
	return err
}

func (a *Actor) retireIfIdle(now time.Time, ttl time.Duration) bool {
	if a.connected > 0 || now.Sub(a.idleSince) < ttl {
		return false
	}
	a.cancelNextRound()
	a.retired.Store(true)
	a.logger.Info("Room retired", "idle_for", now.Sub(a.idleSince))
	return true
}

func (a *Actor) restore() {
	ctx, cancel := context.WithTimeout(context.Background(), a.opts.PersistTimeout)
	defer cancel()

	if data, err := a.store.Get(ctx, KeyMessages); err != nil {
		a.logger.Error("Failed to load messages", "error", err)
	} else if data != nil {
		var msgs []domain.ChatMessage
		if err := json.Unmarshal(data, &msgs); err != nil {
			a.logger.Error("Failed to decode stored messages", "error", err)
		} else {
			a.log.Restore(msgs)
		}
	}

	if data, err := a.store.Get(ctx, KeyGameState); err != nil {
		a.logger.Error("Failed to load game state", "error", err)
	} else if data != nil {
		state := domain.NewGameState()
		if err := json.Unmarshal(data, &state); err != nil {
			a.logger.Error("Failed to decode stored game state", "error", err)
		} else {
			a.game = NewGame(state)
		}
	}

	a.logger.Info("Room state restored", "messages", a.log.Len(), "round", a.game.Round())
}

func (a *Actor) attach(s Session, who domain.Identity) {
	if a.indexOf(s) >= 0 {
		a.logger.Debug("Session already attached", "session_id", s.ID())
		return
	}
	a.sessions = append(a.sessions, attachment{session: s, who: who})
	a.connected++
	a.logger.Info("Player attached", "session_id", s.ID(), "user_id", who.UserID, "connected", a.connected)

	a.sendTo(s, domain.HistoryEnvelope{
		Type:      domain.TypeHistory,
		Messages:  a.log.Last(a.opts.HistoryLimit),
		GameState: a.game.State(),
	})
	if a.indexOf(s) < 0 {
		return
	}
	a.announce(fmt.Sprintf("A new player has joined! (%d players connected)", a.connected))

	if a.connected == minPlayers && !a.game.Active() {
		a.startRound()
	}
}

func (a *Actor) detach(s Session) {
	idx := a.indexOf(s)
	if idx < 0 {
		return
	}
	a.sessions = slices.Delete(a.sessions, idx, idx+1)
	a.connected--
	if a.connected == 0 {
		a.idleSince = a.opts.Now()
	}
	a.logger.Info("Player detached", "session_id", s.ID(), "connected", a.connected)

	a.announce(fmt.Sprintf("A player has left. (%d players connected)", a.connected))

	if a.game.Active() && a.connected < minPlayers {
		a.endRound("Not enough players to continue the game.")
	}
}

func (a *Actor) receiveText(s Session, payload []byte) {
	idx := a.indexOf(s)
	if idx < 0 {
		a.logger.Debug("Dropping payload from unattached session", "session_id", s.ID())
		return
	}

	var in domain.InboundEnvelope
	if err := json.Unmarshal(payload, &in); err != nil {
		a.logger.Debug("Dropping malformed payload", "session_id", s.ID(), "error", err)
		return
	}

	switch in.Type {
	case domain.TypeMessage:
		if in.Message == nil {
			a.logger.Debug("Dropping chat payload without message", "session_id", s.ID())
			return
		}
		who := a.sessions[idx].who
		if in.UserID != "" {
			who.UserID = in.UserID
		}
		if in.UserName != "" {
			who.UserName = in.UserName
		}
		msg := domain.NewChatMessage(who, *in.Message, a.opts.Now())
		a.appendMessage(msg)
		a.broadcast(domain.MessageEnvelope{Type: domain.TypeMessage, Message: msg})

		if a.game.Open() && IsEmojiOnly(msg.Body) {
			a.submit(who, msg.Body)
		}
	case domain.TypeStartGame:
		a.startRound()
	default:
		a.logger.Debug("Dropping payload with unknown type", "session_id", s.ID(), "type", in.Type)
	}
}

func (a *Actor) startRound() {
	if a.connected < minPlayers {
		a.announce("Need at least 2 players to start the game.")
		return
	}
	a.cancelNextRound()
	a.game.Start(a.opts.Prompts[a.opts.Rand.IntN(len(a.opts.Prompts))])
	a.persistGame()
	a.logger.Info("Round started", "round", a.game.Round())

	a.broadcast(domain.GameStateEnvelope{Type: domain.TypeGameState, GameState: a.game.State()})
	if !a.game.Active() {
		return
	}
	a.announce(fmt.Sprintf(
		"📽️ NEW ROUND (%d) STARTED! 📽️\n\nMovie to describe: \"%s\"\n\nDescribe this movie using ONLY EMOJIS! The system will score your submissions.",
		a.game.Round(), a.game.Prompt()))
}

func (a *Actor) submit(who domain.Identity, answer string) {
	count, ok := a.game.Submit(who, answer)
	if !ok {
		return
	}
	a.persistGame()
	a.announce(fmt.Sprintf("%s has submitted their emoji description!", who.UserName))

	if count >= minPlayers {
		a.evaluateRound()
	}
}

func (a *Actor) evaluateRound() {
	if !a.game.Evaluate(a.opts.Rand) {
		return
	}
	a.persistGame()
	a.logger.Info("Round evaluated", "round", a.game.Round())

	a.broadcast(domain.GameStateEnvelope{Type: domain.TypeGameState, GameState: a.game.State()})
	if !a.game.Active() {
		return
	}
	a.announce(a.resultsText())
	a.scheduleNextRound()
}

func (a *Actor) endRound(reason string) {
	if !a.game.End() {
		return
	}
	a.cancelNextRound()
	a.persistGame()
	a.logger.Info("Game ended", "round", a.game.Round(), "reason", reason)

	a.announce("Game ended: " + reason)
	a.broadcast(domain.GameStateEnvelope{Type: domain.TypeGameState, GameState: a.game.State()})
}

func (a *Actor) resultsText() string {
	var b strings.Builder
	b.WriteString("📊 ROUND RESULTS 📊\n\n")
	for _, sub := range a.game.Submissions() {
		fmt.Fprintf(&b, "%s: %s (Score: %d)\n", sub.UserName, sub.Answer, *sub.Score)
	}
	if w := a.game.State().Winner; w != nil {
		fmt.Fprintf(&b, "\n🏆 WINNER: %s with %d points! 🏆", w.UserName, *w.Score)
	}
	return b.String()
}

// scheduleNextRound arms the restart timer. The callback re-checks the round
// and player count when it runs, so a stale timer does nothing.
func (a *Actor) scheduleNextRound() {
	a.cancelNextRound()
	round := a.game.Round()
	var timer *time.Timer
	timer = a.mailbox.AfterFunc(a.opts.NextRoundDelay, func() {
		if a.nextRound == timer {
			a.nextRound = nil
		}
		if a.game.Round() != round || a.connected < minPlayers {
			a.logger.Debug("Skipping scheduled round", "round", round, "connected", a.connected)
			return
		}
		a.startRound()
	})
	a.nextRound = timer
}

func (a *Actor) cancelNextRound() {
	if a.nextRound != nil {
		a.nextRound.Stop()
		a.nextRound = nil
	}
}

func (a *Actor) announce(body string) {
	msg := domain.NewSystemMessage(body, a.opts.Now())
	a.appendMessage(msg)
	a.broadcast(domain.MessageEnvelope{Type: domain.TypeMessage, Message: msg})
}

func (a *Actor) appendMessage(msg domain.ChatMessage) {
	a.log.Append(msg)
	a.persist(KeyMessages, a.log.Messages())
}

func (a *Actor) persistGame() {
	a.persist(KeyGameState, a.game.State())
}

// persist writes v under key. Failures are logged and the in-memory state
// stays authoritative.
func (a *Actor) persist(key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		a.logger.Error("Failed to encode room state", "key", key, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.opts.PersistTimeout)
	defer cancel()
	if err := a.store.Put(ctx, key, data); err != nil {
		a.logger.Error("Failed to persist room state", "key", key, "error", err)
	}
}

func (a *Actor) sendTo(s Session, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		a.logger.Error("Failed to encode payload", "error", err)
		return
	}
	if err := s.Send(data); err != nil {
		a.dropSession(s, err)
	}
}

// broadcast attempts delivery to every attached session independently.
// Sessions that fail are detached after the loop.
func (a *Actor) broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		a.logger.Error("Failed to encode payload", "error", err)
		return
	}

	type failure struct {
		session Session
		err     error
	}
	var failed []failure
	for _, at := range slices.Clone(a.sessions) {
		if err := at.session.Send(data); err != nil {
			failed = append(failed, failure{at.session, err})
		}
	}
	for _, f := range failed {
		a.dropSession(f.session, f.err)
	}
}

func (a *Actor) dropSession(s Session, err error) {
	if a.indexOf(s) < 0 {
		return
	}
	a.logger.Warn("Send failed, dropping session", "session_id", s.ID(), "error", err)
	a.detach(s)
}

func (a *Actor) indexOf(s Session) int {
	return slices.IndexFunc(a.sessions, func(at attachment) bool {
		return at.session.ID() == s.ID()
	})
}
