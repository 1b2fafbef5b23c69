package room

import (
	"slices"

	"github.com/ashureev/emojirooms/internal/domain"
)

// maxScore is the inclusive upper bound of a submission score.
const maxScore = 100

// Game is the round state machine embedded in a room. It performs no I/O;
// the owning actor persists and broadcasts after each transition.
type Game struct {
	state domain.GameState
}

// NewGame resumes a game from a previously persisted state.
func NewGame(state domain.GameState) *Game {
	if state.Submissions == nil {
		state.Submissions = make(map[string]domain.Submission)
	}
	return &Game{state: state}
}

// State returns a deep copy of the current state.
func (g *Game) State() domain.GameState {
	return g.state.Clone()
}

// Active reports whether a game is in progress.
func (g *Game) Active() bool {
	return g.state.IsActive
}

// Open reports whether the current round accepts submissions.
func (g *Game) Open() bool {
	return g.state.IsActive && !g.state.RoundEnded
}

// Round returns the current round number.
func (g *Game) Round() int {
	return g.state.RoundNumber
}

// Prompt returns the current round's prompt.
func (g *Game) Prompt() string {
	return g.state.Prompt
}

// Start begins the next round with prompt, discarding the previous round's
// submissions and winner.
func (g *Game) Start(prompt string) {
	g.state = domain.GameState{
		IsActive:    true,
		Prompt:      prompt,
		Submissions: make(map[string]domain.Submission),
		RoundNumber: g.state.RoundNumber + 1,
	}
}

// Submit records answer for who, replacing any earlier answer from the same
// user. It returns the number of distinct submitters and false when the
// round is not open.
func (g *Game) Submit(who domain.Identity, answer string) (int, bool) {
	if !g.Open() {
		return len(g.state.Submissions), false
	}
	if _, seen := g.state.Submissions[who.UserID]; !seen {
		g.state.SubmissionOrder = append(g.state.SubmissionOrder, who.UserID)
	}
	g.state.Submissions[who.UserID] = domain.Submission{
		UserID:   who.UserID,
		UserName: who.UserName,
		Answer:   answer,
	}
	return len(g.state.Submissions), true
}

// Evaluate closes the round, scores every submission uniformly in [0,100]
// and picks the strictly highest score as winner, ties going to the earliest
// submitter. It returns false without changes when the round is not open.
func (g *Game) Evaluate(r Rand) bool {
	if !g.Open() {
		return false
	}
	g.state.RoundEnded = true

	var winner *domain.Submission
	for _, id := range g.submissionOrder() {
		sub := g.state.Submissions[id]
		score := r.IntN(maxScore + 1)
		sub.Score = &score
		g.state.Submissions[id] = sub
		if winner == nil || score > *winner.Score {
			w := sub
			winner = &w
		}
	}
	g.state.Winner = winner
	return true
}

// End stops the game. Submissions and winner stay as a record of the last
// round. It returns false when no game is active.
func (g *Game) End() bool {
	if !g.state.IsActive {
		return false
	}
	g.state.IsActive = false
	g.state.RoundEnded = true
	return true
}

// Submissions returns the current submissions in first-submitted order.
func (g *Game) Submissions() []domain.Submission {
	ids := g.submissionOrder()
	out := make([]domain.Submission, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.state.Submissions[id])
	}
	return out
}

// submissionOrder returns submitter ids in first-submitted order. Ids missing
// from the recorded order (state persisted without one) follow, sorted.
func (g *Game) submissionOrder() []string {
	ids := make([]string, 0, len(g.state.Submissions))
	seen := make(map[string]bool, len(g.state.Submissions))
	for _, id := range g.state.SubmissionOrder {
		if _, ok := g.state.Submissions[id]; ok && !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	var rest []string
	for id := range g.state.Submissions {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	slices.Sort(rest)
	return append(ids, rest...)
}
