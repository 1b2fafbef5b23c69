package domain

// Submission is one player's answer for the current round.
type Submission struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Answer   string `json:"emoji"`
	Score    *int   `json:"score,omitempty"`
}

// GameState is the persisted state of a room's round game.
//
// Submissions may only change while IsActive && !RoundEnded. Winner is only
// set once RoundEnded is true. RoundNumber never decreases.
type GameState struct {
	IsActive    bool                  `json:"isActive"`
	Prompt      string                `json:"moviePrompt,omitempty"`
	Submissions map[string]Submission `json:"submissions"`
	RoundEnded  bool                  `json:"roundEnded"`
	Winner      *Submission           `json:"winner,omitempty"`
	RoundNumber int                   `json:"round"`

	// SubmissionOrder lists user ids by first submission; it breaks score ties.
	SubmissionOrder []string `json:"submissionOrder,omitempty"`
}

// NewGameState returns the state of a room that has never played.
func NewGameState() GameState {
	return GameState{Submissions: make(map[string]Submission)}
}

// Clone returns a deep copy safe to hand outside the owning actor.
func (g GameState) Clone() GameState {
	out := g
	out.Submissions = make(map[string]Submission, len(g.Submissions))
	for id, s := range g.Submissions {
		out.Submissions[id] = s.clone()
	}
	if g.Winner != nil {
		w := g.Winner.clone()
		out.Winner = &w
	}
	if g.SubmissionOrder != nil {
		out.SubmissionOrder = append([]string(nil), g.SubmissionOrder...)
	}
	return out
}

func (s Submission) clone() Submission {
	if s.Score != nil {
		score := *s.Score
		s.Score = &score
	}
	return s
}
