package domain

// Outbound payload types.
const (
	TypeHistory   = "history"
	TypeMessage   = "message"
	TypeGameState = "game-state"
	TypeWaiting   = "waiting"
	TypePaired    = "paired"
)

// Inbound payload types.
const (
	TypeStartGame = "start-game"
	TypeJoin      = "join"
)

// HistoryEnvelope is sent once to a session right after it attaches to a room.
type HistoryEnvelope struct {
	Type      string        `json:"type"`
	Messages  []ChatMessage `json:"messages"`
	GameState GameState     `json:"gameState"`
}

// MessageEnvelope carries one new chat or system message.
type MessageEnvelope struct {
	Type    string      `json:"type"`
	Message ChatMessage `json:"message"`
}

// GameStateEnvelope is broadcast whenever the game state transitions.
type GameStateEnvelope struct {
	Type      string    `json:"type"`
	GameState GameState `json:"gameState"`
}

// WaitingEnvelope reports a waiting participant's queue position.
type WaitingEnvelope struct {
	Type     string `json:"type"`
	Position int    `json:"position"`
	Message  string `json:"message"`
}

// PairedEnvelope tells a participant which room to join and with whom.
type PairedEnvelope struct {
	Type        string `json:"type"`
	RoomID      string `json:"roomId"`
	PartnerID   string `json:"partnerId"`
	PartnerName string `json:"partnerName"`
	Message     string `json:"message"`
}

// InboundEnvelope is the union of every client payload.
type InboundEnvelope struct {
	Type     string  `json:"type"`
	UserID   string  `json:"userId,omitempty"`
	UserName string  `json:"userName,omitempty"`
	Message  *string `json:"message,omitempty"`
}
