package domain

// WaitingEntry is one participant waiting to be paired.
type WaitingEntry struct {
	UserID         string
	UserName       string
	JoinedAtMillis int64
	SessionID      string
}

// Participant is the identity recorded for each side of a pair.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PairRecord is the audit entry written when two participants are paired.
type PairRecord struct {
	RoomID         string      `json:"roomId"`
	Participant1   Participant `json:"user1"`
	Participant2   Participant `json:"user2"`
	PairedAtMillis int64       `json:"pairedAt"`
}

// PairRecordKey is the shared-store key for a pair record.
func PairRecordKey(roomID string) string {
	return "pair:" + roomID
}
