package models

import "time"

// Participant links a user to a conversation. A participant is active while
// LeftAt is nil; authorization for sends and subscriptions derives solely
// from active participancy.
type Participant struct {
	ID             int64      `json:"id"`
	UserID         int64      `json:"user_id"`
	ConversationID int64      `json:"conversation_id"`
	JoinedAt       time.Time  `json:"joined_at"`
	LeftAt         *time.Time `json:"left_at,omitempty"`
	IsAdmin        bool       `json:"is_admin"`
}

// Active reports whether the participant row still grants access.
func (p *Participant) Active() bool {
	return p.LeftAt == nil
}
