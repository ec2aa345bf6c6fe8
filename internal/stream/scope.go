package stream

// Scope identifies a subscription target: either the full conversation list
// of a user, or the messages of one conversation.
type Scope struct {
	ConversationID int64 // 0 for the conversation-list scope
}

// ConversationList returns the scope covering all conversations of the
// subscribing user.
func ConversationList() Scope {
	return Scope{}
}

// ConversationMessages returns the scope covering one conversation's
// messages.
func ConversationMessages(conversationID int64) Scope {
	return Scope{ConversationID: conversationID}
}

// Messages reports whether this is a single-conversation message scope.
func (s Scope) Messages() bool {
	return s.ConversationID != 0
}

func (s Scope) String() string {
	if s.Messages() {
		return "messages"
	}
	return "conversations"
}
