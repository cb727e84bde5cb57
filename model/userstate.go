package model

// PendingMeta ties a conversation to the pending-sheet row that seeded it.
type PendingMeta struct {
	Row int
}

// ConversationState tracks one user's progress through a survey. It lives in
// memory only and is dropped on completion, cancellation or restart.
type ConversationState struct {
	Step        int
	Answers     []string
	SurveyIndex int
	Meta        *PendingMeta // nil unless seeded by a pending invitation
}
