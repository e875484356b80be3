package model

import "time"

// ConversationStatus is persisted and exchanged as a small integer; the
// numeric values are part of the wire/storage format and must not change.
type ConversationStatus int

const (
	StatusInProgress       ConversationStatus = 1 // automated responder handles new user text
	StatusConcluded        ConversationStatus = 2 // user marked the answer useful; terminal
	StatusPendingWithHuman ConversationStatus = 3 // escalated, technician handles new user text
	StatusResolvedByHuman  ConversationStatus = 4 // technician resolved the ticket; terminal
)

// Terminal reports whether no further status change is possible without an
// explicit continuation (new question with continue=true).
func (s ConversationStatus) Terminal() bool {
	return s == StatusConcluded || s == StatusResolvedByHuman
}

func (s ConversationStatus) String() string {
	switch s {
	case StatusInProgress:
		return "in_progress"
	case StatusConcluded:
		return "concluded"
	case StatusPendingWithHuman:
		return "pending_with_human"
	case StatusResolvedByHuman:
		return "resolved_by_human"
	}
	return "unknown"
}

// Conversation holds the whole multi-turn exchange in three append-only text
// logs rather than discrete message rows. QuestionLog and AnswerLog carry the
// user/responder exchange; TechnicianLog carries the escalated thread (both
// technician and user entries). Version backs the compare-and-swap write
// path: every update must present the version it read.
type Conversation struct {
	ID             uint64             `gorm:"primaryKey" json:"id"`
	OwnerID        string             `gorm:"index;not null" json:"owner_id"`
	Title          string             `gorm:"type:varchar(255)" json:"title,omitempty"`
	QuestionLog    string             `gorm:"type:text" json:"question_log"`
	AnswerLog      string             `gorm:"type:text" json:"answer_log"`
	TechnicianLog  string             `gorm:"type:text" json:"technician_log,omitempty"`
	Status         ConversationStatus `gorm:"index;not null" json:"status"`
	LinkedTicketID *uint64            `gorm:"index" json:"linked_ticket_id,omitempty"`
	Version        uint64             `gorm:"not null;default:1" json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TicketStatus string

const (
	TicketStatusOpen     TicketStatus = "open"
	TicketStatusResolved TicketStatus = "resolved"
)

// Ticket exists only while a conversation references it; the pair is created
// on escalation and resolved together. SolutionLog is a snapshot of the
// technician thread taken at resolution time.
type Ticket struct {
	ID             uint64       `gorm:"primaryKey" json:"id"`
	ConversationID uint64       `gorm:"index;not null" json:"conversation_id"`
	OwnerID        string       `gorm:"index;not null" json:"owner_id"`
	AssigneeID     string       `gorm:"index" json:"assignee_id,omitempty"`
	Description    string       `gorm:"type:text" json:"description"`
	Status         TicketStatus `gorm:"type:varchar(32);index;not null" json:"status"`
	SolutionLog    string       `gorm:"type:text" json:"solution_log,omitempty"`

	OpenedAt time.Time  `json:"opened_at"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`
}
