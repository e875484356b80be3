package store

import (
	"context"

	"github.com/psds-microservice/helpdesk-service/internal/model"
)

// Store is the record store for conversations and their linked tickets.
// Conversation writes are compare-and-swap on the Version field: an update
// whose version no longer matches the stored row fails with
// errs.ErrWriteConflict instead of overwriting a concurrent append.
// EscalateConversation and ResolveConversation mutate the conversation and
// the ticket together or not at all.
type Store interface {
	CreateConversation(ctx context.Context, c *model.Conversation) error
	GetConversation(ctx context.Context, id uint64) (*model.Conversation, error)
	ListConversations(ctx context.Context, ownerID string) ([]model.Conversation, error)
	UpdateConversation(ctx context.Context, c *model.Conversation) error
	DeleteConversation(ctx context.Context, id uint64) error

	GetTicket(ctx context.Context, id uint64) (*model.Ticket, error)
	ListTickets(ctx context.Context, status model.TicketStatus, assigneeID string) ([]model.Ticket, error)
	AssignTicket(ctx context.Context, id uint64, assigneeID string) error

	EscalateConversation(ctx context.Context, c *model.Conversation, t *model.Ticket) error
	ResolveConversation(ctx context.Context, c *model.Conversation, t *model.Ticket) error
}
