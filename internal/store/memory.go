package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/psds-microservice/helpdesk-service/internal/errs"
	"github.com/psds-microservice/helpdesk-service/internal/model"
)

// Memory is an in-process Store with the same compare-and-swap and
// pair-atomicity semantics as Postgres. It backs tests and local runs
// without a database.
type Memory struct {
	mu            sync.Mutex
	conversations map[uint64]model.Conversation
	tickets       map[uint64]model.Ticket
	nextConvID    uint64
	nextTicketID  uint64
}

func NewMemory() *Memory {
	return &Memory{
		conversations: make(map[uint64]model.Conversation),
		tickets:       make(map[uint64]model.Ticket),
		nextConvID:    1,
		nextTicketID:  1,
	}
}

func (s *Memory) CreateConversation(_ context.Context, c *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.nextConvID
	s.nextConvID++
	c.Version = 1
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.conversations[c.ID] = *c
	return nil
}

func (s *Memory) GetConversation(_ context.Context, id uint64) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, errs.ErrConversationNotFound
	}
	return &c, nil
}

func (s *Memory) ListConversations(_ context.Context, ownerID string) ([]model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []model.Conversation
	for _, c := range s.conversations {
		if ownerID == "" || c.OwnerID == ownerID {
			items = append(items, c)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].UpdatedAt.After(items[j].UpdatedAt) })
	return items, nil
}

func (s *Memory) updateConversationLocked(c *model.Conversation) error {
	stored, ok := s.conversations[c.ID]
	if !ok {
		return errs.ErrConversationNotFound
	}
	if stored.Version != c.Version {
		return errs.ErrWriteConflict
	}
	c.Version++
	c.UpdatedAt = time.Now()
	s.conversations[c.ID] = *c
	return nil
}

func (s *Memory) UpdateConversation(_ context.Context, c *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateConversationLocked(c)
}

func (s *Memory) DeleteConversation(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return errs.ErrConversationNotFound
	}
	delete(s.conversations, id)
	for tid, t := range s.tickets {
		if t.ConversationID == id {
			delete(s.tickets, tid)
		}
	}
	return nil
}

func (s *Memory) GetTicket(_ context.Context, id uint64) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, errs.ErrTicketNotFound
	}
	return &t, nil
}

func (s *Memory) ListTickets(_ context.Context, status model.TicketStatus, assigneeID string) ([]model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []model.Ticket
	for _, t := range s.tickets {
		if status != "" && t.Status != status {
			continue
		}
		if assigneeID != "" && t.AssigneeID != assigneeID {
			continue
		}
		items = append(items, t)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].OpenedAt.Before(items[j].OpenedAt) })
	return items, nil
}

func (s *Memory) AssignTicket(_ context.Context, id uint64, assigneeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return errs.ErrTicketNotFound
	}
	t.AssigneeID = assigneeID
	s.tickets[id] = t
	return nil
}

func (s *Memory) EscalateConversation(_ context.Context, c *model.Conversation, t *model.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.nextTicketID
	c.LinkedTicketID = &t.ID
	c.Status = model.StatusPendingWithHuman
	if err := s.updateConversationLocked(c); err != nil {
		t.ID = 0
		c.LinkedTicketID = nil
		return err
	}
	s.nextTicketID++
	s.tickets[t.ID] = *t
	return nil
}

func (s *Memory) ResolveConversation(_ context.Context, c *model.Conversation, t *model.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[t.ID]; !ok {
		return errs.ErrTicketNotFound
	}
	c.Status = model.StatusResolvedByHuman
	if err := s.updateConversationLocked(c); err != nil {
		return err
	}
	s.tickets[t.ID] = *t
	return nil
}
