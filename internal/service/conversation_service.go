package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/psds-microservice/helpdesk-service/internal/chatlog"
	"github.com/psds-microservice/helpdesk-service/internal/clock"
	"github.com/psds-microservice/helpdesk-service/internal/errs"
	"github.com/psds-microservice/helpdesk-service/internal/kafka"
	"github.com/psds-microservice/helpdesk-service/internal/model"
	"github.com/psds-microservice/helpdesk-service/internal/notify"
	"github.com/psds-microservice/helpdesk-service/internal/responder"
	"github.com/psds-microservice/helpdesk-service/internal/store"
)

// escalationInbox receives new-ticket notifications until a technician picks
// the ticket up. TODO: route per department once departments carry their own
// notification inboxes.
const escalationInbox = "technicians"

// ConversationService is the single writer path for conversation records: it
// decides, purely from the current status, which log an incoming event is
// appended to and what the next status is. Once a conversation leaves
// StatusInProgress the automated responder is never called for it again.
type ConversationService struct {
	store     store.Store
	responder responder.Responder
	producer  kafka.EventProducer
	notifier  *notify.Client
	clock     clock.Clock
}

func NewConversationService(st store.Store, r responder.Responder, producer kafka.EventProducer, notifier *notify.Client, clk clock.Clock) *ConversationService {
	return &ConversationService{
		store:     st,
		responder: r,
		producer:  producer,
		notifier:  notifier,
		clock:     clk,
	}
}

// AskQuestionRequest starts or continues the automated exchange.
// ConversationID zero starts a new conversation. Asking on a concluded or
// resolved conversation starts a new record unless Continue is set, in which
// case the id is reused and the status goes back to StatusInProgress (the
// logs stay append-only, so prior entries survive the reset).
type AskQuestionRequest struct {
	OwnerID        string
	ConversationID uint64
	Title          string
	Text           string
	Continue       bool
}

func (s *ConversationService) AskQuestion(ctx context.Context, req AskQuestionRequest) (*model.Conversation, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("ask question: empty text")
	}

	if req.ConversationID == 0 {
		return s.startConversation(ctx, req)
	}

	c, err := s.store.GetConversation(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	switch {
	case c.Status == model.StatusInProgress:
		// follow-up on the live exchange
	case c.Status.Terminal() && !req.Continue:
		req.ConversationID = 0
		return s.startConversation(ctx, req)
	case c.Status.Terminal() && req.Continue:
		c.Status = model.StatusInProgress
	default:
		// PendingWithHuman: new user text belongs to the technician thread.
		return nil, fmt.Errorf("ask question on %s conversation: %w", c.Status, errs.ErrInvalidTransition)
	}

	if err := s.exchange(ctx, c, req.Text); err != nil {
		return nil, err
	}
	if err := s.store.UpdateConversation(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ConversationService) startConversation(ctx context.Context, req AskQuestionRequest) (*model.Conversation, error) {
	title := req.Title
	if title == "" {
		title = deriveTitle(req.Text)
	}
	c := &model.Conversation{
		OwnerID: req.OwnerID,
		Title:   title,
		Status:  model.StatusInProgress,
	}
	if err := s.exchange(ctx, c, req.Text); err != nil {
		return nil, err
	}
	if err := s.store.CreateConversation(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// exchange appends the question, calls the automated responder, and appends
// its answer. Only callers that already verified the status may use it.
func (s *ConversationService) exchange(ctx context.Context, c *model.Conversation, text string) error {
	now := s.clock.Now()
	c.QuestionLog = chatlog.Append(c.QuestionLog, chatlog.Message{Sender: chatlog.RoleUser, Timestamp: now, Text: text})
	answer, err := s.responder.Respond(ctx, text)
	if err != nil {
		return fmt.Errorf("responder: %w", err)
	}
	c.AnswerLog = chatlog.Append(c.AnswerLog, chatlog.Message{Sender: chatlog.RoleResponder, Timestamp: s.clock.Now(), Text: answer})
	return nil
}

// GiveFeedback closes the automated exchange. Useful concludes the
// conversation; not useful escalates it: a ticket is created whose
// description is the accumulated question text, and the conversation and
// ticket are linked atomically.
func (s *ConversationService) GiveFeedback(ctx context.Context, id uint64, useful bool) (*model.Conversation, *model.Ticket, error) {
	c, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if c.Status != model.StatusInProgress {
		return nil, nil, fmt.Errorf("feedback on %s conversation: %w", c.Status, errs.ErrInvalidTransition)
	}

	if useful {
		c.Status = model.StatusConcluded
		if err := s.store.UpdateConversation(ctx, c); err != nil {
			return nil, nil, err
		}
		return c, nil, nil
	}

	t := &model.Ticket{
		ConversationID: c.ID,
		OwnerID:        c.OwnerID,
		Description:    s.questionText(c),
		Status:         model.TicketStatusOpen,
		OpenedAt:       s.clock.Now(),
	}
	if err := s.store.EscalateConversation(ctx, c, t); err != nil {
		return nil, nil, err
	}
	s.notifier.TicketEscalated(escalationInbox, t.Description)
	s.producer.ProduceConversationEvent(ctx, "conversation.escalated", s.eventPayload(c))
	return c, t, nil
}

// TechnicianReply appends a technician entry to the escalated thread. The
// first replying technician becomes the ticket assignee.
func (s *ConversationService) TechnicianReply(ctx context.Context, id uint64, assigneeID, text string) (*model.Conversation, error) {
	c, err := s.pendingConversation(ctx, id, "technician reply")
	if err != nil {
		return nil, err
	}
	c.TechnicianLog = chatlog.Append(c.TechnicianLog, chatlog.Message{Sender: chatlog.RoleTechnician, Timestamp: s.clock.Now(), Text: text})
	if err := s.store.UpdateConversation(ctx, c); err != nil {
		return nil, err
	}
	if assigneeID != "" && c.LinkedTicketID != nil {
		if err := s.store.AssignTicket(ctx, *c.LinkedTicketID, assigneeID); err != nil {
			return nil, err
		}
	}
	s.notifier.TechnicianReplied(c.OwnerID, text)
	return c, nil
}

// UserReplyToTechnician appends a user entry to the escalated thread. The
// question log is not touched: once escalated, user text belongs to the
// technician thread.
func (s *ConversationService) UserReplyToTechnician(ctx context.Context, id uint64, text string) (*model.Conversation, error) {
	c, err := s.pendingConversation(ctx, id, "user reply")
	if err != nil {
		return nil, err
	}
	c.TechnicianLog = chatlog.Append(c.TechnicianLog, chatlog.Message{Sender: chatlog.RoleUser, Timestamp: s.clock.Now(), Text: text})
	if err := s.store.UpdateConversation(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ResolveTicket closes the escalated thread: the optional final reply is
// appended, the ticket is marked resolved with the technician thread
// snapshotted as its solution, and the conversation becomes
// StatusResolvedByHuman. Ticket and conversation change together or not at
// all.
func (s *ConversationService) ResolveTicket(ctx context.Context, id uint64, assigneeID, finalReply string) (*model.Conversation, *model.Ticket, error) {
	c, err := s.pendingConversation(ctx, id, "resolve")
	if err != nil {
		return nil, nil, err
	}
	if c.LinkedTicketID == nil {
		return nil, nil, fmt.Errorf("conversation %d pending without linked ticket", c.ID)
	}
	t, err := s.store.GetTicket(ctx, *c.LinkedTicketID)
	if err != nil {
		return nil, nil, err
	}

	now := s.clock.Now()
	if finalReply != "" {
		c.TechnicianLog = chatlog.Append(c.TechnicianLog, chatlog.Message{Sender: chatlog.RoleTechnician, Timestamp: now, Text: finalReply})
	}
	if assigneeID != "" {
		t.AssigneeID = assigneeID
	}
	t.Status = model.TicketStatusResolved
	t.ClosedAt = &now
	t.SolutionLog = c.TechnicianLog
	if err := s.store.ResolveConversation(ctx, c, t); err != nil {
		return nil, nil, err
	}
	if finalReply != "" {
		s.notifier.TechnicianReplied(c.OwnerID, finalReply)
	}
	s.producer.ProduceConversationEvent(ctx, "ticket.resolved", s.eventPayload(c))
	return c, t, nil
}

// Get returns the conversation and its linked ticket, if any.
func (s *ConversationService) Get(ctx context.Context, id uint64) (*model.Conversation, *model.Ticket, error) {
	c, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if c.LinkedTicketID == nil {
		return c, nil, nil
	}
	t, err := s.store.GetTicket(ctx, *c.LinkedTicketID)
	if err != nil {
		return nil, nil, err
	}
	return c, t, nil
}

func (s *ConversationService) List(ctx context.Context, ownerID string) ([]model.Conversation, error) {
	return s.store.ListConversations(ctx, ownerID)
}

func (s *ConversationService) ListTickets(ctx context.Context, status model.TicketStatus, assigneeID string) ([]model.Ticket, error) {
	return s.store.ListTickets(ctx, status, assigneeID)
}

// Purge removes the conversation record and any linked ticket. This is the
// only way a conversation is ever deleted.
func (s *ConversationService) Purge(ctx context.Context, id uint64) error {
	c, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteConversation(ctx, id); err != nil {
		return err
	}
	s.producer.ProduceConversationEvent(ctx, "conversation.purged", s.eventPayload(c))
	return nil
}

func (s *ConversationService) pendingConversation(ctx context.Context, id uint64, op string) (*model.Conversation, error) {
	c, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.StatusPendingWithHuman {
		return nil, fmt.Errorf("%s on %s conversation: %w", op, c.Status, errs.ErrInvalidTransition)
	}
	return c, nil
}

// questionText flattens the question log into the ticket description.
func (s *ConversationService) questionText(c *model.Conversation) string {
	msgs := chatlog.Decode(c.QuestionLog, chatlog.RoleUser, c.UpdatedAt)
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, m.Text)
	}
	return strings.Join(parts, "\n")
}

func (s *ConversationService) eventPayload(c *model.Conversation) map[string]interface{} {
	payload := map[string]interface{}{
		"conversation_id": int64(c.ID),
		"owner_id":        c.OwnerID,
		"status":          int(c.Status),
	}
	if c.LinkedTicketID != nil {
		payload["ticket_id"] = int64(*c.LinkedTicketID)
	}
	return payload
}

func deriveTitle(text string) string {
	title := strings.TrimSpace(text)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	if len(title) > 120 {
		cut := 120
		for cut > 0 && !utf8.RuneStart(title[cut]) {
			cut--
		}
		title = title[:cut]
	}
	return title
}
