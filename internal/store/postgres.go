package store

import (
	"context"
	"errors"

	"github.com/psds-microservice/helpdesk-service/internal/errs"
	"github.com/psds-microservice/helpdesk-service/internal/model"
	"gorm.io/gorm"
)

// Postgres implements Store on top of gorm.
type Postgres struct {
	db *gorm.DB
}

func NewPostgres(db *gorm.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) CreateConversation(ctx context.Context, c *model.Conversation) error {
	c.Version = 1
	return s.db.WithContext(ctx).Create(c).Error
}

func (s *Postgres) GetConversation(ctx context.Context, id uint64) (*model.Conversation, error) {
	var c model.Conversation
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrConversationNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Postgres) ListConversations(ctx context.Context, ownerID string) ([]model.Conversation, error) {
	var items []model.Conversation
	tx := s.db.WithContext(ctx).Model(&model.Conversation{})
	if ownerID != "" {
		tx = tx.Where("owner_id = ?", ownerID)
	}
	if err := tx.Order("updated_at DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// conversationUpdate carries every mutable column; partial update maps would
// reintroduce the half-applied states the version check exists to prevent.
func conversationUpdate(c *model.Conversation) map[string]interface{} {
	return map[string]interface{}{
		"title":            c.Title,
		"question_log":     c.QuestionLog,
		"answer_log":       c.AnswerLog,
		"technician_log":   c.TechnicianLog,
		"status":           c.Status,
		"linked_ticket_id": c.LinkedTicketID,
		"version":          c.Version + 1,
	}
}

func (s *Postgres) updateConversationTx(tx *gorm.DB, c *model.Conversation) error {
	res := tx.Model(&model.Conversation{}).
		Where("id = ? AND version = ?", c.ID, c.Version).
		Updates(conversationUpdate(c))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var exists int64
		if err := tx.Model(&model.Conversation{}).Where("id = ?", c.ID).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return errs.ErrConversationNotFound
		}
		return errs.ErrWriteConflict
	}
	c.Version++
	return nil
}

func (s *Postgres) UpdateConversation(ctx context.Context, c *model.Conversation) error {
	return s.updateConversationTx(s.db.WithContext(ctx), c)
}

func (s *Postgres) DeleteConversation(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&model.Conversation{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errs.ErrConversationNotFound
		}
		return tx.Where("conversation_id = ?", id).Delete(&model.Ticket{}).Error
	})
}

func (s *Postgres) GetTicket(ctx context.Context, id uint64) (*model.Ticket, error) {
	var t model.Ticket
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *Postgres) ListTickets(ctx context.Context, status model.TicketStatus, assigneeID string) ([]model.Ticket, error) {
	var items []model.Ticket
	tx := s.db.WithContext(ctx).Model(&model.Ticket{})
	if status != "" {
		tx = tx.Where("status = ?", status)
	}
	if assigneeID != "" {
		tx = tx.Where("assignee_id = ?", assigneeID)
	}
	if err := tx.Order("opened_at ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Postgres) AssignTicket(ctx context.Context, id uint64, assigneeID string) error {
	res := s.db.WithContext(ctx).Model(&model.Ticket{}).Where("id = ?", id).Update("assignee_id", assigneeID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrTicketNotFound
	}
	return nil
}

func (s *Postgres) EscalateConversation(ctx context.Context, c *model.Conversation, t *model.Ticket) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(t).Error; err != nil {
			return err
		}
		c.LinkedTicketID = &t.ID
		c.Status = model.StatusPendingWithHuman
		return s.updateConversationTx(tx, c)
	})
}

func (s *Postgres) ResolveConversation(ctx context.Context, c *model.Conversation, t *model.Ticket) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c.Status = model.StatusResolvedByHuman
		if err := s.updateConversationTx(tx, c); err != nil {
			return err
		}
		res := tx.Model(&model.Ticket{}).Where("id = ?", t.ID).Updates(map[string]interface{}{
			"status":       t.Status,
			"assignee_id":  t.AssigneeID,
			"closed_at":    t.ClosedAt,
			"solution_log": t.SolutionLog,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errs.ErrTicketNotFound
		}
		return nil
	})
}
