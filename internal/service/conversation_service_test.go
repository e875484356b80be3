package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
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

func newTestService(t *testing.T, respond responder.Func) (*ConversationService, *store.Memory, *clock.Fake) {
	t.Helper()
	if respond == nil {
		respond = func(_ context.Context, q string) (string, error) {
			return "auto: " + q, nil
		}
	}
	st := store.NewMemory()
	clk := clock.NewFake(time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC))
	svc := NewConversationService(st, respond, kafka.NewProducer(nil, ""), notify.NewClient(""), clk)
	return svc, st, clk
}

func askFirst(t *testing.T, svc *ConversationService, text string) *model.Conversation {
	t.Helper()
	c, err := svc.AskQuestion(context.Background(), AskQuestionRequest{OwnerID: "u1", Text: text})
	if err != nil {
		t.Fatalf("AskQuestion: %v", err)
	}
	return c
}

func TestAskQuestionStartsConversation(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	c := askFirst(t, svc, "printer not working")

	if c.Status != model.StatusInProgress {
		t.Fatalf("status = %v, want in_progress", c.Status)
	}
	if c.Title != "printer not working" {
		t.Fatalf("title = %q", c.Title)
	}
	q := chatlog.Decode(c.QuestionLog, chatlog.RoleUser, time.Time{})
	a := chatlog.Decode(c.AnswerLog, chatlog.RoleResponder, time.Time{})
	if len(q) != 1 || q[0].Text != "printer not working" || q[0].Sender != chatlog.RoleUser {
		t.Fatalf("question log: %+v", q)
	}
	if len(a) != 1 || a[0].Text != "auto: printer not working" || a[0].Sender != chatlog.RoleResponder {
		t.Fatalf("answer log: %+v", a)
	}
}

func TestFollowUpAppendsWithoutRewriting(t *testing.T) {
	svc, _, clk := newTestService(t, nil)
	c := askFirst(t, svc, "printer not working")
	firstLog := c.QuestionLog

	clk.Advance(time.Minute)
	c2, err := svc.AskQuestion(context.Background(), AskQuestionRequest{OwnerID: "u1", ConversationID: c.ID, Text: "still broken"})
	if err != nil {
		t.Fatalf("follow-up: %v", err)
	}
	if !strings.HasPrefix(c2.QuestionLog, firstLog) {
		t.Fatalf("question log rewritten:\nold %q\nnew %q", firstLog, c2.QuestionLog)
	}
	if len(chatlog.Decode(c2.AnswerLog, chatlog.RoleResponder, time.Time{})) != 2 {
		t.Fatalf("answer log: %q", c2.AnswerLog)
	}
}

func TestUsefulFeedbackConcludes(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	c := askFirst(t, svc, "printer not working")

	c2, ticket, err := svc.GiveFeedback(context.Background(), c.ID, true)
	if err != nil {
		t.Fatalf("GiveFeedback: %v", err)
	}
	if c2.Status != model.StatusConcluded || ticket != nil {
		t.Fatalf("status = %v, ticket = %+v", c2.Status, ticket)
	}
}

func TestNotUsefulFeedbackEscalates(t *testing.T) {
	svc, st, _ := newTestService(t, nil)
	c := askFirst(t, svc, "printer not working")

	c2, ticket, err := svc.GiveFeedback(context.Background(), c.ID, false)
	if err != nil {
		t.Fatalf("GiveFeedback: %v", err)
	}
	if c2.Status != model.StatusPendingWithHuman {
		t.Fatalf("status = %v, want pending_with_human", c2.Status)
	}
	if ticket == nil || ticket.Description != "printer not working" {
		t.Fatalf("ticket = %+v", ticket)
	}
	if c2.LinkedTicketID == nil || *c2.LinkedTicketID != ticket.ID {
		t.Fatalf("linked ticket id = %v, ticket id = %d", c2.LinkedTicketID, ticket.ID)
	}
	stored, err := st.GetTicket(context.Background(), ticket.ID)
	if err != nil || stored.Status != model.TicketStatusOpen {
		t.Fatalf("stored ticket: %+v, err %v", stored, err)
	}
}

func TestNoResponderCallAfterEscalation(t *testing.T) {
	calls := 0
	svc, _, _ := newTestService(t, func(_ context.Context, q string) (string, error) {
		calls++
		return "auto", nil
	})
	c := askFirst(t, svc, "printer not working")
	if _, _, err := svc.GiveFeedback(context.Background(), c.ID, false); err != nil {
		t.Fatalf("escalate: %v", err)
	}

	_, err := svc.AskQuestion(context.Background(), AskQuestionRequest{OwnerID: "u1", ConversationID: c.ID, Text: "hello?"})
	if !errors.Is(err, errs.ErrInvalidTransition) {
		t.Fatalf("ask on pending: err = %v, want ErrInvalidTransition", err)
	}
	if _, err := svc.UserReplyToTechnician(context.Background(), c.ID, "any update?"); err != nil {
		t.Fatalf("user reply: %v", err)
	}
	if calls != 1 {
		t.Fatalf("responder called %d times, want 1", calls)
	}
}

func TestUserReplyGoesToTechnicianLog(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	c := askFirst(t, svc, "printer not working")
	if _, _, err := svc.GiveFeedback(context.Background(), c.ID, false); err != nil {
		t.Fatalf("escalate: %v", err)
	}
	questionLog := c.QuestionLog

	c2, err := svc.UserReplyToTechnician(context.Background(), c.ID, "it is also making noises")
	if err != nil {
		t.Fatalf("user reply: %v", err)
	}
	if c2.QuestionLog != questionLog {
		t.Fatalf("question log changed after escalation")
	}
	msgs := chatlog.Decode(c2.TechnicianLog, chatlog.RoleTechnician, time.Time{})
	if len(msgs) != 1 || msgs[0].Sender != chatlog.RoleUser || msgs[0].Text != "it is also making noises" {
		t.Fatalf("technician log: %+v", msgs)
	}
}

func TestTechnicianRepliesInSendOrder(t *testing.T) {
	svc, _, clk := newTestService(t, nil)
	c := askFirst(t, svc, "printer not working")
	if _, _, err := svc.GiveFeedback(context.Background(), c.ID, false); err != nil {
		t.Fatalf("escalate: %v", err)
	}

	if _, err := svc.TechnicianReply(context.Background(), c.ID, "tech-7", "restart the spooler"); err != nil {
		t.Fatalf("reply 1: %v", err)
	}
	clk.Advance(time.Minute)
	c2, err := svc.TechnicianReply(context.Background(), c.ID, "", "then reinstall the driver")
	if err != nil {
		t.Fatalf("reply 2: %v", err)
	}

	msgs := chatlog.Decode(c2.TechnicianLog, chatlog.RoleTechnician, time.Time{})
	if len(msgs) != 2 {
		t.Fatalf("technician log: %+v", msgs)
	}
	if msgs[0].Text != "restart the spooler" || msgs[1].Text != "then reinstall the driver" {
		t.Fatalf("wrong order: %+v", msgs)
	}
	ticket, err := svc.store.GetTicket(context.Background(), *c2.LinkedTicketID)
	if err != nil || ticket.AssigneeID != "tech-7" {
		t.Fatalf("assignee = %+v, err %v", ticket, err)
	}
}

func TestResolveClosesPairTogether(t *testing.T) {
	svc, st, clk := newTestService(t, nil)
	c := askFirst(t, svc, "printer not working")
	if _, _, err := svc.GiveFeedback(context.Background(), c.ID, false); err != nil {
		t.Fatalf("escalate: %v", err)
	}
	clk.Advance(5 * time.Minute)

	c2, ticket, err := svc.ResolveTicket(context.Background(), c.ID, "tech-7", "replaced the fuser unit")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if c2.Status != model.StatusResolvedByHuman {
		t.Fatalf("conversation status = %v", c2.Status)
	}
	if ticket.Status != model.TicketStatusResolved || ticket.ClosedAt == nil {
		t.Fatalf("ticket: %+v", ticket)
	}
	if ticket.SolutionLog != c2.TechnicianLog || ticket.SolutionLog == "" {
		t.Fatalf("solution log not snapshotted: %q", ticket.SolutionLog)
	}
	stored, _ := st.GetConversation(context.Background(), c.ID)
	if stored.Status != model.StatusResolvedByHuman {
		t.Fatalf("stored status = %v", stored.Status)
	}
}

func TestAskAfterTerminalStartsNewConversation(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	c := askFirst(t, svc, "printer not working")
	if _, _, err := svc.GiveFeedback(context.Background(), c.ID, true); err != nil {
		t.Fatalf("conclude: %v", err)
	}

	fresh, err := svc.AskQuestion(context.Background(), AskQuestionRequest{OwnerID: "u1", ConversationID: c.ID, Text: "new problem"})
	if err != nil {
		t.Fatalf("ask after concluded: %v", err)
	}
	if fresh.ID == c.ID {
		t.Fatalf("expected a new conversation record, got id %d reused", c.ID)
	}
	if fresh.Status != model.StatusInProgress {
		t.Fatalf("status = %v", fresh.Status)
	}
}

func TestAskAfterTerminalWithContinueReusesID(t *testing.T) {
	svc, _, clk := newTestService(t, nil)
	c := askFirst(t, svc, "printer not working")
	if _, _, err := svc.GiveFeedback(context.Background(), c.ID, true); err != nil {
		t.Fatalf("conclude: %v", err)
	}

	clk.Advance(time.Hour)
	cont, err := svc.AskQuestion(context.Background(), AskQuestionRequest{OwnerID: "u1", ConversationID: c.ID, Text: "it broke again", Continue: true})
	if err != nil {
		t.Fatalf("continue: %v", err)
	}
	if cont.ID != c.ID {
		t.Fatalf("id = %d, want %d", cont.ID, c.ID)
	}
	if cont.Status != model.StatusInProgress {
		t.Fatalf("status = %v", cont.Status)
	}
	if !strings.HasPrefix(cont.QuestionLog, c.QuestionLog) {
		t.Fatalf("prior log entries rewritten")
	}
}

func TestInvalidTransitions(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	inProgress := askFirst(t, svc, "printer not working")
	concluded := askFirst(t, svc, "other problem")
	if _, _, err := svc.GiveFeedback(context.Background(), concluded.ID, true); err != nil {
		t.Fatalf("conclude: %v", err)
	}

	ctx := context.Background()
	cases := []struct {
		name string
		call func() error
	}{
		{"technician reply in progress", func() error {
			_, err := svc.TechnicianReply(ctx, inProgress.ID, "", "hi")
			return err
		}},
		{"technician reply concluded", func() error {
			_, err := svc.TechnicianReply(ctx, concluded.ID, "", "hi")
			return err
		}},
		{"user reply in progress", func() error {
			_, err := svc.UserReplyToTechnician(ctx, inProgress.ID, "hi")
			return err
		}},
		{"resolve in progress", func() error {
			_, _, err := svc.ResolveTicket(ctx, inProgress.ID, "", "")
			return err
		}},
		{"feedback on concluded", func() error {
			_, _, err := svc.GiveFeedback(ctx, concluded.ID, false)
			return err
		}},
	}
	for _, tc := range cases {
		if err := tc.call(); !errors.Is(err, errs.ErrInvalidTransition) {
			t.Errorf("%s: err = %v, want ErrInvalidTransition", tc.name, err)
		}
	}
}

func TestResponderFailureSurfaces(t *testing.T) {
	svc, _, _ := newTestService(t, func(_ context.Context, _ string) (string, error) {
		return "", errors.New("upstream timeout")
	})
	_, err := svc.AskQuestion(context.Background(), AskQuestionRequest{OwnerID: "u1", Text: "anyone there?"})
	if err == nil || !strings.Contains(err.Error(), "responder") {
		t.Fatalf("err = %v, want responder failure", err)
	}
}

func TestWriteConflictSurfaces(t *testing.T) {
	svc, st, _ := newTestService(t, nil)
	c := askFirst(t, svc, "printer not working")

	// A concurrent writer bumps the version between our read and write.
	other, _ := st.GetConversation(context.Background(), c.ID)
	if err := st.UpdateConversation(context.Background(), other); err != nil {
		t.Fatalf("concurrent update: %v", err)
	}

	stale, _ := st.GetConversation(context.Background(), c.ID)
	stale.Version-- // simulate the read that lost the race
	err := st.UpdateConversation(context.Background(), stale)
	if !errors.Is(err, errs.ErrWriteConflict) {
		t.Fatalf("err = %v, want ErrWriteConflict", err)
	}
}

func TestDeriveTitleKeepsRunesWhole(t *testing.T) {
	long := "п" + strings.Repeat("€", 50) // byte length 151, no 120-byte rune boundary
	title := deriveTitle(long)
	if !utf8.ValidString(title) {
		t.Fatalf("title is not valid UTF-8: %q", title)
	}
	if len(title) > 120 {
		t.Fatalf("title too long: %d bytes", len(title))
	}
	if !strings.HasPrefix(long, title) {
		t.Fatalf("title %q is not a prefix of the question", title)
	}

	short := "printer\nnot working"
	if got := deriveTitle(short); got != "printer" {
		t.Fatalf("title = %q, want first line", got)
	}
}

func TestPurgeRemovesConversationAndTicket(t *testing.T) {
	svc, st, _ := newTestService(t, nil)
	c := askFirst(t, svc, "printer not working")
	_, ticket, err := svc.GiveFeedback(context.Background(), c.ID, false)
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}

	if err := svc.Purge(context.Background(), c.ID); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, err := st.GetConversation(context.Background(), c.ID); !errors.Is(err, errs.ErrConversationNotFound) {
		t.Fatalf("conversation still present: %v", err)
	}
	if _, err := st.GetTicket(context.Background(), ticket.ID); !errors.Is(err, errs.ErrTicketNotFound) {
		t.Fatalf("ticket still present: %v", err)
	}
}
