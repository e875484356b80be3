// Package reconciler maintains a viewer's message list for one conversation.
//
// The store keeps the exchange as three whole-text logs, so a viewer cannot
// fetch "messages since X": every poll re-fetches and re-decodes everything.
// The reconciler turns that wholesale re-decode into a stable view: already
// displayed messages are never removed, reordered, or duplicated, and new
// ones are merge-inserted by timestamp. Indexes into the view therefore stay
// valid across ticks, which is what keeps a viewer's scroll position and
// selection intact.
package reconciler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/psds-microservice/helpdesk-service/internal/chatlog"
	"github.com/psds-microservice/helpdesk-service/internal/model"
	"github.com/psds-microservice/helpdesk-service/internal/store"
)

// Reference polling cadences: end users watch their own conversation
// closely, technicians watch a whole queue.
const (
	UserPollInterval       = 5 * time.Second
	TechnicianPollInterval = 10 * time.Second
)

// dedupTolerance is the window within which two messages with the same role
// and text are considered one displayed message even if their timestamps
// differ. Legacy single-message blobs take their timestamp from the
// conversation record rather than the entry header, so the same message can
// decode with slightly different times on different ticks.
const dedupTolerance = 2 * time.Minute

// Fetcher retrieves the current conversation record. The fetch is the only
// blocking operation per tick.
type Fetcher interface {
	FetchConversation(ctx context.Context) (*model.Conversation, error)
}

// StoreFetcher reads one conversation straight from a Store.
type StoreFetcher struct {
	Store store.Store
	ID    uint64
}

func (f StoreFetcher) FetchConversation(ctx context.Context) (*model.Conversation, error) {
	return f.Store.GetConversation(ctx, f.ID)
}

// FetchFunc adapts a function to Fetcher.
type FetchFunc func(ctx context.Context) (*model.Conversation, error)

func (f FetchFunc) FetchConversation(ctx context.Context) (*model.Conversation, error) {
	return f(ctx)
}

// Reconciler polls a conversation and folds every fetch into an append-only,
// timestamp-ordered message view. Safe for concurrent use: Run owns the
// merging, any goroutine may call Messages.
type Reconciler struct {
	fetcher  Fetcher
	interval time.Duration

	// OnAppend, when set, observes every message as it enters the view (in
	// display-insertion order). Set it before Run starts.
	OnAppend func(chatlog.Message)

	mu        sync.Mutex
	displayed []chatlog.Message
}

func New(fetcher Fetcher, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = UserPollInterval
	}
	return &Reconciler{fetcher: fetcher, interval: interval}
}

// Run polls until ctx is cancelled. The first sync happens immediately, then
// once per interval. A failed fetch skips the tick silently; background
// polling never surfaces transport errors, the next tick retries. An
// in-flight fetch at cancellation time completes but its result is
// discarded.
func (r *Reconciler) Run(ctx context.Context) {
	r.tick(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reconciler) tick(ctx context.Context) {
	c, err := r.fetcher.FetchConversation(ctx)
	if err != nil {
		log.Printf("reconciler: fetch skipped: %v", err)
		return
	}
	if ctx.Err() != nil {
		// Stopped while the fetch was in flight; drop the result.
		return
	}
	r.Sync(c)
}

// Sync merges one fetched record into the view. Exposed separately from Run
// so callers with their own scheduling (or tests) can drive the reconciler
// directly. Syncing the same record twice is a no-op.
func (r *Reconciler) Sync(c *model.Conversation) {
	candidates := decodeAll(c)
	var appended []chatlog.Message
	r.mu.Lock()
	for _, m := range candidates {
		if r.isDisplayedLocked(m) {
			continue
		}
		r.insertLocked(m)
		appended = append(appended, m)
	}
	r.mu.Unlock()
	if r.OnAppend != nil {
		for _, m := range appended {
			r.OnAppend(m)
		}
	}
}

// decodeAll builds the candidate list from all three logs. Legacy untagged
// blobs borrow the conversation's last update time and the role implied by
// the log they live in.
func decodeAll(c *model.Conversation) []chatlog.Message {
	fallback := c.UpdatedAt
	msgs := chatlog.Decode(c.QuestionLog, chatlog.RoleUser, fallback)
	msgs = append(msgs, chatlog.Decode(c.AnswerLog, chatlog.RoleResponder, fallback)...)
	msgs = append(msgs, chatlog.Decode(c.TechnicianLog, chatlog.RoleTechnician, fallback)...)
	return msgs
}

// isDisplayedLocked applies the dedup rule: exact (role, minute, text) match,
// or same role and text with timestamps within the tolerance window.
func (r *Reconciler) isDisplayedLocked(m chatlog.Message) bool {
	key := m.Timestamp.Truncate(time.Minute)
	for _, d := range r.displayed {
		if d.Sender != m.Sender || d.Text != m.Text {
			continue
		}
		if d.Timestamp.Truncate(time.Minute).Equal(key) {
			return true
		}
		diff := d.Timestamp.Sub(m.Timestamp)
		if diff < 0 {
			diff = -diff
		}
		if diff <= dedupTolerance {
			return true
		}
	}
	return false
}

// insertLocked is a stable merge insert: scan from the end backward for the
// first displayed entry at or before the candidate's timestamp and insert
// right after it. Messages sharing a minute land in arrival order, and
// entries already on screen never move.
func (r *Reconciler) insertLocked(m chatlog.Message) {
	i := len(r.displayed)
	for i > 0 && r.displayed[i-1].Timestamp.After(m.Timestamp) {
		i--
	}
	r.displayed = append(r.displayed, chatlog.Message{})
	copy(r.displayed[i+1:], r.displayed[i:])
	r.displayed[i] = m
}

// Messages returns a snapshot of the view in display order.
func (r *Reconciler) Messages() []chatlog.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]chatlog.Message, len(r.displayed))
	copy(out, r.displayed)
	return out
}
