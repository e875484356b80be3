package errs

import "errors"

var (
	// ErrConversationNotFound — conversation id does not exist (or was purged).
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrTicketNotFound — ticket id does not exist.
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrInvalidTransition — the event is not applicable to the conversation's
	// current status (e.g. technician reply on a concluded conversation).
	ErrInvalidTransition = errors.New("not applicable in current status")

	// ErrWriteConflict — a concurrent writer updated the conversation between
	// our read and our compare-and-swap write. The caller should re-read and
	// retry; swallowing it would silently lose an append.
	ErrWriteConflict = errors.New("conversation was modified concurrently")
)
