package repo

import (
	"context"
	"errors"

	"github.com/hispgo/program-messaging/internal/message"
)

// ErrNotFound is returned by point lookups when no row matches. Zero rows
// is an absence, not a fault; callers branch on it with errors.Is.
var ErrNotFound = errors.New("not found")

type MessageRepository interface {
	// Save inserts the message and returns it with the server-assigned id
	// and timestamps filled in.
	Save(ctx context.Context, m message.ProgramMessage) (message.ProgramMessage, error)
	// Update rewrites text and subject only. Status transitions happen
	// through dispatch, not here.
	Update(ctx context.Context, uid, text, subject string) error
	// MarkStatus sets the terminal status after dispatch.
	MarkStatus(ctx context.Context, id int64, status message.Status) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (message.ProgramMessage, error)
	GetByUID(ctx context.Context, uid string) (message.ProgramMessage, error)
	// Query returns one page of messages matching params, newest first.
	Query(ctx context.Context, params message.QueryParams) ([]message.ProgramMessage, error)
	// ListOutbound returns stored messages still awaiting dispatch, oldest
	// first, for the scheduler's re-dispatch tick.
	ListOutbound(ctx context.Context, limit int) ([]message.ProgramMessage, error)
}
