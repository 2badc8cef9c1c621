package waitingroom

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// InsertWithNextPosition assigns the next queue position for the
	// provider and inserts the entry in one statement, so concurrent
	// enqueues never share a position.
	InsertWithNextPosition(ctx context.Context, e *WaitingQueueEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*WaitingQueueEntry, error)
	// UpdateDeviceCheck persists the device flags, completion bit and
	// status of the entry.
	UpdateDeviceCheck(ctx context.Context, e *WaitingQueueEntry) error
	// CallNext atomically claims the lowest-position waiting or ready
	// entry for the provider, marks it called and returns it. Returns nil
	// when the queue is empty.
	CallNext(ctx context.Context, providerID uuid.UUID) (*WaitingQueueEntry, error)
	ListActiveByProvider(ctx context.Context, providerID uuid.UUID) ([]*WaitingQueueEntry, error)
	// MarkJoinedBySession moves all active entries of a session to joined
	// and reports how many moved.
	MarkJoinedBySession(ctx context.Context, sessionID uuid.UUID) (int64, error)
	// SetTerminalStatus moves an active entry to left or no_show and
	// reports whether the entry was still active.
	SetTerminalStatus(ctx context.Context, id uuid.UUID, status string) (bool, error)
	// ActivePositionAhead counts active entries at or before the given
	// position, i.e. the entry's live rank in the queue.
	ActivePositionAhead(ctx context.Context, providerID uuid.UUID, position int) (int, error)
}
