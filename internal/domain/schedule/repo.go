package schedule

import (
	"context"
	"time"
)

type EntryRepository interface {
	Create(ctx context.Context, e *Entry) error
	// ListForDay returns the doctor's entries on day, ordered by time.
	ListForDay(ctx context.Context, doctorEmail string, day time.Time) ([]*Entry, error)
}
