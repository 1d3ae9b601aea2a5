package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/case-service/internal/events"
	apperrors "github.com/spec-kit/case-service/pkg/util/errorutil"
)

// Transactor runs fn in one database transaction carried by ctx.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

func clockOrDefault(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}

// invalidTextRepresentation is the SQLSTATE Postgres raises when a lookup
// key is not a valid UUID.
const invalidTextRepresentation = "22P02"

// notFound maps pgx.ErrNoRows and malformed ids to a NotFound error for
// resource and passes every other error through MapError.
func notFound(err error, resource string, details map[string]any) error {
	if errors.Is(err, pgx.ErrNoRows) || isMalformedID(err) {
		return apperrors.NewNotFound(resource, details)
	}
	return apperrors.MapError(err)
}

func isMalformedID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == invalidTextRepresentation
}

func publishEvent(ctx context.Context, dispatcher events.Dispatcher, event events.Event, now time.Time) error {
	if dispatcher == nil {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}
	return dispatcher.Publish(ctx, event)
}
