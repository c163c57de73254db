package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/infrastructure/observability"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const schema = `
CREATE TABLE IF NOT EXISTS tickets (
	id              BIGSERIAL PRIMARY KEY,
	vendor_id       BIGINT      NOT NULL,
	title           TEXT        NOT NULL,
	origin          TEXT        NOT NULL,
	destination     TEXT        NOT NULL,
	transport_mode  TEXT        NOT NULL,
	unit_price      BIGINT      NOT NULL CHECK (unit_price >= 0),
	quantity        INTEGER     NOT NULL CHECK (quantity >= 0),
	departure_date  TEXT        NOT NULL,
	departure_time  TEXT        NOT NULL,
	approval_status TEXT        NOT NULL DEFAULT 'pending',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS bookings (
	id                BIGSERIAL PRIMARY KEY,
	ticket_id         BIGINT      NOT NULL,
	buyer_id          BIGINT      NOT NULL,
	vendor_id         BIGINT      NOT NULL,
	quantity          INTEGER     NOT NULL CHECK (quantity >= 1),
	total_price       BIGINT      NOT NULL CHECK (total_price >= 0),
	status            TEXT        NOT NULL,
	payment_status    TEXT        NOT NULL DEFAULT 'unpaid',
	ticket_snapshot   JSONB       NOT NULL,
	payment_intent_id TEXT,
	paid_at           TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT bookings_paid_consistency CHECK (payment_status <> 'paid' OR status = 'paid')
);
CREATE INDEX IF NOT EXISTS bookings_buyer_id_idx ON bookings (buyer_id);
CREATE INDEX IF NOT EXISTS bookings_vendor_id_idx ON bookings (vendor_id);

CREATE TABLE IF NOT EXISTS transactions (
	id           BIGSERIAL PRIMARY KEY,
	booking_id   BIGINT      NOT NULL UNIQUE REFERENCES bookings (id),
	ticket_id    BIGINT      NOT NULL,
	buyer_id     BIGINT      NOT NULL,
	charge_id    TEXT        NOT NULL UNIQUE,
	amount       BIGINT      NOT NULL,
	currency     TEXT        NOT NULL,
	ticket_title TEXT        NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS transactions_buyer_id_idx ON transactions (buyer_id);
`

// EnsureSchema creates the tables the repositories rely on.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		slog.Error("failed to create schema", "error", err)
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// instrument opens a span and returns a finisher that records the outcome
// on the span and in the repository metrics.
func instrument(ctx context.Context, tracerName, method string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, method)
	span.SetAttributes(attrs...)
	start := time.Now()
	return ctx, func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.ObserveRepository(method, start, err)
		span.End()
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return stderrors.As(err, &pqErr) && pqErr.Code == "23505"
}

func rollback(tx *sql.Tx, method string, err error) error {
	if rbErr := tx.Rollback(); rbErr != nil {
		slog.Error("rollback failed", "method", method, "error", rbErr)
		return fmt.Errorf("rollback failed: %v; original error: %w", rbErr, err)
	}
	return err
}
