package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/jkindrix/callbridge/internal/database"
	"github.com/jkindrix/callbridge/internal/domain"
)

// ProviderRepository implements domain.ProviderRepository using PostgreSQL.
type ProviderRepository struct {
	pool   *pgxpool.Pool
	tx     *database.TxManager
	logger *zap.Logger
}

// NewProviderRepository creates a new ProviderRepository.
func NewProviderRepository(pool *pgxpool.Pool, logger *zap.Logger) *ProviderRepository {
	return &ProviderRepository{
		pool:   pool,
		tx:     database.NewTxManager(pool, logger),
		logger: logger,
	}
}

const providerColumns = `
	id, request_id, name, phone, rating, review_count, address, place_id,
	distance_miles, hours, is_open_now,
	call_status, call_result, call_transcript, call_summary,
	call_duration_minutes, call_cost, call_method, call_id, called_at,
	booking_confirmed, booking_date, booking_time, confirmation_number,
	created_at, updated_at`

// CreateBatch inserts discovered providers for a request.
func (r *ProviderRepository) CreateBatch(ctx context.Context, providers []*domain.Provider) error {
	if len(providers) == 0 {
		return nil
	}

	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	return r.tx.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		query := `
			INSERT INTO providers (
				id, request_id, name, phone, rating, review_count, address,
				place_id, distance_miles, hours, is_open_now, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

		for _, p := range providers {
			_, err := tx.Exec(ctx, query,
				p.ID, p.RequestID, p.Name, p.Phone, p.Rating, p.ReviewCount,
				p.Address, p.PlaceID, p.DistanceMiles, p.Hours, p.IsOpenNow,
				p.CreatedAt, p.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert provider %s: %w", p.Name, err)
			}
		}
		return nil
	})
}

// GetByID retrieves a provider.
func (r *ProviderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Provider, error) {
	ctx, cancel := WithQueryTimeout(ctx)
	defer cancel()

	query := `SELECT ` + providerColumns + ` FROM providers WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)
	return scanProvider(row)
}

// ListByRequest retrieves all providers for a request in creation order.
func (r *ProviderRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*domain.Provider, error) {
	ctx, cancel := WithListQueryTimeout(ctx)
	defer cancel()

	query := `SELECT ` + providerColumns + `
		FROM providers WHERE request_id = $1 ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query providers: %w", err)
	}
	defer rows.Close()

	var providers []*domain.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating provider rows: %w", err)
	}
	return providers, nil
}

// UpsertProviderCall writes the call_* fields for a provider. Idempotent:
// when the stored row already reflects the same call ID the write matches
// zero rows and the second observer's attempt is a no-op.
func (r *ProviderRepository) UpsertProviderCall(ctx context.Context, providerID uuid.UUID, result *domain.CallResult) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	var resultJSON []byte
	if result.Analysis.StructuredData != nil {
		var err error
		resultJSON, err = json.Marshal(result.Analysis.StructuredData)
		if err != nil {
			return fmt.Errorf("failed to marshal structured data: %w", err)
		}
	}

	var summary *string
	if result.Analysis.Summary != "" {
		summary = &result.Analysis.Summary
	}
	var transcript *string
	if result.Transcript != "" {
		transcript = &result.Transcript
	}
	var duration *float64
	if result.DurationMinutes > 0 {
		duration = &result.DurationMinutes
	}

	query := `
		UPDATE providers SET
			call_status = $2,
			call_result = $3,
			call_transcript = $4,
			call_summary = $5,
			call_duration_minutes = $6,
			call_cost = $7,
			call_method = $8,
			call_id = $9,
			called_at = $10,
			updated_at = $11
		WHERE id = $1 AND (call_id IS NULL OR call_id <> $9)`

	now := time.Now().UTC()
	tag, err := r.pool.Exec(ctx, query,
		providerID,
		result.Status,
		resultJSON,
		transcript,
		summary,
		duration,
		result.Cost,
		result.CallMethod,
		result.CallID,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert provider call: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Either an unknown provider or a duplicate observer; both are
		// fine, the first write stands.
		r.logger.Debug("provider call upsert was a no-op",
			zap.String("provider_id", providerID.String()),
			zap.String("call_id", result.CallID),
		)
	}
	return nil
}

// UpdateBooking records the parsed booking confirmation.
func (r *ProviderRepository) UpdateBooking(ctx context.Context, providerID uuid.UUID, booking *domain.BookingDetails) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx,
		`UPDATE providers SET
			booking_confirmed = $2,
			booking_date = $3,
			booking_time = $4,
			confirmation_number = $5,
			updated_at = $6
		WHERE id = $1`,
		providerID,
		booking.Confirmed,
		booking.Date,
		booking.Time,
		booking.ConfirmationNumber,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanProvider(row pgx.Row) (*domain.Provider, error) {
	p := &domain.Provider{}
	var resultJSON []byte
	var rawCallStatus, rawCallMethod *string

	err := row.Scan(
		&p.ID, &p.RequestID, &p.Name, &p.Phone, &p.Rating, &p.ReviewCount,
		&p.Address, &p.PlaceID, &p.DistanceMiles, &p.Hours, &p.IsOpenNow,
		&rawCallStatus, &resultJSON, &p.CallTranscript, &p.CallSummary,
		&p.CallDurationMinutes, &p.CallCost, &rawCallMethod, &p.CallID, &p.CalledAt,
		&p.BookingConfirmed, &p.BookingDate, &p.BookingTime, &p.ConfirmationNumber,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan provider: %w", err)
	}

	if rawCallStatus != nil {
		p.CallStatus = domain.CallStatus(*rawCallStatus)
	}
	if rawCallMethod != nil {
		p.CallMethod = domain.CallMethod(*rawCallMethod)
	}
	if len(resultJSON) > 0 {
		p.CallResult = &domain.StructuredCallData{}
		if err := json.Unmarshal(resultJSON, p.CallResult); err != nil {
			return nil, fmt.Errorf("failed to unmarshal call result: %w", err)
		}
	}

	return p, nil
}
