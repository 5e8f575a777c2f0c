// Package repository implements data persistence using PostgreSQL.
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

	"github.com/jkindrix/callbridge/internal/domain"
	apperrors "github.com/jkindrix/callbridge/internal/errors"
)

// RequestRepository implements domain.RequestRepository using PostgreSQL.
type RequestRepository struct {
	pool *pgxpool.Pool
}

// NewRequestRepository creates a new RequestRepository.
func NewRequestRepository(pool *pgxpool.Pool) *RequestRepository {
	return &RequestRepository{pool: pool}
}

const requestColumns = `
	id, title, description, criteria, location, user_phone,
	preferred_contact, urgency, status, final_outcome, recommendations,
	notification_sent_at, created_at, updated_at`

// Create inserts a new service request.
func (r *RequestRepository) Create(ctx context.Context, req *domain.ServiceRequest) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	recsJSON, err := marshalRecommendations(req.Recommendations)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO service_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = r.pool.Exec(ctx, query,
		req.ID,
		req.Title,
		req.Description,
		req.Criteria,
		req.Location,
		req.UserPhone,
		req.PreferredContact,
		req.Urgency,
		req.Status,
		req.FinalOutcome,
		recsJSON,
		req.NotificationSentAt,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert service request: %w", err)
	}
	return nil
}

// GetByID retrieves a service request. Unknown persisted status values
// are normalized to the initial state.
func (r *RequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ServiceRequest, error) {
	ctx, cancel := WithQueryTimeout(ctx)
	defer cancel()

	query := `SELECT ` + requestColumns + ` FROM service_requests WHERE id = $1`

	req := &domain.ServiceRequest{}
	var rawStatus string
	var recsJSON []byte

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&req.ID,
		&req.Title,
		&req.Description,
		&req.Criteria,
		&req.Location,
		&req.UserPhone,
		&req.PreferredContact,
		&req.Urgency,
		&rawStatus,
		&req.FinalOutcome,
		&recsJSON,
		&req.NotificationSentAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan service request: %w", err)
	}

	req.Status = domain.NormalizeStatus(rawStatus)

	if len(recsJSON) > 0 {
		req.Recommendations = &domain.RecommendationSet{}
		if err := json.Unmarshal(recsJSON, req.Recommendations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal recommendations: %w", err)
		}
	}

	return req, nil
}

// UpdateStatus persists a status transition, rejecting edges the state
// machine forbids. The row is locked for the duration of the check so
// concurrent writers cannot interleave a backward edge.
func (r *RequestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.RequestStatus) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := lockRequestStatus(ctx, tx, id)
		if err != nil {
			return err
		}

		if !current.CanTransition(status) {
			return apperrors.InvalidTransition(string(current), string(status))
		}

		_, err = tx.Exec(ctx,
			`UPDATE service_requests SET status = $2, updated_at = $3 WHERE id = $1`,
			id, status, time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to update request status: %w", err)
		}
		return nil
	})
}

// SaveRecommendations stores the recommendation blob atomically with the
// RECOMMENDED status.
func (r *RequestRepository) SaveRecommendations(ctx context.Context, id uuid.UUID, recs *domain.RecommendationSet) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	recsJSON, err := marshalRecommendations(recs)
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := lockRequestStatus(ctx, tx, id)
		if err != nil {
			return err
		}

		if !current.CanTransition(domain.RequestStatusRecommended) {
			return apperrors.InvalidTransition(string(current), string(domain.RequestStatusRecommended))
		}

		_, err = tx.Exec(ctx,
			`UPDATE service_requests
			 SET recommendations = $2, status = $3, updated_at = $4
			 WHERE id = $1`,
			id, recsJSON, domain.RequestStatusRecommended, time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to save recommendations: %w", err)
		}
		return nil
	})
}

// SetFinalOutcome records the user-facing outcome text.
func (r *RequestRepository) SetFinalOutcome(ctx context.Context, id uuid.UUID, outcome string) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx,
		`UPDATE service_requests SET final_outcome = $2, updated_at = $3 WHERE id = $1`,
		id, outcome, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to set final outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func lockRequestStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID) (domain.RequestStatus, error) {
	var rawStatus string
	err := tx.QueryRow(ctx,
		`SELECT status FROM service_requests WHERE id = $1 FOR UPDATE`, id,
	).Scan(&rawStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to lock request row: %w", err)
	}
	return domain.NormalizeStatus(rawStatus), nil
}

func marshalRecommendations(recs *domain.RecommendationSet) ([]byte, error) {
	if recs == nil {
		return nil, nil
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal recommendations: %w", err)
	}
	return data, nil
}
