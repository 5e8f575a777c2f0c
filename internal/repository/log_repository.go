package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/jkindrix/callbridge/internal/domain"
)

// LogRepository implements domain.LogRepository using PostgreSQL.
type LogRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewLogRepository creates a new LogRepository.
func NewLogRepository(pool *pgxpool.Pool, logger *zap.Logger) *LogRepository {
	return &LogRepository{pool: pool, logger: logger}
}

// Append inserts an interaction log. The unique partial index on call_id
// absorbs duplicate writes from concurrent observers of the same call:
// the conflict resolves to a no-op, not an error.
func (r *LogRepository) Append(ctx context.Context, log *domain.InteractionLog) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	var transcriptJSON []byte
	if len(log.Transcript) > 0 {
		var err error
		transcriptJSON, err = json.Marshal(log.Transcript)
		if err != nil {
			return fmt.Errorf("failed to marshal transcript: %w", err)
		}
	}

	query := `
		INSERT INTO interaction_logs (
			id, request_id, timestamp, step_name, detail, status,
			transcript, provider_id, call_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (call_id) WHERE call_id IS NOT NULL DO NOTHING`

	tag, err := r.pool.Exec(ctx, query,
		log.ID,
		log.RequestID,
		log.Timestamp,
		log.StepName,
		log.Detail,
		log.Status,
		transcriptJSON,
		log.ProviderID,
		log.CallID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert interaction log: %w", err)
	}

	if tag.RowsAffected() == 0 && log.CallID != nil {
		r.logger.Debug("interaction log already recorded for call",
			zap.String("call_id", *log.CallID),
		)
	}
	return nil
}

// ListByRequest returns a request's logs in chronological order.
func (r *LogRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*domain.InteractionLog, error) {
	ctx, cancel := WithListQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, request_id, timestamp, step_name, detail, status,
		       transcript, provider_id, call_id
		FROM interaction_logs
		WHERE request_id = $1
		ORDER BY timestamp, id`

	rows, err := r.pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query interaction logs: %w", err)
	}
	defer rows.Close()

	var logs []*domain.InteractionLog
	for rows.Next() {
		log := &domain.InteractionLog{}
		var transcriptJSON []byte

		err := rows.Scan(
			&log.ID,
			&log.RequestID,
			&log.Timestamp,
			&log.StepName,
			&log.Detail,
			&log.Status,
			&transcriptJSON,
			&log.ProviderID,
			&log.CallID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan interaction log: %w", err)
		}

		if len(transcriptJSON) > 0 {
			if err := json.Unmarshal(transcriptJSON, &log.Transcript); err != nil {
				return nil, fmt.Errorf("failed to unmarshal transcript: %w", err)
			}
		}

		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating log rows: %w", err)
	}
	return logs, nil
}
