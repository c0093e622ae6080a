package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ivankudzin/payhooks/internal/domain/model"
)

const maxStoredPayloadBytes = 64 << 10

type WebhookEventRepo struct {
	pool *pgxpool.Pool
}

func NewWebhookEventRepo(pool *pgxpool.Pool) *WebhookEventRepo {
	return &WebhookEventRepo{pool: pool}
}

// Record stores one delivery and returns its generated id.
func (r *WebhookEventRepo) Record(ctx context.Context, event model.WebhookEvent) (string, error) {
	if r.pool == nil {
		return "", fmt.Errorf("postgres pool is nil")
	}

	id := strings.TrimSpace(event.ID)
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := event.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	if _, err := r.pool.Exec(ctx, `
INSERT INTO webhook_events (
	id,
	gateway,
	reference,
	status,
	external_reference,
	payload,
	authenticated,
	created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`,
		id,
		string(event.Gateway),
		event.Reference,
		event.Status,
		event.ExternalReference,
		storedPayload(event.Payload),
		event.Authenticated,
		createdAt,
	); err != nil {
		return "", fmt.Errorf("insert webhook event: %w", err)
	}

	return id, nil
}

func (r *WebhookEventRepo) MarkProcessed(ctx context.Context, id string, processingErr error) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("webhook event id is required")
	}

	message := ""
	if processingErr != nil {
		message = processingErr.Error()
	}

	if _, err := r.pool.Exec(ctx, `
UPDATE webhook_events
SET
	processed_at = NOW(),
	processing_error = $2
WHERE id = $1
`, id, message); err != nil {
		return fmt.Errorf("mark webhook event processed: %w", err)
	}

	return nil
}

// DeleteOlderThan drops audit rows created before cutoff.
func (r *WebhookEventRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `
DELETE FROM webhook_events
WHERE created_at < $1
`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete old webhook events: %w", err)
	}

	return tag.RowsAffected(), nil
}

// storedPayload fits a raw body into the TEXT payload column: capped, valid
// UTF-8 and free of NUL bytes. The body is not required to be JSON.
func storedPayload(body []byte) string {
	if len(body) > maxStoredPayloadBytes {
		body = body[:maxStoredPayloadBytes]
	}
	text := strings.ToValidUTF8(string(body), "\uFFFD")
	return strings.ReplaceAll(text, "\x00", "")
}
