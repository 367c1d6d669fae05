package webhooks

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oficinapro/backend/pkg/pg"
	"github.com/oficinapro/backend/pkg/secrets"
)

// PostgresStore implements EndpointStore and AttemptStore on top of the
// schema in Migrations.
type PostgresStore struct {
	pool   *pgxpool.Pool
	cipher *secrets.Cipher
}

type PostgresOption func(*PostgresStore)

// WithSecretCipher seals endpoint secrets at rest under a per-tenant key.
// Rows written without a cipher are still readable once one is configured.
func WithSecretCipher(c *secrets.Cipher) PostgresOption {
	return func(s *PostgresStore) {
		s.cipher = c
	}
}

func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{pool: pool}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PostgresStore) sealSecret(ep *Endpoint) (string, error) {
	if s.cipher == nil {
		return ep.Secret, nil
	}
	sealed, err := s.cipher.Seal(ep.TenantID.String(), ep.Secret)
	if err != nil {
		return "", fmt.Errorf("seal webhook secret: %w", err)
	}
	return sealed, nil
}

func (s *PostgresStore) openSecret(ep *Endpoint) error {
	if s.cipher == nil {
		return nil
	}
	plain, err := s.cipher.Open(ep.TenantID.String(), ep.Secret)
	if err != nil {
		return fmt.Errorf("open webhook secret %s: %w", ep.ID, err)
	}
	ep.Secret = plain
	return nil
}

func (s *PostgresStore) openSecrets(eps []Endpoint) error {
	for i := range eps {
		if err := s.openSecret(&eps[i]); err != nil {
			return err
		}
	}
	return nil
}

const endpointColumns = `id, tenant_id, name, description, url, secret, headers, events,
	max_attempts, timeout_ms, active, consecutive_failures, last_success_at, last_failure_at,
	created_at, updated_at`

const attemptColumns = `id, delivery_id, tenant_id, endpoint_id, event_type, entity_id, entity_type,
	url, payload, attempt_number, status, status_code, response_body, error, latency_ms,
	next_retry_at, locked_until, created_at, updated_at`

func scanEndpoint(row pgx.CollectableRow) (Endpoint, error) {
	var (
		ep        Endpoint
		timeoutMs int64
	)
	err := row.Scan(
		&ep.ID, &ep.TenantID, &ep.Name, &ep.Description, &ep.URL, &ep.Secret, &ep.Headers, &ep.Events,
		&ep.MaxAttempts, &timeoutMs, &ep.Active, &ep.ConsecutiveFailures, &ep.LastSuccessAt, &ep.LastFailureAt,
		&ep.CreatedAt, &ep.UpdatedAt,
	)
	ep.Timeout = time.Duration(timeoutMs) * time.Millisecond
	return ep, err
}

func scanAttempt(row pgx.CollectableRow) (Attempt, error) {
	var (
		a       Attempt
		payload []byte
		status  string
	)
	err := row.Scan(
		&a.ID, &a.DeliveryID, &a.TenantID, &a.EndpointID, &a.EventType, &a.EntityID, &a.EntityType,
		&a.URL, &payload, &a.AttemptNumber, &status, &a.StatusCode, &a.ResponseBody, &a.Error, &a.LatencyMs,
		&a.NextRetryAt, &a.LockedUntil, &a.CreatedAt, &a.UpdatedAt,
	)
	a.Payload = payload
	a.Status = Status(status)
	return a, err
}

func headersArg(h map[string]string) map[string]string {
	if h == nil {
		return map[string]string{}
	}
	return h
}

func eventsArg(events []string) []string {
	if events == nil {
		return []string{}
	}
	return events
}

func endpointWriteErr(err error) error {
	if pg.IsDuplicateKeyError(err) && pg.ConstraintName(err) == "webhook_endpoints_tenant_url_key" {
		return ErrDuplicateURL
	}
	return err
}

func (s *PostgresStore) CreateEndpoint(ctx context.Context, ep *Endpoint) error {
	secret, err := s.sealSecret(ep)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO webhook_endpoints (`+endpointColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		ep.ID, ep.TenantID, ep.Name, ep.Description, ep.URL, secret, headersArg(ep.Headers), eventsArg(ep.Events),
		ep.MaxAttempts, ep.Timeout.Milliseconds(), ep.Active, ep.ConsecutiveFailures, ep.LastSuccessAt, ep.LastFailureAt,
		ep.CreatedAt, ep.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create webhook endpoint: %w", endpointWriteErr(err))
	}
	return nil
}

func (s *PostgresStore) UpdateEndpoint(ctx context.Context, ep *Endpoint) error {
	secret, err := s.sealSecret(ep)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE webhook_endpoints
		SET name = $3, description = $4, url = $5, secret = $6, headers = $7, events = $8,
			max_attempts = $9, timeout_ms = $10, updated_at = $11
		WHERE id = $1 AND tenant_id = $2`,
		ep.ID, ep.TenantID, ep.Name, ep.Description, ep.URL, secret, headersArg(ep.Headers), eventsArg(ep.Events),
		ep.MaxAttempts, ep.Timeout.Milliseconds(), ep.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update webhook endpoint: %w", endpointWriteErr(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrEndpointNotFound
	}
	return nil
}

func (s *PostgresStore) GetEndpoint(ctx context.Context, tenantID, id uuid.UUID) (*Endpoint, error) {
	rows, _ := s.pool.Query(ctx, `
		SELECT `+endpointColumns+` FROM webhook_endpoints
		WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	ep, err := pgx.CollectExactlyOneRow(rows, scanEndpoint)
	if pg.IsNotFoundError(err) {
		return nil, ErrEndpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook endpoint: %w", err)
	}
	if err := s.openSecret(&ep); err != nil {
		return nil, err
	}
	return &ep, nil
}

func (s *PostgresStore) ListEndpoints(ctx context.Context, tenantID uuid.UUID) ([]Endpoint, error) {
	rows, _ := s.pool.Query(ctx, `
		SELECT `+endpointColumns+` FROM webhook_endpoints
		WHERE tenant_id = $1
		ORDER BY created_at, id`, tenantID)
	out, err := pgx.CollectRows(rows, scanEndpoint)
	if err != nil {
		return nil, fmt.Errorf("list webhook endpoints: %w", err)
	}
	if err := s.openSecrets(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) ListSubscribed(ctx context.Context, tenantID uuid.UUID, eventType string) ([]Endpoint, error) {
	rows, _ := s.pool.Query(ctx, `
		SELECT `+endpointColumns+` FROM webhook_endpoints
		WHERE tenant_id = $1 AND active AND events @> ARRAY[$2::text]
		ORDER BY created_at, id`, tenantID, eventType)
	out, err := pgx.CollectRows(rows, scanEndpoint)
	if err != nil {
		return nil, fmt.Errorf("list subscribed webhook endpoints: %w", err)
	}
	if err := s.openSecrets(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) DeleteEndpoint(ctx context.Context, tenantID, id uuid.UUID) error {
	return pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM webhook_endpoints WHERE id = $1 AND tenant_id = $2`, id, tenantID)
		if err != nil {
			return fmt.Errorf("delete webhook endpoint: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrEndpointNotFound
		}
		_, err = tx.Exec(ctx, `
			UPDATE webhook_attempts
			SET status = 'ABANDONED', error = 'endpoint deleted',
				next_retry_at = NULL, locked_until = NULL, updated_at = now()
			WHERE endpoint_id = $1 AND status IN ('PENDING', 'RETRY_SCHEDULED')`, id)
		if err != nil {
			return fmt.Errorf("abandon webhook attempts: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) UpdateHealth(ctx context.Context, tenantID, id uuid.UUID, fn func(*Endpoint)) (*Endpoint, error) {
	var out Endpoint
	err := pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		rows, _ := tx.Query(ctx, `
			SELECT `+endpointColumns+` FROM webhook_endpoints
			WHERE id = $1 AND tenant_id = $2
			FOR UPDATE`, id, tenantID)
		ep, err := pgx.CollectExactlyOneRow(rows, scanEndpoint)
		if pg.IsNotFoundError(err) {
			return ErrEndpointNotFound
		}
		if err != nil {
			return err
		}

		fn(&ep)
		_, err = tx.Exec(ctx, `
			UPDATE webhook_endpoints
			SET active = $2, consecutive_failures = $3, last_success_at = $4, last_failure_at = $5, updated_at = $6
			WHERE id = $1`,
			ep.ID, ep.Active, ep.ConsecutiveFailures, ep.LastSuccessAt, ep.LastFailureAt, ep.UpdatedAt)
		if err != nil {
			return err
		}
		out = ep
		return nil
	})
	if errors.Is(err, ErrEndpointNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("update webhook endpoint health: %w", err)
	}
	if err := s.openSecret(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertAttempt(ctx context.Context, q execer, a *Attempt) error {
	_, err := q.Exec(ctx, `
		INSERT INTO webhook_attempts (`+attemptColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		a.ID, a.DeliveryID, a.TenantID, a.EndpointID, a.EventType, a.EntityID, a.EntityType,
		a.URL, []byte(a.Payload), a.AttemptNumber, string(a.Status), a.StatusCode, a.ResponseBody, a.Error, a.LatencyMs,
		a.NextRetryAt, a.LockedUntil, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

// saveAttempt is a compare-and-set on status.
func saveAttempt(ctx context.Context, q execer, a *Attempt, from Status) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE webhook_attempts
		SET status = $3, status_code = $4, response_body = $5, error = $6, latency_ms = $7,
			next_retry_at = $8, locked_until = $9, updated_at = $10
		WHERE id = $1 AND status = $2`,
		a.ID, string(from), string(a.Status), a.StatusCode, a.ResponseBody, a.Error, a.LatencyMs,
		a.NextRetryAt, a.LockedUntil, a.UpdatedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) CreateAttempt(ctx context.Context, a *Attempt) error {
	if err := insertAttempt(ctx, s.pool, a); err != nil {
		return fmt.Errorf("create webhook attempt: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveAttempt(ctx context.Context, a *Attempt, from Status) error {
	ok, err := saveAttempt(ctx, s.pool, a, from)
	if err != nil {
		return fmt.Errorf("save webhook attempt: %w", err)
	}
	if ok {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM webhook_attempts WHERE id = $1)`, a.ID).Scan(&exists); err != nil {
		return fmt.Errorf("save webhook attempt: %w", err)
	}
	if !exists {
		return ErrAttemptNotFound
	}
	return ErrAttemptConflict
}

func (s *PostgresStore) RenewLease(ctx context.Context, a *Attempt, until time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE webhook_attempts
		SET locked_until = $3
		WHERE id = $1 AND status = 'PENDING' AND locked_until IS NOT DISTINCT FROM $2`,
		a.ID, a.LockedUntil, until)
	if err != nil {
		return fmt.Errorf("renew webhook attempt lease: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	a.LockedUntil = &until
	return nil
}

func (s *PostgresStore) SupersedeAttempt(ctx context.Context, prev, next *Attempt) error {
	return pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		ok, err := saveAttempt(ctx, tx, prev, StatusRetryScheduled)
		if err != nil {
			return fmt.Errorf("supersede webhook attempt: %w", err)
		}
		if !ok {
			return ErrAttemptConflict
		}
		if err := insertAttempt(ctx, tx, next); err != nil {
			return fmt.Errorf("insert follow-up webhook attempt: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Attempt, error) {
	rows, _ := s.pool.Query(ctx, `
		UPDATE webhook_attempts
		SET locked_until = $2, updated_at = $1
		WHERE id IN (
			SELECT id FROM webhook_attempts
			WHERE (status = 'RETRY_SCHEDULED' AND next_retry_at <= $1 AND (locked_until IS NULL OR locked_until <= $1))
				OR (status = 'PENDING' AND locked_until <= $1)
			ORDER BY COALESCE(next_retry_at, locked_until)
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+attemptColumns, now, LeaseUntil(now, lease), limit)
	out, err := pgx.CollectRows(rows, scanAttempt)
	if err != nil {
		return nil, fmt.Errorf("claim due webhook attempts: %w", err)
	}
	slices.SortFunc(out, func(a, b Attempt) int { return dueAt(&a).Compare(dueAt(&b)) })
	return out, nil
}

func (s *PostgresStore) ListAttempts(ctx context.Context, tenantID, endpointID uuid.UUID, filter AttemptFilter) ([]Attempt, error) {
	filter = filter.normalized()
	rows, _ := s.pool.Query(ctx, `
		SELECT `+attemptColumns+` FROM webhook_attempts
		WHERE tenant_id = $1 AND endpoint_id = $2 AND ($3::text = '' OR status = $3::text)
		ORDER BY created_at DESC, attempt_number DESC
		LIMIT $4 OFFSET $5`,
		tenantID, endpointID, string(filter.Status), filter.Limit, filter.Offset)
	out, err := pgx.CollectRows(rows, scanAttempt)
	if err != nil {
		return nil, fmt.Errorf("list webhook attempts: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeliveryHistory(ctx context.Context, tenantID, deliveryID uuid.UUID) ([]Attempt, error) {
	rows, _ := s.pool.Query(ctx, `
		SELECT `+attemptColumns+` FROM webhook_attempts
		WHERE tenant_id = $1 AND delivery_id = $2
		ORDER BY attempt_number`, tenantID, deliveryID)
	out, err := pgx.CollectRows(rows, scanAttempt)
	if err != nil {
		return nil, fmt.Errorf("webhook delivery history: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) PurgeAttempts(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM webhook_attempts
		WHERE status IN ('SUCCESS', 'FAILURE', 'ATTEMPTS_EXHAUSTED', 'ABANDONED') AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge webhook attempts: %w", err)
	}
	return tag.RowsAffected(), nil
}
