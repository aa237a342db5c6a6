package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"magbot/pkg/domain"
	audit "magbot/pkg/platform/audit"
	txcontext "magbot/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Append writes the queryable audit row and an outbox row in the caller's
// transaction; the relay later publishes outbox rows to Kafka.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Payload is the JSON document stored in the outbox and published to Kafka.
type Payload struct {
	ID         string            `json:"id"`
	Category   string            `json:"category"`
	Timestamp  string            `json:"timestamp"`
	Registry   string            `json:"registry"`
	Instance   string            `json:"instance"`
	Action     string            `json:"action"`
	Actor      string            `json:"actor,omitempty"`
	Subject    string            `json:"subject,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	ClientIP   string            `json:"client_ip,omitempty"`
	Client     string            `json:"client,omitempty"`
}

// OutboxEntry is an unpublished outbox row.
type OutboxEntry struct {
	ID          uuid.UUID
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

func payloadFor(event audit.Event) Payload {
	p := Payload{
		ID:         event.ID.String(),
		Category:   string(event.Category),
		Timestamp:  event.Timestamp.UTC().Format(time.RFC3339Nano),
		Registry:   string(event.Registry),
		Instance:   event.Instance.String(),
		Action:     event.Action,
		Subject:    event.Subject,
		Attributes: event.Attributes,
		RequestID:  event.RequestID,
		ClientIP:   event.ClientIP,
		Client:     event.Client,
	}
	if !event.Actor.IsZero() {
		p.Actor = event.Actor.String()
	}
	return p
}

// Append writes an audit event and its outbox entry.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	// Always derive category from action; eventCategories is the source of truth
	event.Category = audit.AuditEvent(event.Action).Category()

	payloadBytes, err := json.Marshal(payloadFor(event))
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	attrBytes, err := json.Marshal(event.Attributes)
	if err != nil {
		return fmt.Errorf("marshal audit attributes: %w", err)
	}

	exec := txcontext.Executor(ctx, s.db)
	_, err = exec.ExecContext(ctx, `
		INSERT INTO audit_events (
			id, category, timestamp, registry, instance, action,
			actor, subject, attributes, request_id, client_ip, client
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`,
		event.ID,
		string(event.Category),
		event.Timestamp,
		string(event.Registry),
		event.Instance.Bytes(),
		event.Action,
		event.Actor.Bytes(),
		event.Subject,
		attrBytes,
		event.RequestID,
		event.ClientIP,
		event.Client,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	_, err = exec.ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		uuid.New(),
		string(event.Registry),
		event.Instance.String(),
		event.Action,
		payloadBytes,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// ListByInstance returns events for one registry instance, oldest first.
func (s *Store) ListByInstance(ctx context.Context, instance domain.Account) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, timestamp, registry, instance, action,
			   actor, subject, attributes, request_id, client_ip, client
		FROM audit_events
		WHERE instance = $1
		ORDER BY timestamp ASC, seq ASC
	`, instance.Bytes())
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// FetchPending returns up to limit unpublished outbox rows in insertion
// order. Rows are locked with SKIP LOCKED so concurrent relays split work.
func (s *Store) FetchPending(ctx context.Context, limit int) ([]OutboxEntry, error) {
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return entries, nil
}

// MarkPublished stamps the given outbox rows as delivered.
func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE outbox SET published_at = $1
		WHERE id = ANY($2::uuid[])
	`, time.Now(), pq.Array(keys))
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

// DB exposes the handle so the relay can open its own transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			event              audit.Event
			category, registry string
			instance, actor    []byte
			attrs              []byte
		)
		err := rows.Scan(
			&event.ID,
			&category,
			&event.Timestamp,
			&registry,
			&instance,
			&event.Action,
			&actor,
			&event.Subject,
			&attrs,
			&event.RequestID,
			&event.ClientIP,
			&event.Client,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		event.Registry = audit.Registry(registry)
		event.Instance = domain.AccountFromBytes(instance)
		event.Actor = domain.AccountFromBytes(actor)
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &event.Attributes); err != nil {
				return nil, fmt.Errorf("decode audit attributes: %w", err)
			}
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
