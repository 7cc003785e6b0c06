package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS investigations (
		id BIGSERIAL PRIMARY KEY,
		query TEXT NOT NULL,
		timestamp TIMESTAMPTZ DEFAULT now(),
		summary_file TEXT,
		session_id TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS entities (
		id BIGSERIAL PRIMARY KEY,
		type TEXT NOT NULL,
		value TEXT NOT NULL,
		first_seen TIMESTAMPTZ DEFAULT now(),
		last_seen TIMESTAMPTZ DEFAULT now(),
		frequency INTEGER DEFAULT 1,
		UNIQUE(type, value)
	)`,
	`CREATE TABLE IF NOT EXISTS investigation_entities (
		investigation_id BIGINT NOT NULL REFERENCES investigations(id),
		entity_id BIGINT NOT NULL REFERENCES entities(id),
		PRIMARY KEY (investigation_id, entity_id)
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		started_at TIMESTAMPTZ DEFAULT now(),
		ended_at TIMESTAMPTZ,
		investigation_count INTEGER DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entities_value ON entities(value)`,
}

// Postgres is the Repository backing for shared deployments where several
// analysts write to the same investigation history.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects with a lib/pq DSN and runs migrations.
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range postgresMigrations {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) StartSession(ctx context.Context) (string, error) {
	id := newSessionID()
	if _, err := p.db.ExecContext(ctx, `INSERT INTO sessions (id) VALUES ($1)`, id); err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	return id, nil
}

func (p *Postgres) EndSession(ctx context.Context, sessionID string) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE sessions
		 SET ended_at = now(),
		     investigation_count = (SELECT COUNT(*) FROM investigations WHERE session_id = $1)
		 WHERE id = $1`,
		sessionID)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

func (p *Postgres) SaveInvestigation(ctx context.Context, query, summaryFile, sessionID string, entities map[string][]string) (int64, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var invID int64
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO investigations (query, summary_file, session_id)
		 VALUES ($1, $2, NULLIF($3, '')) RETURNING id`,
		query, summaryFile, sessionID).Scan(&invID); err != nil {
		return 0, fmt.Errorf("insert investigation: %w", err)
	}

	now := time.Now().UTC()
	for entityType, values := range entities {
		for _, value := range values {
			var entityID int64
			if err := tx.QueryRowContext(ctx,
				`INSERT INTO entities (type, value, first_seen, last_seen)
				 VALUES ($1, $2, $3, $3)
				 ON CONFLICT (type, value)
				 DO UPDATE SET frequency = entities.frequency + 1, last_seen = EXCLUDED.last_seen
				 RETURNING id`,
				entityType, value, now).Scan(&entityID); err != nil {
				return 0, fmt.Errorf("upsert entity %s/%s: %w", entityType, value, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO investigation_entities (investigation_id, entity_id)
				 VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				invID, entityID); err != nil {
				return 0, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return invID, nil
}

func (p *Postgres) LookupEntity(ctx context.Context, entityType, value string) (*Entity, error) {
	var e Entity
	err := p.db.QueryRowContext(ctx,
		`SELECT id, type, value, frequency, first_seen, last_seen
		 FROM entities WHERE type = $1 AND value = $2`,
		entityType, value).
		Scan(&e.ID, &e.Type, &e.Value, &e.Frequency, &e.FirstSeen, &e.LastSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup entity: %w", err)
	}
	return &e, nil
}

func (p *Postgres) RelatedInvestigations(ctx context.Context, value string, limit int) ([]InvestigationRef, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT i.id, i.query, i.timestamp, COALESCE(i.summary_file, '')
		 FROM investigations i
		 JOIN investigation_entities ie ON ie.investigation_id = i.id
		 JOIN entities e ON e.id = ie.entity_id
		 WHERE e.value = $1
		 ORDER BY i.timestamp DESC
		 LIMIT $2`,
		value, limit)
	if err != nil {
		return nil, fmt.Errorf("related investigations: %w", err)
	}
	defer rows.Close()
	return scanRefs(rows)
}

func (p *Postgres) RecentInvestigations(ctx context.Context, limit int) ([]InvestigationRef, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, query, timestamp, COALESCE(summary_file, '')
		 FROM investigations ORDER BY timestamp DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("recent investigations: %w", err)
	}
	defer rows.Close()
	return scanRefs(rows)
}

func (p *Postgres) SimilarInvestigations(ctx context.Context, query string, limit int) ([]InvestigationRef, error) {
	recent, err := p.RecentInvestigations(ctx, similarityWindow)
	if err != nil {
		return nil, err
	}
	return rankSimilar(query, recent, limit), nil
}

func (p *Postgres) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{EntityBreakdown: make(map[string]int)}
	if err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM investigations`).Scan(&st.Investigations); err != nil {
		return nil, fmt.Errorf("count investigations: %w", err)
	}
	if err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions`).Scan(&st.Sessions); err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT type, COUNT(*) FROM entities GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("entity breakdown: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var entityType string
		var count int
		if err := rows.Scan(&entityType, &count); err != nil {
			return nil, err
		}
		st.EntityBreakdown[entityType] = count
		st.Entities += count
	}
	return st, rows.Err()
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
