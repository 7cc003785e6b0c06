package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS investigations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		summary_file TEXT,
		session_id TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS entities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		value TEXT NOT NULL,
		first_seen DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_seen DATETIME DEFAULT CURRENT_TIMESTAMP,
		frequency INTEGER DEFAULT 1,
		UNIQUE(type, value)
	)`,
	`CREATE TABLE IF NOT EXISTS investigation_entities (
		investigation_id INTEGER NOT NULL REFERENCES investigations(id),
		entity_id INTEGER NOT NULL REFERENCES entities(id),
		PRIMARY KEY (investigation_id, entity_id)
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		ended_at DATETIME,
		investigation_count INTEGER DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entities_value ON entities(value)`,
}

// SQLite is the default file-backed Repository.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the investigation database at path
// and runs migrations.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// modernc sqlite serializes access; a single connection avoids
	// SQLITE_BUSY under concurrent tool calls.
	db.SetMaxOpenConns(1)

	for _, stmt := range sqliteMigrations {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) StartSession(ctx context.Context) (string, error) {
	id := newSessionID()
	if _, err := s.db.ExecContext(ctx, `INSERT INTO sessions (id) VALUES (?)`, id); err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	return id, nil
}

func (s *SQLite) EndSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions
		 SET ended_at = CURRENT_TIMESTAMP,
		     investigation_count = (SELECT COUNT(*) FROM investigations WHERE session_id = ?)
		 WHERE id = ?`,
		sessionID, sessionID)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

func (s *SQLite) SaveInvestigation(ctx context.Context, query, summaryFile, sessionID string, entities map[string][]string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO investigations (query, summary_file, session_id)
		 VALUES (?, ?, NULLIF(?, ''))`,
		query, summaryFile, sessionID)
	if err != nil {
		return 0, fmt.Errorf("insert investigation: %w", err)
	}
	invID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	for entityType, values := range entities {
		for _, value := range values {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO entities (type, value, first_seen, last_seen)
				 VALUES (?, ?, ?, ?)
				 ON CONFLICT(type, value)
				 DO UPDATE SET frequency = frequency + 1, last_seen = excluded.last_seen`,
				entityType, value, now, now); err != nil {
				return 0, fmt.Errorf("upsert entity %s/%s: %w", entityType, value, err)
			}

			var entityID int64
			if err := tx.QueryRowContext(ctx,
				`SELECT id FROM entities WHERE type = ? AND value = ?`,
				entityType, value).Scan(&entityID); err != nil {
				return 0, err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO investigation_entities (investigation_id, entity_id) VALUES (?, ?)`,
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

func (s *SQLite) LookupEntity(ctx context.Context, entityType, value string) (*Entity, error) {
	var e Entity
	err := s.db.QueryRowContext(ctx,
		`SELECT id, type, value, frequency, first_seen, last_seen
		 FROM entities WHERE type = ? AND value = ?`,
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

func (s *SQLite) RelatedInvestigations(ctx context.Context, value string, limit int) ([]InvestigationRef, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT i.id, i.query, i.timestamp, COALESCE(i.summary_file, '')
		 FROM investigations i
		 JOIN investigation_entities ie ON ie.investigation_id = i.id
		 JOIN entities e ON e.id = ie.entity_id
		 WHERE e.value = ?
		 ORDER BY i.timestamp DESC
		 LIMIT ?`,
		value, limit)
	if err != nil {
		return nil, fmt.Errorf("related investigations: %w", err)
	}
	defer rows.Close()
	return scanRefs(rows)
}

func (s *SQLite) RecentInvestigations(ctx context.Context, limit int) ([]InvestigationRef, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, timestamp, COALESCE(summary_file, '')
		 FROM investigations ORDER BY timestamp DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("recent investigations: %w", err)
	}
	defer rows.Close()
	return scanRefs(rows)
}

func (s *SQLite) SimilarInvestigations(ctx context.Context, query string, limit int) ([]InvestigationRef, error) {
	recent, err := s.RecentInvestigations(ctx, similarityWindow)
	if err != nil {
		return nil, err
	}
	return rankSimilar(query, recent, limit), nil
}

func (s *SQLite) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{EntityBreakdown: make(map[string]int)}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM investigations`).Scan(&st.Investigations); err != nil {
		return nil, fmt.Errorf("count investigations: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions`).Scan(&st.Sessions); err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
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

func (s *SQLite) Close() error {
	return s.db.Close()
}

func scanRefs(rows *sql.Rows) ([]InvestigationRef, error) {
	var refs []InvestigationRef
	for rows.Next() {
		var ref InvestigationRef
		if err := rows.Scan(&ref.ID, &ref.Query, &ref.Timestamp, &ref.SummaryFile); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
