// Package memory is Gloop's persistent knowledge store: findings (observed
// facts) and lessons (guidance derived from a finding), kept in SQLite with
// an FTS5 index for semantic-ish top-k recall. The daemon consumes it through
// a narrow surface — add finding, add lesson, recent-N, search — so the rest
// of the system never touches SQL.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver
)

// SchemaDDL defines the findings/lessons schema. Every lesson references
// exactly one finding; the FK plus the insert path in AddLesson keep that
// invariant.
const SchemaDDL = `
CREATE TABLE IF NOT EXISTS findings (
    id INTEGER PRIMARY KEY,
    content TEXT NOT NULL,
    tags TEXT NOT NULL DEFAULT '[]',
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS lessons (
    id INTEGER PRIMARY KEY,
    finding_id INTEGER NOT NULL REFERENCES findings(id),
    text TEXT NOT NULL,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE VIRTUAL TABLE IF NOT EXISTS findings_fts USING fts5(
    content,
    tags,
    content=findings,
    content_rowid=id
);

CREATE TRIGGER IF NOT EXISTS findings_ai AFTER INSERT ON findings BEGIN
    INSERT INTO findings_fts(rowid, content, tags) VALUES (new.id, new.content, new.tags);
END;

CREATE TRIGGER IF NOT EXISTS findings_ad AFTER DELETE ON findings BEGIN
    INSERT INTO findings_fts(findings_fts, rowid, content, tags) VALUES ('delete', old.id, old.content, old.tags);
END;
`

// Finding is one stored observation.
type Finding struct {
	ID        int64
	Content   string
	Tags      []string
	CreatedAt string
}

// Lesson is guidance derived from a finding.
type Lesson struct {
	ID        int64
	FindingID int64
	Text      string
	CreatedAt string
}

// ScoredFinding is a Finding with its search relevance score.
type ScoredFinding struct {
	Finding
	Score float64
}

// Stats summarizes store contents for heartbeat prompts.
type Stats struct {
	Findings int
	Lessons  int
}

// Store manages the findings and lessons tables.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the memory database at path and applies
// the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("memory: open %s: %w", path, err)
	}
	if _, err := db.Exec(SchemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("memory: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an existing database handle. The schema must already exist.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// AddFinding stores a new finding and returns its id.
func (s *Store) AddFinding(ctx context.Context, content string, tags []string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO findings (content, tags) VALUES (?, ?)`,
		content, tagsToJSON(tags))
	if err != nil {
		return 0, fmt.Errorf("memory: insert finding: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("memory: finding id: %w", err)
	}
	return id, nil
}

// AddLesson stores a lesson attached to an existing finding. The finding must
// exist: a lesson is never allowed to dangle.
func (s *Store) AddLesson(ctx context.Context, findingID int64, text string) (int64, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM findings WHERE id = ?`, findingID).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("memory: check finding %d: %w", findingID, err)
	}
	if exists == 0 {
		return 0, fmt.Errorf("memory: finding %d does not exist", findingID)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO lessons (finding_id, text) VALUES (?, ?)`,
		findingID, text)
	if err != nil {
		return 0, fmt.Errorf("memory: insert lesson: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("memory: lesson id: %w", err)
	}
	return id, nil
}

// Recent returns the n most recently created findings, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Finding, error) {
	if n <= 0 {
		n = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, tags, created_at FROM findings ORDER BY created_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("memory: recent findings: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanFindings(rows)
}

// RecentLessons returns the n most recently created lessons, newest first.
func (s *Store) RecentLessons(ctx context.Context, n int) ([]Lesson, error) {
	if n <= 0 {
		n = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, finding_id, text, created_at FROM lessons ORDER BY created_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("memory: recent lessons: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var lessons []Lesson
	for rows.Next() {
		var l Lesson
		if err := rows.Scan(&l.ID, &l.FindingID, &l.Text, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("memory: scan lesson: %w", err)
		}
		lessons = append(lessons, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: iterate lessons: %w", err)
	}
	return lessons, nil
}

// Search performs FTS5 BM25-ranked top-k recall over finding content and
// tags. An empty query returns nothing.
func (s *Store) Search(ctx context.Context, query string, k int) ([]ScoredFinding, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if k <= 0 {
		k = 3
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.content, f.tags, f.created_at, -bm25(findings_fts) AS score
		FROM findings_fts
		JOIN findings f ON findings_fts.rowid = f.id
		WHERE findings_fts MATCH ?
		ORDER BY score DESC
		LIMIT ?`,
		sanitizeFTS5Query(query), k)
	if err != nil {
		return nil, fmt.Errorf("memory: search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ScoredFinding
	for rows.Next() {
		var f ScoredFinding
		var tags string
		if err := rows.Scan(&f.ID, &f.Content, &tags, &f.CreatedAt, &f.Score); err != nil {
			return nil, fmt.Errorf("memory: scan search row: %w", err)
		}
		f.Tags = tagsFromJSON(tags)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: iterate search: %w", err)
	}
	return out, nil
}

// Counts returns totals for the heartbeat's memory stats line.
func (s *Store) Counts(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM findings`).Scan(&st.Findings); err != nil {
		return st, fmt.Errorf("memory: count findings: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lessons`).Scan(&st.Lessons); err != nil {
		return st, fmt.Errorf("memory: count lessons: %w", err)
	}
	return st, nil
}

func scanFindings(rows *sql.Rows) ([]Finding, error) {
	var out []Finding
	for rows.Next() {
		var f Finding
		var tags string
		if err := rows.Scan(&f.ID, &f.Content, &tags, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("memory: scan finding: %w", err)
		}
		f.Tags = tagsFromJSON(tags)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: iterate findings: %w", err)
	}
	return out, nil
}

// sanitizeFTS5Query wraps each term in double quotes to prevent FTS5 operator
// interpretation (e.g., "and", "or", "not" are FTS5 operators).
func sanitizeFTS5Query(query string) string {
	words := strings.Fields(query)
	if len(words) == 0 {
		return query
	}
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		clean := strings.Map(func(r rune) rune {
			if r == '"' {
				return -1
			}
			return r
		}, w)
		if clean == "" {
			continue
		}
		quoted = append(quoted, `"`+clean+`"`)
	}
	return strings.Join(quoted, " ")
}

func tagsToJSON(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func tagsFromJSON(s string) []string {
	if s == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		return nil
	}
	return tags
}
