package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage persists facts and episodes in a SQLite database. Vectors are
// stored as JSON and compared in Go.
type SQLiteStorage struct {
	db *sql.DB
}

var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens (or creates) the SQLite database at path.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open memory database: %w", err)
	}

	s := &SQLiteStorage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate memory database: %w", err)
	}

	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS facts (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		source_seq INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_facts_created_at ON facts(created_at);

	CREATE TABLE IF NOT EXISTS episodes (
		seq INTEGER PRIMARY KEY,
		role TEXT NOT NULL,
		text TEXT NOT NULL,
		embedding TEXT NOT NULL,
		embedding_version TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_episodes_version ON episodes(embedding_version);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Additive migration: speaker attribution. The error is ignored when the
	// column already exists.
	_, _ = s.db.Exec(`ALTER TABLE episodes ADD COLUMN speaker TEXT NOT NULL DEFAULT ''`)

	return nil
}

func (s *SQLiteStorage) PutFact(ctx context.Context, f Fact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO facts (id, text, category, source_seq, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, f.ID, f.Text, string(f.Category), f.SourceSeq, f.CreatedAt.UTC())
	return err
}

func (s *SQLiteStorage) ListFacts(ctx context.Context) ([]Fact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, category, source_seq, created_at
		FROM facts
		ORDER BY created_at ASC, rowid ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facts []Fact
	for rows.Next() {
		var f Fact
		var category string
		if err := rows.Scan(&f.ID, &f.Text, &category, &f.SourceSeq, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.Category = Category(category)
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

func (s *SQLiteStorage) CountFacts(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM facts`).Scan(&n)
	return n, err
}

func (s *SQLiteStorage) PutEpisode(ctx context.Context, e Episode) (bool, error) {
	vec, err := json.Marshal(e.Embedding)
	if err != nil {
		return false, fmt.Errorf("marshal embedding: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO episodes (seq, role, text, speaker, embedding, embedding_version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.Seq, string(e.Role), e.Text, e.Speaker, string(vec), e.EmbeddingVersion, e.CreatedAt.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

const episodeColumns = `seq, role, text, speaker, embedding, embedding_version, created_at`

func scanEpisode(scan func(dest ...any) error) (Episode, error) {
	var e Episode
	var role, vec string
	var created time.Time
	if err := scan(&e.Seq, &role, &e.Text, &e.Speaker, &vec, &e.EmbeddingVersion, &created); err != nil {
		return e, err
	}
	e.Role = Role(role)
	e.CreatedAt = created
	if err := json.Unmarshal([]byte(vec), &e.Embedding); err != nil {
		return e, fmt.Errorf("decode embedding for seq %d: %w", e.Seq, err)
	}
	return e, nil
}

func (s *SQLiteStorage) GetEpisode(ctx context.Context, seq int64) (*Episode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE seq = ?`, seq)
	e, err := scanEpisode(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *SQLiteStorage) QueryByVector(ctx context.Context, vec []float32, version string, k int) ([]ScoredEpisode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+episodeColumns+` FROM episodes WHERE embedding_version = ?`, version)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []Episode
	for rows.Next() {
		e, err := scanEpisode(rows.Scan)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rankEpisodes(vec, candidates, k), nil
}

func (s *SQLiteStorage) ListEpisodes(ctx context.Context, limit int) ([]Episode, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+episodeColumns+` FROM episodes ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var eps []Episode
	for rows.Next() {
		e, err := scanEpisode(rows.Scan)
		if err != nil {
			return nil, err
		}
		eps = append(eps, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse so oldest is first (we queried DESC for LIMIT).
	for i, j := 0, len(eps)-1; i < j; i, j = i+1, j-1 {
		eps[i], eps[j] = eps[j], eps[i]
	}
	return eps, nil
}

func (s *SQLiteStorage) CountEpisodes(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM episodes`).Scan(&n)
	return n, err
}

func (s *SQLiteStorage) CountStale(ctx context.Context, version string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM episodes WHERE embedding_version <> ?`, version).Scan(&n)
	return n, err
}

func (s *SQLiteStorage) MaxSeq(ctx context.Context) (int64, error) {
	var n sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM episodes`).Scan(&n); err != nil {
		return 0, err
	}
	return n.Int64, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
