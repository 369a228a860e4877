package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStorage persists facts and episodes in PostgreSQL. Embeddings are
// stored as real[] and ranked in Go.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

var _ Storage = (*PostgresStorage)(nil)

// NewPostgresStorage connects to databaseURL and creates the schema.
func NewPostgresStorage(ctx context.Context, databaseURL string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initMemorySchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStorage{pool: pool}, nil
}

func initMemorySchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS hearth_facts (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			source_seq BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			inserted BIGSERIAL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_hearth_facts_created ON hearth_facts (created_at, inserted);`,
		`CREATE TABLE IF NOT EXISTS hearth_episodes (
			seq BIGINT PRIMARY KEY,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			speaker TEXT NOT NULL DEFAULT '',
			embedding REAL[] NOT NULL,
			embedding_version TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_hearth_episodes_version ON hearth_episodes (embedding_version);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStorage) PutFact(ctx context.Context, f Fact) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO hearth_facts (id, text, category, source_seq, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		f.ID, f.Text, string(f.Category), f.SourceSeq, f.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save fact: %w", err)
	}
	return nil
}

func (s *PostgresStorage) ListFacts(ctx context.Context) ([]Fact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, text, category, source_seq, created_at
		 FROM hearth_facts ORDER BY created_at ASC, inserted ASC`)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	var facts []Fact
	for rows.Next() {
		var f Fact
		var category string
		if err := rows.Scan(&f.ID, &f.Text, &category, &f.SourceSeq, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan fact row: %w", err)
		}
		f.Category = Category(category)
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fact rows: %w", err)
	}
	return facts, nil
}

func (s *PostgresStorage) CountFacts(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM hearth_facts`).Scan(&n)
	return n, err
}

func (s *PostgresStorage) PutEpisode(ctx context.Context, e Episode) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO hearth_episodes (seq, role, text, speaker, embedding, embedding_version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (seq) DO NOTHING`,
		e.Seq, string(e.Role), e.Text, e.Speaker, e.Embedding, e.EmbeddingVersion, e.CreatedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("save episode: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const pgEpisodeColumns = `seq, role, text, speaker, embedding, embedding_version, created_at`

func scanPgEpisode(row pgx.Row) (Episode, error) {
	var e Episode
	var role string
	err := row.Scan(&e.Seq, &role, &e.Text, &e.Speaker, &e.Embedding, &e.EmbeddingVersion, &e.CreatedAt)
	e.Role = Role(role)
	return e, err
}

func (s *PostgresStorage) GetEpisode(ctx context.Context, seq int64) (*Episode, error) {
	e, err := scanPgEpisode(s.pool.QueryRow(ctx,
		`SELECT `+pgEpisodeColumns+` FROM hearth_episodes WHERE seq=$1`, seq))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get episode: %w", err)
	}
	return &e, nil
}

func (s *PostgresStorage) queryEpisodes(ctx context.Context, sql string, args ...any) ([]Episode, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()

	var eps []Episode
	for rows.Next() {
		e, err := scanPgEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan episode row: %w", err)
		}
		eps = append(eps, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate episode rows: %w", err)
	}
	return eps, nil
}

func (s *PostgresStorage) QueryByVector(ctx context.Context, vec []float32, version string, k int) ([]ScoredEpisode, error) {
	candidates, err := s.queryEpisodes(ctx,
		`SELECT `+pgEpisodeColumns+` FROM hearth_episodes WHERE embedding_version=$1`, version)
	if err != nil {
		return nil, err
	}
	return rankEpisodes(vec, candidates, k), nil
}

func (s *PostgresStorage) ListEpisodes(ctx context.Context, limit int) ([]Episode, error) {
	var (
		eps []Episode
		err error
	)
	if limit > 0 {
		eps, err = s.queryEpisodes(ctx,
			`SELECT `+pgEpisodeColumns+` FROM hearth_episodes ORDER BY seq DESC LIMIT $1`, limit)
	} else {
		eps, err = s.queryEpisodes(ctx,
			`SELECT `+pgEpisodeColumns+` FROM hearth_episodes ORDER BY seq DESC`)
	}
	if err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(eps)-1; i < j; i, j = i+1, j-1 {
		eps[i], eps[j] = eps[j], eps[i]
	}
	return eps, nil
}

func (s *PostgresStorage) CountEpisodes(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM hearth_episodes`).Scan(&n)
	return n, err
}

func (s *PostgresStorage) CountStale(ctx context.Context, version string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM hearth_episodes WHERE embedding_version <> $1`, version).Scan(&n)
	return n, err
}

func (s *PostgresStorage) MaxSeq(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM hearth_episodes`).Scan(&n)
	return n, err
}

func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}
