package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	memerr "github.com/openclaw/openclaw-memory/internal/errors"
)

// Index artifact names inside a scope's index directory.
const (
	dbFileName     = "index.db"
	vectorFileName = "vectors.hnsw"
	lockFileName   = "index.lock"
)

// Store is the derived index for one scope.
// All mutations serialize behind mu; concurrent processes are excluded by a
// file lock on the index directory.
type Store struct {
	db      *sql.DB
	vectors *VectorIndex
	dir     string
	lock    *flock.Flock
	logger  *slog.Logger
}

// Open opens (or creates) the index in dir for vectors of the given
// dimension. Fails fast when another process holds the scope.
func Open(dir string, dims int, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, memerr.StorageError("failed to create index directory", err)
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, memerr.StorageError("failed to acquire index lock", err)
	}
	if !locked {
		return nil, memerr.StorageError(
			fmt.Sprintf("index at %s is locked by another process", dir), nil)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, dbFileName))
	if err != nil {
		_ = lock.Unlock()
		return nil, memerr.StorageError("failed to open database", err)
	}
	// modernc.org/sqlite serializes per connection; one connection avoids
	// SQLITE_BUSY between the FTS and chunk statements.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, vectors: NewVectorIndex(dims), dir: dir, lock: lock, logger: logger}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}

	vectorPath := filepath.Join(dir, vectorFileName)
	if _, statErr := os.Stat(vectorPath); statErr == nil {
		if err := s.vectors.Load(vectorPath); err != nil {
			// Derived data: discard and let re-indexing rebuild it.
			logger.Warn("vector index unreadable, starting empty",
				slog.String("path", vectorPath), slog.String("error", err.Error()))
			s.vectors = NewVectorIndex(dims)
		}
	}
	return s, nil
}

func (s *Store) initSchema() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA busy_timeout=5000`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id            TEXT PRIMARY KEY,
			uri           TEXT NOT NULL,
			content       TEXT NOT NULL,
			content_hash  TEXT NOT NULL,
			parent_dir    TEXT NOT NULL DEFAULT '',
			type          TEXT NOT NULL DEFAULT '',
			section       TEXT NOT NULL DEFAULT '',
			importance    INTEGER NOT NULL DEFAULT 1,
			reinforcement INTEGER NOT NULL DEFAULT 0,
			access_count  INTEGER NOT NULL DEFAULT 0,
			token_count   INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_uri ON chunks(uri)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_parent_dir ON chunks(parent_dir)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_content_hash ON chunks(content_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_type ON chunks(type)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			content,
			content='chunks',
			content_rowid='rowid'
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return memerr.StorageError("failed to initialize schema", err)
		}
	}
	return nil
}

// Upsert writes a chunk and its vector. Idempotent on (uri, content_hash):
// an existing row keeps its id, reinforcement and access_count while mutable
// fields update. vec may be nil when embeddings are unavailable.
func (s *Store) Upsert(ctx context.Context, rec Record, vec []float32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return memerr.StorageError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existingID string
	var rowid int64
	var oldContent string
	err = tx.QueryRowContext(ctx,
		`SELECT id, rowid, content FROM chunks WHERE uri = ? AND content_hash = ?`,
		rec.URI, rec.ContentHash).Scan(&existingID, &rowid, &oldContent)

	now := time.Now().UTC()
	switch {
	case err == sql.ErrNoRows:
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		if rec.UpdatedAt.IsZero() {
			rec.UpdatedAt = now
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (id, uri, content, content_hash, parent_dir, type, section,
				importance, reinforcement, access_count, token_count, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.URI, rec.Content, rec.ContentHash, rec.ParentDir, rec.Type, rec.Section,
			rec.Importance, rec.Reinforcement, rec.AccessCount, rec.TokenCount,
			rec.CreatedAt.Format(time.RFC3339), rec.UpdatedAt.Format(time.RFC3339))
		if err != nil {
			return memerr.StorageError("failed to insert chunk", err)
		}
		rowid, err = res.LastInsertId()
		if err != nil {
			return memerr.StorageError("failed to resolve rowid", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunks_fts(rowid, content) VALUES (?, ?)`, rowid, rec.Content); err != nil {
			return memerr.StorageError("failed to index chunk text", err)
		}
		existingID = rec.ID

	case err != nil:
		return memerr.StorageError("failed to look up chunk", err)

	default:
		// FTS external-content delete needs the previous text.
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunks_fts(chunks_fts, rowid, content) VALUES ('delete', ?, ?)`,
			rowid, oldContent); err != nil {
			return memerr.StorageError("failed to remove stale chunk text", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE chunks SET content = ?, section = ?, type = ?, importance = ?,
				token_count = ?, updated_at = ? WHERE id = ?`,
			rec.Content, rec.Section, rec.Type, rec.Importance, rec.TokenCount,
			now.Format(time.RFC3339), existingID); err != nil {
			return memerr.StorageError("failed to update chunk", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunks_fts(rowid, content) VALUES (?, ?)`, rowid, rec.Content); err != nil {
			return memerr.StorageError("failed to reindex chunk text", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return memerr.StorageError("failed to commit chunk", err)
	}

	if vec != nil {
		// Vector is keyed by the surviving row id so counters and vector
		// stay attached to the same chunk across re-indexing.
		if err := s.vectors.Add([]string{existingID}, [][]float32{vec}); err != nil {
			return memerr.StorageError("failed to index vector", err)
		}
	}
	return nil
}

// DeleteByURI removes every chunk of a file. Returns the number removed.
func (s *Store) DeleteByURI(ctx context.Context, uri string) (int, error) {
	recs, err := s.ChunksByURI(ctx, uri)
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, nil
	}
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	if err := s.DeleteChunks(ctx, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// DeleteChunks removes chunks by id from the table, FTS, and vector index.
func (s *Store) DeleteChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return memerr.StorageError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		var rowid int64
		var content string
		err := tx.QueryRowContext(ctx,
			`SELECT rowid, content FROM chunks WHERE id = ?`, id).Scan(&rowid, &content)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return memerr.StorageError("failed to look up chunk", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunks_fts(chunks_fts, rowid, content) VALUES ('delete', ?, ?)`,
			rowid, content); err != nil {
			return memerr.StorageError("failed to remove chunk text", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE id = ?`, id); err != nil {
			return memerr.StorageError("failed to delete chunk", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return memerr.StorageError("failed to commit delete", err)
	}

	s.vectors.Delete(ids)
	return nil
}

// ChunksByURI returns all chunks of a file.
func (s *Store) ChunksByURI(ctx context.Context, uri string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` FROM chunks WHERE uri = ? ORDER BY id`, uri)
	if err != nil {
		return nil, memerr.StorageError("failed to query chunks", err)
	}
	defer func() { _ = rows.Close() }()
	return scanRecords(rows)
}

// GetChunk returns one chunk by id.
func (s *Store) GetChunk(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM chunks WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, memerr.NotFound("chunk " + id)
	}
	if err != nil {
		return nil, memerr.StorageError("failed to load chunk", err)
	}
	return rec, nil
}

// URIs returns the distinct file paths in the index.
func (s *Store) URIs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT uri FROM chunks ORDER BY uri`)
	if err != nil {
		return nil, memerr.StorageError("failed to list uris", err)
	}
	defer func() { _ = rows.Close() }()

	var uris []string
	for rows.Next() {
		var uri string
		if err := rows.Scan(&uri); err != nil {
			return nil, memerr.StorageError("failed to scan uri", err)
		}
		uris = append(uris, uri)
	}
	return uris, rows.Err()
}

// VectorSearch returns the k nearest chunks by cosine similarity. A
// non-empty parentDir restricts results to that directory; the scan keeps
// going past non-matching neighbors so the filter cannot starve k.
func (s *Store) VectorSearch(ctx context.Context, query []float32, k int, parentDir string) ([]Hit, error) {
	var hits []VectorHit
	var err error
	if parentDir == "" {
		hits, err = s.vectors.Search(query, k)
	} else {
		allowed, aerr := s.idsInParentDir(ctx, parentDir)
		if aerr != nil {
			return nil, aerr
		}
		hits, err = s.vectors.SearchFilter(query, k, func(id string) bool { return allowed[id] })
	}
	if err != nil {
		return nil, memerr.StorageError("vector search failed", err)
	}
	return s.resolveHits(ctx, hits)
}

func (s *Store) idsInParentDir(ctx context.Context, parentDir string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM chunks WHERE parent_dir = ?`, parentDir)
	if err != nil {
		return nil, memerr.StorageError("failed to query parent dir", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, memerr.StorageError("failed to scan chunk id", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

// FindSimilar returns nearest chunks restricted to one file, for the write
// path's reinforcement and conflict checks. Scores here are plain cosine
// similarity, not the [0,1] ranking score, because the write thresholds are
// defined on cosine.
func (s *Store) FindSimilar(ctx context.Context, query []float32, k int, uri string) ([]Hit, error) {
	// Over-fetch, then filter; similarity candidates are rare enough that a
	// fixed multiplier covers files sharing the index.
	raw, err := s.vectors.Search(query, k*8)
	if err != nil {
		return nil, memerr.StorageError("vector search failed", err)
	}
	resolved, err := s.resolveHits(ctx, raw)
	if err != nil {
		return nil, err
	}
	out := make([]Hit, 0, k)
	for _, h := range resolved {
		if h.URI == uri {
			h.Score = 2*h.Score - 1
			out = append(out, h)
			if len(out) == k {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) resolveHits(ctx context.Context, hits []VectorHit) ([]Hit, error) {
	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		rec, err := s.GetChunk(ctx, h.ID)
		if err != nil {
			// Vector index can briefly lead the table; skip strays.
			s.logger.Debug("vector hit without chunk row", slog.String("id", h.ID))
			continue
		}
		out = append(out, Hit{Record: *rec, Score: h.Score})
	}
	return out, nil
}

var ftsTermRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

// FTSSearch returns the top k chunks by bm25 over the FTS5 table. A
// non-empty parentDir restricts results to that directory. The raw query is
// reduced to quoted terms so FTS5 operators in user text cannot break the
// match expression.
func (s *Store) FTSSearch(ctx context.Context, query string, k int, parentDir string) ([]Hit, error) {
	terms := ftsTermRe.FindAllString(query, -1)
	if len(terms) == 0 {
		return []Hit{}, nil
	}
	for i, t := range terms {
		terms[i] = `"` + t + `"`
	}
	match := strings.Join(terms, " OR ")

	where := `WHERE chunks_fts MATCH ?`
	args := []any{match}
	if parentDir != "" {
		where += ` AND c.parent_dir = ?`
		args = append(args, parentDir)
	}
	args = append(args, k)

	// Columns are qualified because chunks_fts also has a content column.
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.uri, c.content, c.content_hash, c.parent_dir, c.type, c.section,
			c.importance, c.reinforcement, c.access_count, c.token_count,
			c.created_at, c.updated_at, bm25(chunks_fts) AS rank
		 FROM chunks_fts
		 JOIN chunks c ON c.rowid = chunks_fts.rowid
		 `+where+`
		 ORDER BY rank LIMIT ?`, args...)
	if err != nil {
		return nil, memerr.StorageError("fts search failed", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []Hit
	for rows.Next() {
		rec, rank, err := scanRecordWithRank(rows)
		if err != nil {
			return nil, memerr.StorageError("failed to scan fts hit", err)
		}
		// bm25() returns lower-is-better; negate so higher is better.
		hits = append(hits, Hit{Record: *rec, Score: -rank})
	}
	return hits, rows.Err()
}

// IncrementReinforcement bumps a chunk's reinforcement counter.
func (s *Store) IncrementReinforcement(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chunks SET reinforcement = reinforcement + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return memerr.StorageError("failed to increment reinforcement", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return memerr.NotFound("chunk " + id)
	}
	return nil
}

// IncrementAccessCounts bumps access counters for returned search results
// and refreshes updated_at so recency follows use. One statement,
// best-effort; retrieval never fails on it.
func (s *Store) IncrementAccessCounts(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids)+1)
	args = append(args, time.Now().UTC().Format(time.RFC3339))
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE chunks SET access_count = access_count + 1, updated_at = ?
		 WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return memerr.StorageError("failed to increment access counts", err)
	}
	return nil
}

// MaxReinforcement returns the scope's highest reinforcement count.
func (s *Store) MaxReinforcement(ctx context.Context) (int, error) {
	return s.scalarInt(ctx, `SELECT COALESCE(MAX(reinforcement), 0) FROM chunks`)
}

// MaxAccessCount returns the scope's highest access count.
func (s *Store) MaxAccessCount(ctx context.Context) (int, error) {
	return s.scalarInt(ctx, `SELECT COALESCE(MAX(access_count), 0) FROM chunks`)
}

func (s *Store) scalarInt(ctx context.Context, query string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, memerr.StorageError("failed to query aggregate", err)
	}
	return n, nil
}

// Stats summarizes the index.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{ByType: make(map[string]TypeStats)}

	var err error
	if st.Chunks, err = s.scalarInt(ctx, `SELECT COUNT(*) FROM chunks`); err != nil {
		return nil, err
	}
	if st.Files, err = s.scalarInt(ctx, `SELECT COUNT(DISTINCT uri) FROM chunks`); err != nil {
		return nil, err
	}
	if st.TotalTokens, err = s.scalarInt(ctx, `SELECT COALESCE(SUM(token_count), 0) FROM chunks`); err != nil {
		return nil, err
	}
	if st.MaxReinforcement, err = s.MaxReinforcement(ctx); err != nil {
		return nil, err
	}
	if st.MaxAccessCount, err = s.MaxAccessCount(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT type, COUNT(*), COALESCE(SUM(token_count), 0) FROM chunks GROUP BY type`)
	if err != nil {
		return nil, memerr.StorageError("failed to query type counts", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var typ string
		var ts TypeStats
		if err := rows.Scan(&typ, &ts.Chunks, &ts.Tokens); err != nil {
			return nil, memerr.StorageError("failed to scan type count", err)
		}
		st.ByType[typ] = ts
	}
	return st, rows.Err()
}

// Flush persists the vector index to disk.
func (s *Store) Flush() error {
	if err := s.vectors.Save(filepath.Join(s.dir, vectorFileName)); err != nil {
		return memerr.StorageError("failed to save vector index", err)
	}
	return nil
}

// HasVector reports whether a chunk id has an indexed vector.
func (s *Store) HasVector(id string) bool {
	return s.vectors.Contains(id)
}

// Close flushes vectors, closes the database, and releases the lock.
func (s *Store) Close() error {
	flushErr := s.Flush()
	if err := s.db.Close(); err != nil {
		_ = s.lock.Unlock()
		return memerr.StorageError("failed to close database", err)
	}
	if err := s.lock.Unlock(); err != nil {
		return memerr.StorageError("failed to release index lock", err)
	}
	return flushErr
}

const selectColumns = `SELECT id, uri, content, content_hash, parent_dir, type, section,
	importance, reinforcement, access_count, token_count, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var created, updated string
	if err := row.Scan(&rec.ID, &rec.URI, &rec.Content, &rec.ContentHash, &rec.ParentDir,
		&rec.Type, &rec.Section, &rec.Importance, &rec.Reinforcement, &rec.AccessCount,
		&rec.TokenCount, &created, &updated); err != nil {
		return nil, err
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, created)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &rec, nil
}

func scanRecordWithRank(row rowScanner) (*Record, float64, error) {
	var rec Record
	var created, updated string
	var rank float64
	if err := row.Scan(&rec.ID, &rec.URI, &rec.Content, &rec.ContentHash, &rec.ParentDir,
		&rec.Type, &rec.Section, &rec.Importance, &rec.Reinforcement, &rec.AccessCount,
		&rec.TokenCount, &created, &updated, &rank); err != nil {
		return nil, 0, err
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, created)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &rec, rank, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}
