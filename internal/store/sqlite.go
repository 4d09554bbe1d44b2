package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/log"
	_ "github.com/mattn/go-sqlite3"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/Ranjithnathk/ClauseWise/internal/embeddings"
	"github.com/Ranjithnathk/ClauseWise/internal/fs"
)

const sqliteFileName = "index.db"

func init() {
	// Register sqlite-vec extension
	sqlite_vec.Auto()
}

// SQLiteStore keeps each index in its own SQLite database and ranks
// passages with the sqlite-vec distance functions.
type SQLiteStore struct {
	dirStore
}

// NewSQLiteStore creates a store rooted at root using metric for ranking.
func NewSQLiteStore(root, metric string, embedder embeddings.Service) (*SQLiteStore, error) {
	switch metric {
	case "":
		metric = MetricCosine
	case MetricCosine, MetricL2:
	default:
		return nil, fmt.Errorf("unsupported metric for sqlite backend: %s", metric)
	}

	base, err := newDirStore(root, BackendSQLite, metric, embedder)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{dirStore: base}, nil
}

// Build embeds the chunks and replaces the scope's index.
func (s *SQLiteStore) Build(ctx context.Context, scope Scope, chunks []fs.Chunk, opts BuildOptions) (Index, error) {
	if err := s.build(ctx, scope, chunks, opts, writeSQLite); err != nil {
		return nil, err
	}
	return s.Load(ctx, scope)
}

// Load opens the scope's index read-only.
func (s *SQLiteStore) Load(ctx context.Context, scope Scope) (Index, error) {
	dir, info, err := s.checkLoad(scope)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, sqliteFileName)
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptIndex, err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM passages").Scan(&count); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptIndex, scope, err)
	}
	if count != info.ChunkCount {
		db.Close()
		return nil, fmt.Errorf("%w: %s holds %d passages, metadata says %d", ErrCorruptIndex, scope, count, info.ChunkCount)
	}

	log.Debug("Opened SQLite index", "scope", scope, "passages", count)

	return &sqliteIndex{db: db, info: *info, embedder: s.embedder}, nil
}

// writeSQLite creates index.db in dir and inserts every passage in one transaction.
func writeSQLite(dir string, passages []Passage, vectors [][]float32, info *IndexInfo) error {
	// Open database with foreign keys enabled
	db, err := sql.Open("sqlite3", filepath.Join(dir, sqliteFileName)+"?_foreign_keys=on")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := initSchema(db); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO passages (seq, content, source, page, start_char, end_char, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, p := range passages {
		if _, err := stmt.Exec(p.Seq, p.Content, p.Source, p.Page, p.StartChar, p.EndChar, serializeEmbedding(vectors[i])); err != nil {
			return fmt.Errorf("failed to insert passage %d: %w", p.Seq, err)
		}
	}

	meta := map[string]string{
		"id":         info.ID,
		"metric":     info.Metric,
		"provider":   info.EmbeddingProvider,
		"model":      info.EmbeddingModel,
		"dimensions": strconv.Itoa(info.Dimensions),
	}
	for key, value := range meta {
		if _, err := tx.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)", key, value); err != nil {
			return fmt.Errorf("failed to write meta %s: %w", key, err)
		}
	}

	return tx.Commit()
}

// sqliteIndex is a loaded SQLite index.
type sqliteIndex struct {
	db       *sql.DB
	info     IndexInfo
	embedder embeddings.Service
}

func (x *sqliteIndex) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	vector, err := x.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return x.SearchVector(ctx, vector, k)
}

func (x *sqliteIndex) SearchVector(ctx context.Context, vector []float32, k int) ([]Result, error) {
	if err := checkQuery(x.info, vector, k); err != nil {
		return nil, err
	}
	if x.info.ChunkCount == 0 {
		return []Result{}, nil
	}

	distanceFunc := "vec_distance_cosine"
	if x.info.Metric == MetricL2 {
		distanceFunc = "vec_distance_l2"
	}

	// Exact scan; ties fall back to insertion order.
	rows, err := x.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT seq, content, source, page, start_char, end_char, %s(embedding, ?) AS distance
		FROM passages
		ORDER BY distance ASC, seq ASC
		LIMIT ?
	`, distanceFunc), serializeEmbedding(vector), k)
	if err != nil {
		return nil, fmt.Errorf("failed to search index %s: %w", x.info.Scope, err)
	}
	defer rows.Close()

	results := make([]Result, 0, min(k, x.info.ChunkCount))
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.Seq, &r.Content, &r.Source, &r.Page, &r.StartChar, &r.EndChar, &r.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.Score = scoreFor(x.info.Metric, r.Distance)
		results = append(results, r)
	}

	return results, rows.Err()
}

func (x *sqliteIndex) Count() int {
	return x.info.ChunkCount
}

func (x *sqliteIndex) Info() IndexInfo {
	return x.info
}

func (x *sqliteIndex) Close() error {
	return x.db.Close()
}

// serializeEmbedding converts a float32 slice to bytes for sqlite-vec.
func serializeEmbedding(embedding []float32) []byte {
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
