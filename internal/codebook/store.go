// Package codebook stores survey codebook passages in SQLite and serves
// top-K semantic search over them. Embeddings are stored as JSON arrays and
// ranked with cosine similarity in Go; when the sqlite-vec extension is
// available the distance computation is pushed into SQL instead.
package codebook

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"surveychat/internal/embedding"
	"surveychat/internal/logging"

	_ "github.com/mattn/go-sqlite3"
)

// Passage is a retrieved codebook excerpt with its similarity to the query.
type Passage struct {
	Content    string
	Similarity float64
}

// Store is a SQLite-backed passage store.
type Store struct {
	db        *sql.DB
	mu        sync.RWMutex
	dbPath    string
	engine    embedding.Engine
	vectorExt bool // sqlite-vec available
}

// NewStore opens (or creates) the SQLite database at path. The embedding
// engine is used both at ingest time and at query time.
func NewStore(path string, engine embedding.Engine) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewStore")
	defer timer.Stop()

	if engine == nil {
		return nil, fmt.Errorf("embedding engine is required")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}

	s := &Store{db: db, dbPath: path, engine: engine}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	s.detectVecExtension()
	if s.vectorExt {
		logging.Store("sqlite-vec extension detected and enabled")
	} else {
		logging.StoreDebug("sqlite-vec extension not available; ranking in Go")
	}
	return s, nil
}

func (s *Store) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS passages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			content TEXT NOT NULL,
			embedding TEXT,
			source TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_passages_source ON passages(source);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// detectVecExtension probes for sqlite-vec. The extension is registered by
// the build-tagged init in vec.go; without that tag the probe simply fails.
func (s *Store) detectVecExtension() {
	var version string
	if err := s.db.QueryRow("SELECT vec_version()").Scan(&version); err == nil {
		s.vectorExt = true
		logging.StoreDebug("sqlite-vec version: %s", version)
	}
}

// Ingest embeds and stores the given passages. Existing passages from the
// same source are replaced so re-ingesting a codebook is idempotent.
func (s *Store) Ingest(ctx context.Context, passages []string, source string) (int, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Ingest")
	defer timer.Stop()

	if len(passages) == 0 {
		return 0, nil
	}

	vectors, err := s.engine.EmbedBatch(ctx, passages)
	if err != nil {
		return 0, fmt.Errorf("failed to embed passages: %w", err)
	}
	if len(vectors) != len(passages) {
		return 0, fmt.Errorf("embedding count mismatch: %d passages, %d vectors", len(passages), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM passages WHERE source = ?", source); err != nil {
		return 0, fmt.Errorf("failed to clear previous ingest: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO passages (content, embedding, source) VALUES (?, ?, ?)")
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, content := range passages {
		embJSON, err := json.Marshal(vectors[i])
		if err != nil {
			return 0, fmt.Errorf("failed to serialize embedding: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, content, string(embJSON), source); err != nil {
			return 0, fmt.Errorf("failed to store passage %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}

	logging.Store("Ingested %d passages from %s", len(passages), source)
	return len(passages), nil
}

// Search returns the top-K passages most similar to the query, ordered by
// descending similarity.
func (s *Store) Search(ctx context.Context, query string, k int) ([]Passage, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Search")
	defer timer.Stop()

	if k <= 0 {
		k = 4
	}

	queryVec, err := s.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.vectorExt {
		return s.searchVec(ctx, queryVec, k)
	}
	return s.searchCosine(ctx, queryVec, k)
}

// searchVec ranks passages inside SQLite via sqlite-vec.
func (s *Store) searchVec(ctx context.Context, queryVec []float32, k int) ([]Passage, error) {
	queryJSON, err := json.Marshal(queryVec)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query embedding: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT content, 1.0 - vec_distance_cosine(embedding, ?) AS similarity
		FROM passages
		WHERE embedding IS NOT NULL
		ORDER BY similarity DESC
		LIMIT ?`, string(queryJSON), k)
	if err != nil {
		return nil, fmt.Errorf("vec search failed: %w", err)
	}
	defer rows.Close()

	var results []Passage
	for rows.Next() {
		var p Passage
		if err := rows.Scan(&p.Content, &p.Similarity); err != nil {
			continue
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// searchCosine ranks passages in Go. Fine for codebook-sized corpora.
func (s *Store) searchCosine(ctx context.Context, queryVec []float32, k int) ([]Passage, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT content, embedding FROM passages WHERE embedding IS NOT NULL")
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	defer rows.Close()

	var candidates []Passage
	for rows.Next() {
		var content, embJSON string
		if err := rows.Scan(&content, &embJSON); err != nil {
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(embJSON), &vec); err != nil {
			continue
		}
		sim, err := embedding.CosineSimilarity(queryVec, vec)
		if err != nil {
			continue
		}
		candidates = append(candidates, Passage{Content: content, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Sort by similarity descending. Simple selection sort: K and the
	// candidate set are both small.
	for i := 0; i < len(candidates) && i < k; i++ {
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].Similarity > candidates[i].Similarity {
				candidates[i], candidates[j] = candidates[j], candidates[i]
			}
		}
	}
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// Count returns the number of stored passages.
func (s *Store) Count() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM passages").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Stats returns store statistics for the status command.
func (s *Store) Stats() (map[string]any, error) {
	n, err := s.Count()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"passages":         n,
		"database_path":    s.dbPath,
		"embedding_engine": s.engine.Name(),
		"sqlite_vec":       s.vectorExt,
		"checked_at":       time.Now().Format(time.RFC3339),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
