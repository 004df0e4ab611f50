// Package retrieval implements the Postgres-backed nearest-neighbor memory
// store behind the Prompt Builder's retrieval-store variant. Similarity
// ranking happens application-side in Go rather than via a pgvector SQL
// operator: pgvector is an optional Postgres extension, and assuming its
// presence would make every deployment's database provisioning a silent
// prerequisite. The schema only needs a plain array column, so a table any
// Postgres 13+ instance can host is enough.
package retrieval

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	lspaierrors "github.com/standardbeagle/lspaid/internal/errors"
)

// Chunk is one row of the memory table: a piece of source text, the source
// URI it came from, and its embedding vector.
type Chunk struct {
	URI       string
	Text      string
	Embedding []float32
}

// EmbedFunc produces an embedding for a piece of text. Embedding itself is
// out-of-band: callers supply whatever model they've configured, and no
// particular embedding HTTP wire format is assumed here.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

const (
	flushInterval  = 500 * time.Millisecond
	maxBufferBytes = 100 * 1024 * 1024
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS lspaid_memory_chunks (
	uri TEXT NOT NULL,
	chunk TEXT NOT NULL,
	embedding REAL[] NOT NULL
)`

const upsertSQL = `INSERT INTO lspaid_memory_chunks (uri, chunk, embedding) VALUES ($1, $2, $3)`

const selectAllSQL = `SELECT uri, chunk, embedding FROM lspaid_memory_chunks`

// querier is the narrow surface Store needs from a pgx connection pool,
// letting tests substitute a fake without a live Postgres instance.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store buffers upserts and flushes them in batches, every ~500ms or at
// 100MB buffered, whichever comes first.
type Store struct {
	db querier

	mu           sync.Mutex
	pending      []Chunk
	pendingBytes int
}

// Connect opens a pgx connection pool against databaseURL and ensures the
// memory table exists.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, lspaierrors.NewInternalError("retrieval.connect", err)
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, lspaierrors.NewInternalError("retrieval.create_table", err)
	}
	return &Store{db: pool}, nil
}

// newWithQuerier builds a Store around an already-open connection, used by
// tests to substitute a fake querier.
func newWithQuerier(q querier) *Store { return &Store{db: q} }

// Enqueue buffers a chunk for upsert, flushing immediately if the buffer
// has reached the byte budget.
func (s *Store) Enqueue(c Chunk) {
	s.mu.Lock()
	s.pending = append(s.pending, c)
	s.pendingBytes += len(c.Text)
	over := s.pendingBytes >= maxBufferBytes
	s.mu.Unlock()

	if over {
		_ = s.Flush(context.Background())
	}
}

// Run ticks every flushInterval, flushing any buffered chunks, until ctx is
// canceled.
func (s *Store) Run(ctx context.Context) {
	t := time.NewTicker(flushInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = s.Flush(ctx)
		}
	}
}

// Flush writes every buffered chunk to the table and clears the buffer.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.pendingBytes = 0
	s.mu.Unlock()

	for _, c := range batch {
		if _, err := s.db.Exec(ctx, upsertSQL, c.URI, c.Text, c.Embedding); err != nil {
			return lspaierrors.NewInternalError("retrieval.flush", err)
		}
	}
	return nil
}

// Query returns the topK chunks most similar to queryEmbedding by cosine
// similarity.
func (s *Store) Query(ctx context.Context, queryEmbedding []float32, topK int) ([]Chunk, error) {
	rows, err := s.db.Query(ctx, selectAllSQL)
	if err != nil {
		return nil, lspaierrors.NewInternalError("retrieval.query", err)
	}
	defer rows.Close()

	var all []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.URI, &c.Text, &c.Embedding); err != nil {
			return nil, lspaierrors.NewInternalError("retrieval.query.scan", err)
		}
		all = append(all, c)
	}
	if err := rows.Err(); err != nil {
		return nil, lspaierrors.NewInternalError("retrieval.query.rows", err)
	}

	return rankTopK(all, queryEmbedding, topK), nil
}

func rankTopK(chunks []Chunk, query []float32, k int) []Chunk {
	type scored struct {
		chunk Chunk
		score float64
	}
	scoredList := make([]scored, len(chunks))
	for i, c := range chunks {
		scoredList[i] = scored{chunk: c, score: cosineSimilarity(c.Embedding, query)}
	}
	sort.Slice(scoredList, func(i, j int) bool { return scoredList[i].score > scoredList[j].score })

	if k > len(scoredList) {
		k = len(scoredList)
	}
	out := make([]Chunk, k)
	for i := 0; i < k; i++ {
		out[i] = scoredList[i].chunk
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return -1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// JoinContext concatenates chunks separated by blank lines, truncated to
// maxChars characters
func JoinContext(chunks []Chunk, maxChars int) string {
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(c.Text)
	}
	runes := []rune(b.String())
	if len(runes) > maxChars {
		runes = runes[:maxChars]
	}
	return string(runes)
}

// QueryWindow extracts a window of size runes centered on cursorChar from
// text, used as the retrieval query ("a short window, e.g.
// 512 characters, centered on the cursor").
func QueryWindow(text string, cursorChar, window int) string {
	runes := []rune(text)
	half := window / 2
	start := cursorChar - half
	if start < 0 {
		start = 0
	}
	end := start + window
	if end > len(runes) {
		end = len(runes)
	}
	if start > end {
		start = end
	}
	return string(runes[start:end])
}
