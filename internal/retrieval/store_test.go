package retrieval

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestCosineSimilarityIdentical(t *testing.T) {
	v := []float32{1, 2, 3}
	if got := cosineSimilarity(v, v); got < 0.999 {
		t.Fatalf("identical vectors should have similarity ~1, got %f", got)
	}
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	got := cosineSimilarity([]float32{1, 0}, []float32{0, 1})
	if got > 0.001 || got < -0.001 {
		t.Fatalf("orthogonal vectors should have similarity ~0, got %f", got)
	}
}

func TestRankTopK(t *testing.T) {
	chunks := []Chunk{
		{URI: "a", Embedding: []float32{1, 0}},
		{URI: "b", Embedding: []float32{0, 1}},
		{URI: "c", Embedding: []float32{0.9, 0.1}},
	}
	ranked := rankTopK(chunks, []float32{1, 0}, 2)
	if len(ranked) != 2 || ranked[0].URI != "a" || ranked[1].URI != "c" {
		t.Fatalf("unexpected ranking: %+v", ranked)
	}
}

func TestJoinContextTruncates(t *testing.T) {
	chunks := []Chunk{{Text: "hello"}, {Text: "world"}}
	got := JoinContext(chunks, 7)
	if got != "hello\n\n" {
		t.Fatalf("got %q", got)
	}
}

func TestQueryWindowCentersOnCursor(t *testing.T) {
	text := "0123456789"
	got := QueryWindow(text, 5, 4)
	if got != "3456" {
		t.Fatalf("got %q", got)
	}
}

func TestQueryWindowClampsAtEdges(t *testing.T) {
	text := "0123456789"
	got := QueryWindow(text, 0, 6)
	if got != "012345" {
		t.Fatalf("got %q", got)
	}
}

type fakeQuerier struct {
	execCalls int
}

func (f *fakeQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execCalls++
	return pgconn.CommandTag{}, nil
}

func (f *fakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, fmt.Errorf("not implemented in fake")
}

func TestEnqueueFlushesAtByteBudget(t *testing.T) {
	fq := &fakeQuerier{}
	s := newWithQuerier(fq)

	big := make([]byte, maxBufferBytes)
	s.Enqueue(Chunk{URI: "big", Text: string(big)})

	if fq.execCalls != 1 {
		t.Fatalf("expected an immediate flush once the byte budget is hit, got %d exec calls", fq.execCalls)
	}
}

func TestFlushClearsBuffer(t *testing.T) {
	fq := &fakeQuerier{}
	s := newWithQuerier(fq)
	s.Enqueue(Chunk{URI: "a", Text: "small"})

	if err := s.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if fq.execCalls != 1 {
		t.Fatalf("expected 1 exec call, got %d", fq.execCalls)
	}
	if err := s.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if fq.execCalls != 1 {
		t.Fatalf("second flush with nothing buffered should not call Exec again, got %d", fq.execCalls)
	}
}
