package embeddings

import (
	"context"
	"errors"
	"testing"

	"github.com/dariapavlova/sanctions-screen/internal/metrics"
)

type stubProvider struct {
	vectors [][]float64
	err     error
	calls   int
}

func (s *stubProvider) Embed(_ context.Context, texts []string) ([][]float64, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.vectors, nil
}

func TestDispatch_SuccessRecordsDispatchCount(t *testing.T) {
	m := metrics.New()
	p := &stubProvider{vectors: [][]float64{{0.1, 0.2}}}
	d := NewDispatcher(p, 1000, 10, 4, m)

	vecs, err := d.Dispatch(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(vecs) != 1 {
		t.Fatalf("expected 1 vector, got %d", len(vecs))
	}
	if m.EmbeddingDispatches.Load() != 1 {
		t.Errorf("expected 1 dispatch recorded, got %d", m.EmbeddingDispatches.Load())
	}
	if m.EmbeddingErrors.Load() != 0 {
		t.Errorf("expected 0 errors recorded, got %d", m.EmbeddingErrors.Load())
	}
}

func TestDispatch_ProviderErrorRecordsFallback(t *testing.T) {
	m := metrics.New()
	p := &stubProvider{err: errors.New("upstream down")}
	d := NewDispatcher(p, 1000, 10, 4, m)

	_, err := d.Dispatch(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatal("expected an error from the failing provider")
	}
	if m.EmbeddingErrors.Load() != 1 {
		t.Errorf("expected 1 error recorded, got %d", m.EmbeddingErrors.Load())
	}
	if m.EmbeddingFallbacks.Load() != 1 {
		t.Errorf("expected 1 fallback recorded, got %d", m.EmbeddingFallbacks.Load())
	}
}

func TestDispatch_CanceledContextRecordsFallback(t *testing.T) {
	m := metrics.New()
	p := &stubProvider{vectors: [][]float64{{0.1}}}
	d := NewDispatcher(p, 1000, 10, 4, m)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Dispatch(ctx, []string{"hello"})
	if err == nil {
		t.Fatal("expected an error for a canceled context")
	}
	if m.EmbeddingFallbacks.Load() != 1 {
		t.Errorf("expected 1 fallback recorded, got %d", m.EmbeddingFallbacks.Load())
	}
}

func TestDispatch_NilMetricsDoesNotPanic(t *testing.T) {
	p := &stubProvider{vectors: [][]float64{{0.1}}}
	d := NewDispatcher(p, 1000, 10, 4, nil)
	if _, err := d.Dispatch(context.Background(), []string{"hello"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
}

func TestNewDispatcher_ClampsMaxConcurrentBelowOne(t *testing.T) {
	p := &stubProvider{vectors: [][]float64{{0.1}}}
	d := NewDispatcher(p, 1000, 10, 0, nil)
	if cap(d.sem) != 1 {
		t.Errorf("expected semaphore capacity clamped to 1, got %d", cap(d.sem))
	}
}
