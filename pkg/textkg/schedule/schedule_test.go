package schedule_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/randalmurphal/textkg/pkg/textkg/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// splitChunker chunks a document's Path field on "|".
func splitChunker(doc schedule.Document) ([]string, error) {
	if doc.Path == "" {
		return nil, nil
	}
	return strings.Split(doc.Path, "|"), nil
}

func collect[R any](ch <-chan schedule.DocumentResult[R]) []schedule.DocumentResult[R] {
	var out []schedule.DocumentResult[R]
	for res := range ch {
		out = append(out, res)
	}
	return out
}

// TestNewDefaults verifies worker and buffer defaults.
func TestNewDefaults(t *testing.T) {
	tests := []struct {
		name       string
		workers    int
		opts       []schedule.Option
		wantWork   int
		wantBuffer int
	}{
		{"small pool gets floor", 2, nil, 2, 8},
		{"large pool doubles", 8, nil, 8, 16},
		{"zero workers clamped", 0, nil, 1, 8},
		{"explicit buffer", 4, []schedule.Option{schedule.WithBufferSize(3)}, 4, 3},
		{"non-positive buffer ignored", 4, []schedule.Option{schedule.WithBufferSize(0)}, 4, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := schedule.New[string](tt.workers, tt.opts...)
			assert.Equal(t, tt.wantWork, s.Workers())
			assert.Equal(t, tt.wantBuffer, s.BufferSize())
		})
	}
}

// TestStreamSingleDocument verifies ordered chunk results for one document.
func TestStreamSingleDocument(t *testing.T) {
	s := schedule.New[string](4)
	docs := []schedule.Document{{Name: "a", Path: "one|two|three"}}

	results := collect(s.Stream(context.Background(), docs, splitChunker,
		func(_ context.Context, item schedule.ChunkItem) (string, error) {
			return strings.ToUpper(item.Text), nil
		}))

	require.Len(t, results, 1)
	res := results[0]
	assert.Equal(t, "a", res.Doc.Name)
	require.NoError(t, res.Err)
	require.Len(t, res.Chunks, 3)
	for i, want := range []string{"ONE", "TWO", "THREE"} {
		assert.Equal(t, i, res.Chunks[i].Index)
		assert.Equal(t, want, res.Chunks[i].Value)
	}
}

// TestStreamChunkFailureIsolated verifies a failing chunk doesn't take
// down its document or its sibling chunks.
func TestStreamChunkFailureIsolated(t *testing.T) {
	s := schedule.New[string](2)
	docs := []schedule.Document{{Name: "a", Path: "one|boom|three"}}
	wantErr := errors.New("extraction failed")

	results := collect(s.Stream(context.Background(), docs, splitChunker,
		func(_ context.Context, item schedule.ChunkItem) (string, error) {
			if item.Text == "boom" {
				return "", wantErr
			}
			return item.Text, nil
		}))

	require.Len(t, results, 1)
	res := results[0]
	require.NoError(t, res.Err)
	require.Len(t, res.Chunks, 3)
	assert.NoError(t, res.Chunks[0].Err)
	assert.ErrorIs(t, res.Chunks[1].Err, wantErr)
	assert.NoError(t, res.Chunks[2].Err)
	assert.Equal(t, 1, res.Chunks[1].Index)
}

// TestStreamProcessPanicBecomesError verifies a panicking process
// function is captured as that chunk's error.
func TestStreamProcessPanicBecomesError(t *testing.T) {
	s := schedule.New[string](2)
	docs := []schedule.Document{{Name: "a", Path: "ok|panic"}}

	results := collect(s.Stream(context.Background(), docs, splitChunker,
		func(_ context.Context, item schedule.ChunkItem) (string, error) {
			if item.Text == "panic" {
				panic("worker blew up")
			}
			return item.Text, nil
		}))

	require.Len(t, results, 1)
	res := results[0]
	require.Len(t, res.Chunks, 2)
	assert.NoError(t, res.Chunks[0].Err)
	require.Error(t, res.Chunks[1].Err)
	assert.Contains(t, res.Chunks[1].Err.Error(), "panic")
}

// TestStreamChunkerFailure verifies a chunker error short-circuits only
// that document.
func TestStreamChunkerFailure(t *testing.T) {
	s := schedule.New[string](2)
	docs := []schedule.Document{
		{Name: "bad"},
		{Name: "good", Path: "one|two"},
	}
	chunkErr := errors.New("unreadable")

	results := collect(s.Stream(context.Background(), docs,
		func(doc schedule.Document) ([]string, error) {
			if doc.Name == "bad" {
				return nil, chunkErr
			}
			return splitChunker(doc)
		},
		func(_ context.Context, item schedule.ChunkItem) (string, error) {
			return item.Text, nil
		}))

	require.Len(t, results, 2)
	byName := map[string]schedule.DocumentResult[string]{}
	for _, res := range results {
		byName[res.Doc.Name] = res
	}

	bad := byName["bad"]
	require.ErrorIs(t, bad.Err, chunkErr)
	require.Len(t, bad.Chunks, 1)
	assert.ErrorIs(t, bad.Chunks[0].Err, chunkErr)

	good := byName["good"]
	require.NoError(t, good.Err)
	assert.Len(t, good.Chunks, 2)
}

// TestStreamChunkerPanic verifies a panicking chunker fails only its
// document.
func TestStreamChunkerPanic(t *testing.T) {
	s := schedule.New[string](2)
	docs := []schedule.Document{
		{Name: "boomy"},
		{Name: "fine", Path: "x"},
	}

	results := collect(s.Stream(context.Background(), docs,
		func(doc schedule.Document) ([]string, error) {
			if doc.Name == "boomy" {
				panic("chunker exploded")
			}
			return splitChunker(doc)
		},
		func(_ context.Context, item schedule.ChunkItem) (string, error) {
			return item.Text, nil
		}))

	require.Len(t, results, 2)
	byName := map[string]schedule.DocumentResult[string]{}
	for _, res := range results {
		byName[res.Doc.Name] = res
	}
	require.Error(t, byName["boomy"].Err)
	assert.Contains(t, byName["boomy"].Err.Error(), "panic")
	assert.NoError(t, byName["fine"].Err)
}

// TestStreamSmallDocsEmitBeforeLarge verifies cross-document pooling:
// documents whose chunks all fit in early batches finish before a
// document with many chunks.
func TestStreamSmallDocsEmitBeforeLarge(t *testing.T) {
	s := schedule.New[int](4, schedule.WithBufferSize(4))

	big := strings.Repeat("c|", 9) + "c" // 10 chunks
	docs := []schedule.Document{
		{Name: "small1", Path: "c"},
		{Name: "small2", Path: "c"},
		{Name: "small3", Path: "c"},
		{Name: "big", Path: big},
	}

	var order []string
	for res := range s.Stream(context.Background(), docs, splitChunker,
		func(_ context.Context, item schedule.ChunkItem) (int, error) {
			return item.Index, nil
		}) {
		require.NoError(t, res.Err)
		order = append(order, res.Doc.Name)
	}

	require.Len(t, order, 4)
	assert.Equal(t, "big", order[len(order)-1])

	bigIdx := -1
	for i, name := range order {
		if name == "big" {
			bigIdx = i
		}
	}
	for i, name := range order {
		if name != "big" {
			assert.Less(t, i, bigIdx, "small document %s should finish before the large one", name)
		}
	}
}

// TestStreamChunkCountOnBufferBoundary verifies a document whose chunk
// count is an exact multiple of the buffer size is still emitted: its
// end-of-document marker is the only event left for the final refill.
func TestStreamChunkCountOnBufferBoundary(t *testing.T) {
	tests := []struct {
		name   string
		chunks int
	}{
		{"exactly one buffer", 4},
		{"exactly two buffers", 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := schedule.New[string](2, schedule.WithBufferSize(4))
			path := strings.TrimSuffix(strings.Repeat("c|", tt.chunks), "|")
			docs := []schedule.Document{{Name: "a", Path: path}}

			results := collect(s.Stream(context.Background(), docs, splitChunker,
				func(_ context.Context, item schedule.ChunkItem) (string, error) {
					return item.Text, nil
				}))

			require.Len(t, results, 1)
			require.NoError(t, results[0].Err)
			assert.Len(t, results[0].Chunks, tt.chunks)
		})
	}
}

// TestStreamTrailingMarkersFlush verifies a document completed only by
// the final refill is emitted before the stream closes.
func TestStreamTrailingMarkersFlush(t *testing.T) {
	s := schedule.New[string](2, schedule.WithBufferSize(4))
	docs := []schedule.Document{
		{Name: "a", Path: "one|two"},
		{Name: "b", Path: "three|four"},
	}

	results := collect(s.Stream(context.Background(), docs, splitChunker,
		func(_ context.Context, item schedule.ChunkItem) (string, error) {
			return item.Text, nil
		}))

	require.Len(t, results, 2)
	for _, res := range results {
		require.NoError(t, res.Err)
		assert.Len(t, res.Chunks, 2)
	}
}

// TestStreamZeroChunkDocumentNotEmitted verifies a document with no
// chunks produces no result.
func TestStreamZeroChunkDocumentNotEmitted(t *testing.T) {
	s := schedule.New[string](2)
	docs := []schedule.Document{
		{Name: "empty"},
		{Name: "full", Path: "x"},
	}

	results := collect(s.Stream(context.Background(), docs, splitChunker,
		func(_ context.Context, item schedule.ChunkItem) (string, error) {
			return item.Text, nil
		}))

	require.Len(t, results, 1)
	assert.Equal(t, "full", results[0].Doc.Name)
}

// TestStreamCancellation verifies cancelling the context stops the
// stream and closes the channel.
func TestStreamCancellation(t *testing.T) {
	s := schedule.New[string](2, schedule.WithBufferSize(2))
	ctx, cancel := context.WithCancel(context.Background())

	many := make([]schedule.Document, 20)
	for i := range many {
		many[i] = schedule.Document{Name: fmt.Sprintf("d%d", i), Path: "a|b|c"}
	}

	var processed atomic.Int64
	ch := s.Stream(ctx, many, splitChunker,
		func(ctx context.Context, item schedule.ChunkItem) (string, error) {
			processed.Add(1)
			select {
			case <-time.After(5 * time.Millisecond):
			case <-ctx.Done():
			}
			return item.Text, nil
		})

	// Take one result then walk away.
	<-ch
	cancel()

	done := make(chan struct{})
	go func() {
		for range ch {
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not terminate after cancellation")
	}
	assert.Less(t, processed.Load(), int64(60), "cancellation should stop dispatching")
}

// TestStreamConcurrencyBound verifies no more than the pool size runs
// at once.
func TestStreamConcurrencyBound(t *testing.T) {
	const workers = 3
	s := schedule.New[struct{}](workers, schedule.WithBufferSize(12))

	docs := []schedule.Document{{Name: "a", Path: strings.Repeat("c|", 11) + "c"}}

	var mu sync.Mutex
	var inFlight, peak int

	results := collect(s.Stream(context.Background(), docs, splitChunker,
		func(_ context.Context, _ schedule.ChunkItem) (struct{}, error) {
			mu.Lock()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			return struct{}{}, nil
		}))

	require.Len(t, results, 1)
	assert.LessOrEqual(t, peak, workers)
}
