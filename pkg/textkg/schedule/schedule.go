// Package schedule implements cross-document streaming scheduling for
// chunked document processing.
//
// Naive per-document batching underutilizes a fixed-size worker pool
// whenever a document has fewer chunks than the pool has workers, and
// naive global batching emits nothing until the entire corpus is done.
// The scheduler pools chunks from many documents into a shared bounded
// buffer to keep the pool saturated, while still emitting each
// document's results as a unit, sorted by chunk index, as soon as that
// document's last chunk completes.
//
// The coordinating goroutine is the only place that mutates the
// bookkeeping state (buffer, per-document result map); workers only
// compute and return results, so no locking is needed.
package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Document identifies one unit of input to the scheduler.
type Document struct {
	// Name is the document's display name.
	Name string

	// Path optionally locates the document's content; chunkers that
	// read from disk use it.
	Path string
}

// Chunker splits a document into an ordered sequence of text chunks.
// A chunker failure is isolated to that document: it is emitted
// immediately with a single synthetic failed-chunk result.
type Chunker func(doc Document) ([]string, error)

// ChunkItem is one unit of work handed to the processing function.
type ChunkItem struct {
	// Doc is the document the chunk came from.
	Doc Document

	// DocIndex is the document's position in the submitted list.
	DocIndex int

	// Index is the chunk's position within the document.
	Index int

	// Text is the chunk content.
	Text string
}

// ProcessFunc processes one chunk. It is opaque to the scheduler; a
// returned error (or panic) is captured as that chunk's result and
// never aborts the batch.
type ProcessFunc[R any] func(ctx context.Context, item ChunkItem) (R, error)

// ChunkResult is the outcome of processing one chunk.
type ChunkResult[R any] struct {
	// Index is the chunk's position within its document.
	Index int

	// Value is the processing result when Err is nil.
	Value R

	// Err is the processing failure, if any.
	Err error
}

// DocumentResult is the per-document output unit: every chunk result,
// sorted by chunk index.
type DocumentResult[R any] struct {
	// Doc is the completed document.
	Doc Document

	// Chunks holds the chunk results in ascending index order.
	Chunks []ChunkResult[R]

	// Err is set when the document as a whole failed (chunker error or
	// a scheduler fault); Chunks then holds a single failed entry.
	Err error
}

// Scheduler dispatches chunks from many documents across a bounded
// worker pool. The zero value is not usable; use New.
type Scheduler[R any] struct {
	workers    int
	bufferSize int
}

// Option configures a Scheduler.
type Option func(*settings)

type settings struct {
	bufferSize int
}

// WithBufferSize overrides the chunk buffer capacity. The default is
// max(2 x workers, 8). The buffer bounds in-flight concurrency per
// batch; it is a tuning knob, not a correctness requirement.
func WithBufferSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.bufferSize = n
		}
	}
}

// New creates a scheduler with the given worker-pool size.
func New[R any](workers int, opts ...Option) *Scheduler[R] {
	if workers < 1 {
		workers = 1
	}
	s := settings{}
	for _, opt := range opts {
		opt(&s)
	}
	if s.bufferSize == 0 {
		s.bufferSize = 2 * workers
		if s.bufferSize < 8 {
			s.bufferSize = 8
		}
	}
	return &Scheduler[R]{workers: workers, bufferSize: s.bufferSize}
}

// Workers returns the worker-pool size.
func (s *Scheduler[R]) Workers() int { return s.workers }

// BufferSize returns the chunk buffer capacity.
func (s *Scheduler[R]) BufferSize() int { return s.bufferSize }

// Stream processes the documents and returns a channel of per-document
// results. Each document is emitted as soon as its last chunk result is
// available; emission order across documents is completion order, not
// submission order. A document whose chunker yields zero chunks
// produces no result at all. The channel is always closed, even when
// the scheduler itself faults. Cancelling ctx stops the stream; work
// already dispatched to the pool is allowed to finish.
func (s *Scheduler[R]) Stream(ctx context.Context, docs []Document, chunk Chunker, process ProcessFunc[R]) <-chan DocumentResult[R] {
	out := make(chan DocumentResult[R])
	go func() {
		defer close(out)
		s.run(ctx, docs, chunk, process, out)
	}()
	return out
}

// docState tracks one in-flight document.
type docState struct {
	doc      Document
	complete bool
}

type docResults[R any] struct {
	docState
	results map[int]ChunkResult[R]
}

// run is the coordinating loop. All bookkeeping mutation happens here.
func (s *Scheduler[R]) run(ctx context.Context, docs []Document, chunk Chunker, process ProcessFunc[R], out chan<- DocumentResult[R]) {
	pending := make(map[int]*docResults[R])

	// A fault in the scheduler's own bookkeeping becomes a failed
	// result for every outstanding document; the stream terminates
	// instead of panicking past the consumer.
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("scheduler fault: %v", r)
			for _, idx := range sortedKeys(pending) {
				emit(ctx, out, failedDocument[R](pending[idx].doc, err))
			}
		}
	}()

	cur := newCursor(docs, chunk)
	buffer := make([]ChunkItem, 0, s.bufferSize)

	for {
		if ctx.Err() != nil {
			return
		}

		// Refill the buffer from the cursor.
		for len(buffer) < s.bufferSize {
			ev, ok := cur.next()
			if !ok {
				break
			}
			switch {
			case ev.err != nil:
				// Chunking failed: short-circuit the whole document.
				if !emit(ctx, out, failedDocument[R](ev.doc, ev.err)) {
					return
				}
			case ev.endOfDoc:
				if st, ok := pending[ev.docIndex]; ok {
					st.complete = true
				}
			default:
				buffer = append(buffer, ev.item)
				if _, ok := pending[ev.docIndex]; !ok {
					pending[ev.docIndex] = &docResults[R]{
						docState: docState{doc: ev.doc},
						results:  make(map[int]ChunkResult[R]),
					}
				}
			}
		}

		// An empty buffer after a refill means the cursor is exhausted.
		// The completion sweep below must still run: the refill may have
		// pulled only end-of-document markers, as happens whenever a
		// document's chunk count lands exactly on a buffer boundary.
		drained := len(buffer) == 0

		if !drained {
			// Dispatch the buffered chunks as one batch across the pool.
			// Returned results correspond 1:1 to submitted order.
			results := s.runBatch(ctx, buffer, process)
			for i, item := range buffer {
				pending[item.DocIndex].results[item.Index] = results[i]
			}
			buffer = buffer[:0]
		}

		// Emit every document that is now complete.
		for _, idx := range sortedKeys(pending) {
			st := pending[idx]
			if !st.complete || len(st.results) == 0 {
				continue
			}
			if !emit(ctx, out, assembled(st)) {
				return
			}
			delete(pending, idx)
		}

		if drained {
			return
		}
	}
}

// runBatch executes one batch across the bounded worker pool.
func (s *Scheduler[R]) runBatch(ctx context.Context, items []ChunkItem, process ProcessFunc[R]) []ChunkResult[R] {
	results := make([]ChunkResult[R], len(items))
	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		go func(i int, item ChunkItem) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res := ChunkResult[R]{Index: item.Index}
			func() {
				defer func() {
					if r := recover(); r != nil {
						res.Err = fmt.Errorf("chunk %d of %s: processing panic: %v", item.Index, item.Doc.Name, r)
					}
				}()
				res.Value, res.Err = process(ctx, item)
			}()
			results[i] = res
		}(i, item)
	}

	wg.Wait()
	return results
}

// assembled builds the ordered result for a completed document.
func assembled[R any](st *docResults[R]) DocumentResult[R] {
	chunks := make([]ChunkResult[R], 0, len(st.results))
	for _, res := range st.results {
		chunks = append(chunks, res)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
	return DocumentResult[R]{Doc: st.doc, Chunks: chunks}
}

// failedDocument builds the synthetic single-failed-chunk result.
func failedDocument[R any](doc Document, err error) DocumentResult[R] {
	return DocumentResult[R]{
		Doc:    doc,
		Chunks: []ChunkResult[R]{{Index: 0, Err: err}},
		Err:    err,
	}
}

// emit sends a result unless the consumer has cancelled.
func emit[R any](ctx context.Context, out chan<- DocumentResult[R], res DocumentResult[R]) bool {
	select {
	case out <- res:
		return true
	case <-ctx.Done():
		return false
	}
}

func sortedKeys[R any](m map[int]*docResults[R]) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// cursorEvent is one step of the document/chunk cursor.
type cursorEvent struct {
	item     ChunkItem
	doc      Document
	docIndex int
	endOfDoc bool
	err      error
}

// cursor advances document-by-document, chunk-by-chunk, emitting a
// synthetic end-of-document event after each document's last chunk.
// Chunking is lazy: a document is split only when the cursor reaches it.
type cursor struct {
	docs     []Document
	chunk    Chunker
	docIdx   int
	chunks   []string
	chunkIdx int
	loaded   bool
}

func newCursor(docs []Document, chunk Chunker) *cursor {
	return &cursor{docs: docs, chunk: chunk}
}

func (c *cursor) next() (cursorEvent, bool) {
	for c.docIdx < len(c.docs) {
		doc := c.docs[c.docIdx]

		if !c.loaded {
			chunks, err := c.split(doc)
			if err != nil {
				c.docIdx++
				return cursorEvent{doc: doc, docIndex: c.docIdx - 1, endOfDoc: true, err: err}, true
			}
			c.chunks = chunks
			c.chunkIdx = 0
			c.loaded = true
		}

		if c.chunkIdx < len(c.chunks) {
			ev := cursorEvent{
				item: ChunkItem{
					Doc:      doc,
					DocIndex: c.docIdx,
					Index:    c.chunkIdx,
					Text:     c.chunks[c.chunkIdx],
				},
				doc:      doc,
				docIndex: c.docIdx,
			}
			c.chunkIdx++
			return ev, true
		}

		// Document exhausted: emit the end marker and move on.
		ev := cursorEvent{doc: doc, docIndex: c.docIdx, endOfDoc: true}
		c.docIdx++
		c.loaded = false
		return ev, true
	}
	return cursorEvent{}, false
}

// split calls the chunker, converting a panic into an error so one bad
// document cannot take down the stream.
func (c *cursor) split(doc Document) (chunks []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("chunking %s: panic: %v", doc.Name, r)
		}
	}()
	return c.chunk(doc)
}
