package server

import (
	"errors"
	"fmt"
	"sync"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/chazu/rat25s/compiler"
)

// ErrWorkerStopped is returned by Do after Stop.
var ErrWorkerStopped = errors.New("analysis worker stopped")

// Analysis is the outcome of compiling one document version.
type Analysis struct {
	Text   string
	Result *compiler.Result
	Err    error

	// Symbols are taken from the latest successful analysis of the
	// document, so hover keeps working while an edit is incomplete.
	Symbols []compiler.Symbol
}

// Cache holds the latest analysis per document. It is owned by the worker
// goroutine and must only be touched from functions passed to Do.
type Cache struct {
	opts compiler.Options
	docs map[protocol.DocumentUri]*Analysis
}

// Analyze compiles text, stores the analysis for uri and returns it.
func (c *Cache) Analyze(uri protocol.DocumentUri, text string) *Analysis {
	res, err := compiler.Compile(text, c.opts)
	a := &Analysis{Text: text, Result: res, Err: err}
	if err == nil {
		a.Symbols = res.Symbols
	} else if prev, ok := c.docs[uri]; ok {
		a.Symbols = prev.Symbols
	}
	c.docs[uri] = a
	return a
}

// Get returns the analysis of uri.
func (c *Cache) Get(uri protocol.DocumentUri) (*Analysis, bool) {
	a, ok := c.docs[uri]
	return a, ok
}

// Forget drops uri from the cache.
func (c *Cache) Forget(uri protocol.DocumentUri) {
	delete(c.docs, uri)
}

// Len returns the number of cached documents.
func (c *Cache) Len() int {
	return len(c.docs)
}

// analysisRequest represents a unit of work to be executed on the worker goroutine.
type analysisRequest struct {
	fn   func(*Cache) interface{}
	done chan analysisResult
}

// analysisResult holds the return value from a cache operation.
type analysisResult struct {
	value interface{}
	err   error
}

// AnalysisWorker serializes all cache access through a single goroutine.
type AnalysisWorker struct {
	cache    *Cache
	requests chan analysisRequest
	quit     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewAnalysisWorker creates an AnalysisWorker and starts the processing goroutine.
func NewAnalysisWorker(opts compiler.Options) *AnalysisWorker {
	w := &AnalysisWorker{
		cache:    &Cache{opts: opts, docs: make(map[protocol.DocumentUri]*Analysis)},
		requests: make(chan analysisRequest, 64),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *AnalysisWorker) loop() {
	defer close(w.stopped)
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs a function on the cache, recovering from panics.
func (w *AnalysisWorker) execute(fn func(*Cache) interface{}) analysisResult {
	var result analysisResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				result.err = fmt.Errorf("%v", r)
			}
		}()
		result.value = fn(w.cache)
	}()
	return result
}

// Do submits a function for execution on the worker goroutine and blocks
// until it completes. Returns the result and any error (including panics).
func (w *AnalysisWorker) Do(fn func(*Cache) interface{}) (interface{}, error) {
	req := analysisRequest{
		fn:   fn,
		done: make(chan analysisResult, 1),
	}
	select {
	case w.requests <- req:
	case <-w.stopped:
		return nil, ErrWorkerStopped
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.stopped:
		return nil, ErrWorkerStopped
	}
}

// Stop shuts down the worker goroutine and waits for it to exit. It is
// safe to call more than once.
func (w *AnalysisWorker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
	<-w.stopped
}
