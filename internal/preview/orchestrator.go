package preview

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/retroenv/retrogolib/log"
)

// DefaultWorkers is the default number of preview generation workers.
const DefaultWorkers = 4

var (
	// ErrCancelled is returned for requests that were cancelled before
	// their preview was generated.
	ErrCancelled = errors.New("preview request cancelled")
	// ErrClosed is returned for requests to a closed orchestrator.
	ErrClosed = errors.New("preview orchestrator closed")
)

// Response is the result of a preview request.
type Response struct {
	Data *Data
	Tier Tier
	Err  error
}

// Options configure an orchestrator.
type Options struct {
	Workers int
	Memory  *MemoryCache // nil creates a cache with the default limit
	Disk    *DiskCache   // optional
}

// Orchestrator serves preview requests from a chain of caches and generates
// missing previews with a pool of workers. Requests are served by priority,
// requests of the same priority in arrival order. Concurrent requests for
// the same preview share one generation.
type Orchestrator struct {
	logger  *log.Logger
	gen     *Generator
	memory  *MemoryCache
	disk    *DiskCache
	metrics *metrics

	mu      sync.Mutex
	cond    *sync.Cond
	queue   requestQueue
	pending map[string]*request
	last    *Data
	seq     uint64
	closed  bool

	wg sync.WaitGroup
}

type request struct {
	key      string
	offset   int
	priority Priority
	seq      uint64
	index    int // position in the queue, -1 once taken by a worker
	waiters  []waiter
}

// waiter is a caller waiting for the preview of a request.
type waiter struct {
	ctx context.Context
	ch  chan Response
}

// NewOrchestrator starts the workers of an orchestrator. Close must be
// called to stop them.
func NewOrchestrator(logger *log.Logger, gen *Generator, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	o := newOrchestrator(logger, gen, opts)
	o.start(opts.Workers)
	return o
}

func newOrchestrator(logger *log.Logger, gen *Generator, opts Options) *Orchestrator {
	if opts.Memory == nil {
		opts.Memory = NewMemoryCache(0)
	}

	o := &Orchestrator{
		logger:  logger,
		gen:     gen,
		memory:  opts.Memory,
		disk:    opts.Disk,
		metrics: newMetrics(),
		pending: map[string]*request{},
	}
	o.cond = sync.NewCond(&o.mu)
	return o
}

func (o *Orchestrator) start(workers int) {
	for range workers {
		o.wg.Add(1)
		go o.worker()
	}
}

// Request returns a channel that receives the preview of the offset. Cached
// previews are delivered immediately, missing ones are queued for
// generation with the given priority. Callers whose context is done when a
// worker picks up the request receive ErrCancelled, the preview is only
// skipped if this applies to all callers of the request.
func (o *Orchestrator) Request(ctx context.Context, offset int, priority Priority) <-chan Response {
	ch := make(chan Response, 1)
	key := o.gen.Key(offset)

	if data, tier, ok := o.lookup(key); ok {
		o.metrics.hit(tier)
		ch <- Response{Data: data, Tier: tier}
		return ch
	}
	o.metrics.miss()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		ch <- Response{Err: ErrClosed}
		return ch
	}

	if req, ok := o.pending[key]; ok {
		req.waiters = append(req.waiters, waiter{ctx: ctx, ch: ch})
		if priority < req.priority && req.index >= 0 {
			req.priority = priority
			heap.Fix(&o.queue, req.index)
		}
		return ch
	}

	o.seq++
	req := &request{
		key:      key,
		offset:   offset,
		priority: priority,
		seq:      o.seq,
		waiters:  []waiter{{ctx: ctx, ch: ch}},
	}
	o.pending[key] = req
	heap.Push(&o.queue, req)
	o.cond.Signal()
	return ch
}

// Get requests the preview of the offset and waits for the response.
func (o *Orchestrator) Get(ctx context.Context, offset int, priority Priority) (*Data, error) {
	select {
	case resp := <-o.Request(ctx, offset, priority):
		return resp.Data, resp.Err
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for preview of 0x%X: %w", offset, ctx.Err())
	}
}

// lookup searches the cache tiers: the last generated preview, the memory
// cache and the disk cache. Disk hits are promoted into the memory cache.
func (o *Orchestrator) lookup(key string) (*Data, Tier, bool) {
	o.mu.Lock()
	last := o.last
	o.mu.Unlock()
	if last != nil && last.CacheKey == key {
		return last, TierLast, true
	}

	if data, ok := o.memory.Get(key); ok {
		return data, TierMemory, true
	}

	if o.disk != nil {
		if data, ok := o.disk.Get(key, o.gen.ROMHash()); ok {
			o.memory.Put(key, data)
			return data, TierDisk, true
		}
	}
	return nil, "", false
}

// Cancel removes the queued request of the offset. Requests that are
// already being generated can not be cancelled. It returns whether a
// request was cancelled.
func (o *Orchestrator) Cancel(offset int) bool {
	key := o.gen.Key(offset)

	o.mu.Lock()
	req, ok := o.pending[key]
	if !ok || req.index < 0 {
		o.mu.Unlock()
		return false
	}
	heap.Remove(&o.queue, req.index)
	delete(o.pending, key)
	o.mu.Unlock()

	o.metrics.cancelled(1)
	deliver(req, Response{Err: ErrCancelled})
	return true
}

// CancelAll removes all queued requests and returns their number.
func (o *Orchestrator) CancelAll() int {
	queued := o.drain()
	o.metrics.cancelled(len(queued))
	for _, req := range queued {
		deliver(req, Response{Err: ErrCancelled})
	}
	return len(queued)
}

// Warm requests the previews of all offsets in the range with low priority
// and waits for them. Offsets that do not contain a sprite are omitted from
// the result.
func (o *Orchestrator) Warm(ctx context.Context, start, end, step int) (*BatchData, error) {
	if step <= 0 {
		return nil, fmt.Errorf("invalid warm up step %d", step)
	}

	batch := &BatchData{
		Start:    start,
		End:      end,
		Step:     step,
		Previews: map[int]*Data{},
	}

	type pendingResponse struct {
		offset int
		ch     <-chan Response
	}
	var responses []pendingResponse
	for offset := start; offset < end; offset += step {
		responses = append(responses, pendingResponse{offset: offset, ch: o.Request(ctx, offset, Low)})
	}

	for _, p := range responses {
		select {
		case resp := <-p.ch:
			if resp.Err == nil {
				batch.Previews[p.offset] = resp.Data
			}
		case <-ctx.Done():
			return batch, fmt.Errorf("warming previews: %w", ctx.Err())
		}
	}

	o.logger.Debug("Warmed preview cache",
		log.Hex("start", start),
		log.Hex("end", end),
		log.Int("previews", len(batch.Previews)))
	return batch, nil
}

// Metrics returns a snapshot of the request counters.
func (o *Orchestrator) Metrics() MetricsSnapshot {
	return o.metrics.snapshot()
}

// Memory returns the memory cache.
func (o *Orchestrator) Memory() *MemoryCache {
	return o.memory
}

// Close stops the workers after their current generation. Queued requests
// receive ErrClosed.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	queued := o.drain()
	o.cond.Broadcast()
	o.wg.Wait()

	for _, req := range queued {
		deliver(req, Response{Err: ErrClosed})
	}
}

func (o *Orchestrator) drain() []*request {
	o.mu.Lock()
	defer o.mu.Unlock()

	queued := make([]*request, 0, len(o.queue))
	for len(o.queue) > 0 {
		req := heap.Pop(&o.queue).(*request)
		delete(o.pending, req.key)
		queued = append(queued, req)
	}
	return queued
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()

	for {
		o.mu.Lock()
		for len(o.queue) == 0 && !o.closed {
			o.cond.Wait()
		}
		if o.closed {
			o.mu.Unlock()
			return
		}
		req := heap.Pop(&o.queue).(*request)
		o.mu.Unlock()

		o.process(req)
	}
}

func (o *Orchestrator) process(req *request) {
	if !o.dropCancelled(req) {
		return
	}

	started := time.Now()
	data, err := o.gen.Generate(req.offset)
	if err != nil {
		o.metrics.failed()
		o.logger.Debug("Preview generation failed", log.Hex("offset", req.offset), log.Err(err))
		o.finish(req, Response{Err: err})
		return
	}
	o.metrics.generated(time.Since(started))

	o.memory.Put(data.CacheKey, data)
	if o.disk != nil {
		if err := o.disk.Put(data); err != nil {
			o.logger.Warn("Failed to store preview on disk", log.Err(err))
		}
	}

	o.mu.Lock()
	o.last = data
	o.mu.Unlock()
	o.finish(req, Response{Data: data, Tier: TierGenerated})
}

// dropCancelled answers the waiters of the request whose context is done and
// removes them. It returns false if no waiter is left, the request is then
// removed as well.
func (o *Orchestrator) dropCancelled(req *request) bool {
	o.mu.Lock()
	live := req.waiters[:0]
	var cancelled []waiter
	for _, w := range req.waiters {
		if w.ctx.Err() != nil {
			cancelled = append(cancelled, w)
			continue
		}
		live = append(live, w)
	}
	req.waiters = live
	empty := len(live) == 0
	if empty && o.pending[req.key] == req {
		delete(o.pending, req.key)
	}
	o.mu.Unlock()

	if empty {
		o.metrics.cancelled(1)
	}
	for _, w := range cancelled {
		w.ch <- Response{Err: errors.Join(ErrCancelled, w.ctx.Err())}
	}
	return !empty
}

func (o *Orchestrator) finish(req *request, resp Response) {
	o.mu.Lock()
	if o.pending[req.key] == req {
		delete(o.pending, req.key)
	}
	o.mu.Unlock()
	deliver(req, resp)
}

// deliver sends the response to all waiters. It must be called after the
// request was removed from the pending map, so no waiter is added anymore.
func deliver(req *request, resp Response) {
	for _, w := range req.waiters {
		w.ch <- resp
	}
}

// requestQueue is a heap of requests ordered by priority and arrival.
type requestQueue []*request

func (q requestQueue) Len() int { return len(q) }

func (q requestQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q requestQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *requestQueue) Push(x any) {
	req := x.(*request)
	req.index = len(*q)
	*q = append(*q, req)
}

func (q *requestQueue) Pop() any {
	old := *q
	n := len(old)
	req := old[n-1]
	old[n-1] = nil
	req.index = -1
	*q = old[:n-1]
	return req
}
