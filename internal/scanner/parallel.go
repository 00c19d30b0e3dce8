package scanner

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/retrogolib/set"
	"github.com/semmlerino/spritepal/internal/extractor"
)

// DefaultChunkSize is the size of the ROM area that a worker scans as one job.
const DefaultChunkSize = 0x40000

// ProgressFunc is called after every finished chunk.
type ProgressFunc func(done, total int)

// ParallelFinder scans ROM data with multiple workers.
type ParallelFinder struct {
	logger    *log.Logger
	extractor *extractor.Extractor
	chunkSize int
}

type chunk struct {
	start int
	end   int
}

type chunkResult struct {
	chunk   chunk
	results []Result
}

// NewParallelFinder returns a finder that splits scans into chunks of
// chunkSize bytes, 0 uses DefaultChunkSize.
func NewParallelFinder(logger *log.Logger, ext *extractor.Extractor, chunkSize int) *ParallelFinder {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &ParallelFinder{
		logger:    logger,
		extractor: ext,
		chunkSize: chunkSize,
	}
}

// Find probes the parameter range of data with params.Workers workers. The
// results are sorted by offset. A cancelled context stops all workers and
// returns the results of the chunks that were finished.
func (f *ParallelFinder) Find(ctx context.Context, data []byte, params Params, progress ProgressFunc) ([]Result, error) {
	params.End = min(params.End, len(data))
	if params.Workers == 0 {
		params.Workers = 1
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	chunks := f.split(params)
	jobs := make(chan chunk, params.Workers*2)
	results := make(chan chunkResult, params.Workers*2)

	var wg sync.WaitGroup
	for range params.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				found, ok := f.scanChunk(ctx, data, job, params)
				if !ok {
					continue
				}
				results <- chunkResult{chunk: job, results: found}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, c := range chunks {
			select {
			case jobs <- c:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	seen := set.New[int]()
	var found []Result
	done := 0
	for res := range results {
		for _, r := range res.results {
			if seen.Contains(r.Offset) {
				continue
			}
			seen.Add(r.Offset)
			found = append(found, r)
		}

		done++
		if progress != nil {
			progress(done, len(chunks))
		}
	}

	slices.SortFunc(found, func(a, b Result) int {
		return a.Offset - b.Offset
	})

	if err := ctx.Err(); err != nil {
		return found, fmt.Errorf("parallel scan stopped after %d of %d chunks: %w", done, len(chunks), err)
	}

	f.logger.Debug("Parallel scan finished",
		log.Int("chunks", len(chunks)),
		log.Int("workers", params.Workers),
		log.Int("sprites", len(found)))
	return found, nil
}

func (f *ParallelFinder) split(params Params) []chunk {
	var chunks []chunk
	for start := params.Start; start < params.End; start += f.chunkSize {
		chunks = append(chunks, chunk{
			start: start,
			end:   min(start+f.chunkSize, params.End),
		})
	}
	return chunks
}

// scanChunk probes all offsets of the chunk that lie on the step grid of
// the scan. It returns false if the context was cancelled.
func (f *ParallelFinder) scanChunk(ctx context.Context, data []byte, c chunk, params Params) ([]Result, bool) {
	steps := (c.start - params.Start + params.Step - 1) / params.Step
	first := params.Start + steps*params.Step

	var found []Result
	for offset := first; offset < c.end; offset += params.Step {
		if ctx.Err() != nil {
			return nil, false
		}
		if result, ok := Probe(f.extractor, data, offset); ok {
			found = append(found, result)
		}
	}
	return found, true
}
