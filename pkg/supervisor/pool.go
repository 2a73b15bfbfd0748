package supervisor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/trustlens/trustlens/pkg/models"
)

// PoolResult is the outcome of one pooled audit.
type PoolResult struct {
	URL    string              `json:"url"`
	Report *models.FinalReport `json:"report,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// Pool runs audits for a batch of URLs across a fixed set of workers,
// one subprocess per audit. Stop drains in-flight audits and skips the
// rest of the batch.
type Pool struct {
	sup     *Supervisor
	workers int

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewPool creates a pool over sup with the given concurrency.
func NewPool(sup *Supervisor, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{sup: sup, workers: workers, stopCh: make(chan struct{})}
}

// Stop prevents unstarted audits from being picked up. In-flight audits
// finish (or get cancelled through the caller's ctx).
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// Run audits every URL and returns results in input order. Cancelling
// ctx stops workers after their current audit.
func (p *Pool) Run(ctx context.Context, urls []string, opts Options) []PoolResult {
	jobs := make(chan int)
	results := make([]PoolResult, len(urls))

	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for idx := range jobs {
				url := urls[idx]
				slog.Info("Pool worker picked audit", "worker", worker, "url", url)
				report, err := p.sup.RunAudit(ctx, url, opts)
				results[idx] = PoolResult{URL: url, Report: report}
				if err != nil {
					results[idx].Error = err.Error()
				}
			}
		}(w)
	}

	skipFrom := func(idx int, reason string) {
		for i := idx; i < len(urls); i++ {
			results[i] = PoolResult{URL: urls[i], Error: reason}
		}
	}

	feed := func() {
		defer close(jobs)
		for idx := range urls {
			// Stop and cancellation win over a ready worker.
			select {
			case <-p.stopCh:
				skipFrom(idx, "skipped: pool stopped")
				return
			case <-ctx.Done():
				skipFrom(idx, ctx.Err().Error())
				return
			default:
			}
			select {
			case <-p.stopCh:
				skipFrom(idx, "skipped: pool stopped")
				return
			case <-ctx.Done():
				skipFrom(idx, ctx.Err().Error())
				return
			case jobs <- idx:
			}
		}
	}
	feed()
	wg.Wait()
	return results
}
