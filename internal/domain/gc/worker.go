package gc

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"mediastore/internal/domain/registry"
)

// Task is one candidate for physical deletion. Enqueued when an unbind
// drops a refcount to zero; the worker re-checks before touching anything.
type Task struct {
	Hash        string
	StoragePath string
}

// Worker deletes unreferenced content asynchronously. Deletes are
// at-least-once and idempotent: a hash re-referenced between enqueue and
// execution makes the task a no-op, and removing an already-absent file
// is not an error.
type Worker struct {
	registry      registry.Repository
	mediaRoot     string
	tasks         chan Task
	workers       int
	sweepInterval time.Duration
	wg            sync.WaitGroup
	done          chan struct{}
}

func NewWorker(reg registry.Repository, mediaRoot string, workers int, sweepInterval time.Duration) *Worker {
	if workers <= 0 {
		workers = 1
	}
	return &Worker{
		registry:      reg,
		mediaRoot:     mediaRoot,
		tasks:         make(chan Task, 256),
		workers:       workers,
		sweepInterval: sweepInterval,
		done:          make(chan struct{}),
	}
}

// Start launches the worker pool and the periodic reconciliation sweep.
func (w *Worker) Start(ctx context.Context) {
	log.Printf("gc worker started: workers=%d sweep_interval=%s", w.workers, w.sweepInterval)

	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for {
				select {
				case task := <-w.tasks:
					w.process(ctx, task)
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(w.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.Sweep(ctx)
			case <-ctx.Done():
				w.wg.Wait()
				close(w.done)
				return
			}
		}
	}()
}

// Wait blocks until the worker pool has fully stopped.
func (w *Worker) Wait() {
	<-w.done
}

// Enqueue schedules a deletion candidate. It never blocks a request
// handler: on a full queue the task is dropped and left to the sweep.
func (w *Worker) Enqueue(task Task) {
	select {
	case w.tasks <- task:
	default:
		log.Printf("gc queue full, deferring %s to sweep", task.Hash)
	}
}

// process deletes the registry row and file, but only if the refcount is
// still zero. The conditional row delete is the load-bearing re-check: a
// new owner binding to the hash after enqueue keeps the content alive.
func (w *Worker) process(ctx context.Context, task Task) {
	deleted, err := w.registry.DeleteIfUnreferenced(ctx, task.Hash)
	if err != nil {
		log.Printf("gc: re-check for %s failed, retrying later: %v", task.Hash, err)
		return
	}
	if !deleted {
		// Re-referenced or already reclaimed. Expected under races.
		return
	}

	abs := filepath.Join(w.mediaRoot, task.StoragePath)
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		log.Printf("gc: failed to remove %s: %v", abs, err)
		return
	}
	log.Printf("gc: reclaimed %s", task.Hash)
}

// Sweep re-enqueues every zero-refcount row. It is the crash-recovery
// path for decrements whose async delete never ran.
func (w *Worker) Sweep(ctx context.Context) {
	recs, err := w.registry.ListUnreferenced(ctx)
	if err != nil {
		log.Printf("gc sweep: listing unreferenced rows failed: %v", err)
		return
	}
	if len(recs) == 0 {
		return
	}
	log.Printf("gc sweep: %d unreferenced rows", len(recs))
	for _, rec := range recs {
		w.process(ctx, Task{Hash: rec.Hash, StoragePath: rec.StoragePath})
	}
}
