// Package reconciler runs head count repair jobs from the queue and on a timer.
package reconciler

import (
	"context"
	"log"
	"time"

	"messhall/internal/attendance"
	"messhall/internal/metrics"
	"messhall/internal/queue"
)

// Worker consumes reconcile jobs.
type Worker struct {
	Queue      queue.Queue
	Aggregator *attendance.Aggregator
	Metrics    *metrics.Metrics
	// Interval between unprompted passes; zero disables the timer.
	Interval time.Duration
}

// Run checks the view once, then blocks until ctx is done or the queue
// closes.
func (w *Worker) Run(ctx context.Context) error {
	messages, err := w.Queue.Consume(ctx)
	if err != nil {
		return err
	}
	Pass(ctx, w.Aggregator, w.Metrics, "startup")
	var tick <-chan time.Time
	if w.Interval > 0 {
		t := time.NewTicker(w.Interval)
		defer t.Stop()
		tick = t.C
	}

	log.Println("reconciler started, waiting for jobs...")
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if msg.Type != queue.TypeReconcile {
				log.Printf("reconciler: skipping %q job", msg.Type)
				continue
			}
			w.pass(ctx, "stale "+string(msg.Body))
		case <-tick:
			w.pass(ctx, "interval")
		}
	}
}

func (w *Worker) pass(ctx context.Context, reason string) {
	Pass(ctx, w.Aggregator, w.Metrics, reason)
}

// Pass runs one reconcile and logs the report. m may be nil.
func Pass(ctx context.Context, agg *attendance.Aggregator, m *metrics.Metrics, reason string) (attendance.ReconcileReport, error) {
	report, err := agg.Reconcile(ctx)
	if m != nil {
		m.ObserveReconcile(len(report.Drifted), err)
	}
	switch {
	case err != nil:
		log.Printf("reconcile (%s) failed: %v", reason, err)
	case report.Repaired:
		log.Printf("reconcile (%s): repaired %d day(s) %v from %d scans", reason, len(report.Drifted), report.Drifted, report.Scans)
	case reason == "startup":
		log.Printf("reconcile (%s): %d scans over %d day(s), head counts consistent", reason, report.Scans, report.Days)
	}
	return report, err
}

// Notify returns a Ledger.OnStale hook that enqueues a reconcile job.
func Notify(q queue.Queue) func(ctx context.Context, day string) {
	return func(ctx context.Context, day string) {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := q.Publish(pctx, queue.Reconcile(day)); err != nil {
			log.Printf("queue publish failed: %v", err)
		}
	}
}
