package workers

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/camden-git/attendancesys/notify"
)

const (
	DefaultNotifyQueueSize = 64
	DefaultNotifyWorkers   = 2
	DefaultDeliveryTimeout = 30 * time.Second
)

// NotifyJob is one notification bound for one sink.
type NotifyJob struct {
	Sink         notify.Sink
	Notification notify.Notification
}

// NotifierStats counts deliveries since start.
type NotifierStats struct {
	Queued    int64 `json:"queued"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

// Notifier fans notifications out to sinks on a small worker pool so that
// speech, mail and sockets never block the frame loop.
type Notifier struct {
	JobQueue chan NotifyJob
	Sinks    []notify.Sink
	Timeout  time.Duration
	Wg       sync.WaitGroup
	StopChan chan struct{}

	stopOnce  sync.Once
	stopped   atomic.Bool
	queued    atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

func NewNotifier(sinks []notify.Sink, queueSize, numWorkers int) *Notifier {
	if numWorkers <= 0 {
		numWorkers = DefaultNotifyWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultNotifyQueueSize
	}
	n := &Notifier{
		JobQueue: make(chan NotifyJob, queueSize),
		Sinks:    sinks,
		Timeout:  DefaultDeliveryTimeout,
		StopChan: make(chan struct{}),
	}
	n.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go n.worker(i)
	}
	log.Printf("Started %d notification worker(s) with queue size %d and %d sink(s)", numWorkers, queueSize, len(sinks))
	return n
}

// Enqueue routes n to every sink that accepts its kind. It never blocks:
// when the queue is full the job is dropped with a warning. The result is
// false if any job was dropped or the notifier is stopped.
func (n *Notifier) Enqueue(note notify.Notification) bool {
	if n.stopped.Load() {
		return false
	}
	ok := true
	for _, sink := range n.Sinks {
		if !sink.Accepts(note.Kind) {
			continue
		}
		select {
		case n.JobQueue <- NotifyJob{Sink: sink, Notification: note}:
			n.queued.Add(1)
		default:
			n.dropped.Add(1)
			ok = false
			log.Printf("notifier: WARNING queue full, dropping %s notification for sink %s", note.Kind, sink.Name())
		}
	}
	return ok
}

func (n *Notifier) worker(id int) {
	defer n.Wg.Done()

	log.Printf("Notification worker %d started", id)
	for {
		select {
		case job := <-n.JobQueue:
			n.deliver(id, job)
		case <-n.StopChan:
			log.Printf("Notification worker %d stopping: Stop signal received", id)
			return
		}
	}
}

func (n *Notifier) deliver(id int, job NotifyJob) {
	ctx, cancel := context.WithTimeout(context.Background(), n.Timeout)
	defer cancel()

	if err := job.Sink.Notify(ctx, job.Notification); err != nil {
		n.failed.Add(1)
		log.Printf("Notification worker %d: ERROR delivering %s via %s: %v", id, job.Notification.Kind, job.Sink.Name(), err)
		return
	}
	n.delivered.Add(1)
}

// Stop signals the workers, discards queued jobs and waits for in-flight
// deliveries until ctx is done.
func (n *Notifier) Stop(ctx context.Context) error {
	n.stopOnce.Do(func() {
		n.stopped.Store(true)
		close(n.StopChan)
	})

	done := make(chan struct{})
	go func() {
		n.Wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		discarded := 0
	drain:
		for {
			select {
			case <-n.JobQueue:
				discarded++
			default:
				break drain
			}
		}
		if discarded > 0 {
			log.Printf("notifier: discarded %d queued notification(s) on shutdown", discarded)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Notifier) Stats() NotifierStats {
	return NotifierStats{
		Queued:    n.queued.Load(),
		Delivered: n.delivered.Load(),
		Failed:    n.failed.Load(),
		Dropped:   n.dropped.Load(),
	}
}
