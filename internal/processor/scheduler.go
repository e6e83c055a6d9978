package processor

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"cadence/internal/logging"
)

// retryScheduler holds jobs waiting out their backoff in a single min-heap
// ordered by fire time. One goroutine drains it, so retries never spawn a
// timer per job.
type retryScheduler struct {
	mu   sync.Mutex
	heap delayHeap
	wake chan struct{}
}

func newRetryScheduler() *retryScheduler {
	return &retryScheduler{wake: make(chan struct{}, 1)}
}

// schedule enqueues a retry to fire at the given time and nudges the
// scheduler loop in case the new entry is now the earliest.
func (s *retryScheduler) schedule(job *Job, at time.Time) {
	s.mu.Lock()
	heap.Push(&s.heap, &delayedJob{job: job, fireAt: at})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// drain removes every pending entry and returns its job. Called when the
// pool stops or the queue is rebuilt so a backoff scheduled in one run
// cannot fire into the next.
func (s *retryScheduler) drain() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]*Job, 0, s.heap.Len())
	for _, entry := range s.heap {
		jobs = append(jobs, entry.job)
	}
	s.heap = nil
	return jobs
}

func (s *retryScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heap.Len()
}

// next pops every entry due at or before now.
func (s *retryScheduler) next(now time.Time) []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*Job
	for s.heap.Len() > 0 && !s.heap[0].fireAt.After(now) {
		entry := heap.Pop(&s.heap).(*delayedJob)
		due = append(due, entry.job)
	}
	return due
}

// wait returns how long until the earliest entry fires, or false when the
// heap is empty.
func (s *retryScheduler) wait(now time.Time) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.heap.Len() == 0 {
		return 0, false
	}
	d := s.heap[0].fireAt.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}

// runScheduler re-enqueues retrying jobs once their backoff elapses. Jobs
// whose status changed while waiting (a Stop marked them cancelled, for
// instance) are dropped rather than requeued.
func (p *Pool) runScheduler(ctx context.Context) {
	defer p.wg.Done()

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		delay, ok := p.scheduler.wait(time.Now())
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if ok {
			timer.Reset(delay)
		} else {
			timer.Reset(time.Hour)
		}

		select {
		case <-ctx.Done():
			return
		case <-p.scheduler.wake:
		case <-timer.C:
		}

		for _, job := range p.scheduler.next(time.Now()) {
			p.requeueRetry(job)
		}
	}
}

func (p *Pool) requeueRetry(job *Job) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if job.Status != JobRetrying {
		return
	}
	job.transition(JobQueued)
	p.queue = append(p.queue, job)
	if p.stats.RetryingJobs > 0 {
		p.stats.RetryingJobs--
	}
	p.logger.Info("job queued for retry",
		logging.Int("attempt", job.Attempts),
		logging.Int64(logging.FieldTrackID, job.TrackID),
	)
}

type delayedJob struct {
	job    *Job
	fireAt time.Time
	index  int
}

type delayHeap []*delayedJob

func (h delayHeap) Len() int { return len(h) }

func (h delayHeap) Less(i, k int) bool { return h[i].fireAt.Before(h[k].fireAt) }

func (h delayHeap) Swap(i, k int) {
	h[i], h[k] = h[k], h[i]
	h[i].index = i
	h[k].index = k
}

func (h *delayHeap) Push(x any) {
	entry := x.(*delayedJob)
	entry.index = len(*h)
	*h = append(*h, entry)
}

func (h *delayHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return entry
}
