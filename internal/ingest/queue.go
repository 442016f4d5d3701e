package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrQueueClosed is returned by Submit after Close
var ErrQueueClosed = errors.New("ingest queue is closed")

// JobState is the lifecycle of an embedding job
type JobState string

const (
	JobQueued  JobState = "queued"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
	JobFailed  JobState = "failed"
)

// maxFinishedJobs bounds how many finished jobs stay visible to Status
const maxFinishedJobs = 1024

// Job embeds the missing chunks of one document in the background
type Job struct {
	ID         string
	DocumentID int64

	done chan struct{}

	mu        sync.Mutex
	state     JobState
	total     int
	embedded  int
	providers map[string]int
	err       error
	createdAt time.Time
	endedAt   time.Time
}

// JobStatus is a snapshot of a job
type JobStatus struct {
	ID         string         `json:"job_id"`
	DocumentID int64          `json:"document_id"`
	State      JobState       `json:"state"`
	Total      int            `json:"total_chunks"`
	Embedded   int            `json:"embedded_chunks"`
	Providers  map[string]int `json:"providers,omitempty"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

func newJob(documentID int64) *Job {
	return &Job{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		done:       make(chan struct{}),
		state:      JobQueued,
		providers:  make(map[string]int),
		createdAt:  time.Now(),
	}
}

// Done is closed when the job finishes, successfully or not
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes and returns its error, or ctx's
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-j.done:
		j.mu.Lock()
		defer j.mu.Unlock()
		return j.err
	}
}

// Status returns a snapshot of the job
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()

	st := JobStatus{
		ID:         j.ID,
		DocumentID: j.DocumentID,
		State:      j.state,
		Total:      j.total,
		Embedded:   j.embedded,
		CreatedAt:  j.createdAt,
	}
	if len(j.providers) > 0 {
		st.Providers = make(map[string]int, len(j.providers))
		for k, v := range j.providers {
			st.Providers[k] = v
		}
	}
	if j.err != nil {
		st.Error = j.err.Error()
	}
	if !j.endedAt.IsZero() {
		t := j.endedAt
		st.FinishedAt = &t
	}
	return st
}

func (j *Job) setRunning(total int) {
	j.mu.Lock()
	j.state = JobRunning
	j.total = total
	j.mu.Unlock()
}

func (j *Job) recordEmbedded(provider string) {
	j.mu.Lock()
	j.embedded++
	j.providers[provider]++
	j.mu.Unlock()
}

func (j *Job) finish(err error) {
	j.mu.Lock()
	j.err = err
	j.state = JobDone
	if err != nil {
		j.state = JobFailed
	}
	j.endedAt = time.Now()
	j.mu.Unlock()
	close(j.done)
}

// RunFunc does the work of one job
type RunFunc func(ctx context.Context, job *Job) error

// Queue is a fixed pool of workers fed by a buffered channel
type Queue struct {
	run  RunFunc
	jobs chan *Job
	wg   sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex // guards closed against sends on a closed channel
	closed bool

	jobsMu   sync.Mutex
	byID     map[string]*Job
	finished []string
}

// NewQueue starts workers goroutines that execute run for each submitted job
func NewQueue(workers, size int, run RunFunc) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if size < 0 {
		size = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		run:    run,
		jobs:   make(chan *Job, size),
		ctx:    ctx,
		cancel: cancel,
		byID:   make(map[string]*Job),
	}

	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.worker()
	}
	return q
}

// Submit enqueues a job for documentID. It blocks while the buffer is full.
func (q *Queue) Submit(ctx context.Context, documentID int64) (*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return nil, ErrQueueClosed
	}

	job := newJob(documentID)
	q.jobsMu.Lock()
	q.byID[job.ID] = job
	q.jobsMu.Unlock()

	var err error
	select {
	case q.jobs <- job:
		return job, nil
	case <-ctx.Done():
		err = ctx.Err()
	case <-q.ctx.Done():
		err = ErrQueueClosed
	}

	q.jobsMu.Lock()
	delete(q.byID, job.ID)
	q.jobsMu.Unlock()
	return nil, err
}

// Status returns the job with id, if it is still tracked
func (q *Queue) Status(id string) (JobStatus, bool) {
	q.jobsMu.Lock()
	job, ok := q.byID[id]
	q.jobsMu.Unlock()
	if !ok {
		return JobStatus{}, false
	}
	return job.Status(), true
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for job := range q.jobs {
		q.execute(job)
	}
}

func (q *Queue) execute(job *Job) {
	start := time.Now()
	var err error
	if q.ctx.Err() != nil {
		err = fmt.Errorf("job cancelled before start: %w", q.ctx.Err())
	} else {
		err = q.run(q.ctx, job)
	}
	job.finish(err)

	st := job.Status()
	if err != nil {
		log.Printf("Warning: embedding job %s for document %d failed after %d/%d chunks: %v",
			job.ID, job.DocumentID, st.Embedded, st.Total, err)
	} else {
		log.Printf("Embedding job %s for document %d completed: %d chunks in %v",
			job.ID, job.DocumentID, st.Embedded, time.Since(start).Round(time.Millisecond))
	}

	q.jobsMu.Lock()
	q.finished = append(q.finished, job.ID)
	if len(q.finished) > maxFinishedJobs {
		drop := len(q.finished) - maxFinishedJobs
		for _, id := range q.finished[:drop] {
			delete(q.byID, id)
		}
		q.finished = append([]string(nil), q.finished[drop:]...)
	}
	q.jobsMu.Unlock()
}

// Close stops intake and waits for queued jobs to drain. When ctx expires
// first, running jobs are cancelled and remaining ones fail without running.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-drained
		return ctx.Err()
	}
}
