package ingest

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRunsJobs(t *testing.T) {
	var ran atomic.Int64
	q := NewQueue(2, 4, func(ctx context.Context, job *Job) error {
		ran.Add(1)
		return nil
	})

	ctx := context.Background()
	var jobs []*Job
	for i := int64(1); i <= 5; i++ {
		job, err := q.Submit(ctx, i)
		require.NoError(t, err)
		jobs = append(jobs, job)
	}
	for _, job := range jobs {
		require.NoError(t, job.Wait(ctx))
		<-job.Done()
	}
	assert.EqualValues(t, 5, ran.Load())

	st, ok := q.Status(jobs[0].ID)
	require.True(t, ok)
	assert.Equal(t, JobDone, st.State)
	assert.NotNil(t, st.FinishedAt)

	_, ok = q.Status("missing")
	assert.False(t, ok)

	require.NoError(t, q.Close(ctx))
	_, err := q.Submit(ctx, 6)
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.NoError(t, q.Close(ctx))
}

func TestQueueCloseDrains(t *testing.T) {
	release := make(chan struct{})
	var ran atomic.Int64
	q := NewQueue(1, 4, func(ctx context.Context, job *Job) error {
		<-release
		ran.Add(1)
		return nil
	})

	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		_, err := q.Submit(ctx, i)
		require.NoError(t, err)
	}

	closed := make(chan error, 1)
	go func() { closed <- q.Close(ctx) }()
	close(release)

	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("close did not return")
	}
	assert.EqualValues(t, 3, ran.Load())
}

func TestQueueCloseCancelsOnTimeout(t *testing.T) {
	q := NewQueue(1, 4, func(ctx context.Context, job *Job) error {
		<-ctx.Done()
		return ctx.Err()
	})

	job, err := q.Submit(context.Background(), 1)
	require.NoError(t, err)
	queued, err := q.Submit(context.Background(), 2)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Close(ctx), context.DeadlineExceeded)

	<-job.Done()
	<-queued.Done()
	assert.Equal(t, JobFailed, job.Status().State)
	assert.Equal(t, JobFailed, queued.Status().State)
}

func TestJobWaitHonoursContext(t *testing.T) {
	job := newJob(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, job.Wait(ctx), context.Canceled)
	assert.Equal(t, JobQueued, job.Status().State)
}

func TestFilterMatch(t *testing.T) {
	f := Filter{Include: []string{"**/*.pdf", "**/*.txt"}, Exclude: []string{"drafts/**", "*.tmp.txt"}}

	tests := []struct {
		path string
		want bool
	}{
		{"cv.pdf", true},
		{"docs/CV.PDF", true},
		{"notes/a.txt", true},
		{"drafts/a.txt", false},
		{"deep/x.tmp.txt", false},
		{".hidden/a.txt", false},
		{"image.png", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Match(tt.path))
		})
	}

	assert.Error(t, Filter{Include: []string{"[abc"}}.Validate())
	assert.NoError(t, f.Validate())
}
