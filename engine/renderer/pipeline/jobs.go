package pipeline

import (
	"runtime"
	"sync"

	"github.com/cockroachdb/errors"
)

var ErrNoWorkers = errors.New("attempting to create worker pool with less than 1 worker")

// Job is one unit of work handed to a JobPool. Failures are reported through
// OnFailure, OnComplete runs otherwise.
type Job struct {
	Run        func() error
	OnComplete func()
	OnFailure  func(err error)
}

// JobPool runs jobs on a fixed number of goroutines. Submit after Shutdown
// panics.
type JobPool struct {
	numWorkers int
	jobQueue   chan Job
	wg         sync.WaitGroup
}

func NewJobPool(numWorkers int) (*JobPool, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	jp := &JobPool{
		numWorkers: numWorkers,
		jobQueue:   make(chan Job, numWorkers),
	}
	jp.start()
	return jp, nil
}

func (jp *JobPool) start() {
	for i := 0; i < jp.numWorkers; i++ {
		jp.wg.Add(1)
		go func() {
			defer jp.wg.Done()
			for job := range jp.jobQueue {
				if err := job.Run(); err != nil {
					if job.OnFailure != nil {
						job.OnFailure(err)
					}
					continue
				}
				if job.OnComplete != nil {
					job.OnComplete()
				}
			}
		}()
	}
}

// Submit queues job, blocking while every worker is busy and the queue is full.
func (jp *JobPool) Submit(job Job) {
	jp.jobQueue <- job
}

// Shutdown stops accepting jobs and waits for the queued ones to finish.
func (jp *JobPool) Shutdown() {
	close(jp.jobQueue)
	jp.wg.Wait()
}

// runJobs runs jobs on at most GOMAXPROCS workers and returns once all of
// them finished.
func runJobs(jobs []Job) {
	switch len(jobs) {
	case 0:
		return
	case 1:
		j := jobs[0]
		if err := j.Run(); err != nil {
			if j.OnFailure != nil {
				j.OnFailure(err)
			}
		} else if j.OnComplete != nil {
			j.OnComplete()
		}
		return
	}
	jp, _ := NewJobPool(min(len(jobs), runtime.GOMAXPROCS(0)))
	for _, j := range jobs {
		jp.Submit(j)
	}
	jp.Shutdown()
}
