// Copyright 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/googlegenomics/nwalign/align"
	"github.com/googlegenomics/nwalign/worker"
)

const (
	statePending = "PENDING"
	stateSuccess = "SUCCESS"
	stateFailure = "FAILURE"
)

var errClosed = &apiError{"Unavailable", http.StatusServiceUnavailable, errors.New("server is shutting down")}

// job tracks one background alignment.
type job struct {
	id     string
	worker *worker.Worker

	mu       sync.Mutex
	state    string
	result   align.Result
	err      error
	finished time.Time
}

// jobStatus is the reply to a job status query.
type jobStatus struct {
	ID     string          `json:"job_id"`
	State  string          `json:"state"`
	Result *align.Response `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func (j *job) status() jobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()

	status := jobStatus{ID: j.id, State: j.state}
	switch j.state {
	case stateSuccess:
		response := j.result.Response()
		status.Result = &response
	case stateFailure:
		status.Error = j.err.Error()
	}
	return status
}

func (j *job) expired(now time.Time, retention time.Duration) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return retention > 0 && j.state != statePending && now.Sub(j.finished) > retention
}

// collect waits for the worker's message and records it.
func (j *job) collect(now func() time.Time) {
	msg, ok := <-j.worker.Messages()
	j.worker.Terminate()

	j.mu.Lock()
	defer j.mu.Unlock()
	switch {
	case !ok:
		j.state, j.err = stateFailure, worker.ErrTerminated
	case msg.Err != nil:
		j.state, j.err = stateFailure, msg.Err
	default:
		j.state, j.result = stateSuccess, msg.Result
	}
	j.finished = now()
}

// jobStore holds the jobs started through the API.  Finished jobs are
// forgotten once they are older than retention.
type jobStore struct {
	retention time.Duration
	now       func() time.Time

	mu     sync.Mutex
	jobs   map[string]*job
	closed bool
	wg     sync.WaitGroup
}

func newJobStore(retention time.Duration) *jobStore {
	return &jobStore{
		retention: retention,
		now:       time.Now,
		jobs:      make(map[string]*job),
	}
}

func (s *jobStore) start(req worker.Request, opts ...worker.Option) (*job, error) {
	s.prune()

	w := worker.New(opts...)
	j := &job{id: w.ID(), worker: w, state: statePending}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		w.Terminate()
		return nil, errClosed
	}
	if err := w.Post(req); err != nil {
		w.Terminate()
		return nil, fmt.Errorf("posting request: %w", err)
	}
	s.jobs[j.id] = j
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		j.collect(s.now)
	}()
	return j, nil
}

func (s *jobStore) get(id string) (*job, error) {
	s.prune()

	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, newNotFoundError("looking up job", fmt.Errorf("no job with ID %q", id))
	}
	return j, nil
}

// cancel forgets the job and terminates its worker.
func (s *jobStore) cancel(id string) error {
	s.mu.Lock()
	j, ok := s.jobs[id]
	delete(s.jobs, id)
	s.mu.Unlock()

	if !ok {
		return newNotFoundError("cancelling job", fmt.Errorf("no job with ID %q", id))
	}
	j.worker.Terminate()
	return nil
}

func (s *jobStore) prune() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, j := range s.jobs {
		if j.expired(now, s.retention) {
			delete(s.jobs, id)
		}
	}
}

// close terminates every job and waits for their collectors to exit.  Jobs
// cannot be started afterwards.
func (s *jobStore) close() {
	s.mu.Lock()
	s.closed = true
	jobs := s.jobs
	s.jobs = make(map[string]*job)
	s.mu.Unlock()

	for _, j := range jobs {
		j.worker.Terminate()
	}
	s.wg.Wait()
}
