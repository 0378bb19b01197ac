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

// Package worker runs alignments in an isolated goroutine.
//
// A Worker accepts exactly one request and produces exactly one message: the
// alignment result or a runtime fault.  The score matrix lives only inside
// the worker's goroutine.  Terminate is the only way to stop a computation
// early; once it returns the goroutine has exited and no message will be
// delivered.  Each request needs a fresh Worker.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/googlegenomics/nwalign/align"
)

var (
	// ErrAlreadyPosted is returned when a second request is posted to a Worker.
	ErrAlreadyPosted = errors.New("worker already has a request")

	// ErrTerminated is returned when a Worker is used after Terminate.
	ErrTerminated = errors.New("worker terminated")
)

// Request is the single message accepted by a Worker.  The sequences must
// already be normalized; the worker does not validate them.
type Request struct {
	Seq1, Seq2 string
	Scoring    align.Scoring
}

// Message is the single message produced by a Worker.  Exactly one of Result
// or Err is meaningful.
type Message struct {
	Result align.Result
	Err    error
}

// Fault is a failure that occurred while a Worker was computing an alignment.
type Fault struct {
	Worker string
	Cause  error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("worker %s: runtime fault: %v", f.Worker, f.Cause)
}

func (f *Fault) Unwrap() error {
	return f.Cause
}

// IsFault reports whether err is a runtime fault.
func IsFault(err error) bool {
	var fault *Fault
	return errors.As(err, &fault)
}

type alignFunc func(ctx context.Context, seq1, seq2 string, scoring align.Scoring) (align.Result, error)

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the logger used by the worker.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

// WithMaxCells bounds the number of score matrix cells a worker will
// allocate.  Larger requests fail with a Fault before any allocation.  Zero
// means no bound.
func WithMaxCells(n int64) Option {
	return func(w *Worker) { w.maxCells = n }
}

func withAligner(fn alignFunc) Option {
	return func(w *Worker) { w.align = fn }
}

// Worker is a one-shot alignment execution context.  Create one with New.
type Worker struct {
	id       string
	logger   *zap.Logger
	maxCells int64
	align    alignFunc

	ctx      context.Context
	cancel   context.CancelFunc
	messages chan Message
	done     chan struct{}

	mu         sync.Mutex
	posted     bool
	terminated bool
}

// New returns an idle Worker.
func New(opts ...Option) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		id:       uuid.New().String(),
		logger:   zap.NewNop(),
		align:    align.AlignContext,
		ctx:      ctx,
		cancel:   cancel,
		messages: make(chan Message),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("worker", w.id))
	return w
}

// ID returns the unique identifier of w.
func (w *Worker) ID() string {
	return w.id
}

// Messages returns the channel on which the single response is delivered.
// The channel is closed after the response, or without a value if w is
// terminated first.
func (w *Worker) Messages() <-chan Message {
	return w.messages
}

// Post starts computing req.  It never blocks.
func (w *Worker) Post(req Request) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.terminated {
		return ErrTerminated
	}
	if w.posted {
		return ErrAlreadyPosted
	}
	w.posted = true

	w.logger.Debug("Request received",
		zap.Int("seq1_length", len(req.Seq1)),
		zap.Int("seq2_length", len(req.Seq2)),
		zap.Stringer("scoring", req.Scoring))
	go w.run(req)
	return nil
}

// Wait blocks until w delivers its message or ctx is done.
func (w *Worker) Wait(ctx context.Context) (align.Result, error) {
	select {
	case msg, ok := <-w.messages:
		if !ok {
			return align.Result{}, ErrTerminated
		}
		return msg.Result, msg.Err
	case <-ctx.Done():
		return align.Result{}, ctx.Err()
	}
}

// Terminate stops w.  When it returns the worker's goroutine has exited, its
// matrix is unreachable and Messages is closed.  It is safe to call more than
// once.
func (w *Worker) Terminate() {
	w.mu.Lock()
	if w.terminated {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.terminated = true
	posted := w.posted
	w.mu.Unlock()

	w.cancel()
	if !posted {
		close(w.messages)
		close(w.done)
		return
	}
	<-w.done
	w.logger.Debug("Worker terminated")
}

func (w *Worker) run(req Request) {
	defer close(w.done)
	defer close(w.messages)

	start := time.Now()
	msg := w.compute(req)
	if w.ctx.Err() != nil {
		return
	}

	if msg.Err != nil {
		w.logger.Warn("Alignment failed", zap.Error(msg.Err))
	} else {
		w.logger.Info("Alignment finished",
			zap.Int64("cells", align.Cells(len(req.Seq1), len(req.Seq2))),
			zap.Int64("score", msg.Result.Score),
			zap.Duration("elapsed", time.Since(start)))
	}

	select {
	case w.messages <- msg:
	case <-w.ctx.Done():
	}
}

func (w *Worker) compute(req Request) (msg Message) {
	defer func() {
		if r := recover(); r != nil {
			msg = Message{Err: &Fault{w.id, fmt.Errorf("panic: %v", r)}}
		}
	}()

	if cells := align.Cells(len(req.Seq1), len(req.Seq2)); w.maxCells > 0 && cells > w.maxCells {
		return Message{Err: &Fault{w.id, fmt.Errorf("score matrix of %d cells exceeds the limit of %d", cells, w.maxCells)}}
	}

	result, err := w.align(w.ctx, req.Seq1, req.Seq2, req.Scoring)
	if err != nil {
		return Message{Err: &Fault{w.id, err}}
	}
	return Message{Result: result}
}

// Run aligns req in a fresh Worker and waits for its message.  If ctx is done
// first the worker is terminated and ctx.Err() is returned.
func Run(ctx context.Context, req Request, opts ...Option) (align.Result, error) {
	w := New(opts...)
	defer w.Terminate()

	if err := w.Post(req); err != nil {
		return align.Result{}, err
	}
	return w.Wait(ctx)
}
