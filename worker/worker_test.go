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

package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/googlegenomics/nwalign/align"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var gattaca = Request{Seq1: "GATTACA", Seq2: "GCATGCU", Scoring: align.Scoring{Match: 1, Mismatch: -1, Gap: -1}}

func TestWorkerSingleMessage(t *testing.T) {
	w := New()
	defer w.Terminate()

	if err := w.Post(gattaca); err != nil {
		t.Fatalf("Post failed: %v", err)
	}

	msg, ok := <-w.Messages()
	if !ok {
		t.Fatal("Messages closed without a response")
	}
	if msg.Err != nil {
		t.Fatalf("Unexpected error: %v", msg.Err)
	}
	want := align.Align(gattaca.Seq1, gattaca.Seq2, gattaca.Scoring)
	if diff := cmp.Diff(want, msg.Result); diff != "" {
		t.Errorf("Result mismatch (-want +got):\n%s", diff)
	}

	if _, ok := <-w.Messages(); ok {
		t.Error("Worker delivered a second message")
	}
}

func TestWorkerRejectsSecondPost(t *testing.T) {
	w := New()
	defer w.Terminate()

	if err := w.Post(gattaca); err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if err := w.Post(gattaca); !errors.Is(err, ErrAlreadyPosted) {
		t.Errorf("Wrong error: got %v, want %v", err, ErrAlreadyPosted)
	}
}

func TestWorkerPostAfterTerminate(t *testing.T) {
	w := New()
	w.Terminate()

	if err := w.Post(gattaca); !errors.Is(err, ErrTerminated) {
		t.Errorf("Wrong error: got %v, want %v", err, ErrTerminated)
	}
	if _, ok := <-w.Messages(); ok {
		t.Error("Terminated worker delivered a message")
	}
	w.Terminate()
}

func TestWorkerTerminateDuringComputation(t *testing.T) {
	started := make(chan struct{})
	blocking := func(ctx context.Context, _, _ string, _ align.Scoring) (align.Result, error) {
		close(started)
		<-ctx.Done()
		return align.Result{}, ctx.Err()
	}

	w := New(withAligner(blocking))
	if err := w.Post(gattaca); err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	<-started
	w.Terminate()

	if msg, ok := <-w.Messages(); ok {
		t.Errorf("Message observed after Terminate: %+v", msg)
	}
}

func TestWorkerTerminateUnreadResult(t *testing.T) {
	w := New()
	if err := w.Post(gattaca); err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	// Give the worker time to finish and block on delivery.
	time.Sleep(10 * time.Millisecond)
	w.Terminate()

	if _, ok := <-w.Messages(); ok {
		t.Error("Message observed after Terminate")
	}
}

func TestWorkerFaults(t *testing.T) {
	testCases := []struct {
		name string
		opts []Option
	}{
		{"panic", []Option{withAligner(func(context.Context, string, string, align.Scoring) (align.Result, error) {
			panic("out of cheese")
		})}},
		{"matrix too large", []Option{WithMaxCells(10)}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Run(context.Background(), gattaca, tc.opts...)
			if !IsFault(err) {
				t.Fatalf("Wrong error: got %v, want a *Fault", err)
			}
			if !strings.Contains(err.Error(), "runtime fault") {
				t.Errorf("Unexpected message: %v", err)
			}
		})
	}
}

func TestRun(t *testing.T) {
	got, err := Run(context.Background(), gattaca, WithMaxCells(64))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got.Align1 != "G-ATTACA" || got.Align2 != "GCA-TGCU" || got.Score != 0 {
		t.Errorf("Wrong result: %+v", got)
	}
}

func TestRunContextDone(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	blocking := func(ctx context.Context, _, _ string, _ align.Scoring) (align.Result, error) {
		<-ctx.Done()
		return align.Result{}, ctx.Err()
	}
	if _, err := Run(ctx, gattaca, withAligner(blocking)); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wrong error: got %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestWorkerIDsAreUnique(t *testing.T) {
	a, b := New(), New()
	defer a.Terminate()
	defer b.Terminate()

	if a.ID() == b.ID() {
		t.Errorf("Workers share ID %s", a.ID())
	}
}
