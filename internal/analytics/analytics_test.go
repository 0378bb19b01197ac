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

package analytics

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type backend struct {
	mu       sync.Mutex
	requests int
	payloads []string
	status   int
}

func (b *backend) snapshot() (int, []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests, append([]string(nil), b.payloads...)
}

func newBackend(t *testing.T, status int) (*Client, *backend) {
	b := &backend{status: status}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if req.URL.Path != "/batch" {
			t.Errorf("Wrong path: got %q, want %q", req.URL.Path, "/batch")
		}
		b.requests++
		scanner := bufio.NewScanner(req.Body)
		for scanner.Scan() {
			b.payloads = append(b.payloads, scanner.Text())
		}
		w.WriteHeader(b.status)
	}))
	t.Cleanup(server.Close)
	return NewClient("UA-TEST123", "0001-0002-0003-0004", server.URL+"/"), b
}

func TestClientSendBatches(t *testing.T) {
	client, b := newBackend(t, http.StatusOK)

	var hits []Hit
	for i := 0; i < 2*client.batchSize+1; i++ {
		hits = append(hits, Event(CategoryAlign, ActionReceived, "", nil))
	}
	if err := client.Send(context.Background(), hits); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	requests, payloads := b.snapshot()
	if got, want := requests, 3; got != want {
		t.Errorf("Wrong number of requests: got %d, want %d", got, want)
	}
	if got, want := len(payloads), len(hits); got != want {
		t.Errorf("Wrong number of payloads: got %d, want %d", got, want)
	}
}

func TestClientSendPayload(t *testing.T) {
	client, b := newBackend(t, http.StatusOK)

	cells := int64(64)
	hit := Event(CategoryAlign, ActionCells, "sync", &cells)
	if err := client.Send(context.Background(), []Hit{hit}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	_, payloads := b.snapshot()
	if len(payloads) != 1 {
		t.Fatalf("Wrong number of payloads: got %d, want 1", len(payloads))
	}
	got, err := url.ParseQuery(payloads[0])
	if err != nil {
		t.Fatalf("Failed to parse payload %q: %v", payloads[0], err)
	}
	want := url.Values{
		"v":   {"1"},
		"tid": {"UA-TEST123"},
		"cid": {"0001-0002-0003-0004"},
		"t":   {"event"},
		"ec":  {CategoryAlign},
		"ea":  {ActionCells},
		"el":  {"sync"},
		"ev":  {"64"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Payload mismatch (-want +got):\n%s", diff)
	}
}

func TestClientSendError(t *testing.T) {
	client, _ := newBackend(t, http.StatusInternalServerError)
	if err := client.Send(context.Background(), []Hit{Event("a", "b", "", nil)}); err == nil {
		t.Error("Send succeeded against a failing backend")
	}
}

func TestClientSendNothing(t *testing.T) {
	client, b := newBackend(t, http.StatusOK)
	if err := client.Send(context.Background(), nil); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if requests, _ := b.snapshot(); requests != 0 {
		t.Errorf("Empty send issued %d requests", requests)
	}
}

func TestEventOptionalParameters(t *testing.T) {
	hit := Event(CategoryJobs, ActionReceived, "", nil)
	if got, want := hit["t"], "event"; got != want {
		t.Errorf("Wrong hit type: got %q, want %q", got, want)
	}
	for _, key := range []string{"el", "ev"} {
		if _, ok := hit[key]; ok {
			t.Errorf("Parameter %q added for empty input", key)
		}
	}
}

func TestTrackingHandler(t *testing.T) {
	want := []Hit{
		Event(CategoryAlign, ActionReceived, "", nil),
		Event(CategoryAlign, ActionCompleted, "", nil),
	}
	handler := http.HandlerFunc(func(_ http.ResponseWriter, req *http.Request) {
		track := TrackerFromContext(req.Context())
		for _, hit := range want {
			track(hit)
		}
	})

	var got []Hit
	w := httptest.NewRecorder()
	TrackingHandler(handler, func(hits []Hit) { got = hits }).ServeHTTP(w, httptest.NewRequest("GET", "/align", nil))

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Hits mismatch (-want +got):\n%s", diff)
	}
}

func TestTrackingHandlerWithoutHits(t *testing.T) {
	handler := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	TrackingHandler(handler, func([]Hit) {
		t.Error("track invoked without hits")
	}).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/healthz", nil))
}

func TestTrackerFromContextOutsideRequest(t *testing.T) {
	track := TrackerFromContext(context.Background())
	if track == nil {
		t.Fatal("TrackerFromContext returned nil")
	}
	track(Event("a", "b", "", nil))
}
