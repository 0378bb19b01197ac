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

// Package analytics reports anonymous usage events of the alignment service
// to a measurement endpoint.
package analytics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultEndpoint is the Google Analytics measurement endpoint.
	DefaultEndpoint = "https://www.google-analytics.com/"

	defaultBatchSize = 20 // The maximum number supported by the batch endpoint.
)

// Event categories and actions reported by the service.
const (
	CategoryAlign = "Align"
	CategoryJobs  = "Jobs"

	ActionReceived   = "Request Received"
	ActionInputError = "Input Error"
	ActionFault      = "Runtime Fault"
	ActionCompleted  = "Response Sent"
	ActionCells      = "Matrix Cells"
)

// Hit represents a single analytics event (called a 'hit').
type Hit map[string]string

// Event generates a new event typed hit.  The label may be empty and the
// value may be nil but category and action are required.
func Event(category, action, label string, value *int64) Hit {
	hit := Hit{
		"t":  "event",
		"ec": category,
		"ea": action,
	}
	if label != "" {
		hit["el"] = label
	}
	if value != nil {
		hit["ev"] = strconv.FormatInt(*value, 10)
	}
	return hit
}

// Client delivers hits to a measurement endpoint.  Create one with NewClient.
type Client struct {
	propertyID string
	clientID   string
	endpoint   string
	batchSize  int
	http       *http.Client
}

// NewClient returns a Client that sends hits for propertyID, identifying the
// sender as clientID.  An empty endpoint selects DefaultEndpoint.
func NewClient(propertyID, clientID, endpoint string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{propertyID, clientID, strings.TrimSuffix(endpoint, "/"), defaultBatchSize, http.DefaultClient}
}

// Send uploads hits in batches.
func (c *Client) Send(ctx context.Context, hits []Hit) error {
	for i := 0; i < len(hits); i += c.batchSize {
		end := i + c.batchSize
		if end > len(hits) {
			end = len(hits)
		}
		if err := c.upload(ctx, hits[i:end]); err != nil {
			return fmt.Errorf("uploading hits: %v", err)
		}
	}
	return nil
}

func (c *Client) upload(ctx context.Context, hits []Hit) error {
	var body bytes.Buffer
	for _, hit := range hits {
		payload := url.Values{
			"v":   []string{"1"},
			"tid": []string{c.propertyID},
			"cid": []string{c.clientID},
		}
		for key, value := range hit {
			payload.Add(key, value)
		}
		body.WriteString(payload.Encode())
		body.WriteByte('\n')
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/batch", &body)
	if err != nil {
		return fmt.Errorf("creating request: %v", err)
	}
	response, err := c.http.Do(request)
	if err != nil {
		return fmt.Errorf("sending request: %v", err)
	}
	defer response.Body.Close()
	io.Copy(io.Discard, response.Body)

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected response status: %v", response.Status)
	}
	return nil
}

type contextKey int

var hitsKey = contextKey(1)

// TrackingHandler returns a new http.Handler which wraps the provided
// handler.  The wrapper prepares the incoming request's context for use with
// the TrackerFromContext function.  When the underlying handler completes,
// the track function is invoked with any hits accumulated during the request.
func TrackingHandler(handler http.Handler, track func([]Hit)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var hits []Hit
		ctx := context.WithValue(req.Context(), hitsKey, &hits)
		handler.ServeHTTP(w, req.WithContext(ctx))
		if len(hits) > 0 {
			track(hits)
		}
	})
}

// TrackerFromContext returns a function that buffers hits for the track
// function given to TrackingHandler.  Outside a tracked request the returned
// function discards its hits.
func TrackerFromContext(ctx context.Context) func(Hit) {
	if hits, ok := ctx.Value(hitsKey).(*[]Hit); ok {
		return func(hit Hit) { *hits = append(*hits, hit) }
	}
	return func(Hit) {}
}
