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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/googlegenomics/nwalign/align"
)

// client talks to an alignment server.
type client struct {
	http   *http.Client
	server string
	poll   time.Duration
	logger *zap.Logger
}

// align requests a synchronous alignment.
func (c *client) align(ctx context.Context, req *request) (align.Response, error) {
	var response align.Response
	err := c.call(ctx, http.MethodPost, "/align", req, http.StatusOK, &response)
	return response, err
}

// alignJob starts an alignment job and polls until it finishes.  If ctx is
// done first the job is cancelled.
func (c *client) alignJob(ctx context.Context, req *request) (align.Response, error) {
	var started struct {
		JobID string `json:"job_id"`
	}
	if err := c.call(ctx, http.MethodPost, "/jobs", req, http.StatusAccepted, &started); err != nil {
		return align.Response{}, err
	}
	c.logger.Info("Job started", zap.String("job", started.JobID))

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		var status struct {
			State  string          `json:"state"`
			Result *align.Response `json:"result"`
			Error  string          `json:"error"`
		}
		if err := c.call(ctx, http.MethodGet, "/jobs/"+started.JobID, nil, http.StatusOK, &status); err != nil {
			if ctx.Err() != nil {
				c.cancel(started.JobID)
			}
			return align.Response{}, err
		}

		switch status.State {
		case "SUCCESS":
			if status.Result == nil {
				return align.Response{}, errors.New("job succeeded without a result")
			}
			return *status.Result, nil
		case "FAILURE":
			return align.Response{}, fmt.Errorf("job failed: %s", status.Error)
		}

		select {
		case <-ctx.Done():
			c.cancel(started.JobID)
			return align.Response{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *client) cancel(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.call(ctx, http.MethodDelete, "/jobs/"+id, nil, http.StatusNoContent, nil); err != nil {
		c.logger.Warn("Failed to cancel job", zap.String("job", id), zap.Error(err))
		return
	}
	c.logger.Info("Job cancelled", zap.String("job", id))
}

func (c *client) call(ctx context.Context, method, path string, body interface{}, want int, reply interface{}) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %v", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.server+path, r)
	if err != nil {
		return fmt.Errorf("creating request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return errorFromResponse(resp)
	}
	if reply == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(reply); err != nil {
		return fmt.Errorf("decoding response: %v", err)
	}
	return nil
}

func errorFromResponse(resp *http.Response) error {
	var v struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil || v.Error == "" {
		return fmt.Errorf("unexpected response status: %q", resp.Status)
	}
	return fmt.Errorf("%s: %s", v.Error, v.Message)
}
