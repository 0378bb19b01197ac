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

// Package source loads raw sequence text from local files, standard input or
// Google Cloud Storage.
package source

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"
)

const (
	stdinLocation = "-"
	gcsScheme     = "gs://"

	// DefaultMaxBytes bounds the size of a single sequence file.
	DefaultMaxBytes = 50 * 1024 * 1024
)

// ErrTooLarge is returned when a source exceeds the loader's byte limit.
var ErrTooLarge = errors.New("sequence file too large")

// Loader reads sequence sources.  The zero value reads local files and
// standard input only.
type Loader struct {
	// Storage is used for gs:// locations.  If nil, such locations fail.
	Storage StorageClient
	// MaxBytes bounds the decompressed size of a source.  Zero selects
	// DefaultMaxBytes.
	MaxBytes int64
	// Whitelist, if non-empty, restricts gs:// reads to the listed buckets.
	Whitelist map[string]bool
	// Stdin replaces os.Stdin for the "-" location.
	Stdin io.Reader
}

// IsRemote reports whether location names a storage object.
func IsRemote(location string) bool {
	return strings.HasPrefix(location, gcsScheme)
}

// ParseObject splits a gs://bucket/object location.
func ParseObject(location string) (string, string, error) {
	path := strings.TrimPrefix(location, gcsScheme)
	if path == location {
		return "", "", fmt.Errorf("%q is not a %s location", location, gcsScheme)
	}
	if parts := strings.SplitN(path, "/", 2); len(parts) == 2 {
		if parts[0] != "" && parts[1] != "" {
			return parts[0], parts[1], nil
		}
	}
	return "", "", fmt.Errorf("invalid object location %q", location)
}

// Open returns a reader for location.  Locations ending in ".gz" are
// decompressed.
func (l *Loader) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	rc, err := l.open(ctx, location)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(location, ".gz") {
		return rc, nil
	}
	gz, err := gzip.NewReader(rc)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("opening gzip stream: %v", err)
	}
	return struct {
		io.Reader
		io.Closer
	}{gz, rc}, nil
}

func (l *Loader) open(ctx context.Context, location string) (io.ReadCloser, error) {
	switch {
	case location == "":
		return nil, errors.New("no location specified")
	case location == stdinLocation:
		stdin := l.Stdin
		if stdin == nil {
			stdin = os.Stdin
		}
		return io.NopCloser(stdin), nil
	case IsRemote(location):
		bucket, object, err := ParseObject(location)
		if err != nil {
			return nil, err
		}
		if err := l.checkWhitelist(bucket); err != nil {
			return nil, err
		}
		if l.Storage == nil {
			return nil, fmt.Errorf("no storage client for %q", location)
		}
		return l.Storage.NewObjectReader(ctx, bucket, object)
	}
	return os.Open(location)
}

func (l *Loader) checkWhitelist(bucket string) error {
	if len(l.Whitelist) == 0 || l.Whitelist[bucket] {
		return nil
	}
	return fmt.Errorf("%w: access to bucket %s is not allowed", ErrPermissionDenied, bucket)
}

// Load returns the full text of location.
func (l *Loader) Load(ctx context.Context, location string) (string, error) {
	rc, err := l.Open(ctx, location)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", location, err)
	}
	defer rc.Close()

	limit := l.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", location, err)
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("reading %s: %w (limit is %d bytes)", location, ErrTooLarge, limit)
	}
	return string(data), nil
}

// LoadPair loads two sources concurrently.
func (l *Loader) LoadPair(ctx context.Context, location1, location2 string) (string, string, error) {
	var text1, text2 string
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		text1, err = l.Load(ctx, location1)
		return err
	})
	g.Go(func() error {
		var err error
		text2, err = l.Load(ctx, location2)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", "", err
	}
	return text1, text2, nil
}
