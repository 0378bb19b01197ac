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

package source

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, data, 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", p, err)
	}
	return p
}

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatalf("Failed to compress: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Failed to compress: %v", err)
	}
	return buf.Bytes()
}

func TestLoadLocal(t *testing.T) {
	ctx := context.Background()
	var l Loader

	plain := writeFile(t, "seq.fa", []byte(">s\nACGT\n"))
	if got, err := l.Load(ctx, plain); err != nil {
		t.Errorf("Load(%s) failed: %v", plain, err)
	} else if want := ">s\nACGT\n"; got != want {
		t.Errorf("Wrong text: got %q, want %q", got, want)
	}

	compressed := writeFile(t, "seq.fa.gz", gzipped(t, ">s\nGGCC\n"))
	if got, err := l.Load(ctx, compressed); err != nil {
		t.Errorf("Load(%s) failed: %v", compressed, err)
	} else if want := ">s\nGGCC\n"; got != want {
		t.Errorf("Wrong text: got %q, want %q", got, want)
	}

	if _, err := l.Load(ctx, filepath.Join(t.TempDir(), "missing.fa")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Wrong error for missing file: %v", err)
	}
}

func TestLoadStdin(t *testing.T) {
	l := Loader{Stdin: strings.NewReader("acgt")}
	got, err := l.Load(context.Background(), "-")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got != "acgt" {
		t.Errorf("Wrong text: got %q, want %q", got, "acgt")
	}
}

func TestLoadTooLarge(t *testing.T) {
	l := Loader{MaxBytes: 4}
	p := writeFile(t, "big.fa", []byte("ACGTA"))
	if _, err := l.Load(context.Background(), p); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Wrong error: got %v, want %v", err, ErrTooLarge)
	}
	p = writeFile(t, "ok.fa", []byte("ACGT"))
	if _, err := l.Load(context.Background(), p); err != nil {
		t.Errorf("Load at limit failed: %v", err)
	}
}

func TestLoadPair(t *testing.T) {
	var l Loader
	p1 := writeFile(t, "a.fa", []byte("AAA"))
	p2 := writeFile(t, "b.fa", []byte("CCC"))

	got1, got2, err := l.LoadPair(context.Background(), p1, p2)
	if err != nil {
		t.Fatalf("LoadPair failed: %v", err)
	}
	if got1 != "AAA" || got2 != "CCC" {
		t.Errorf("Wrong texts: got (%q, %q)", got1, got2)
	}

	if _, _, err := l.LoadPair(context.Background(), p1, ""); err == nil {
		t.Error("LoadPair accepted an empty location")
	}
}

func TestParseObject(t *testing.T) {
	testCases := []struct {
		location, bucket, object string
		ok                       bool
	}{
		{"gs://bucket/object.fa", "bucket", "object.fa", true},
		{"gs://bucket/dir/object.fa", "bucket", "dir/object.fa", true},
		{"gs://bucket", "", "", false},
		{"gs://bucket/", "", "", false},
		{"gs:///object", "", "", false},
		{"/local/path", "", "", false},
	}
	for _, tc := range testCases {
		bucket, object, err := ParseObject(tc.location)
		if ok := err == nil; ok != tc.ok {
			t.Errorf("ParseObject(%q): got error %v, want ok=%v", tc.location, err, tc.ok)
			continue
		}
		if bucket != tc.bucket || object != tc.object {
			t.Errorf("ParseObject(%q): got (%q, %q), want (%q, %q)", tc.location, bucket, object, tc.bucket, tc.object)
		}
	}
}

func TestLoadStorage(t *testing.T) {
	ctx := context.Background()
	objects := map[string]string{"seq1.fa": ">seq1\nGATTACA\n"}

	gcs := newFakeStorage(ctx, t, &fakeGCS{objects})
	l := Loader{Storage: gcs}

	got, err := l.Load(ctx, "gs://bucket/seq1.fa")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if want := objects["seq1.fa"]; got != want {
		t.Errorf("Wrong text: got %q, want %q", got, want)
	}

	if _, err := l.Load(ctx, "gs://bucket/missing.fa"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Wrong error: got %v, want %v", err, ErrNotFound)
	}
}

func TestLoadStorageWhitelist(t *testing.T) {
	ctx := context.Background()
	gcs := newFakeStorage(ctx, t, &fakeGCS{map[string]string{"seq1.fa": "ACGT"}})
	l := Loader{Storage: gcs, Whitelist: map[string]bool{"allowed": true}}

	if _, err := l.Load(ctx, "gs://allowed/seq1.fa"); err != nil {
		t.Errorf("Load from whitelisted bucket failed: %v", err)
	}
	if _, err := l.Load(ctx, "gs://other/seq1.fa"); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Wrong error: got %v, want %v", err, ErrPermissionDenied)
	}
}

// This test ensures that storage failures keep mapping onto the errors the
// API reports to its callers.
func TestStorageErrors(t *testing.T) {
	testCases := []struct {
		name string
		code int
		want error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrUnauthenticated},
		{"forbidden", http.StatusForbidden, ErrPermissionDenied},
		{"not found", http.StatusNotFound, ErrNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			l := Loader{Storage: newFakeStorage(ctx, t, fixedStatus(tc.code))}
			if _, err := l.Load(ctx, "gs://bucket/seq.fa"); !errors.Is(err, tc.want) {
				t.Errorf("Wrong error: got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestNoStorageClient(t *testing.T) {
	var l Loader
	if _, err := l.Load(context.Background(), "gs://bucket/seq.fa"); err == nil {
		t.Error("Load succeeded without a storage client")
	}
}

func TestNewClientFromBearerToken(t *testing.T) {
	req := httptest.NewRequest("POST", "/align", nil)
	if _, err := NewClientFromBearerToken(req); !errors.Is(err, ErrMissingOrInvalidToken) {
		t.Errorf("Wrong error without header: got %v, want %v", err, ErrMissingOrInvalidToken)
	}
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if _, err := NewClientFromBearerToken(req); !errors.Is(err, ErrMissingOrInvalidToken) {
		t.Errorf("Wrong error with basic auth: got %v, want %v", err, ErrMissingOrInvalidToken)
	}
}

func newFakeStorage(ctx context.Context, t *testing.T, transport http.RoundTripper) StorageClient {
	t.Helper()
	client, err := storage.NewClient(ctx, option.WithHTTPClient(&http.Client{Transport: transport}))
	if err != nil {
		t.Fatalf("Failed to create storage client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return GCSClient{client}
}

type fixedStatus int

func (code fixedStatus) RoundTrip(*http.Request) (*http.Response, error) {
	return &http.Response{
		Status:     http.StatusText(int(code)),
		StatusCode: int(code),
		Header:     make(http.Header),
		Body:       http.NoBody,
	}, nil
}

// fakeGCS serves objects by the last element of the request path.
type fakeGCS struct {
	objects map[string]string
}

func (fake *fakeGCS) RoundTrip(req *http.Request) (*http.Response, error) {
	w := httptest.NewRecorder()
	content, ok := fake.objects[path.Base(req.URL.Path)]
	if !ok {
		http.Error(w, "no such object", http.StatusNotFound)
		return w.Result(), nil
	}
	http.ServeContent(w, req, req.URL.Path, time.Now(), strings.NewReader(content))
	return w.Result(), nil
}
