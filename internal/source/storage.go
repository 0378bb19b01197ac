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
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// StorageClient is an interface to the object storage holding sequence files.
type StorageClient interface {
	// NewObjectReader returns a reader for the whole of the named object.
	NewObjectReader(ctx context.Context, bucket, object string) (io.ReadCloser, error)
}

// NewStorageClientFunc constructs the StorageClient used to satisfy an
// incoming request.
type NewStorageClientFunc func(*http.Request) (StorageClient, error)

// GCSClient is a StorageClient for Google Cloud Storage.
type GCSClient struct {
	*storage.Client
}

// NewObjectReader implements StorageClient.
func (c GCSClient) NewObjectReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	r, err := c.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, storageError(err)
	}
	return r, nil
}

// sharedClient lazily creates a storage client that is shared by all
// requests.
type sharedClient struct {
	once   sync.Once
	client *storage.Client
	err    error
}

func (s *sharedClient) get(opts ...option.ClientOption) (StorageClient, error) {
	s.once.Do(func() {
		s.client, s.err = storage.NewClient(context.Background(), opts...)
	})
	if s.err != nil {
		return nil, fmt.Errorf("creating shared storage client: %v", s.err)
	}
	return GCSClient{s.client}, nil
}

var defaultClient, publicClient sharedClient

// NewDefaultClient returns a storage client that uses the application default
// credentials.  The underlying client is created once and shared.
func NewDefaultClient(_ *http.Request) (StorageClient, error) {
	return defaultClient.get()
}

// NewPublicClient returns a storage client without any authorization.  It
// can only read publicly readable objects.  The underlying client is created
// once and shared.
func NewPublicClient(_ *http.Request) (StorageClient, error) {
	return publicClient.get(option.WithHTTPClient(http.DefaultClient))
}

// NewClientFromBearerToken returns a storage client that reads with the
// OAuth2 bearer token carried by req.
func NewClientFromBearerToken(req *http.Request) (StorageClient, error) {
	fields := strings.Fields(req.Header.Get("Authorization"))
	if len(fields) != 2 || fields[0] != "Bearer" {
		return nil, ErrMissingOrInvalidToken
	}
	return NewClientFromToken(req.Context(), fields[1])
}

// NewClientFromToken returns a storage client that reads with the given
// OAuth2 access token.
func NewClientFromToken(ctx context.Context, accessToken string) (StorageClient, error) {
	token := oauth2.Token{
		TokenType:   "Bearer",
		AccessToken: accessToken,
	}
	client, err := storage.NewClient(ctx, option.WithTokenSource(oauth2.StaticTokenSource(&token)))
	if err != nil {
		return nil, fmt.Errorf("creating client with token source: %v", err)
	}
	return GCSClient{client}, nil
}

var (
	// ErrNotFound is returned when a sequence object does not exist.
	ErrNotFound = errors.New("object does not exist")

	// ErrPermissionDenied is returned when the caller may not read an object.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUnauthenticated is returned when storage rejects the credentials.
	ErrUnauthenticated = errors.New("invalid authentication")

	// ErrMissingOrInvalidToken is returned when a request has no usable bearer
	// token.
	ErrMissingOrInvalidToken = errors.New("missing or invalid token")
)

func storageError(err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		}
	}
	return err
}
