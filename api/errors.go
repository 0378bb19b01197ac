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

	"github.com/gin-gonic/gin"

	"github.com/googlegenomics/nwalign/internal/source"
	"github.com/googlegenomics/nwalign/sequence"
)

// apiError is used to capture errors that are reported to clients with a
// name and status code.
type apiError struct {
	name  string
	code  int
	cause error
}

func (err *apiError) Error() string {
	return fmt.Sprintf("%s (%d): %v", err.name, err.code, err.cause)
}

func (err *apiError) Unwrap() error {
	return err.cause
}

func newAPIError(name string, code int, context string, err error) error {
	return &apiError{name, code, fmt.Errorf("%s: %w", context, err)}
}

func newInvalidInputError(context string, err error) error {
	return newAPIError("InvalidInput", http.StatusBadRequest, context, err)
}

func newInvalidAuthenticationError(context string, err error) error {
	return newAPIError("InvalidAuthentication", http.StatusUnauthorized, context, err)
}

func newPermissionDeniedError(context string, err error) error {
	return newAPIError("PermissionDenied", http.StatusForbidden, context, err)
}

func newNotFoundError(context string, err error) error {
	return newAPIError("NotFound", http.StatusNotFound, context, err)
}

func newRuntimeFaultError(err error) error {
	return &apiError{"RuntimeFault", http.StatusInternalServerError, err}
}

// newSourceError classifies a failure to load a sequence source.
func newSourceError(context string, err error) error {
	switch {
	case errors.Is(err, source.ErrNotFound):
		return newNotFoundError(context, err)
	case errors.Is(err, source.ErrUnauthenticated):
		return newInvalidAuthenticationError(context, err)
	case errors.Is(err, source.ErrPermissionDenied), errors.Is(err, source.ErrMissingOrInvalidToken):
		return newPermissionDeniedError(context, err)
	case errors.Is(err, source.ErrTooLarge):
		return newInvalidInputError(context, err)
	}
	return fmt.Errorf("%s: %w", context, err)
}

// newSequenceError classifies a normalization failure.
func newSequenceError(err error) error {
	if sequence.IsInputError(err) {
		return newInvalidInputError("normalizing sequences", err)
	}
	return err
}

// writeError writes a JSON object describing err.  Errors without a defined
// name are reported as internal errors.
func writeError(c *gin.Context, err error) {
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		apiErr = &apiError{"InternalError", http.StatusInternalServerError, err}
	}
	c.JSON(apiErr.code, gin.H{
		"error":   apiErr.name,
		"message": fmt.Sprintf("%s: %v", http.StatusText(apiErr.code), apiErr.cause),
	})
}
