// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides bounded HTTP I/O helpers.
//
// Every JSON body read from a homeserver or a well-known endpoint goes
// through ReadResponse, which caps the read at MaxResponseSize so a
// misbehaving server cannot exhaust memory.
// FetchJSON covers the unauthenticated GET-and-decode pattern used for
// server discovery documents.
package netutil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// MaxResponseSize bounds JSON response body reads: 64 MB. Account data
// and room state documents are orders of magnitude smaller; the limit
// only exists to stop a pathological response.
const MaxResponseSize int64 = 64 << 20

// ReadResponse reads a JSON API response body up to MaxResponseSize bytes.
// Use instead of io.ReadAll when reading HTTP response bodies.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// decodeResponse reads a JSON API response body (up to MaxResponseSize
// bytes) and JSON-decodes it into v.
func decodeResponse(body io.Reader, v any) error {
	data, err := ReadResponse(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// StatusError is returned by FetchJSON for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d: %s", e.URL, e.StatusCode, e.Body)
}

// FetchJSON performs an unauthenticated GET of url and decodes the
// JSON body into v. Non-2xx responses return a *StatusError carrying
// the (bounded) body for diagnostics.
func FetchJSON(ctx context.Context, client *http.Client, url string, v any) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request for %s: %w", url, err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := client.Do(request)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		data, _ := ReadResponse(response.Body)
		return &StatusError{URL: url, StatusCode: response.StatusCode, Body: string(data)}
	}
	if err := decodeResponse(response.Body, v); err != nil {
		return fmt.Errorf("decoding %s: %w", url, err)
	}
	return nil
}
