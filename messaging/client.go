// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/bureau-foundation/integrations/lib/netutil"
	"github.com/bureau-foundation/integrations/lib/ref"
	"github.com/bureau-foundation/integrations/lib/schema"
	"github.com/bureau-foundation/integrations/lib/secret"
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// HomeserverURL is the base URL of the Matrix homeserver (e.g., "https://matrix.example.org").
	HomeserverURL string
	// WellKnownURL is the base URL that serves /.well-known/matrix/client,
	// normally https://<server name>. If empty, HomeserverURL is used.
	WellKnownURL string
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client is an unauthenticated Matrix client.
// It holds the homeserver URL and HTTP transport, shared across Sessions.
type Client struct {
	baseURL      string
	wellKnownURL string
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewClient creates a new unauthenticated Matrix client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.HomeserverURL == "" {
		return nil, fmt.Errorf("messaging: HomeserverURL is required")
	}

	// Validate the URL structure. We store the string form (with trailing
	// slash stripped) and build request URLs by direct concatenation.
	if _, err := url.Parse(config.HomeserverURL); err != nil {
		return nil, fmt.Errorf("messaging: invalid HomeserverURL %q: %w", config.HomeserverURL, err)
	}
	wellKnownURL := config.WellKnownURL
	if wellKnownURL == "" {
		wellKnownURL = config.HomeserverURL
	} else if _, err := url.Parse(wellKnownURL); err != nil {
		return nil, fmt.Errorf("messaging: invalid WellKnownURL %q: %w", wellKnownURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:      strings.TrimRight(config.HomeserverURL, "/"),
		wellKnownURL: strings.TrimRight(wellKnownURL, "/"),
		httpClient:   httpClient,
		logger:       logger,
	}, nil
}

// CloseIdleConnections closes idle HTTP connections in the underlying
// transport's connection pool. Call this after a network disruption to
// force subsequent requests to establish fresh TCP connections instead
// of reusing a poisoned pooled connection.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// ClientWellKnown fetches /.well-known/matrix/client from the
// configured well-known base URL. This endpoint is unauthenticated and
// independent of any session.
func (c *Client) ClientWellKnown(ctx context.Context) (*schema.ClientWellKnown, error) {
	var wellKnown schema.ClientWellKnown
	if err := netutil.FetchJSON(ctx, c.httpClient, c.wellKnownURL+"/.well-known/matrix/client", &wellKnown); err != nil {
		return nil, fmt.Errorf("messaging: fetching client well-known: %w", err)
	}
	return &wellKnown, nil
}

// SessionFromToken creates a DirectSession from an existing access token.
// The token is moved into mmap-backed memory (locked against swap,
// excluded from core dumps) and the caller's slice is zeroed.
//
// This does NOT validate the token; the first API call will fail if
// it is invalid. Use WhoAmI to check. The caller must call Close on
// the returned DirectSession when done.
func (c *Client) SessionFromToken(userID ref.UserID, accessToken []byte) (*DirectSession, error) {
	if userID.IsZero() {
		return nil, fmt.Errorf("messaging: user ID is required")
	}
	tokenBuffer, err := secret.NewFromBytes(accessToken)
	if err != nil {
		return nil, fmt.Errorf("messaging: protecting access token: %w", err)
	}
	return c.SessionFromBuffer(userID, tokenBuffer), nil
}

// SessionFromBuffer creates a DirectSession that takes ownership of an
// already-protected access token. Closing the session closes the
// buffer.
func (c *Client) SessionFromBuffer(userID ref.UserID, accessToken *secret.Buffer) *DirectSession {
	return &DirectSession{
		client:      c,
		accessToken: accessToken,
		userID:      userID,
	}
}

// doRequest performs an HTTP request to the homeserver and returns the response body.
// On 2xx, returns the body. On 4xx/5xx, returns a *MatrixError.
// accessToken may be nil for unauthenticated endpoints.
// query may be nil for endpoints without query parameters.
func (c *Client) doRequest(ctx context.Context, method, path string, accessToken *secret.Buffer, requestBody any, query ...url.Values) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 && query[0] != nil {
		requestURL += "?" + query[0].Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("messaging: failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("messaging: failed to create request: %w", err)
	}

	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if accessToken != nil {
		request.Header.Set("Authorization", "Bearer "+accessToken.String())
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("messaging: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("messaging: failed to read response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	// All Matrix error responses use the same JSON shape.
	var matrixErr MatrixError
	if jsonErr := json.Unmarshal(responseBody, &matrixErr); jsonErr != nil || matrixErr.Code == "" {
		// Server returned a non-Matrix error (a reverse proxy page,
		// for instance). Fail loud with the raw body.
		return nil, fmt.Errorf("messaging: unexpected %d response from %s %s: %s",
			response.StatusCode, method, path, string(responseBody))
	}
	matrixErr.StatusCode = response.StatusCode

	return nil, &matrixErr
}
