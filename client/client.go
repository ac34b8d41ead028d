// Package client is a small Go SDK for calling a running urishortd
// instance: shorten a URL, resolve a code, delete a code. Grounded on
// connect/httpx's BaseURL+http.Client wrapper shape, adapted from a
// generic endpoint client to this service's specific three-operation
// surface.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Client calls a urishortd instance's external HTTP API.
type Client struct {
	// BaseURL is prepended to all request paths, e.g.
	// "http://127.0.0.1:8080". Must not have a trailing slash.
	BaseURL string

	// HTTP is the underlying http.Client. If nil, http.DefaultClient is
	// used. Set this to a client configured for HTTP/2 cleartext
	// (h2c) when talking to urishortd over plain TCP.
	HTTP *http.Client
}

// New creates a Client for the given base URL.
func New(baseURL string) *Client {
	return &Client{BaseURL: baseURL}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// Link is the JSON representation returned by Shorten and Resolve.
type Link struct {
	Code string `json:"code"`
	URL  string `json:"url"`
}

// ErrorResponse is the JSON body returned on non-2xx responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusError is returned when the server responds with a non-2xx
// status. Retry-After is populated when the server set that header
// (the 503-overload response always does).
type StatusError struct {
	StatusCode int
	Message    string
	RetryAfter string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("urishort: status %d: %s", e.StatusCode, e.Message)
}

// Shorten requests a short code for url.
func (c *Client) Shorten(url string) (Link, error) {
	body, err := json.Marshal(map[string]string{"url": url})
	if err != nil {
		return Link{}, err
	}
	resp, err := c.httpClient().Post(c.BaseURL+"/shorten", "application/json", bytes.NewReader(body))
	if err != nil {
		return Link{}, err
	}
	defer resp.Body.Close()

	var link Link
	if err := decodeOrError(resp, &link); err != nil {
		return Link{}, err
	}
	return link, nil
}

// Resolve looks up the URL behind code.
func (c *Client) Resolve(code string) (Link, error) {
	resp, err := c.httpClient().Get(c.BaseURL + "/" + code)
	if err != nil {
		return Link{}, err
	}
	defer resp.Body.Close()

	var link Link
	if err := decodeOrError(resp, &link); err != nil {
		return Link{}, err
	}
	return link, nil
}

// Delete removes code.
func (c *Client) Delete(code string) error {
	req, err := http.NewRequest(http.MethodDelete, c.BaseURL+"/"+code, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeOrError(resp, nil)
}

// Health checks GET /health.
func (c *Client) Health() error {
	resp, err := c.httpClient().Get(c.BaseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeOrError(resp, nil)
}

func decodeOrError(resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		var errResp ErrorResponse
		_ = json.Unmarshal(body, &errResp)
		msg := errResp.Error
		if msg == "" {
			msg = string(body)
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: msg, RetryAfter: resp.Header.Get("Retry-After")}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
