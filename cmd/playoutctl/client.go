package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// apiError is a non-2xx reply from the control API.
type apiError struct {
	Code    int
	Message string
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("control API returned %d", e.Code)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Code)
}

// client is a thin HTTP client for the worker's control API.
type client struct {
	base  string
	token string
	http  *http.Client
}

func newClient(opts *options) *client {
	return &client{
		base:  strings.TrimRight(opts.url, "/"),
		token: opts.token,
		http:  &http.Client{Timeout: opts.timeout},
	}
}

// command runs a channel command. A nil map with a nil error means the
// worker answered 204 No Content.
func (c *client) command(ctx context.Context, channel int, method string, args map[string]any) (map[string]any, error) {
	var body io.Reader
	if len(args) > 0 {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("encoding arguments: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	path := fmt.Sprintf("/api/v1/channels/%d/%s", channel, method)
	return c.do(ctx, http.MethodPost, path, body)
}

// get fetches a read-only resource such as /api/v1/asrun.
func (c *client) get(ctx context.Context, path string, query url.Values) (map[string]any, error) {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *client) do(ctx context.Context, method, path string, body io.Reader) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contacting playout worker: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil //nolint:nilnil // 204 carries no reply
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading reply: %w", err)
	}

	var reply map[string]any
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&reply); err != nil {
			if resp.StatusCode >= http.StatusBadRequest {
				return nil, &apiError{Code: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
			}
			return nil, fmt.Errorf("decoding reply: %w", err)
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &apiError{Code: resp.StatusCode, Message: replyMessage(reply)}
	}
	return reply, nil
}

// replyMessage extracts the text of a command result or API error.
func replyMessage(reply map[string]any) string {
	msg, _ := reply["message"].(string)
	return msg
}
