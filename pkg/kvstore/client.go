// Package kvstore is a minimal client for a Redis-compatible key/value store
// exposed over a REST command API. A command is POSTed as a JSON array
// (["SET", key, value, "EX", "3600"]) and the response carries either a
// result or an error string.
package kvstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config is the parsed, validated connection configuration. Parsing is kept
// separate from the client so callers can decide what to do with a bad
// configuration before anything is constructed.
type Config struct {
	Endpoint string
	Token    string
}

// ParseConfig validates the store endpoint and credential. It performs no
// I/O.
func ParseConfig(rawURL, token string) (*Config, error) {
	if rawURL == "" {
		return nil, errors.New("kvstore: endpoint is empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("kvstore: parse endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("kvstore: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("kvstore: endpoint has no host")
	}
	if token == "" {
		return nil, errors.New("kvstore: token is empty")
	}
	return &Config{Endpoint: u.String(), Token: token}, nil
}

// Client executes commands against the store.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

func NewClient(cfg *Config) *Client {
	return &Client{
		endpoint:   cfg.Endpoint,
		token:      cfg.Token,
		httpClient: http.DefaultClient,
	}
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// do sends one command array and returns the raw result.
func (c *Client) do(ctx context.Context, command []any) (json.RawMessage, error) {
	b, err := json.Marshal(command)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("kvstore: decode response: %w", err)
	}
	if out.Error != "" {
		return nil, errors.New("kvstore: " + out.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("kvstore: unexpected status " + resp.Status)
	}
	return out.Result, nil
}

// Get returns the value for key. The second return is false when the key does
// not exist.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	res, err := c.do(ctx, []any{"GET", key})
	if err != nil {
		return "", false, err
	}
	if len(res) == 0 || string(res) == "null" {
		return "", false, nil
	}
	var v string
	if err := json.Unmarshal(res, &v); err != nil {
		return "", false, fmt.Errorf("kvstore: decode GET result: %w", err)
	}
	return v, true, nil
}

// SetEx stores value under key with an expiry.
func (c *Client) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	seconds := int(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	_, err := c.do(ctx, []any{"SET", key, value, "EX", strconv.Itoa(seconds)})
	return err
}

// Del removes the given keys and returns how many existed.
func (c *Client) Del(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	command := make([]any, 0, len(keys)+1)
	command = append(command, "DEL")
	for _, k := range keys {
		command = append(command, k)
	}
	res, err := c.do(ctx, command)
	if err != nil {
		return 0, err
	}
	var n int
	if err := json.Unmarshal(res, &n); err != nil {
		return 0, fmt.Errorf("kvstore: decode DEL result: %w", err)
	}
	return n, nil
}

// Scan returns the next cursor and a page of keys matching pattern. The scan
// is complete when the returned cursor is "0".
func (c *Client) Scan(ctx context.Context, cursor, pattern string, count int) (string, []string, error) {
	res, err := c.do(ctx, []any{"SCAN", cursor, "MATCH", pattern, "COUNT", strconv.Itoa(count)})
	if err != nil {
		return "", nil, err
	}
	var page []json.RawMessage
	if err := json.Unmarshal(res, &page); err != nil || len(page) != 2 {
		return "", nil, errors.New("kvstore: malformed SCAN result")
	}
	var next string
	if err := json.Unmarshal(page[0], &next); err != nil {
		// Some stores return the cursor as a number.
		var n json.Number
		if err := json.Unmarshal(page[0], &n); err != nil {
			return "", nil, errors.New("kvstore: malformed SCAN cursor")
		}
		next = n.String()
	}
	var keys []string
	if err := json.Unmarshal(page[1], &keys); err != nil {
		return "", nil, errors.New("kvstore: malformed SCAN keys")
	}
	return next, keys, nil
}

// Ping checks connectivity to the store.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, []any{"PING"})
	return err
}
