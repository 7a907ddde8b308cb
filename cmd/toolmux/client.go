package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kestrelworks/toolmux/internal/httpkit"
)

// adminClient is a thin JSON client for the daemon's HTTP API. The
// status, tools, resources, and call commands all go through it.
type adminClient struct {
	base  string
	token string
	http  *http.Client
}

// newAdminClient builds a client from flags and environment settings.
func newAdminClient() (*adminClient, error) {
	settings, err := resolveSettings()
	if err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	base := settings.ListenAddr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	return &adminClient{
		base:  strings.TrimSuffix(base, "/"),
		token: settings.AdminToken,
		http: httpkit.NewClient(
			httpkit.WithTimeout(60*time.Second),
			httpkit.WithRetry(2, 200*time.Millisecond),
		),
	}, nil
}

func (c *adminClient) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connect to daemon at %s: %w", c.base, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := httpkit.ReadErrorBody(resp.Body, 4096)
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal([]byte(msg), &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return fmt.Errorf("%s: %s", resp.Status, msg)
	}

	if out == nil {
		httpkit.DrainAndClose(resp.Body, 4096)
		return nil
	}

	defer httpkit.DrainAndClose(resp.Body, 4096)
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *adminClient) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *adminClient) postJSON(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}
