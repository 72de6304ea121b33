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
)

// client is a thin JSON client for the studio HTTP API.
type client struct {
	base string
	http *http.Client
}

func newClient(server string) *client {
	return &client{
		base: strings.TrimRight(server, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// apiError is a non-2xx response.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (c *client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &apiError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// run mirrors the run fields the CLI prints.
type run struct {
	ID                  string   `json:"id"`
	TeamID              string   `json:"team_id"`
	Mode                string   `json:"mode"`
	Quality             string   `json:"quality"`
	Status              string   `json:"status"`
	CurrentStage        string   `json:"current_stage"`
	StepsCompleted      []string `json:"steps_completed"`
	GeneratedContentIDs []string `json:"generated_content_ids"`
	Credits             float64  `json:"credits"`
	Error               string   `json:"error"`
}

func (r *run) terminal() bool {
	return r.Status == "completed" || r.Status == "failed"
}

type contentRecord struct {
	ID          string `json:"id"`
	WorkerID    string `json:"worker_id"`
	Type        string `json:"content_type"`
	Publishable bool   `json:"publishable"`
	Title       string `json:"title"`
	RawOutput   string `json:"raw_output"`
	Fallback    bool   `json:"fallback"`
}

type teamSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Directive string `json:"directive"`
}

func (c *client) startRun(ctx context.Context, teamID string, req map[string]string) (*run, error) {
	var r run
	if err := c.do(ctx, http.MethodPost, "/api/teams/"+teamID+"/runs", req, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *client) getRun(ctx context.Context, id string) (*run, error) {
	var r run
	if err := c.do(ctx, http.MethodGet, "/api/runs/"+id, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// waitRun polls until the run is terminal or ctx is done.
func (c *client) waitRun(ctx context.Context, id string, every time.Duration) (*run, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		r, err := c.getRun(ctx, id)
		if err != nil {
			return nil, err
		}
		if r.terminal() {
			return r, nil
		}
		select {
		case <-ctx.Done():
			return r, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *client) listContent(ctx context.Context, runID string) ([]contentRecord, error) {
	var recs []contentRecord
	if err := c.do(ctx, http.MethodGet, "/api/runs/"+runID+"/content", nil, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (c *client) listTeams(ctx context.Context) ([]teamSummary, error) {
	var teams []teamSummary
	if err := c.do(ctx, http.MethodGet, "/api/teams", nil, &teams); err != nil {
		return nil, err
	}
	return teams, nil
}
