package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/nidhogg/agency-studio/internal/orchestrator"
	"github.com/nidhogg/agency-studio/internal/provider"
	"github.com/nidhogg/agency-studio/internal/store"
	"github.com/nidhogg/agency-studio/internal/team"
	"go.uber.org/zap"
)

type echoExec struct {
	mu    sync.Mutex
	calls int
}

func (e *echoExec) Execute(_ context.Context, req *provider.TaskRequest) (*provider.TaskResponse, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return &provider.TaskResponse{Output: "draft from " + req.Model.Model, Model: req.Model.Model}, nil
}

type fakeEvents struct {
	events []*orchestrator.Event
}

func (f *fakeEvents) Subscribe(_ context.Context, _ string) <-chan *orchestrator.Event {
	ch := make(chan *orchestrator.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch
}

type testEnv struct {
	ts    *httptest.Server
	store *store.Memory
	svc   *orchestrator.Service
}

// newTestHandler wires the handler over the in-memory store and a real
// run service backed by a fake executor.
func newTestHandler(t *testing.T, events EventSource) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	mem := store.NewMemory()
	deps := orchestrator.Deps{
		Store:  mem,
		Config: mem,
		Exec:   &echoExec{},
		Logger: logger,
	}
	driver := orchestrator.NewDriver(4, logger)
	pipeline := orchestrator.NewPipeline(deps, driver)
	phased := orchestrator.NewPhased(deps, driver, orchestrator.PhasedOptions{})
	svc := orchestrator.NewService(mem, pipeline, phased, 2, logger)

	h := NewHandler(mem, svc, events, logger)
	ts := httptest.NewServer(h.Router())
	t.Cleanup(func() {
		svc.Wait()
		ts.Close()
	})
	return &testEnv{ts: ts, store: mem, svc: svc}
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func putJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPut, ts.URL+path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT %s: %v", path, err)
	}
	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("expected %d, got %d: %s", want, resp.StatusCode, body)
	}
}

func sampleTeam() map[string]interface{} {
	return map[string]interface{}{
		"id":        "team-1",
		"name":      "Launch crew",
		"directive": "Keep it short.",
		"workers": []map[string]interface{}{
			{"id": "w-research", "name": "Trend Analyst", "role_type": "trend research", "display_order": 1},
			{"id": "w-copy", "name": "Copy Writer", "role_type": "copywriter", "display_order": 2},
		},
		"overrides": map[string]string{"copy writer": "Write like a poet."},
	}
}

// --- Tests ---

func TestHealthCheck(t *testing.T) {
	env := newTestHandler(t, nil)
	resp := getJSON(t, env.ts, "/api/health")
	expectStatus(t, resp, http.StatusOK)
	var body map[string]string
	decodeJSON(t, resp, &body)
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %q", body["status"])
	}
}

func TestCreateTeam(t *testing.T) {
	env := newTestHandler(t, nil)
	resp := postJSON(t, env.ts, "/api/teams", sampleTeam())
	expectStatus(t, resp, http.StatusCreated)

	var created team.Team
	decodeJSON(t, resp, &created)
	if created.ID != "team-1" || len(created.Workers) != 2 {
		t.Fatalf("unexpected team: %+v", created)
	}
	if created.Workers[0].Role != team.RoleResearcher {
		t.Fatalf("expected researcher role, got %q", created.Workers[0].Role)
	}
	if created.Workers[1].Role != team.RoleCreatorText {
		t.Fatalf("expected creator_text role, got %q", created.Workers[1].Role)
	}
	if created.Overrides["w-copy"] != "Write like a poet." {
		t.Fatalf("override not resolved by name: %+v", created.Overrides)
	}

	resp = getJSON(t, env.ts, "/api/teams/team-1")
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = getJSON(t, env.ts, "/api/teams")
	expectStatus(t, resp, http.StatusOK)
	var teams []team.Team
	decodeJSON(t, resp, &teams)
	if len(teams) != 1 {
		t.Fatalf("expected 1 team, got %d", len(teams))
	}
}

func TestCreateTeamValidation(t *testing.T) {
	env := newTestHandler(t, nil)

	resp := postJSON(t, env.ts, "/api/teams", map[string]interface{}{"name": "no workers"})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = postJSON(t, env.ts, "/api/teams", map[string]interface{}{
		"name":    "dupes",
		"workers": []map[string]string{{"id": "a"}, {"id": "a"}},
	})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = postJSON(t, env.ts, "/api/teams", map[string]interface{}{
		"name":    "missing id",
		"workers": []map[string]string{{"name": "nobody"}},
	})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestGetTeamNotFound(t *testing.T) {
	env := newTestHandler(t, nil)
	resp := getJSON(t, env.ts, "/api/teams/missing")
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestSetOverrides(t *testing.T) {
	env := newTestHandler(t, nil)
	resp := postJSON(t, env.ts, "/api/teams", sampleTeam())
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = putJSON(t, env.ts, "/api/teams/team-1/overrides", map[string]interface{}{
		"overrides": map[string]string{"w-research": "Dig deeper."},
	})
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	got, err := env.store.Team(context.Background(), "team-1")
	if err != nil {
		t.Fatalf("team: %v", err)
	}
	if got.Overrides["w-research"] != "Dig deeper." || got.Overrides["w-copy"] != "" {
		t.Fatalf("unexpected overrides: %+v", got.Overrides)
	}
}

func TestStartRunAndReadBack(t *testing.T) {
	env := newTestHandler(t, nil)
	resp := postJSON(t, env.ts, "/api/teams", sampleTeam())
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = postJSON(t, env.ts, "/api/teams/team-1/runs", map[string]string{
		"project_id":          "proj-1",
		"custom_instructions": "Autumn launch",
	})
	expectStatus(t, resp, http.StatusAccepted)
	var run orchestrator.Run
	decodeJSON(t, resp, &run)
	if run.ID == "" || run.Status != orchestrator.RunPending || run.Mode != orchestrator.ModePipeline {
		t.Fatalf("unexpected run snapshot: %+v", run)
	}

	env.svc.Wait()

	resp = getJSON(t, env.ts, "/api/runs/"+run.ID)
	expectStatus(t, resp, http.StatusOK)
	var done orchestrator.Run
	decodeJSON(t, resp, &done)
	if done.Status != orchestrator.RunCompleted {
		t.Fatalf("expected completed run, got %q (%s)", done.Status, done.Error)
	}
	if len(done.StepsCompleted) != 2 {
		t.Fatalf("expected 2 completed steps, got %v", done.StepsCompleted)
	}

	resp = getJSON(t, env.ts, "/api/runs/"+run.ID+"/content")
	expectStatus(t, resp, http.StatusOK)
	var recs []map[string]interface{}
	decodeJSON(t, resp, &recs)
	if len(recs) != 2 {
		t.Fatalf("expected 2 content records, got %d", len(recs))
	}

	resp = getJSON(t, env.ts, "/api/teams/team-1/runs")
	expectStatus(t, resp, http.StatusOK)
	var runs []orchestrator.Run
	decodeJSON(t, resp, &runs)
	if len(runs) != 1 || runs[0].ID != run.ID {
		t.Fatalf("unexpected run list: %+v", runs)
	}
}

func TestStartRunErrors(t *testing.T) {
	env := newTestHandler(t, nil)

	resp := postJSON(t, env.ts, "/api/teams/ghost/runs", map[string]string{})
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = postJSON(t, env.ts, "/api/teams", sampleTeam())
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = postJSON(t, env.ts, "/api/teams/team-1/runs", map[string]string{"mode": "freestyle"})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = postJSON(t, env.ts, "/api/teams/team-1/runs", map[string]string{"quality": "MAX"})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestGetRunNotFound(t *testing.T) {
	env := newTestHandler(t, nil)
	resp := getJSON(t, env.ts, "/api/runs/nope")
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = getJSON(t, env.ts, "/api/runs/nope/content")
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestSetBasePrompts(t *testing.T) {
	env := newTestHandler(t, nil)

	resp := putJSON(t, env.ts, "/api/admin/prompts", map[string]interface{}{
		"prompts": map[string]string{"wizard": "cast spells"},
	})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = putJSON(t, env.ts, "/api/admin/prompts", map[string]interface{}{
		"prompts": map[string]string{"reviewer": "Be strict."},
	})
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	prompts, err := env.store.BasePrompts(context.Background())
	if err != nil {
		t.Fatalf("base prompts: %v", err)
	}
	if prompts[team.RoleReviewer] != "Be strict." {
		t.Fatalf("prompt not stored: %+v", prompts)
	}
}

func TestSetTiers(t *testing.T) {
	env := newTestHandler(t, nil)

	resp := putJSON(t, env.ts, "/api/admin/tiers", map[string]interface{}{
		"text": map[string]interface{}{"legendary": map[string]string{"provider": "openai", "model": "x"}},
	})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = putJSON(t, env.ts, "/api/admin/tiers", map[string]interface{}{
		"text": map[string]interface{}{"economy": map[string]string{"provider": "openai"}},
	})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = putJSON(t, env.ts, "/api/admin/tiers", map[string]interface{}{
		"text": map[string]interface{}{"economy": map[string]string{"provider": "openai", "model": "gpt-4o-mini"}},
	})
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	cfg, err := env.store.TierConfig(context.Background())
	if err != nil {
		t.Fatalf("tier config: %v", err)
	}
	if cfg.Text["economy"].Model != "gpt-4o-mini" {
		t.Fatalf("tier not stored: %+v", cfg)
	}
}

func TestSetBrand(t *testing.T) {
	env := newTestHandler(t, nil)
	resp := putJSON(t, env.ts, "/api/projects/proj-1/brand", map[string]interface{}{
		"name":     "Acme",
		"tone":     "playful",
		"keywords": []string{"rockets"},
	})
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	b, err := env.store.Brand(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("brand: %v", err)
	}
	if b.Name != "Acme" || b.Tone != "playful" {
		t.Fatalf("unexpected brand: %+v", b)
	}
}

func TestEventsUnavailable(t *testing.T) {
	env := newTestHandler(t, nil)
	resp := getJSON(t, env.ts, "/api/runs/any/events")
	expectStatus(t, resp, http.StatusServiceUnavailable)
	resp.Body.Close()
}

func TestEventsStream(t *testing.T) {
	events := &fakeEvents{events: []*orchestrator.Event{
		{ID: "1-0", Type: orchestrator.EventRunStarted},
		{ID: "2-0", Type: orchestrator.EventRunCompleted},
	}}
	env := newTestHandler(t, events)
	run := &orchestrator.Run{ID: "run-1", TeamID: "t", Status: orchestrator.RunCompleted}
	if err := env.store.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("create run: %v", err)
	}

	resp := getJSON(t, env.ts, "/api/runs/run-1/events")
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	text := string(body)
	if !strings.Contains(text, "event: run_started\n") || !strings.Contains(text, "event: run_completed\n") {
		t.Fatalf("missing events in stream: %q", text)
	}
	if strings.Index(text, "run_started") > strings.Index(text, "run_completed") {
		t.Fatalf("events out of order: %q", text)
	}
}
