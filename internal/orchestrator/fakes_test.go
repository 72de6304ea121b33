package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nidhogg/agency-studio/internal/content"
	"github.com/nidhogg/agency-studio/internal/provider"
	"github.com/nidhogg/agency-studio/internal/team"
	"github.com/nidhogg/agency-studio/internal/tier"
)

var errNotFound = errors.New("not found")

// fakeStore implements Persistence and ConfigSource in memory.
type fakeStore struct {
	mu       sync.Mutex
	teams    map[string]*team.Team
	runs     map[string]*Run
	contents []*content.Record
	projects map[string]*ProjectContext
	saved    map[ContextKind]string
	tiers    tier.Config
}

func newFakeStore(teams ...*team.Team) *fakeStore {
	s := &fakeStore{
		teams:    make(map[string]*team.Team),
		runs:     make(map[string]*Run),
		projects: make(map[string]*ProjectContext),
		saved:    make(map[ContextKind]string),
	}
	for _, t := range teams {
		s.teams[t.ID] = t
	}
	return s
}

func (s *fakeStore) CreateRun(_ context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *fakeStore) UpdateRunStatus(_ context.Context, runID string, status RunStatus, patch RunPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		r = &Run{ID: runID}
		s.runs[runID] = r
	}
	r.Status = status
	if patch.CurrentStage != "" {
		r.CurrentStage = patch.CurrentStage
	}
	if patch.Error != "" {
		r.Error = patch.Error
	}
	if patch.ContentIDs != nil {
		r.GeneratedContentIDs = patch.ContentIDs
	}
	if patch.Credits > 0 {
		r.Credits = patch.Credits
	}
	return nil
}

func (s *fakeStore) AppendCompletedStep(_ context.Context, runID, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		r = &Run{ID: runID}
		s.runs[runID] = r
	}
	r.StepsCompleted = append(r.StepsCompleted, workerID)
	return nil
}

func (s *fakeStore) CreateContent(_ context.Context, rec *content.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contents = append(s.contents, rec)
	return fmt.Sprintf("content-%d", len(s.contents)), nil
}

func (s *fakeStore) SaveProjectContext(_ context.Context, _ string, kind ContextKind, text string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[kind] = text
	return nil
}

func (s *fakeStore) Team(_ context.Context, id string) (*team.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[id]
	if !ok {
		return nil, errNotFound
	}
	return t, nil
}

func (s *fakeStore) BasePrompts(context.Context) (map[team.Role]string, error) {
	return nil, errNotFound
}

func (s *fakeStore) TierConfig(context.Context) (tier.Config, error) {
	return s.tiers, nil
}

func (s *fakeStore) Brand(context.Context, string) (*team.Brand, error) {
	return nil, errNotFound
}

func (s *fakeStore) ProjectContext(_ context.Context, id string) (*ProjectContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pc, ok := s.projects[id]
	if !ok {
		return nil, errNotFound
	}
	return pc, nil
}

func (s *fakeStore) run(id string) Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.runs[id]
}

// call is one recorded task execution.
type call struct {
	Worker  string
	Request provider.TaskRequest
}

// fakeExec identifies the calling worker from the "WORKER <id>" override
// placed in its system prompt.
type fakeExec struct {
	mu    sync.Mutex
	calls []call
	fn    func(worker string, req *provider.TaskRequest) (string, error)
}

func (f *fakeExec) Execute(_ context.Context, req *provider.TaskRequest) (*provider.TaskResponse, error) {
	worker := workerOf(req.SystemPrompt)
	f.mu.Lock()
	f.calls = append(f.calls, call{Worker: worker, Request: *req})
	f.mu.Unlock()

	out := "output of " + worker
	if f.fn != nil {
		var err error
		if out, err = f.fn(worker, req); err != nil {
			return nil, err
		}
	}
	return &provider.TaskResponse{Output: out, Provider: req.Model.Provider, Model: req.Model.Model}, nil
}

func (f *fakeExec) callsFor(worker string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.Worker == worker {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeExec) order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Worker
	}
	return out
}

func workerOf(systemPrompt string) string {
	const marker = "WORKER "
	i := strings.Index(systemPrompt, marker)
	if i < 0 {
		return ""
	}
	rest := systemPrompt[i+len(marker):]
	if j := strings.IndexAny(rest, " \n"); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

// newTeam builds a team whose overrides tag each worker's system prompt.
func newTeam(id string, workers ...team.Worker) *team.Team {
	overrides := make(map[string]string, len(workers))
	for i := range workers {
		workers[i].DisplayOrder = i
		overrides[workers[i].ID] = "WORKER " + workers[i].ID
	}
	return &team.Team{ID: id, Name: id, Directive: "Launch the spring campaign", Workers: workers, Overrides: overrides}
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Publish(_ context.Context, ev *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, *ev)
	return nil
}

func (l *eventLog) types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventType, len(l.events))
	for i, e := range l.events {
		out[i] = e.Type
	}
	return out
}

type notifierSpy struct {
	mu   sync.Mutex
	runs []Run
}

func (n *notifierSpy) RunFinished(_ context.Context, run *Run) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.runs = append(n.runs, *run)
}
