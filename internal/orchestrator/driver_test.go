package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/nidhogg/agency-studio/internal/invoker"
	"github.com/nidhogg/agency-studio/internal/team"
	"go.uber.org/zap"
)

func TestClassifyPartitionsExactly(t *testing.T) {
	workers := []team.Worker{
		{ID: "a", RoleType: "planner"},
		{ID: "b", RoleType: "creator_text"},
		{ID: "c", RoleType: "Senior Copywriter"},
		{ID: "d", RoleType: "reviewer"},
		{ID: "e", RoleType: "astrologer"},
		{ID: "f", RoleType: "이미지 디자이너"},
		{ID: "g", RoleType: "market research"},
		{ID: "h", Role: team.RoleManager},
	}
	p := Classify(workers)
	if p.Len() != len(workers) {
		t.Fatalf("partition size %d, want %d", p.Len(), len(workers))
	}

	seen := map[string]int{}
	for _, bucket := range [][]team.Worker{p.Planning, p.Creation, p.Review} {
		for _, w := range bucket {
			seen[w.ID]++
		}
	}
	for _, w := range workers {
		if seen[w.ID] != 1 {
			t.Errorf("worker %s appears %d times", w.ID, seen[w.ID])
		}
	}
	if got := ids(p.Review); strings.Join(got, ",") != "d,e" {
		t.Errorf("review bucket = %v, want [d e]", got)
	}
}

func TestClassifyEmptyStagesSkipped(t *testing.T) {
	stages := Classify([]team.Worker{{ID: "c", Role: team.RoleCreatorText}}).Stages()
	if len(stages) != 1 || stages[0].Name != StageCreation || !stages[0].Parallel {
		t.Fatalf("expected only a parallel creation stage, got %+v", stages)
	}
}

func TestStageVisibility(t *testing.T) {
	stages := []Stage{
		{Name: "first", Workers: []team.Worker{{ID: "A"}, {ID: "B"}}},
		{Name: "second", Parallel: true, Workers: []team.Worker{{ID: "C"}, {ID: "D"}}},
	}

	var mu sync.Mutex
	seen := map[string][]string{}
	fn := func(_ context.Context, _ Stage, w team.Worker, ec ExecutionContext) (WorkerResult, error) {
		var prev []string
		for _, p := range ec.Previous() {
			prev = append(prev, p.WorkerID)
		}
		mu.Lock()
		seen[w.ID] = prev
		mu.Unlock()
		return WorkerResult{Output: "out-" + w.ID}, nil
	}

	d := NewDriver(4, zap.NewNop())
	ec, results, err := d.RunStages(context.Background(), stages, ExecutionContext{}, fn, nil)
	if err != nil {
		t.Fatalf("run stages: %v", err)
	}
	if len(results) != 4 || len(ec.Previous()) != 4 {
		t.Fatalf("expected 4 results, got %d / %d", len(results), len(ec.Previous()))
	}

	if got := strings.Join(seen["B"], ","); got != "A" {
		t.Errorf("B must see A within a sequential stage, saw %q", got)
	}
	for _, id := range []string{"C", "D"} {
		if got := strings.Join(seen[id], ","); got != "A,B" {
			t.Errorf("%s must see exactly A,B, saw %q", id, got)
		}
	}
	if got := ids2(ec.Previous()); got != "A,B,C,D" {
		t.Errorf("merge order = %s", got)
	}
}

func TestSequentialFailureAbortsStage(t *testing.T) {
	calls := 0
	fn := func(_ context.Context, _ Stage, w team.Worker, _ ExecutionContext) (WorkerResult, error) {
		calls++
		if w.ID == "A" {
			return WorkerResult{}, errors.New("boom")
		}
		return WorkerResult{Output: "ok"}, nil
	}
	st := Stage{Name: "s", Workers: []team.Worker{{ID: "A"}, {ID: "B"}}}
	_, _, err := NewDriver(1, zap.NewNop()).RunStage(context.Background(), st, ExecutionContext{}, fn, nil)
	if err == nil || !strings.Contains(err.Error(), "worker A") {
		t.Fatalf("expected stage error naming worker A, got %v", err)
	}
	if calls != 1 {
		t.Errorf("B must not run after A failed, calls = %d", calls)
	}
}

func TestParallelFailureDegradesPerWorker(t *testing.T) {
	fn := func(_ context.Context, _ Stage, w team.Worker, _ ExecutionContext) (WorkerResult, error) {
		if w.ID == "C" {
			return WorkerResult{}, fmt.Errorf("provider down")
		}
		return WorkerResult{Output: "ok-" + w.ID}, nil
	}
	var mu sync.Mutex
	var steps []string
	sink := func(_ Stage, r WorkerResult) {
		mu.Lock()
		steps = append(steps, r.WorkerID)
		mu.Unlock()
	}

	st := Stage{Name: "p", Parallel: true, Workers: []team.Worker{{ID: "C", Role: team.RoleCreatorImage}, {ID: "D"}}}
	_, results, err := NewDriver(2, zap.NewNop()).RunStage(context.Background(), st, ExecutionContext{}, fn, sink)
	if err != nil {
		t.Fatalf("parallel stage must not fail: %v", err)
	}
	if !results[0].Fallback || !invoker.IsFallback(results[0].Output) {
		t.Errorf("expected fallback for C, got %+v", results[0])
	}
	if results[1].Output != "ok-D" {
		t.Errorf("D result lost: %+v", results[1])
	}
	if len(steps) != 2 {
		t.Errorf("expected step sink per worker, got %v", steps)
	}
}

func TestExecutionContextWithDoesNotMutate(t *testing.T) {
	base := ExecutionContext{}.With(PriorResult{WorkerID: "a"})
	left := base.With(PriorResult{WorkerID: "b"})
	right := base.With(PriorResult{WorkerID: "c"})

	if len(base.Previous()) != 1 {
		t.Fatalf("base mutated: %v", base.Previous())
	}
	if ids2(left.Previous()) != "a,b" || ids2(right.Previous()) != "a,c" {
		t.Errorf("branches interfere: %v / %v", left.Previous(), right.Previous())
	}
}

func TestBuildTaskMessage(t *testing.T) {
	ec := ExecutionContext{TeamDirective: "Sell shoes", CustomInstructions: "Keep it short"}.
		With(PriorResult{WorkerID: "p1", Role: team.RolePlanner, Stage: StagePlanning, Output: "the plan"})
	msg := BuildTaskMessage(team.Worker{ID: "c1", Role: team.RoleCreatorText}, ec)

	order := []string{"Sell shoes", "Keep it short", "## Your Task", "## Previous results", "[planning/planner p1]: the plan"}
	last := -1
	for _, s := range order {
		i := strings.Index(msg, s)
		if i <= last {
			t.Fatalf("%q missing or out of order in:\n%s", s, msg)
		}
		last = i
	}

	bare := BuildTaskMessage(team.Worker{ID: "x", Role: team.RoleOther, RoleType: "astrologer"}, ExecutionContext{})
	if strings.Contains(bare, "Previous results") || !strings.Contains(bare, "astrologer") {
		t.Errorf("unexpected bare message:\n%s", bare)
	}
}

func ids(ws []team.Worker) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.ID
	}
	return out
}

func ids2(ps []PriorResult) string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.WorkerID
	}
	return strings.Join(out, ",")
}
