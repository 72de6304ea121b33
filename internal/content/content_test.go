package content

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nidhogg/agency-studio/internal/team"
	"go.uber.org/zap"
)

type memWriter struct {
	recs []*Record
	err  error
}

func (m *memWriter) CreateContent(_ context.Context, rec *Record) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.recs = append(m.recs, rec)
	return fmt.Sprintf("c%d", len(m.recs)), nil
}

func TestClassify(t *testing.T) {
	tests := []struct {
		role team.Role
		want Type
	}{
		{team.RolePlanner, TypeMeta},
		{team.RoleResearcher, TypeMeta},
		{team.RoleManager, TypeMeta},
		{team.RoleReviewer, TypeMeta},
		{team.RoleCreatorText, TypeText},
		{team.RoleCreatorImage, TypeImage},
		{team.RoleCreatorVideo, TypeVideo},
		{team.RoleOther, TypeText},
	}
	for _, tt := range tests {
		if got := Classify(tt.role); got != tt.want {
			t.Errorf("Classify(%s) = %s, want %s", tt.role, got, tt.want)
		}
	}
}

func TestPersistOneRecordPerWorker(t *testing.T) {
	w := &memWriter{}
	agg := NewAggregator(w, zap.NewNop())

	ids, err := agg.Persist(context.Background(), "run-1", []Output{
		{WorkerID: "p1", Role: team.RolePlanner, Stage: "planning", Output: "plan"},
		{WorkerID: "c1", Role: team.RoleCreatorText, Stage: "creation", Output: "copy"},
		{WorkerID: "c2", Role: team.RoleCreatorImage, Stage: "creation", Output: "https://img"},
	})
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 ids, got %v", ids)
	}
	if w.recs[0].Publishable || !w.recs[0].IsMeta {
		t.Error("planner output must be meta and non-publishable")
	}
	if !w.recs[1].Publishable || w.recs[2].Type != TypeImage {
		t.Errorf("unexpected creator records: %+v %+v", w.recs[1], w.recs[2])
	}
	for _, r := range w.recs {
		if r.Combined {
			t.Error("no combined record expected when publishable output exists")
		}
	}
}

func TestPersistAllMetaStillYieldsContent(t *testing.T) {
	w := &memWriter{}
	agg := NewAggregator(w, zap.NewNop())

	ids, err := agg.Persist(context.Background(), "run-2", []Output{
		{WorkerID: "p1", Role: team.RolePlanner, Output: "plan"},
		{WorkerID: "r1", Role: team.RoleReviewer, Output: "review notes"},
	})
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 2 meta records plus combined, got %d", len(ids))
	}
	last := w.recs[len(w.recs)-1]
	if !last.Combined || !last.Publishable || last.Title != CombinedTitle {
		t.Errorf("expected combined fallback record, got %+v", last)
	}
	if last.RawOutput != "review notes" {
		t.Errorf("combined record must carry the last output, got %q", last.RawOutput)
	}
}

func TestPersistEmpty(t *testing.T) {
	ids, err := NewAggregator(&memWriter{}, zap.NewNop()).Persist(context.Background(), "run-3", nil)
	if err != nil || len(ids) != 0 {
		t.Errorf("expected no records for no outputs, got %v %v", ids, err)
	}
}

func TestPersistWriterError(t *testing.T) {
	boom := errors.New("db down")
	_, err := NewAggregator(&memWriter{err: boom}, zap.NewNop()).Persist(context.Background(), "run-4", []Output{
		{WorkerID: "c1", Role: team.RoleCreatorText, Output: "copy"},
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped writer error, got %v", err)
	}
}

func TestFallbackOutputIsNotPublishable(t *testing.T) {
	w := &memWriter{}
	agg := NewAggregator(w, zap.NewNop())

	_, err := agg.Persist(context.Background(), "run-5", []Output{
		{WorkerID: "p1", Role: team.RolePlanner, Output: "plan"},
		{WorkerID: "c1", Role: team.RoleCreatorText, Output: "[placeholder] could not be generated", Fallback: true},
	})
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if len(w.recs) != 3 {
		t.Fatalf("expected 2 records plus combined, got %d", len(w.recs))
	}
	if w.recs[1].Publishable {
		t.Error("fallback creator output must not be publishable")
	}
	last := w.recs[2]
	if !last.Combined || !last.Publishable || last.Fallback {
		t.Errorf("combined record must come from the last real output, got %+v", last)
	}
	if last.RawOutput != "plan" {
		t.Errorf("combined record = %q, want the planner output", last.RawOutput)
	}
}

func TestAllFallbackStillYieldsCombinedRecord(t *testing.T) {
	w := &memWriter{}
	ids, err := NewAggregator(w, zap.NewNop()).Persist(context.Background(), "run-6", []Output{
		{WorkerID: "c1", Role: team.RoleCreatorText, Output: "[placeholder] a", Fallback: true},
	})
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected record plus combined, got %d", len(ids))
	}
	last := w.recs[1]
	if !last.Combined || last.Publishable || !last.Fallback {
		t.Errorf("combined fallback record must exist but not be publishable, got %+v", last)
	}
}
