package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/nidhogg/agency-studio/internal/orchestrator"
	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

type recorder struct {
	platform string
	mu       sync.Mutex
	got      []*Notice
	err      error
}

func (r *recorder) Platform() string { return r.platform }

func (r *recorder) Notify(_ context.Context, n *Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return r.err
}

func TestHubFansOutTerminalRuns(t *testing.T) {
	h := NewHub(zap.NewNop())
	a := &recorder{platform: "a"}
	b := &recorder{platform: "b", err: errors.New("offline")}
	h.Register(a)
	h.Register(b)

	h.RunFinished(context.Background(), &orchestrator.Run{ID: "r1", Status: orchestrator.RunRunning})
	h.RunFinished(context.Background(), &orchestrator.Run{
		ID: "r2", TeamID: "t1", Status: orchestrator.RunCompleted,
		GeneratedContentIDs: []string{"c1", "c2"}, Credits: 4,
	})
	h.Wait()

	if len(a.got) != 1 || len(b.got) != 1 {
		t.Fatalf("expected one notice per platform, got %d/%d", len(a.got), len(b.got))
	}
	if a.got[0].RunID != "r2" || a.got[0].Content != 2 {
		t.Errorf("unexpected notice %+v", a.got[0])
	}
	if got := h.Platforms(); strings.Join(got, ",") != "a,b" {
		t.Errorf("platforms = %v", got)
	}
}

func TestNoticeForFailedRun(t *testing.T) {
	n := NoticeFor(&orchestrator.Run{ID: "r1", TeamID: "t1", Status: orchestrator.RunFailed, Error: "team has no workers"})
	if n.Title != "Run failed" || !strings.Contains(n.Text, "team has no workers") {
		t.Errorf("unexpected notice %+v", n)
	}
}

func TestSlackNotifierPostsToChannel(t *testing.T) {
	var gotChannel, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat.postMessage") {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
			return
		}
		gotChannel = r.FormValue("channel")
		gotText = r.FormValue("text")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": gotChannel, "ts": "1700000000.000100"})
	}))
	defer srv.Close()

	s := NewSlackNotifier("xoxb-test", "C123", zap.NewNop(), slack.OptionAPIURL(srv.URL+"/"))
	err := s.Notify(context.Background(), &Notice{RunID: "r1", Title: "Run completed", Text: "done"})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if gotChannel != "C123" || !strings.Contains(gotText, "*Run completed*") {
		t.Errorf("posted channel=%q text=%q", gotChannel, gotText)
	}
}

func TestDiscordText(t *testing.T) {
	got := discordText(&Notice{Title: "Run failed", Text: "boom"})
	if got != "**Run failed**\nboom" {
		t.Errorf("discordText = %q", got)
	}
}
