// Package notify sends run-completion notices to chat platforms.
package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nidhogg/agency-studio/internal/orchestrator"
	"go.uber.org/zap"
)

// Notice is a platform-neutral run summary.
type Notice struct {
	RunID   string                 `json:"run_id"`
	TeamID  string                 `json:"team_id"`
	Status  orchestrator.RunStatus `json:"status"`
	Title   string                 `json:"title"`
	Text    string                 `json:"text"`
	Content int                    `json:"content"`
}

// Notifier delivers notices to one platform.
type Notifier interface {
	Platform() string
	Notify(ctx context.Context, n *Notice) error
}

// Hub fans notices out to every registered notifier without blocking the
// caller.
type Hub struct {
	notifiers map[string]Notifier
	timeout   time.Duration
	mu        sync.RWMutex
	wg        sync.WaitGroup
	logger    *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		notifiers: make(map[string]Notifier),
		timeout:   10 * time.Second,
		logger:    logger,
	}
}

// Register adds a notifier, replacing any with the same platform.
func (h *Hub) Register(n Notifier) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notifiers[n.Platform()] = n
	h.logger.Info("registered notifier", zap.String("platform", n.Platform()))
}

// Platforms returns the registered platform names in order.
func (h *Hub) Platforms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.notifiers))
	for p := range h.notifiers {
		names = append(names, p)
	}
	sort.Strings(names)
	return names
}

// RunFinished sends a notice for a terminal run to every notifier.
func (h *Hub) RunFinished(ctx context.Context, run *orchestrator.Run) {
	if !run.Status.Terminal() {
		return
	}
	n := NoticeFor(run)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for platform, notifier := range h.notifiers {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.timeout)
			defer cancel()
			if err := notifier.Notify(sctx, n); err != nil {
				h.logger.Warn("notify failed",
					zap.String("platform", platform),
					zap.String("run", run.ID),
					zap.Error(err))
			}
		}()
	}
}

// Wait blocks until in-flight notices are sent.
func (h *Hub) Wait() {
	h.wg.Wait()
}

// NoticeFor summarizes a run.
func NoticeFor(run *orchestrator.Run) *Notice {
	n := &Notice{
		RunID:   run.ID,
		TeamID:  run.TeamID,
		Status:  run.Status,
		Content: len(run.GeneratedContentIDs),
	}
	switch run.Status {
	case orchestrator.RunCompleted:
		n.Title = "Run completed"
		n.Text = fmt.Sprintf("Run %s for team %s produced %d content item(s) using %.1f credits.",
			run.ID, run.TeamID, n.Content, run.Credits)
	default:
		n.Title = "Run failed"
		n.Text = fmt.Sprintf("Run %s for team %s failed: %s", run.ID, run.TeamID, run.Error)
	}
	return n
}
