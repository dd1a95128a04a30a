package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/oss-hunter/internal/service"
)

// Sweeps are the periodic jobs an external scheduler can trigger over HTTP.
// They are the same functions the in-process scheduler runs.
type Sweeps struct {
	Discover    func(context.Context) (service.DiscoveryResult, error)
	AgentStatus func(context.Context) (service.PollResult, error)
	Closures    func(context.Context) (service.ReconcileResult, error)
}

// CronHandler exposes Sweeps. Routes sit behind middleware.RequireBearer.
type CronHandler struct {
	sweeps Sweeps
	logger *slog.Logger
}

func NewCronHandler(sweeps Sweeps, logger *slog.Logger) *CronHandler {
	return &CronHandler{sweeps: sweeps, logger: logger}
}

// HandlePollIssues: POST /cron/poll-issues
//
// Response: {"reposPolled": 3, "issuesCreated": 1}
func (h *CronHandler) HandlePollIssues(w http.ResponseWriter, r *http.Request) {
	runSweep(w, r, h.logger, "poll-issues", h.sweeps.Discover)
}

// HandlePollCopilot: POST /cron/poll-copilot
//
// Response: {"polled": 2, "successful": 2, "failed": 0}
func (h *CronHandler) HandlePollCopilot(w http.ResponseWriter, r *http.Request) {
	runSweep(w, r, h.logger, "poll-copilot", h.sweeps.AgentStatus)
}

// HandlePollIssueState: POST /cron/poll-issue-state
//
// Response: {"issuesChecked": 10, "issuesClosed": 1}
func (h *CronHandler) HandlePollIssueState(w http.ResponseWriter, r *http.Request) {
	runSweep(w, r, h.logger, "poll-issue-state", h.sweeps.Closures)
}

func runSweep[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, name string, sweep func(context.Context) (T, error)) {
	start := time.Now()
	res, err := sweep(r.Context())
	if err != nil {
		logger.Error("cron sweep failed", slog.String("sweep", name), slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	logger.Info("cron sweep finished",
		slog.String("sweep", name),
		slog.Duration("duration", time.Since(start)),
		slog.Any("result", res),
	)
	writeJSON(w, http.StatusOK, res)
}
