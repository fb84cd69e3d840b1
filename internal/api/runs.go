package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/inc-submissions-harvester/internal/submission"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
	historyTimeout  = 3 * time.Second
)

// listRuns handles GET /v1/runs?session=&status=&limit=. The Postgres ledger
// answers when configured; otherwise the in-memory history does.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	session := strings.TrimSpace(q.Get("session"))
	status, err := parseStatus(q.Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var runs []submission.RunRecord
	switch {
	case s.deps.History != nil:
		ctx, cancel := context.WithTimeout(r.Context(), historyTimeout)
		defer cancel()
		runs, err = s.deps.History.ListRuns(ctx, session, maxRunLimit)
		if err != nil {
			s.logger.Error("list runs failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to list runs")
			return
		}
	case s.deps.Recent != nil:
		runs = s.deps.Recent.Recent()
	default:
		writeError(w, http.StatusServiceUnavailable, "run history unavailable")
		return
	}

	out := make([]submission.RunRecord, 0, limit)
	for _, run := range runs {
		if session != "" && run.Session != session {
			continue
		}
		if status != "" && run.Status != status {
			continue
		}
		out = append(out, run)
		if len(out) == limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	limStr := r.URL.Query().Get("limit")
	if limStr == "" {
		return def, nil
	}
	val, err := strconv.Atoi(limStr)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid limit")
	}
	return min(val, maxLimit), nil
}

func parseStatus(input string) (submission.RunStatus, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "":
		return "", nil
	case "succeeded", "success":
		return submission.RunSucceeded, nil
	case "failed", "error", "failure":
		return submission.RunFailed, nil
	default:
		return "", errors.New("invalid status")
	}
}
