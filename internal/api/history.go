package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"

	"github.com/dripbase/executor/address"
	"github.com/dripbase/executor/internal/storage"
	"github.com/dripbase/executor/internal/tasks"
	"github.com/dripbase/executor/types"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

func (s *Server) ListExecutions(c echo.Context) error {
	owner, err := address.Normalize(c.QueryParam("owner"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid owner address")
	}
	limit := parseLimit(c.QueryParam("limit"), defaultHistoryLimit, maxHistoryLimit)

	execs, err := s.store.ListExecutionsByOwner(c.Request().Context(), owner, limit)
	if err != nil {
		s.logger.Errorf("failed to list executions: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list executions")
	}
	return c.JSON(http.StatusOK, execs)
}

func (s *Server) Leaderboard(c echo.Context) error {
	limit := parseLimit(c.QueryParam("limit"), defaultLeaderboardLimit, maxLeaderboardLimit)

	owner := c.QueryParam("owner")
	if owner != "" {
		normalized, err := address.Normalize(owner)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid owner address")
		}
		entry, err := s.store.Get(c.Request().Context(), normalized)
		if errors.Is(err, storage.ErrNotFound) {
			return c.JSON(http.StatusOK, types.LeaderboardEntry{Owner: normalized})
		}
		if err != nil {
			s.logger.Errorf("failed to get leaderboard entry: %v", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to get leaderboard entry")
		}
		return c.JSON(http.StatusOK, entry)
	}

	entries, err := s.store.Top(c.Request().Context(), limit)
	if err != nil {
		s.logger.Errorf("failed to query leaderboard: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to query leaderboard")
	}
	return c.JSON(http.StatusOK, entries)
}

// TriggerCycle enqueues one execution cycle outside the regular cadence.
// Guarded by a shared secret so random callers cannot spin the scheduler.
func (s *Server) TriggerCycle(c echo.Context) error {
	if s.cfg.Server.AdminSecret == "" || c.Request().Header.Get("X-Admin-Secret") != s.cfg.Server.AdminSecret {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	info, err := s.client.EnqueueContext(
		c.Request().Context(),
		asynq.NewTask(tasks.TypeExecutionCycle, nil),
		asynq.MaxRetry(0),
		asynq.Queue(tasks.QueueName),
	)
	if err != nil {
		s.logger.Errorf("failed to enqueue cycle: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to enqueue cycle")
	}

	return c.JSON(http.StatusAccepted, map[string]string{"task_id": info.ID})
}

func parseLimit(raw string, def, max int) int {
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
