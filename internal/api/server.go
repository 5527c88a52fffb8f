// Package api is the thin HTTP surface around the stores: signed plan
// creation/cancellation, history and leaderboard reads, and the manual cycle
// trigger. All heavy lifting happens in the engine worker.
package api

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/dripbase/executor/config"
	"github.com/dripbase/executor/internal/storage"
)

type Store interface {
	storage.PlanStore
	storage.ExecutionLedger
	storage.Leaderboard
	storage.NonceStore
}

type Server struct {
	cfg    config.ApiConfig
	logger *logrus.Logger
	store  Store
	client *asynq.Client
}

func NewServer(
	cfg config.ApiConfig,
	logger *logrus.Logger,
	store Store,
	client *asynq.Client,
) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger.WithField("pkg", "api.Server").Logger,
		store:  store,
		client: client,
	}
}

func (s *Server) StartServer() error {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &requestValidator{validator: validator.New()}
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.GET("/healthz", s.Healthz)

	e.POST("/plans", s.CreatePlan)
	e.GET("/plans", s.ListPlans)
	e.POST("/plans/:id/cancel", s.CancelPlan)
	e.GET("/executions", s.ListExecutions)
	e.GET("/leaderboard", s.Leaderboard)

	e.POST("/admin/cycle", s.TriggerCycle)

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.logger.WithField("addr", addr).Info("api server starting")
	return e.Start(addr)
}

func (s *Server) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type requestValidator struct {
	validator *validator.Validate
}

func (v *requestValidator) Validate(i interface{}) error {
	if err := v.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}
