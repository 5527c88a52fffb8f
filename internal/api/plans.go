package api

import (
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	ecommon "github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/dripbase/executor/address"
	"github.com/dripbase/executor/internal/sigutil"
	"github.com/dripbase/executor/internal/storage"
	"github.com/dripbase/executor/types"
)

type PlanPayload struct {
	TokenIn          string          `json:"token_in" validate:"required"`
	TokenOut         string          `json:"token_out" validate:"required"`
	AmountPerTrade   decimal.Decimal `json:"amount_per_trade"`
	FrequencySeconds int64           `json:"frequency_seconds" validate:"required,gt=0"`
	NextRunTime      time.Time       `json:"next_run_time"`
}

type CreatePlanRequest struct {
	Message     string      `json:"message" validate:"required"`
	Signature   string      `json:"signature" validate:"required"`
	UserAddress string      `json:"user_address" validate:"required"`
	Plan        PlanPayload `json:"plan" validate:"required"`
}

func (s *Server) CreatePlan(c echo.Context) error {
	var req CreatePlanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to parse request")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	owner, err := address.Normalize(req.UserAddress)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user address")
	}
	tokenIn, err := address.Normalize(req.Plan.TokenIn)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid token_in address")
	}
	tokenOut, err := address.Normalize(req.Plan.TokenOut)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid token_out address")
	}
	if req.Plan.AmountPerTrade.Sign() <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "amount_per_trade must be positive")
	}

	ok, err := s.verifySignature(req.UserAddress, req.Message, req.Signature)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !ok {
		s.logger.WithField("owner", owner).Warn("plan creation signature rejected")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
	}

	now := time.Now().UTC()
	next := req.Plan.NextRunTime
	if next.IsZero() {
		next = now
	}

	plan := types.Plan{
		ID:               uuid.New(),
		Owner:            owner,
		TokenIn:          tokenIn,
		TokenOut:         tokenOut,
		AmountPerTrade:   req.Plan.AmountPerTrade,
		FrequencySeconds: req.Plan.FrequencySeconds,
		Status:           types.PlanStatusActive,
		NextRunTime:      next.UTC(),
		CreatedAt:        now,
	}
	if err := s.store.CreatePlan(c.Request().Context(), plan); err != nil {
		s.logger.Errorf("failed to create plan: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create plan")
	}

	return c.JSON(http.StatusOK, plan)
}

func (s *Server) ListPlans(c echo.Context) error {
	owner, err := address.Normalize(c.QueryParam("owner"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid owner address")
	}

	plans, err := s.store.ListPlansByOwner(c.Request().Context(), owner)
	if err != nil {
		s.logger.Errorf("failed to list plans: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list plans")
	}
	return c.JSON(http.StatusOK, plans)
}

type CancelPlanRequest struct {
	Message     string `json:"message" validate:"required"`
	Signature   string `json:"signature" validate:"required"`
	UserAddress string `json:"user_address" validate:"required"`
	Nonce       string `json:"nonce" validate:"required"`
	// ExpiresAt is unix milliseconds; requests past it are rejected outright.
	ExpiresAt int64 `json:"expires_at" validate:"required"`
}

func (s *Server) CancelPlan(c echo.Context) error {
	planID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid plan id")
	}

	var req CancelPlanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to parse request")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	owner, err := address.Normalize(req.UserAddress)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user address")
	}

	expiresAt := time.UnixMilli(req.ExpiresAt)
	if time.Now().After(expiresAt) {
		return echo.NewHTTPError(http.StatusBadRequest, "request expired")
	}

	fresh, err := s.store.Consume(c.Request().Context(), req.Nonce, owner, expiresAt)
	if err != nil {
		s.logger.Errorf("failed to consume nonce: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to check nonce")
	}
	if !fresh {
		return echo.NewHTTPError(http.StatusBadRequest, "nonce already used")
	}

	ok, err := s.verifySignature(req.UserAddress, req.Message, req.Signature)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !ok {
		s.logger.WithField("owner", owner).Warn("cancel signature rejected")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
	}

	plan, err := s.store.GetPlan(c.Request().Context(), planID)
	if errors.Is(err, storage.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "plan not found")
	}
	if err != nil {
		s.logger.Errorf("failed to load plan: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load plan")
	}
	if !address.Equal(plan.Owner, owner) {
		return echo.NewHTTPError(http.StatusForbidden, "not the plan owner")
	}

	if err := s.store.CancelPlan(c.Request().Context(), planID); err != nil {
		s.logger.Errorf("failed to cancel plan: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to cancel plan")
	}

	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) verifySignature(userAddress, message, signature string) (bool, error) {
	if !ecommon.IsHexAddress(userAddress) {
		return false, errors.New("invalid signer address")
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return false, errors.New("signature is not valid hex")
	}
	return sigutil.VerifyEthAddressSignature(ecommon.HexToAddress(userAddress), []byte(message), sig)
}
