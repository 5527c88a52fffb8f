package api

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dripbase/executor/config"
	"github.com/dripbase/executor/internal/storage"
	"github.com/dripbase/executor/types"
)

type fakeStore struct {
	mu         sync.Mutex
	plans      map[uuid.UUID]types.Plan
	executions []types.Execution
	board      map[string]types.LeaderboardEntry
	nonces     map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		plans:  make(map[uuid.UUID]types.Plan),
		board:  make(map[string]types.LeaderboardEntry),
		nonces: make(map[string]bool),
	}
}

func (f *fakeStore) CreatePlan(_ context.Context, plan types.Plan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plans[plan.ID] = plan
	return nil
}

func (f *fakeStore) GetPlan(_ context.Context, id uuid.UUID) (types.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	plan, ok := f.plans[id]
	if !ok {
		return types.Plan{}, storage.ErrNotFound
	}
	return plan, nil
}

func (f *fakeStore) ListPlansByOwner(_ context.Context, owner string) ([]types.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Plan
	for _, plan := range f.plans {
		if plan.Owner == owner {
			out = append(out, plan)
		}
	}
	return out, nil
}

func (f *fakeStore) CancelPlan(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	plan, ok := f.plans[id]
	if !ok {
		return storage.ErrNotFound
	}
	plan.Status = types.PlanStatusCancelled
	f.plans[id] = plan
	return nil
}

func (f *fakeStore) ClaimDue(context.Context, time.Time, time.Time) ([]types.Plan, error) {
	return nil, nil
}

func (f *fakeStore) FinishRun(context.Context, uuid.UUID, time.Time, bool) error {
	return nil
}

func (f *fakeStore) Stats(context.Context, time.Time) (storage.PlanStats, error) {
	return storage.PlanStats{}, nil
}

func (f *fakeStore) InsertExecution(_ context.Context, exec types.Execution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executions = append(f.executions, exec)
	return nil
}

func (f *fakeStore) ListExecutionsByOwner(_ context.Context, owner string, limit int) ([]types.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Execution
	for _, exec := range f.executions {
		if exec.Owner == owner {
			out = append(out, exec)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) RecordSuccess(_ context.Context, owner string, amount decimal.Decimal, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry := f.board[owner]
	entry.Owner = owner
	entry.TotalInvested = entry.TotalInvested.Add(amount)
	entry.TotalTrades++
	entry.UpdatedAt = at
	f.board[owner] = entry
	return nil
}

func (f *fakeStore) Top(_ context.Context, limit int) ([]types.LeaderboardEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.LeaderboardEntry
	for _, entry := range f.board {
		out = append(out, entry)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) Get(_ context.Context, owner string) (types.LeaderboardEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.board[owner]
	if !ok {
		return types.LeaderboardEntry{}, storage.ErrNotFound
	}
	return entry, nil
}

func (f *fakeStore) Consume(_ context.Context, nonce, owner string, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := owner + ":" + nonce
	if f.nonces[key] {
		return false, nil
	}
	f.nonces[key] = true
	return true, nil
}

type testSigner struct {
	address string
	keyHex  string
}

func newTestSigner(t *testing.T) testSigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return testSigner{
		address: crypto.PubkeyToAddress(key.PublicKey).Hex(),
		keyHex:  hex.EncodeToString(crypto.FromECDSA(key)),
	}
}

func (ts testSigner) sign(t *testing.T, message string) string {
	t.Helper()
	key, err := crypto.HexToECDSA(ts.keyHex)
	require.NoError(t, err)
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	sig, err := crypto.Sign(crypto.Keccak256Hash([]byte(prefixed)).Bytes(), key)
	require.NoError(t, err)
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig)
}

func newTestServer(store Store) (*Server, *echo.Echo) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	cfg := config.ApiConfig{}
	cfg.Server.AdminSecret = "shh"

	e := echo.New()
	e.Validator = &requestValidator{validator: validator.New()}
	return &Server{cfg: cfg, logger: logger, store: store}, e
}

func doJSON(e *echo.Echo, method, target string, body any) (echo.Context, *httptest.ResponseRecorder) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestCreatePlan(t *testing.T) {
	signer := newTestSigner(t)
	store := newFakeStore()
	s, e := newTestServer(store)

	message := "create dca plan"
	body := CreatePlanRequest{
		Message:     message,
		Signature:   signer.sign(t, message),
		UserAddress: signer.address,
		Plan: PlanPayload{
			TokenIn:          "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			TokenOut:         "0x4200000000000000000000000000000000000006",
			AmountPerTrade:   decimal.RequireFromString("25"),
			FrequencySeconds: 86400,
		},
	}

	c, rec := doJSON(e, http.MethodPost, "/plans", body)
	require.NoError(t, s.CreatePlan(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var created types.Plan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, types.PlanStatusActive, created.Status)
	assert.Equal(t, "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913", created.TokenIn)

	stored, err := store.GetPlan(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Owner, stored.Owner)
	assert.True(t, decimal.RequireFromString("25").Equal(stored.AmountPerTrade))
}

func TestCreatePlan_badSignature(t *testing.T) {
	signer := newTestSigner(t)
	other := newTestSigner(t)
	store := newFakeStore()
	s, e := newTestServer(store)

	message := "create dca plan"
	body := CreatePlanRequest{
		Message:     message,
		Signature:   other.sign(t, message),
		UserAddress: signer.address,
		Plan: PlanPayload{
			TokenIn:          "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			TokenOut:         "0x4200000000000000000000000000000000000006",
			AmountPerTrade:   decimal.RequireFromString("25"),
			FrequencySeconds: 86400,
		},
	}

	c, _ := doJSON(e, http.MethodPost, "/plans", body)
	err := s.CreatePlan(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	assert.Empty(t, store.plans)
}

func TestCreatePlan_rejectsNonPositiveAmount(t *testing.T) {
	signer := newTestSigner(t)
	s, e := newTestServer(newFakeStore())

	message := "create dca plan"
	body := CreatePlanRequest{
		Message:     message,
		Signature:   signer.sign(t, message),
		UserAddress: signer.address,
		Plan: PlanPayload{
			TokenIn:          "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			TokenOut:         "0x4200000000000000000000000000000000000006",
			AmountPerTrade:   decimal.Zero,
			FrequencySeconds: 86400,
		},
	}

	c, _ := doJSON(e, http.MethodPost, "/plans", body)
	err := s.CreatePlan(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestCancelPlan(t *testing.T) {
	signer := newTestSigner(t)
	store := newFakeStore()
	s, e := newTestServer(store)

	planID := uuid.New()
	require.NoError(t, store.CreatePlan(context.Background(), types.Plan{
		ID:     planID,
		Owner:  strings.ToLower(signer.address),
		Status: types.PlanStatusActive,
	}))

	message := "cancel plan " + planID.String()
	body := CancelPlanRequest{
		Message:     message,
		Signature:   signer.sign(t, message),
		UserAddress: signer.address,
		Nonce:       uuid.NewString(),
		ExpiresAt:   time.Now().Add(time.Minute).UnixMilli(),
	}

	c, rec := doJSON(e, http.MethodPost, "/plans/"+planID.String()+"/cancel", body)
	c.SetParamNames("id")
	c.SetParamValues(planID.String())
	require.NoError(t, s.CancelPlan(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.PlanStatusCancelled, store.plans[planID].Status)
}

func TestCancelPlan_replayedNonce(t *testing.T) {
	signer := newTestSigner(t)
	store := newFakeStore()
	s, e := newTestServer(store)

	planID := uuid.New()
	plan := types.Plan{ID: planID, Owner: strings.ToLower(signer.address), Status: types.PlanStatusActive}
	require.NoError(t, store.CreatePlan(context.Background(), plan))

	message := "cancel plan " + planID.String()
	body := CancelPlanRequest{
		Message:     message,
		Signature:   signer.sign(t, message),
		UserAddress: signer.address,
		Nonce:       uuid.NewString(),
		ExpiresAt:   time.Now().Add(time.Minute).UnixMilli(),
	}

	c, _ := doJSON(e, http.MethodPost, "/plans/"+planID.String()+"/cancel", body)
	c.SetParamNames("id")
	c.SetParamValues(planID.String())
	require.NoError(t, s.CancelPlan(c))

	c, _ = doJSON(e, http.MethodPost, "/plans/"+planID.String()+"/cancel", body)
	c.SetParamNames("id")
	c.SetParamValues(planID.String())
	err := s.CancelPlan(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestCancelPlan_notOwner(t *testing.T) {
	owner := newTestSigner(t)
	intruder := newTestSigner(t)
	store := newFakeStore()
	s, e := newTestServer(store)

	planID := uuid.New()
	plan := types.Plan{ID: planID, Owner: strings.ToLower(owner.address), Status: types.PlanStatusActive}
	require.NoError(t, store.CreatePlan(context.Background(), plan))

	message := "cancel plan " + planID.String()
	body := CancelPlanRequest{
		Message:     message,
		Signature:   intruder.sign(t, message),
		UserAddress: intruder.address,
		Nonce:       uuid.NewString(),
		ExpiresAt:   time.Now().Add(time.Minute).UnixMilli(),
	}

	c, _ := doJSON(e, http.MethodPost, "/plans/"+planID.String()+"/cancel", body)
	c.SetParamNames("id")
	c.SetParamValues(planID.String())
	err := s.CancelPlan(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusForbidden, httpErr.Code)
	assert.Equal(t, types.PlanStatusActive, store.plans[planID].Status)
}

func TestCancelPlan_expiredRequest(t *testing.T) {
	signer := newTestSigner(t)
	s, e := newTestServer(newFakeStore())

	planID := uuid.New()
	message := "cancel plan " + planID.String()
	body := CancelPlanRequest{
		Message:     message,
		Signature:   signer.sign(t, message),
		UserAddress: signer.address,
		Nonce:       uuid.NewString(),
		ExpiresAt:   time.Now().Add(-time.Minute).UnixMilli(),
	}

	c, _ := doJSON(e, http.MethodPost, "/plans/"+planID.String()+"/cancel", body)
	c.SetParamNames("id")
	c.SetParamValues(planID.String())
	err := s.CancelPlan(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestListExecutions(t *testing.T) {
	store := newFakeStore()
	s, e := newTestServer(store)

	owner := "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913"
	for i := 0; i < 3; i++ {
		require.NoError(t, store.InsertExecution(context.Background(), types.Execution{
			ID:     uuid.New(),
			JobID:  uuid.New(),
			Owner:  owner,
			Amount: decimal.RequireFromString("10"),
			Status: types.ExecutionStatusSuccess,
		}))
	}

	c, rec := doJSON(e, http.MethodGet, "/executions?owner="+owner+"&limit=2", nil)
	require.NoError(t, s.ListExecutions(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var execs []types.Execution
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &execs))
	assert.Len(t, execs, 2)
}

func TestLeaderboard(t *testing.T) {
	store := newFakeStore()
	s, e := newTestServer(store)

	owner := "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913"
	require.NoError(t, store.RecordSuccess(context.Background(), owner, decimal.RequireFromString("50"), time.Now()))

	c, rec := doJSON(e, http.MethodGet, "/leaderboard", nil)
	require.NoError(t, s.Leaderboard(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []types.LeaderboardEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].TotalTrades)
	assert.True(t, decimal.RequireFromString("50").Equal(entries[0].TotalInvested))
}

func TestTriggerCycle_rejectsBadSecret(t *testing.T) {
	s, e := newTestServer(newFakeStore())

	req := httptest.NewRequest(http.MethodPost, "/admin/cycle", nil)
	req.Header.Set("X-Admin-Secret", "wrong")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := s.TriggerCycle(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestParseLimit(t *testing.T) {
	assert.Equal(t, 50, parseLimit("", 50, 200))
	assert.Equal(t, 10, parseLimit("10", 50, 200))
	assert.Equal(t, 200, parseLimit("1000", 50, 200))
	assert.Equal(t, 50, parseLimit("-1", 50, 200))
	assert.Equal(t, 50, parseLimit("abc", 50, 200))
}
