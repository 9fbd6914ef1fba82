//go:build integration

package e2e

// End-to-end tests against real Postgres + Redis via testcontainers.
// Run with: go test -tags integration ./tests/e2e/... -v
//
// Covered flows:
//   - Full session cycle: open → append operations → close → reconcile → delete
//   - Single open session per (clinic, date) enforced by the partial unique
//     index under concurrent open attempts
//   - Append rejected after close
//   - Cross-clinic isolation (other clinic's session reads as 404)

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/DyelsonM/doutor-agenda-v2-sub001/internal/config"
	"github.com/DyelsonM/doutor-agenda-v2-sub001/internal/infra"
	"github.com/DyelsonM/doutor-agenda-v2-sub001/internal/middleware"
	"github.com/DyelsonM/doutor-agenda-v2-sub001/internal/router"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
)

const testJWTSecret = "e2e-test-secret"

// ── Helpers ──────────────────────────────────────────────────────────────────

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func do(t *testing.T, srv *httptest.Server, method, path string, body *bytes.Buffer, token string) *http.Response {
	t.Helper()
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequest(method, srv.URL+path, body)
	} else {
		req, err = http.NewRequest(method, srv.URL+path, nil)
	}
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

// mintToken signs a JWT the way the identity service would.
func mintToken(t *testing.T, clinicID, userID uuid.UUID, role string) string {
	t.Helper()
	claims := &middleware.JWTClaims{
		UserID:   userID.String(),
		ClinicID: clinicID.String(),
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

// ── Test suite setup ─────────────────────────────────────────────────────────

type testEnv struct {
	server   *httptest.Server
	clinicID uuid.UUID
	userID   uuid.UUID
	token    string // manager JWT for the default clinic
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcPostgres.WithDatabase("cash_ledger_test"),
		tcPostgres.WithUsername("ledger"),
		tcPostgres.WithPassword("ledger"),
		tcPostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	pgURL, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rdC, err := tcRedis.RunContainer(ctx,
		testcontainers.WithImage("redis:7-alpine"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdC.Terminate(ctx) })

	rdURL, err := rdC.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := &config.Config{
		Port:           8000,
		Env:            "test",
		JWTSecret:      testJWTSecret,
		DatabaseURL:    pgURL,
		RedisURL:       rdURL,
		WorkerPoolSize: 1,
		PDFStoragePath: t.TempDir(),
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	require.NoError(t, err)

	rdb, err := infra.NewRedis(cfg.RedisURL)
	require.NoError(t, err)

	require.NoError(t, infra.RunMigrations(db))

	r := router.New(cfg, db, rdb)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	clinicID, userID := uuid.New(), uuid.New()
	return &testEnv{
		server:   srv,
		clinicID: clinicID,
		userID:   userID,
		token:    mintToken(t, clinicID, userID, "manager"),
	}
}

type sessionBody struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	BusinessDate   string `json:"business_date"`
	OpeningAmount  int64  `json:"opening_amount"`
	TotalCashIn    int64  `json:"total_cash_in"`
	TotalCashOut   int64  `json:"total_cash_out"`
	ClosingAmount  *int64 `json:"closing_amount"`
	ExpectedAmount *int64 `json:"expected_amount"`
	Difference     *int64 `json:"difference"`
}

func openSession(t *testing.T, env *testEnv, businessDate string, openingAmount int64) sessionBody {
	t.Helper()
	resp := do(t, env.server, "POST", "/v1/cash/sessions",
		jsonBody(t, map[string]any{
			"business_date":  businessDate,
			"opening_amount": openingAmount,
		}), env.token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sess sessionBody
	decodeJSON(t, resp, &sess)
	return sess
}

func appendOperation(t *testing.T, env *testEnv, sessionID, opType string, amount int64) {
	t.Helper()
	resp := do(t, env.server, "POST", "/v1/cash/sessions/"+sessionID+"/operations",
		jsonBody(t, map[string]any{
			"type":            opType,
			"amount_in_cents": amount,
			"description":     "e2e " + opType,
		}), env.token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
}

// ── Tests ────────────────────────────────────────────────────────────────────

func TestE2E_FullSessionCycle(t *testing.T) {
	env := setupTestEnv(t)
	date := "2025-03-10"

	sess := openSession(t, env, date, 10000)
	assert.Equal(t, "open", sess.Status)
	assert.Equal(t, date, sess.BusinessDate)

	appendOperation(t, env, sess.ID, "cash_in", 5000)
	appendOperation(t, env, sess.ID, "cash_out", 2000)

	// Open-session lookup sees the live totals
	openResp := do(t, env.server, "GET", "/v1/cash/open?business_date="+date, nil, env.token)
	require.Equal(t, http.StatusOK, openResp.StatusCode)
	var live sessionBody
	decodeJSON(t, openResp, &live)
	assert.Equal(t, int64(5000), live.TotalCashIn)
	assert.Equal(t, int64(2000), live.TotalCashOut)

	// Close with the exact counted amount
	closeResp := do(t, env.server, "POST", "/v1/cash/sessions/"+sess.ID+"/close",
		jsonBody(t, map[string]any{"closing_amount": 13000}), env.token)
	require.Equal(t, http.StatusOK, closeResp.StatusCode)
	var closed sessionBody
	decodeJSON(t, closeResp, &closed)
	assert.Equal(t, "closed", closed.Status)
	require.NotNil(t, closed.ExpectedAmount)
	assert.Equal(t, int64(13000), *closed.ExpectedAmount)
	require.NotNil(t, closed.Difference)
	assert.Equal(t, int64(0), *closed.Difference)

	// Detail carries the full ledger: opening + 2 + closing
	detailResp := do(t, env.server, "GET", "/v1/cash/sessions/"+sess.ID, nil, env.token)
	require.Equal(t, http.StatusOK, detailResp.StatusCode)
	var detail struct {
		Operations []struct {
			Type          string `json:"type"`
			AmountInCents int64  `json:"amount_in_cents"`
		} `json:"operations"`
	}
	decodeJSON(t, detailResp, &detail)
	require.Len(t, detail.Operations, 4)
	assert.Equal(t, "opening", detail.Operations[0].Type)
	assert.Equal(t, "closing", detail.Operations[3].Type)

	// Delete and verify cascade
	delResp := do(t, env.server, "DELETE", "/v1/cash/sessions/"+sess.ID, nil, env.token)
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)
	delResp.Body.Close()

	goneResp := do(t, env.server, "GET", "/v1/cash/sessions/"+sess.ID, nil, env.token)
	assert.Equal(t, http.StatusNotFound, goneResp.StatusCode)
	goneResp.Body.Close()
}

func TestE2E_SingleOpenSessionPerDay(t *testing.T) {
	env := setupTestEnv(t)
	date := "2025-03-11"

	openSession(t, env, date, 1000)

	// The partial unique index, not an application check, must reject this
	resp := do(t, env.server, "POST", "/v1/cash/sessions",
		jsonBody(t, map[string]any{"business_date": date, "opening_amount": 500}), env.token)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestE2E_ConcurrentOpenSingleWinner(t *testing.T) {
	env := setupTestEnv(t)
	date := "2025-03-12"

	const n = 8
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp := do(t, env.server, "POST", "/v1/cash/sessions",
				jsonBody(t, map[string]any{"business_date": date, "opening_amount": 1000}), env.token)
			codes[i] = resp.StatusCode
			resp.Body.Close()
		}(i)
	}
	wg.Wait()

	created, conflicts := 0, 0
	for _, code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			conflicts++
		default:
			t.Fatalf("unexpected status %d", code)
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, n-1, conflicts)
}

func TestE2E_AppendAfterCloseRejected(t *testing.T) {
	env := setupTestEnv(t)
	sess := openSession(t, env, "2025-03-13", 2000)

	closeResp := do(t, env.server, "POST", "/v1/cash/sessions/"+sess.ID+"/close",
		jsonBody(t, map[string]any{"closing_amount": 2000}), env.token)
	require.Equal(t, http.StatusOK, closeResp.StatusCode)
	closeResp.Body.Close()

	lateResp := do(t, env.server, "POST", "/v1/cash/sessions/"+sess.ID+"/operations",
		jsonBody(t, map[string]any{
			"type": "cash_in", "amount_in_cents": 100, "description": "too late",
		}), env.token)
	assert.Equal(t, http.StatusConflict, lateResp.StatusCode)
	lateResp.Body.Close()

	// Second close is also rejected and the first snapshot survives
	againResp := do(t, env.server, "POST", "/v1/cash/sessions/"+sess.ID+"/close",
		jsonBody(t, map[string]any{"closing_amount": 9999}), env.token)
	assert.Equal(t, http.StatusConflict, againResp.StatusCode)
	againResp.Body.Close()

	detailResp := do(t, env.server, "GET", "/v1/cash/sessions/"+sess.ID, nil, env.token)
	require.Equal(t, http.StatusOK, detailResp.StatusCode)
	var sessAfter sessionBody
	decodeJSON(t, detailResp, &sessAfter)
	require.NotNil(t, sessAfter.ClosingAmount)
	assert.Equal(t, int64(2000), *sessAfter.ClosingAmount)
}

func TestE2E_CrossClinicIsolation(t *testing.T) {
	env := setupTestEnv(t)
	sess := openSession(t, env, "2025-03-14", 1000)

	otherToken := mintToken(t, uuid.New(), uuid.New(), "manager")

	getResp := do(t, env.server, "GET", "/v1/cash/sessions/"+sess.ID, nil, otherToken)
	assert.Equal(t, http.StatusNotFound, getResp.StatusCode)
	getResp.Body.Close()

	appendResp := do(t, env.server, "POST", "/v1/cash/sessions/"+sess.ID+"/operations",
		jsonBody(t, map[string]any{
			"type": "cash_in", "amount_in_cents": 100, "description": "intruder",
		}), otherToken)
	assert.Equal(t, http.StatusNotFound, appendResp.StatusCode)
	appendResp.Body.Close()

	// Same date, different clinic: its own drawer opens fine
	otherOpenResp := do(t, env.server, "POST", "/v1/cash/sessions",
		jsonBody(t, map[string]any{"business_date": "2025-03-14", "opening_amount": 500}), otherToken)
	assert.Equal(t, http.StatusCreated, otherOpenResp.StatusCode)
	otherOpenResp.Body.Close()
}

func TestE2E_RolePolicy(t *testing.T) {
	env := setupTestEnv(t)
	sess := openSession(t, env, "2025-03-15", 1000)

	receptionToken := mintToken(t, env.clinicID, uuid.New(), "receptionist")

	// Receptionists can append but not delete or read history
	appendResp := do(t, env.server, "POST", "/v1/cash/sessions/"+sess.ID+"/operations",
		jsonBody(t, map[string]any{
			"type": "cash_in", "amount_in_cents": 100, "description": "copay",
		}), receptionToken)
	assert.Equal(t, http.StatusCreated, appendResp.StatusCode)
	appendResp.Body.Close()

	delResp := do(t, env.server, "DELETE", "/v1/cash/sessions/"+sess.ID, nil, receptionToken)
	assert.Equal(t, http.StatusForbidden, delResp.StatusCode)
	delResp.Body.Close()

	histResp := do(t, env.server, "GET", "/v1/cash/history", nil, receptionToken)
	assert.Equal(t, http.StatusForbidden, histResp.StatusCode)
	histResp.Body.Close()

	// No token at all → 401
	anonResp := do(t, env.server, "GET", fmt.Sprintf("/v1/cash/sessions/%s", sess.ID), nil, "")
	assert.Equal(t, http.StatusUnauthorized, anonResp.StatusCode)
	anonResp.Body.Close()
}
