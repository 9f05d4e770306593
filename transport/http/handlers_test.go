package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/CoachCoe/polkadot-sso-sub002/adapters/cache"
	"github.com/CoachCoe/polkadot-sso-sub002/adapters/sqlite"
	"github.com/CoachCoe/polkadot-sso-sub002/internal/clock"
	"github.com/CoachCoe/polkadot-sso-sub002/service"
)

const testAddress = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"

type acceptAllVerifier struct{}

func (acceptAllVerifier) Verify(message, signature, address string) (bool, error) {
	return true, nil
}

func testRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fake := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	pool, err := sqlite.Open(sqlite.PoolConfig{
		Path:      filepath.Join(t.TempDir(), "sso.db"),
		MinConns:  1,
		MaxConns:  4,
		OnConnect: sqlite.ApplySchema,
	})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	mem := cache.NewMemoryCache()
	audits := service.NewAuditService(sqlite.NewAuditStore(pool), nil, fake, zap.NewNop())
	challenges := service.NewChallengeService(
		sqlite.NewChallengeStore(pool), sqlite.NewAuthCodeStore(pool), mem,
		acceptAllVerifier{}, audits, fake, zap.NewNop(),
		service.SIWEConfig{Domain: "sso.test", URI: "https://sso.test", ChainID: "polkadot"},
	)
	tokens, err := service.NewTokenService(
		sqlite.NewSessionStore(pool), sqlite.NewAuthCodeStore(pool), mem,
		audits, fake, zap.NewNop(),
		service.TokenConfig{Secret: []byte("test-secret")},
	)
	require.NoError(t, err)

	return SetupRouter(challenges, tokens, audits)
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var decoded map[string]any
	if len(w.Body.Bytes()) > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func requestChallenge(t *testing.T, router *gin.Engine) map[string]any {
	t.Helper()
	w, body := doJSON(t, router, http.MethodGet,
		"/auth/challenge?client_id=client-1&address="+testAddress, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	return body
}

func TestChallengeEndpoint(t *testing.T) {
	router := testRouter(t)

	t.Run("issues a challenge", func(t *testing.T) {
		body := requestChallenge(t, router)
		require.NotEmpty(t, body["challenge_id"])
		require.NotEmpty(t, body["message"])
		require.NotEmpty(t, body["code_verifier"])
		require.NotEmpty(t, body["state"])
	})

	t.Run("requires client_id and address", func(t *testing.T) {
		w, _ := doJSON(t, router, http.MethodGet, "/auth/challenge?address=x", nil, nil)
		require.Equal(t, http.StatusBadRequest, w.Code)

		w, _ = doJSON(t, router, http.MethodGet, "/auth/challenge?client_id=x", nil, nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestFullAuthenticationFlow(t *testing.T) {
	router := testRouter(t)

	challenge := requestChallenge(t, router)

	// Verify the signed challenge for an authorization code.
	w, body := doJSON(t, router, http.MethodPost, "/auth/verify", map[string]any{
		"challenge_id":  challenge["challenge_id"],
		"client_id":     "client-1",
		"address":       testAddress,
		"signature":     "0xsigned",
		"code_verifier": challenge["code_verifier"],
		"state":         challenge["state"],
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	code := body["code"].(string)
	require.NotEmpty(t, code)

	// Exchange the code for tokens.
	w, body = doJSON(t, router, http.MethodPost, "/auth/token", map[string]any{
		"code":      code,
		"client_id": "client-1",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	accessToken := body["access_token"].(string)
	refreshToken := body["refresh_token"].(string)
	require.Equal(t, "Bearer", body["token_type"])

	// The access token opens the protected API.
	auth := map[string]string{"Authorization": "Bearer " + accessToken}
	w, body = doJSON(t, router, http.MethodGet, "/api/me", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, testAddress, body["address"])

	w, body = doJSON(t, router, http.MethodGet, "/api/authorize", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, body["authorized"])

	// A code is single use.
	w, _ = doJSON(t, router, http.MethodPost, "/auth/token", map[string]any{
		"code":      code,
		"client_id": "client-1",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// Refresh rotates the pair and kills the old tokens.
	w, body = doJSON(t, router, http.MethodPost, "/auth/refresh", map[string]any{
		"refresh_token": refreshToken,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	newAccess := body["access_token"].(string)
	require.NotEqual(t, accessToken, newAccess)

	w, _ = doJSON(t, router, http.MethodGet, "/api/me", nil, auth)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// Logout with the current access token.
	newAuth := map[string]string{"Authorization": "Bearer " + newAccess}
	w, _ = doJSON(t, router, http.MethodPost, "/auth/logout", nil, newAuth)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, router, http.MethodGet, "/api/me", nil, newAuth)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVerifyRejections(t *testing.T) {
	router := testRouter(t)
	challenge := requestChallenge(t, router)

	verify := func(t *testing.T, override map[string]any) (*httptest.ResponseRecorder, map[string]any) {
		t.Helper()
		req := map[string]any{
			"challenge_id":  challenge["challenge_id"],
			"client_id":     "client-1",
			"address":       testAddress,
			"signature":     "0xsigned",
			"code_verifier": challenge["code_verifier"],
			"state":         challenge["state"],
		}
		for k, v := range override {
			req[k] = v
		}
		return doJSON(t, router, http.MethodPost, "/auth/verify", req, nil)
	}

	t.Run("wrong state", func(t *testing.T) {
		w, body := verify(t, map[string]any{"state": "wrong"})
		require.Equal(t, http.StatusUnauthorized, w.Code)
		require.Equal(t, "state_mismatch", body["reason"])
	})

	t.Run("wrong verifier", func(t *testing.T) {
		w, body := verify(t, map[string]any{"code_verifier": "wrong"})
		require.Equal(t, http.StatusUnauthorized, w.Code)
		require.Equal(t, "invalid_code_verifier", body["reason"])
	})

	t.Run("unknown challenge", func(t *testing.T) {
		w, body := verify(t, map[string]any{"challenge_id": "nope"})
		require.Equal(t, http.StatusNotFound, w.Code)
		require.Equal(t, "challenge_not_found", body["reason"])
	})

	t.Run("missing fields", func(t *testing.T) {
		w, _ := verify(t, map[string]any{"signature": ""})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	router := testRouter(t)

	w, _ := doJSON(t, router, http.MethodGet, "/api/me", nil, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = doJSON(t, router, http.MethodGet, "/api/me", nil,
		map[string]string{"Authorization": "Bearer garbage"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = doJSON(t, router, http.MethodGet, "/api/me", nil,
		map[string]string{"Authorization": "Basic abc"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStatsAndAuditEndpoints(t *testing.T) {
	router := testRouter(t)

	// Authenticate to reach the protected group.
	challenge := requestChallenge(t, router)
	w, body := doJSON(t, router, http.MethodPost, "/auth/verify", map[string]any{
		"challenge_id":  challenge["challenge_id"],
		"client_id":     "client-1",
		"address":       testAddress,
		"signature":     "0xsigned",
		"code_verifier": challenge["code_verifier"],
		"state":         challenge["state"],
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, body = doJSON(t, router, http.MethodPost, "/auth/token", map[string]any{
		"code":      body["code"],
		"client_id": "client-1",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	auth := map[string]string{"Authorization": "Bearer " + body["access_token"].(string)}

	t.Run("stats", func(t *testing.T) {
		w, body := doJSON(t, router, http.MethodGet, "/api/stats", nil, auth)
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, float64(1), body["total"])
		require.Equal(t, float64(1), body["used"])
	})

	t.Run("audit log", func(t *testing.T) {
		w, body := doJSON(t, router, http.MethodGet, "/api/audit?event_type=auth_success", nil, auth)
		require.Equal(t, http.StatusOK, w.Code)
		events := body["events"].([]any)
		require.NotEmpty(t, events)
	})
}
