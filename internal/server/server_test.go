package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spinhouse/coinledger/internal/auth"
	"github.com/spinhouse/coinledger/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:         "8080",
		Env:          "development",
		LogLevel:     "error",
		RateLimitRPM: 10000,
		Rules:        config.DefaultRules(),
	}
}

func testServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig())
	require.NoError(t, err)
	s.ready.Store(true)
	return s
}

func TestPlumbingEndpoints(t *testing.T) {
	s := testServer(t)

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "coinledger_")
}

func TestAuthRequired(t *testing.T) {
	s := testServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/transfers/validate",
		strings.NewReader(`{"recipientTxCode":"XBT-AAA-111111-AAA","amount":10.00}`))
	req.Header.Set("Content-Type", "application/json")
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRequiresAdminRole(t *testing.T) {
	s := testServer(t)
	ctx := context.Background()

	userToken, _, err := s.AuthManager().IssueToken(ctx, "usr_alice", auth.RoleUser)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/admin/accounts",
		strings.NewReader(`{"username":"bob"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+userToken)
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestEndToEndRegisterAndTransfer(t *testing.T) {
	s := testServer(t)
	ctx := context.Background()

	adminToken, _, err := s.AuthManager().IssueToken(ctx, "usr_admin", auth.RoleAdmin)
	require.NoError(t, err)

	register := func(username string) map[string]any {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/v1/admin/accounts",
			strings.NewReader(`{"username":"`+username+`"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+adminToken)
		s.Router().ServeHTTP(w, req)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		return decodeJSON(t, w.Body.Bytes())
	}

	alice := register("alice")
	bob := register("bob")

	aliceToken, _, err := s.AuthManager().IssueToken(ctx, alice["id"].(string), auth.RoleUser)
	require.NoError(t, err)

	// Validate then execute a transfer of 25.00 from alice to bob.
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/transfers/validate",
		strings.NewReader(`{"recipientTxCode":"`+bob["txCode"].(string)+`","amount":25.00}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	validated := decodeJSON(t, w.Body.Bytes())

	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/api/v1/transfers/execute",
		strings.NewReader(`{"transactionId":"`+validated["transactionId"].(string)+`"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"newBalance":"75.00"`)

	// Balance endpoint reflects the debit.
	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/api/v1/accounts/"+alice["id"].(string)+"/balance", nil)
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"balance":"75.00"`)
}

func decodeJSON(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}
