package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"nfcpay/internal/challenge"
	"nfcpay/internal/config"
	"nfcpay/internal/handler"
	"nfcpay/internal/repository"
)

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	e := echo.New()
	challenges := challenge.NewService(challenge.NewMemoryStore(), "test-master-key", 30*time.Second)
	cfg := &config.Config{
		JWTSecret:          "test-jwt-secret",
		ChallengeRateLimit: 10,
	}
	Register(e, cfg, &repository.Repos{}, nil,
		handler.NewCardHandler(nil, nil),
		handler.NewTapHandler(challenges, nil),
		handler.NewProgramHandler(nil),
		handler.NewVendorHandler(nil),
		handler.NewAdminHandler(nil, nil),
	)
	return e
}

func postJSON(e *echo.Echo, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// Challenge issuance must not require terminal credentials: the wallet app
// fetches a challenge before any terminal is involved.
func TestChallengeRouteIsUnauthenticated(t *testing.T) {
	e := newTestServer(t)
	rec := postJSON(e, "/api/nfc-cards/challenge", `{"card_uid":"04A1B2C3"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "challenge")
}

func TestTapToPayRequiresTerminalKey(t *testing.T) {
	e := newTestServer(t)
	rec := postJSON(e, "/api/nfc-cards/tap-to-pay", `{}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCardholderRoutesRequireJWT(t *testing.T) {
	e := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/nfc-cards/my-cards", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestHealthz(t *testing.T) {
	e := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
