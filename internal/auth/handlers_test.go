package auth

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/electio/votegate/internal/account"
	"github.com/electio/votegate/internal/behavior"
	"github.com/electio/votegate/internal/otp"
	"github.com/electio/votegate/internal/session"
)

func newTestRouter(t *testing.T) (*gin.Engine, *fakeSender) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := account.NewMemoryStore()
	accounts := account.NewService(store)
	lockout := account.NewLockoutPolicy(store, account.DefaultLockoutThreshold, 30*time.Minute)
	codes := otp.NewAuthenticator(otp.NewMemoryStore(), otp.DefaultCodeLength, otp.DefaultTTL, otp.DefaultSupersedeGrace)
	sessions := session.NewManager("test-secret-test-secret-test-secret!", time.Hour)
	recorder := behavior.NewRecorder(behavior.NewMemoryStore(), logger)
	sender := &fakeSender{}

	service := NewService(accounts, lockout, codes, sender, sessions, recorder, nil, logger)

	router := gin.New()
	NewHandler(service).RegisterRoutes(router.Group("/v1"))
	return router, sender
}

func doJSON(t *testing.T, router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRegisterLoginVerifyEndpoints(t *testing.T) {
	router, sender := newTestRouter(t)

	w := doJSON(t, router, "/v1/auth/register", gin.H{
		"email":    "voter@example.com",
		"password": "correct-horse-battery",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, router, "/v1/auth/login", gin.H{
		"email":    "voter@example.com",
		"password": "correct-horse-battery",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotEmpty(t, sender.codes)

	w = doJSON(t, router, "/v1/auth/verify", gin.H{
		"email": "voter@example.com",
		"code":  sender.last(),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Session struct {
			Token string `json:"token"`
			Role  string `json:"role"`
		} `json:"session"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Session.Token)
	assert.Equal(t, "voter", resp.Session.Role)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	router, _ := newTestRouter(t)

	body := gin.H{"email": "voter@example.com", "password": "correct-horse-battery"}
	require.Equal(t, http.StatusCreated, doJSON(t, router, "/v1/auth/register", body).Code)

	w := doJSON(t, router, "/v1/auth/register", body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "email_taken")
}

func TestRegisterValidatesInput(t *testing.T) {
	router, _ := newTestRouter(t)

	cases := []struct {
		name string
		body gin.H
	}{
		{"missing email", gin.H{"password": "correct-horse-battery"}},
		{"bad email", gin.H{"email": "not-an-email", "password": "correct-horse-battery"}},
		{"short password", gin.H{"email": "voter@example.com", "password": "short"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, router, "/v1/auth/register", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestLoginWrongPasswordIsGeneric(t *testing.T) {
	router, _ := newTestRouter(t)
	doJSON(t, router, "/v1/auth/register", gin.H{
		"email":    "voter@example.com",
		"password": "correct-horse-battery",
	})

	// Wrong password and unknown email produce identical responses.
	w1 := doJSON(t, router, "/v1/auth/login", gin.H{
		"email":    "voter@example.com",
		"password": "wrong-password",
	})
	w2 := doJSON(t, router, "/v1/auth/login", gin.H{
		"email":    "nobody@example.com",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, w1.Code)
	assert.Equal(t, w1.Body.String(), w2.Body.String())
}

func TestVerifyRejectsMalformedCodeWithoutCounting(t *testing.T) {
	router, _ := newTestRouter(t)
	doJSON(t, router, "/v1/auth/register", gin.H{
		"email":    "voter@example.com",
		"password": "correct-horse-battery",
	})

	// Malformed code is an input error, not an authentication failure.
	for i := 0; i < account.DefaultLockoutThreshold+2; i++ {
		w := doJSON(t, router, "/v1/auth/verify", gin.H{
			"email": "voter@example.com",
			"code":  "abc",
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
	}

	// Account is still not locked.
	w := doJSON(t, router, "/v1/auth/login", gin.H{
		"email":    "voter@example.com",
		"password": "correct-horse-battery",
	})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}
