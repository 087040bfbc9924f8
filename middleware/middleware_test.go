package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret-with-enough-length!!"

func init() {
	gin.SetMode(gin.TestMode)
}

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, subject string, expiresIn time.Duration) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Email: "ana@example.com",
	}
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestTokenVerifier(t *testing.T) {
	v := NewTokenVerifier(testSecret)

	claims, err := v.Verify(signToken(t, jwt.SigningMethodHS256, []byte(testSecret), "owner-1", time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "owner-1", claims.Subject)
	assert.Equal(t, "ana@example.com", claims.Email)

	tests := map[string]string{
		"empty":        "",
		"garbage":      "not-a-token",
		"wrong secret": signToken(t, jwt.SigningMethodHS256, []byte("other-secret"), "owner-1", time.Hour),
		"expired":      signToken(t, jwt.SigningMethodHS256, []byte(testSecret), "owner-1", -time.Minute),
		"no subject":   signToken(t, jwt.SigningMethodHS256, []byte(testSecret), "", time.Hour),
		"hs512":        signToken(t, jwt.SigningMethodHS512, []byte(testSecret), "owner-1", time.Hour),
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			assert.Error(t, err)
		})
	}
}

func newAuthRouter() *gin.Engine {
	r := gin.New()
	r.Use(AuthMiddleware(NewTokenVerifier(testSecret), zap.NewNop()))
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c)})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	r := newAuthRouter()
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), "owner-1", time.Hour)

	t.Run("bearer header", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"user_id":"owner-1"}`, w.Body.String())
	})

	t.Run("query parameter", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?token="+token, nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"error":"Unauthorized"}`, w.Body.String())
	})
}

func TestRateLimiter_Window(t *testing.T) {
	now := time.Date(2025, 11, 13, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	ok, _ := rl.Allow("owner-1")
	assert.True(t, ok)
	ok, _ = rl.Allow("owner-1")
	assert.True(t, ok)
	ok, retry := rl.Allow("owner-1")
	assert.False(t, ok)
	assert.Equal(t, time.Minute, retry)

	// Other owners have their own window.
	ok, _ = rl.Allow("owner-2")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	ok, _ = rl.Allow("owner-1")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	rl.cleanup()
	assert.Empty(t, rl.requests)
}

func TestRateLimiter_Handler(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(userIDKey, c.GetHeader("X-Owner")); c.Next() })
	r.Use(rl.Handler())
	r.GET("/q", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(owner string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/q", nil)
		req.Header.Set("X-Owner", owner)
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("owner-1"))
	assert.Equal(t, http.StatusTooManyRequests, do("owner-1"))
	assert.Equal(t, http.StatusOK, do("owner-2"))
}

func TestRequestLogger_PassesThrough(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger(zap.NewNop()))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x?account=1000123456", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}
