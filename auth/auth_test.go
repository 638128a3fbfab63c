package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/meshd/clog"
	"github.com/ceyewan/meshd/metrics"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestNewDefaultsToSharedSecret(t *testing.T) {
	cfg := &Config{}
	a, err := New(cfg, WithLogger(clog.Discard()), WithMeter(metrics.Discard()))
	require.NoError(t, err)
	assert.Equal(t, ModeSharedSecret, cfg.Mode)
	assert.Len(t, cfg.Secret, 64)

	id, err := a.Verify(context.Background(), Credentials{Token: cfg.Secret, Service: "billing"})
	require.NoError(t, err)
	assert.Equal(t, "billing", id.Service)
	assert.Equal(t, methodSharedSecret, id.Method)
}

func TestNewInvalidConfig(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(&Config{Mode: "mtls"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(&Config{Mode: ModeJWT, JWT: JWTConfig{SecretKey: "short"}})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(&Config{Mode: ModeJWT, JWT: JWTConfig{SecretKey: testKey, SigningMethod: "RS256"}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSharedSecretVerify(t *testing.T) {
	a, err := NewSharedSecret("s3cret")
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"match", "s3cret", nil},
		{"mismatch", "guess", ErrInvalidCredentials},
		{"prefix", "s3c", ErrInvalidCredentials},
		{"missing", "", ErrMissingToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := a.Verify(context.Background(), Credentials{Token: tt.token, Service: "vault"})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.True(t, IsUnauthorized(err))
				assert.Nil(t, id)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "vault", id.Service)
		})
	}

	_, err = NewSharedSecret("")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func newTestJWT(t *testing.T) *jwtAuth {
	t.Helper()
	a, err := NewJWT(&JWTConfig{SecretKey: testKey, TokenTTL: time.Hour})
	require.NoError(t, err)
	return a.(*jwtAuth)
}

func TestJWTIssueAndVerify(t *testing.T) {
	a := newTestJWT(t)
	ctx := context.Background()

	token, err := a.Issue(ctx, "billing", "admin")
	require.NoError(t, err)

	id, err := a.Verify(ctx, Credentials{Token: token, Service: "billing"})
	require.NoError(t, err)
	assert.Equal(t, "billing", id.Service)
	assert.Equal(t, methodJWT, id.Method)
	assert.True(t, id.HasRole("admin"))
	assert.False(t, id.ExpiresAt.IsZero())

	_, err = a.Verify(ctx, Credentials{Token: token, Service: "vault"})
	assert.ErrorIs(t, err, ErrServiceMismatch)

	_, err = a.Verify(ctx, Credentials{Token: token + "x", Service: "billing"})
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = a.Verify(ctx, Credentials{Service: "billing"})
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = a.Issue(ctx, "")
	assert.Error(t, err)
}

func TestJWTExpired(t *testing.T) {
	a := newTestJWT(t)
	a.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := a.Issue(context.Background(), "billing")
	require.NoError(t, err)

	a.now = time.Now
	_, err = a.Verify(context.Background(), Credentials{Token: token, Service: "billing"})
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTRejectsForeignKey(t *testing.T) {
	issuer, err := NewJWT(&JWTConfig{SecretKey: strings.Repeat("z", 32)})
	require.NoError(t, err)
	token, err := issuer.Issue(context.Background(), "billing")
	require.NoError(t, err)

	_, err = newTestJWT(t).Verify(context.Background(), Credentials{Token: token, Service: "billing"})
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAnyMode(t *testing.T) {
	cfg := &Config{Mode: ModeAny, Secret: "s3cret", JWT: JWTConfig{SecretKey: testKey}}
	a, err := New(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = a.Verify(ctx, Credentials{Token: "s3cret", Service: "gateway"})
	require.NoError(t, err)

	issuer, err := NewJWT(&cfg.JWT)
	require.NoError(t, err)
	token, err := issuer.Issue(ctx, "gateway")
	require.NoError(t, err)

	id, err := a.Verify(ctx, Credentials{Token: token, Service: "gateway"})
	require.NoError(t, err)
	assert.Equal(t, methodJWT, id.Method)

	_, err = a.Verify(ctx, Credentials{Token: "nope", Service: "gateway"})
	assert.True(t, IsUnauthorized(err))
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a := newTestJWT(t)
	ctx := context.Background()

	router := gin.New()
	router.GET("/status", GinMiddleware(a), RequireRoles("admin"), func(c *gin.Context) {
		id, ok := GetIdentity(c)
		require.True(t, ok)
		c.String(http.StatusOK, id.Service)
	})

	do := func(header, query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/status"+query, nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, do("", "").Code)

	viewer, err := a.Issue(ctx, "ops")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, do("Bearer "+viewer, "").Code)

	admin, err := a.Issue(ctx, "ops", "admin")
	require.NoError(t, err)
	w := do("Bearer "+admin, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ops", w.Body.String())

	assert.Equal(t, http.StatusOK, do("", "?auth="+admin).Code)
}

func TestSharedSecretIdentityIsAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a, err := NewSharedSecret("s3cret")
	require.NoError(t, err)

	router := gin.New()
	router.GET("/x", GinMiddleware(a), RequireRoles("admin"), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
