package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGinHandler(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery+" "+string(body))
	}))
	defer upstream.Close()

	bank := newBank(t)
	p := newTestProxy(t, bank, Target{Name: "billing", URLs: []string{upstream.URL}})

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Any("/proxy/:service/*path", GinHandler(p))

	do := func(method, path, body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		r.ServeHTTP(w, req)
		return w
	}

	w := do(http.MethodPut, "/proxy/billing/v1/items?id=7", "payload")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PUT /v1/items?id=7 payload", w.Body.String())
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))

	w = do(http.MethodGet, "/proxy/ghost/x", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"service":"ghost"`)
	assert.Contains(t, w.Body.String(), `"status":"service_unavailable"`)

	w = do(http.MethodGet, "/proxy/billing/fail", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	w = do(http.MethodGet, "/proxy/billing/fail", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = do(http.MethodGet, "/proxy/billing/v1/items", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"circuit_open"`)
}

func TestGinHandler_RequestTooLarge(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, _ := io.ReadAll(r.Body)
		_, _ = io.WriteString(w, strconv.Itoa(len(body)))
	}))
	defer upstream.Close()

	resolver, err := NewStaticResolver([]Target{{Name: "billing", URLs: []string{upstream.URL}}})
	require.NoError(t, err)
	p, err := New(&Config{Timeout: 2 * time.Second, MaxRequestBytes: 1024, MaxResponseBytes: 1024}, resolver, newBank(t))
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Any("/proxy/:service/*path", GinHandler(p))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/proxy/billing/v1", strings.NewReader(strings.Repeat("x", 4096))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), `"service":"billing"`)
	assert.Equal(t, int32(0), hits.Load())

	// 恰好等于上限的请求体完整转发
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/proxy/billing/v1", strings.NewReader(strings.Repeat("x", 1024))))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1024", w.Body.String())
	assert.Equal(t, int32(1), hits.Load())
}
