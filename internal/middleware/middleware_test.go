package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"linkwatch/internal/config"
)

func newTestRouter(cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(BearerAuth(cfg, zap.NewNop().Sugar()))
	r.GET("/protected", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestBearerAuth_RejectsMissingToken(t *testing.T) {
	cfg := &config.Config{MonitoringAPISecret: "s3cret", Mode: "prod"}
	r := newTestRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerAuth_RejectsWrongToken(t *testing.T) {
	cfg := &config.Config{MonitoringAPISecret: "s3cret", Mode: "prod"}
	r := newTestRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerAuth_AcceptsCorrectToken(t *testing.T) {
	cfg := &config.Config{MonitoringAPISecret: "s3cret", Mode: "prod"}
	r := newTestRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBearerAuth_UnconfiguredSecretAllowsInDev(t *testing.T) {
	cfg := &config.Config{Mode: "dev"}
	r := newTestRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBearerAuth_UnconfiguredSecretRejectsInProd(t *testing.T) {
	cfg := &config.Config{Mode: "prod"}
	r := newTestRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
