package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danmuck/extpipe/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

func TestAdminRouterServesAndRecords(t *testing.T) {
	log := testlog.Start(t)
	gin.SetMode(gin.TestMode)

	router := NewAdminRouter("extctl-test", log)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status for missing route: %d", rec.Code)
	}
}
