package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCorrelationIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("GeneratesCorrelationIDIfNotProvided", func(t *testing.T) {
		router := gin.New()
		router.Use(CorrelationID())
		var capturedContextID string
		router.GET("/test", func(c *gin.Context) {
			capturedContextID = c.GetString(CorrelationIDKey)
			c.Status(http.StatusOK)
		})

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		respHeaderID := rr.Header().Get(CorrelationIDHeader)
		assert.NotEmpty(t, respHeaderID)
		_, err := uuid.Parse(respHeaderID)
		assert.NoError(t, err)
		assert.Equal(t, respHeaderID, capturedContextID)
	})

	t.Run("UsesCorrelationIDIfProvided", func(t *testing.T) {
		router := gin.New()
		router.Use(CorrelationID())
		var capturedContextID string
		router.GET("/test", func(c *gin.Context) {
			capturedContextID = c.GetString(CorrelationIDKey)
			c.Status(http.StatusOK)
		})

		providedID := uuid.New().String()
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(CorrelationIDHeader, providedID)

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, providedID, rr.Header().Get(CorrelationIDHeader))
		assert.Equal(t, providedID, capturedContextID)
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	router := gin.New()
	router.Use(CorrelationID())
	router.Use(Recovery(logger))
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "INTERNAL_SERVER_ERROR")
	assert.Contains(t, rr.Body.String(), "correlation_id")
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	const origin = "http://localhost:5173"

	t.Run("SetsHeadersOnRequests", func(t *testing.T) {
		router := gin.New()
		router.Use(CORS(origin))
		router.GET("/test", func(c *gin.Context) {
			c.Status(http.StatusOK)
		})

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, origin, rr.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("AnswersPreflight", func(t *testing.T) {
		router := gin.New()
		router.Use(CORS(origin))
		router.POST("/test", func(c *gin.Context) {
			c.Status(http.StatusOK)
		})

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/test", nil))

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, origin, rr.Header().Get("Access-Control-Allow-Origin"))
	})
}
