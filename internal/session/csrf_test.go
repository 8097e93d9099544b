package session

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-key-32-bytes-long!!!")

func csrfRouter(handler gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(CSRFMiddleware(testSecret, false))
	router.GET("/form", handler)
	router.POST("/form", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestCSRFMiddleware_AllowsGET(t *testing.T) {
	router := csrfRouter(func(c *gin.Context) { c.Status(http.StatusOK) })

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/form", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCSRFMiddleware_BlocksPOSTWithoutToken(t *testing.T) {
	router := csrfRouter(func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/form", nil)
	req.Header.Set("Accept", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "CSRF token invalid or missing")
}

func TestCSRFMiddleware_AcceptsTokenRoundTrip(t *testing.T) {
	var token string
	router := csrfRouter(func(c *gin.Context) {
		token = GetCSRFToken(c)
		c.Status(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/form", nil))
	require.NotEmpty(t, token)
	cookies := rr.Result().Cookies()
	require.NotEmpty(t, cookies)

	t.Run("form field", func(t *testing.T) {
		form := url.Values{CSRFFieldName: {token}}
		req := httptest.NewRequest(http.MethodPost, "/form", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		for _, c := range cookies {
			req.AddCookie(c)
		}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("htmx header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/form", nil)
		req.Header.Set(CSRFTokenHeader, token)
		req.Header.Set("HX-Request", "true")
		for _, c := range cookies {
			req.AddCookie(c)
		}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestGetCSRFToken(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, GetCSRFToken(c))

	c.Set("csrf_token", "test-token-123")
	assert.Equal(t, "test-token-123", GetCSRFToken(c))
}

func TestCSRFErrorHandler_Redirect(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/books", nil)
	req.Header.Set("Referer", "http://localhost/books/new")
	rr := httptest.NewRecorder()

	csrfErrorHandler(rr, req)

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "http://localhost/books/new?error=Session+expired.+Please+try+again.", rr.Header().Get("Location"))
}

func TestCSRFErrorHandler_HTML(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/books", nil)
	rr := httptest.NewRecorder()

	csrfErrorHandler(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "Session Expired")
}
