package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestParseOrigins(t *testing.T) {
	a := ParseOrigins("https://a.example, https://b.example/")
	assert.True(t, a.Allowed("https://a.example"))
	assert.True(t, a.Allowed("https://B.example"))
	assert.False(t, a.Allowed("https://evil.example"))
	assert.True(t, a.Allowed(""))

	assert.True(t, ParseOrigins("*").Allowed("https://whatever"))
}

func TestOrigin_Preflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Origin(ParseOrigins("https://a.example")))
	GET(r, "/x", func(c *gin.Context) { c.String(http.StatusOK, "ok") }, RouteOpt{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://a.example")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://a.example", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
