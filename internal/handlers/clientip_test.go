package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func newContext(remoteAddr string, headers map[string]string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return e.NewContext(req, httptest.NewRecorder())
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	c := newContext("10.0.0.1:1234", map[string]string{
		"X-Forwarded-For": "203.0.113.7, 10.0.0.2",
		"X-Real-IP":       "198.51.100.9",
	})
	assert.Equal(t, "203.0.113.7", clientIP(c))
}

func TestClientIPFallsBackToRealIP(t *testing.T) {
	c := newContext("10.0.0.1:1234", map[string]string{
		"X-Real-IP": "198.51.100.9",
	})
	assert.Equal(t, "198.51.100.9", clientIP(c))
}

func TestClientIPFallsBackToRemoteAddr(t *testing.T) {
	c := newContext("10.0.0.1:1234", nil)
	assert.Equal(t, "10.0.0.1", clientIP(c))
}

func TestVisitorIDIsStable(t *testing.T) {
	first := visitorID("203.0.113.7")
	second := visitorID(" 203.0.113.7 ")
	assert.Equal(t, first, second)
	assert.Len(t, first, len("web-")+12)
	assert.NotEqual(t, first, visitorID("203.0.113.8"))
}
