package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strings"

	"github.com/labstack/echo/v4"
)

// clientIP resolves the caller's address behind common reverse proxy
// headers, falling back to the socket peer.
func clientIP(c echo.Context) string {
	if forwarded := strings.TrimSpace(c.Request().Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if real := strings.TrimSpace(c.Request().Header.Get("X-Real-IP")); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(c.Request().RemoteAddr)
	if err != nil {
		return c.Request().RemoteAddr
	}
	return host
}

// visitorID derives the stable widget identity from the caller's IP.
// Known limitation: visitors behind the same NAT share one identity, and a
// visitor whose IP changes starts a new conversation.
func visitorID(ip string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(ip)))
	return "web-" + hex.EncodeToString(sum[:])[:12]
}
