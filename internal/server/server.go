package server

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/relaydesk/relaydesk/internal/auth"
	"github.com/relaydesk/relaydesk/internal/handlers"
)

// Handler is anything that can register routes on the echo instance.
type Handler interface {
	Register(e *echo.Echo)
}

type Server struct {
	echo *echo.Echo
	addr string
}

func NewServer(addr string, jwtSecret string, pingHandler *handlers.PingHandler, authHandler *handlers.AuthHandler, lineWebhookHandler *handlers.LineWebhookHandler, facebookWebhookHandler *handlers.FacebookWebhookHandler, widgetHandler *handlers.WidgetHandler, conversationHandler *handlers.ConversationHandler, adminHandler *handlers.AdminHandler, accountHandler *handlers.AccountHandler, realtimeHandler *handlers.RealtimeHandler, metricsHandler *handlers.MetricsHandler) *Server {
	if addr == "" {
		addr = ":8080"
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLogger())
	e.Use(auth.JWTMiddleware(jwtSecret, func(c echo.Context) bool {
		return shouldSkipJWT(c.Request().URL.Path)
	}))

	if pingHandler != nil {
		pingHandler.Register(e)
	}
	if authHandler != nil {
		authHandler.Register(e)
	}
	if lineWebhookHandler != nil {
		lineWebhookHandler.Register(e)
	}
	if facebookWebhookHandler != nil {
		facebookWebhookHandler.Register(e)
	}
	if widgetHandler != nil {
		widgetHandler.Register(e)
	}
	if conversationHandler != nil {
		conversationHandler.Register(e)
	}
	if adminHandler != nil {
		adminHandler.Register(e)
	}
	if accountHandler != nil {
		accountHandler.Register(e)
	}
	if realtimeHandler != nil {
		realtimeHandler.Register(e)
	}
	if metricsHandler != nil {
		metricsHandler.Register(e)
	}

	return &Server{
		echo: e,
		addr: addr,
	}
}

// shouldSkipJWT reports whether a path is served without a console token.
// Webhooks authenticate with platform signatures, the widget with its
// IP-derived identity.
func shouldSkipJWT(path string) bool {
	switch path {
	case "/ping", "/health", "/auth/login":
		return true
	}
	if strings.HasPrefix(path, "/api/webhooks/") {
		return true
	}
	if strings.HasPrefix(path, "/api/chat/widget") {
		return true
	}
	return false
}

func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
