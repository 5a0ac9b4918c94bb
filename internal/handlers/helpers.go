// Package handlers contains the echo HTTP handlers for the public API:
// platform webhooks, the widget endpoints, and the authenticated console.
package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/relaydesk/relaydesk/internal/admin"
	"github.com/relaydesk/relaydesk/internal/auth"
)

var validate = validator.New()

// bindAndValidate decodes the request body and runs struct validation.
func bindAndValidate(c echo.Context, target any) error {
	if err := c.Bind(target); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(target); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// requireIdentity extracts the authenticated admin from the JWT.
func requireIdentity(c echo.Context) (auth.Identity, error) {
	return auth.IdentityFromContext(c)
}

// requireSuperAdmin extracts the identity and rejects non-super admins.
func requireSuperAdmin(c echo.Context) (auth.Identity, error) {
	identity, err := requireIdentity(c)
	if err != nil {
		return auth.Identity{}, err
	}
	if identity.Role != string(admin.RoleSuperAdmin) {
		return auth.Identity{}, echo.NewHTTPError(http.StatusForbidden, "super admin required")
	}
	return identity, nil
}

func writeSSEData(writer *bufio.Writer, flusher http.Flusher, payload string) error {
	if _, err := writer.WriteString(fmt.Sprintf("data: %s\n\n", payload)); err != nil {
		return err
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func writeSSEJSON(writer *bufio.Writer, flusher http.Flusher, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return writeSSEData(writer, flusher, string(data))
}

// prepareSSE sets the event-stream headers and returns the writer pair.
func prepareSSE(c echo.Context) (*bufio.Writer, http.Flusher, error) {
	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return nil, nil, echo.NewHTTPError(http.StatusInternalServerError, "streaming not supported")
	}
	return bufio.NewWriter(c.Response().Writer), flusher, nil
}
