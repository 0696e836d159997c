package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/wardenhq/core/internal/domain/entities"
)

// ipcAuth guards the IPC API with the configured password. Requests carry
// it as a bearer credential. With no password configured the check is off
// and every request passes.
func (s *Server) ipcAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !s.config.IPCAuthEnabled() {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				s.logger.LogSecurityEvent("missing_ipc_credential", c.RealIP(), map[string]interface{}{
					"endpoint": c.Request().URL.Path,
				})
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing authorization header")
			}

			presented := strings.TrimPrefix(authHeader, "Bearer ")
			if presented == authHeader {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
			}

			if !s.verifyIPCPassword(presented) {
				s.logger.LogSecurityEvent("invalid_ipc_credential", c.RealIP(), map[string]interface{}{
					"endpoint": c.Request().URL.Path,
				})
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
			}

			return next(c)
		}
	}
}

// verifyIPCPassword compares the presented credential against the
// configured one in the configured format.
func (s *Server) verifyIPCPassword(presented string) bool {
	expected := s.config.IPCPassword()

	switch s.config.IPCPasswordFormat() {
	case entities.PasswordFormatBcrypt:
		return bcrypt.CompareHashAndPassword([]byte(expected), []byte(presented)) == nil
	default:
		return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
	}
}
