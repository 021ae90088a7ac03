package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/keycatalog/internal/common"
	"github.com/dmitrijs2005/keycatalog/internal/logging"
	"github.com/dmitrijs2005/keycatalog/internal/server/auth"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// requestID keeps an incoming X-Request-ID or mints one, echoes it back and
// tags the request context with it, so every entry logged while serving the
// request carries the id.
func requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		id := req.Header.Get(common.RequestIDHeaderName)
		if id == "" {
			id = uuid.NewString()
			req.Header.Set(common.RequestIDHeaderName, id)
		}
		c.Response().Header().Set(common.RequestIDHeaderName, id)
		c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
		return next(c)
	}
}

// accessLog resolves handler errors and logs one line per request.
func (s *Server) accessLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		if err := next(c); err != nil {
			c.Error(err)
		}

		req := c.Request()
		s.logger.Info(req.Context(), "request",
			"method", req.Method,
			"uri", req.RequestURI,
			"status", c.Response().Status,
			"size", c.Response().Size,
			"duration", time.Since(start),
		)
		return nil
	}
}

// authenticate attaches the principal of a bearer token to the request
// context. Requests without a token pass through unauthenticated and are
// refused by the operations that need a principal.
func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		if header == "" {
			return next(c)
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format, expected Bearer token")
		}

		req := c.Request()
		p, err := s.deps.Users.Authenticate(req.Context(), strings.TrimSpace(token))
		if err != nil {
			return err
		}
		c.SetRequest(req.WithContext(auth.WithPrincipal(req.Context(), p)))
		return next(c)
	}
}
