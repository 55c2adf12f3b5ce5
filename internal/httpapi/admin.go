package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"horse.fit/babel/internal/auth"
	"horse.fit/babel/internal/cache"
)

const (
	resetStats       = "stats"
	resetCacheMemory = "cache:memory"
	resetCacheShared = "cache:shared"
	resetCacheAll    = "cache:all"
	resetAll         = "all"
)

type resetBody struct {
	Scope string `json:"scope"`
}

func (s *Server) requireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if s.opts.AdminTokenHash == "" {
				return failNotFound(c, "Admin endpoints are disabled")
			}
			if !auth.VerifyToken(c.Request().Header.Get(headerAdminToken), s.opts.AdminTokenHash) {
				s.logger.Warn().Str("remote_ip", c.RealIP()).Msg("rejected admin request")
				return fail(c, http.StatusUnauthorized, "Unauthorized", nil)
			}
			return next(c)
		}
	}
}

func (s *Server) handleAdminReset(c echo.Context) error {
	var body resetBody
	if err := bindBody(c, schemaReset, &body); err != nil {
		return s.respondError(c, err)
	}

	ctx := c.Request().Context()
	out := map[string]any{"scope": body.Scope}

	if body.Scope == resetStats || body.Scope == resetAll {
		s.engine.ResetStats()
		out["stats_reset"] = true
	}

	var scope cache.Scope
	switch body.Scope {
	case resetCacheMemory:
		scope = cache.ScopeMemory
	case resetCacheShared:
		scope = cache.ScopeShared
	case resetCacheAll, resetAll:
		scope = cache.ScopeAll
	}
	if scope != "" {
		removed, err := s.engine.ClearCache(ctx, scope)
		if err != nil {
			s.logger.Error().Err(err).Str("scope", string(scope)).Msg("cache clear failed")
			return internalError(c, "Failed to clear cache")
		}
		out["cache_entries_removed"] = removed
	}

	s.logger.Info().Str("scope", body.Scope).Msg("admin reset applied")
	return success(c, out)
}
