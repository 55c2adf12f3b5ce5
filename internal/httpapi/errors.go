package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"horse.fit/babel/internal/translation"
)

type attemptView struct {
	Provider string `json:"provider"`
	Tries    int    `json:"tries"`
	Error    string `json:"error"`
}

// respondError maps engine errors onto JSend responses.
func (s *Server) respondError(c echo.Context, err error) error {
	var (
		body       *bodyError
		validation *translation.ValidationError
		limited    *translation.RateLimitedError
		budget     *translation.BudgetExceededError
		failed     *translation.TranslationFailedError
		he         *echo.HTTPError
	)

	switch {
	case errors.As(err, &he):
		return he
	case errors.As(err, &body):
		return failValidation(c, body.Fields)
	case errors.As(err, &validation):
		return failValidation(c, map[string]string{validation.Field: validation.Reason})
	case errors.As(err, &limited):
		decision := limited.Decision
		retryAfter := decision.RetryAfterSeconds()
		header := c.Response().Header()
		header.Set("Retry-After", strconv.Itoa(retryAfter))
		header.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		header.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
		header.Set("X-RateLimit-Burst-Remaining", strconv.Itoa(decision.BurstRemaining))
		return fail(c, http.StatusTooManyRequests, "Rate limit exceeded", map[string]any{
			"retry_after": retryAfter,
		})
	case errors.As(err, &budget):
		return fail(c, http.StatusPaymentRequired, "Translation budget exceeded", map[string]any{
			"period": budget.Period,
			"spent":  budget.Spent,
			"limit":  budget.Limit,
		})
	case errors.As(err, &failed):
		attempts := make([]attemptView, 0, len(failed.Attempts))
		for _, attempt := range failed.Attempts {
			view := attemptView{Provider: attempt.Provider, Tries: attempt.Tries}
			if attempt.Err != nil {
				view.Error = attempt.Err.Error()
			}
			attempts = append(attempts, view)
		}
		s.logger.Warn().Err(err).Msg("translation failed on every provider")
		return errorWithStatus(c, http.StatusBadGateway, "All translation providers failed", map[string]any{
			"attempts": attempts,
		})
	case errors.Is(err, translation.ErrUndetermined):
		return fail(c, http.StatusUnprocessableEntity, "Language could not be determined", nil)
	case errors.Is(err, context.DeadlineExceeded):
		return errorWithStatus(c, http.StatusGatewayTimeout, "Translation timed out", nil)
	case errors.Is(err, context.Canceled):
		// The client went away; nothing useful can be written.
		return nil
	default:
		s.logger.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("request failed")
		return internalError(c, "Internal server error")
	}
}
