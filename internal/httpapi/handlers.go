package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"horse.fit/babel/internal/auth"
	"horse.fit/babel/internal/translation"
)

type translateBody struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
	Context    string `json:"context"`
}

type batchBody struct {
	Texts      []string        `json:"texts"`
	Items      []translateBody `json:"items"`
	SourceLang string          `json:"source_lang"`
	TargetLang string          `json:"target_lang"`
	Context    string          `json:"context"`
}

type detectBody struct {
	Text string `json:"text"`
}

// requests expands a batch body; per-item languages override the shared ones.
func (b batchBody) requests() []translation.Request {
	if len(b.Texts) > 0 {
		out := make([]translation.Request, 0, len(b.Texts))
		for _, text := range b.Texts {
			out = append(out, translation.Request{
				Text:       text,
				SourceLang: b.SourceLang,
				TargetLang: b.TargetLang,
				Context:    b.Context,
			})
		}
		return out
	}

	out := make([]translation.Request, 0, len(b.Items))
	for _, item := range b.Items {
		req := translation.Request{
			Text:       item.Text,
			SourceLang: firstNonEmpty(item.SourceLang, b.SourceLang),
			TargetLang: firstNonEmpty(item.TargetLang, b.TargetLang),
			Context:    firstNonEmpty(item.Context, b.Context),
		}
		out = append(out, req)
	}
	return out
}

func (s *Server) handleTranslate(c echo.Context) error {
	var body translateBody
	if err := bindBody(c, schemaTranslate, &body); err != nil {
		return s.respondError(c, err)
	}

	result, err := s.engine.Translate(c.Request().Context(), clientIdentity(c), translation.Request{
		Text:       body.Text,
		SourceLang: body.SourceLang,
		TargetLang: body.TargetLang,
		Context:    body.Context,
	})
	if err != nil {
		return s.respondError(c, err)
	}
	return success(c, result)
}

func (s *Server) handleTranslateBatch(c echo.Context) error {
	var body batchBody
	if err := bindBody(c, schemaBatch, &body); err != nil {
		return s.respondError(c, err)
	}

	result, err := s.engine.TranslateBatch(c.Request().Context(), clientIdentity(c), body.requests())
	if err != nil {
		return s.respondError(c, err)
	}
	return success(c, result)
}

func (s *Server) handleDetect(c echo.Context) error {
	var body detectBody
	if err := bindBody(c, schemaDetect, &body); err != nil {
		return s.respondError(c, err)
	}

	detection, err := s.engine.DetectLanguage(c.Request().Context(), clientIdentity(c), body.Text)
	if err != nil {
		return s.respondError(c, err)
	}
	return success(c, detection)
}

func (s *Server) handleLanguages(c echo.Context) error {
	ctx := c.Request().Context()
	return success(c, map[string]any{
		"default_target_lang": s.engine.DefaultTargetLang(ctx),
		"languages":           s.engine.SupportedLanguages(ctx),
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	health := s.engine.Health(c.Request().Context())
	if health.Status == translation.StatusDown {
		return fail(c, http.StatusServiceUnavailable, "No translation provider is reachable", health)
	}
	return success(c, health)
}

func (s *Server) handleStats(c echo.Context) error {
	return success(c, s.engine.Snapshot())
}

func bindBody(c echo.Context, schemaName string, out any) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return &bodyError{Fields: map[string]string{"body": "could not read request body"}}
	}
	return decodeValidated(raw, schemaName, out)
}

func clientIdentity(c echo.Context) string {
	return auth.ClientIdentity(c.RealIP(), c.Request().Header.Get(headerAPIKey))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
