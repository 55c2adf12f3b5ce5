package provider

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"

	"horse.fit/babel/internal/language"
)

const DefaultGoogleBaseURL = "https://translation.googleapis.com"

// Google calls the Cloud Translation v2 REST API with an API key.
type Google struct {
	apiKey  string
	baseURL string
	http    *httpClient
}

func NewGoogle(opts Options) *Google {
	return &Google{
		apiKey:  strings.TrimSpace(opts.APIKey),
		baseURL: trimBaseURL(opts.BaseURL, DefaultGoogleBaseURL),
		http:    newHTTPClient("google", opts),
	}
}

func (p *Google) Name() string {
	return "google"
}

func (p *Google) Translate(ctx context.Context, req Request) (*Response, error) {
	if p.apiKey == "" {
		return nil, newError(p.Name(), "translate", 0, ErrNotConfigured)
	}

	payload := googleTranslateRequest{
		Q:      []string{req.Text},
		Target: language.NormalizeCode(req.TargetLang),
		Format: "text",
	}
	if !isAuto(req.SourceLang) {
		payload.Source = language.NormalizeCode(req.SourceLang)
	}

	var parsed googleTranslateResponse
	if err := p.http.doJSON(ctx, "translate", http.MethodPost, p.endpoint(""), nil, payload, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Data.Translations) == 0 {
		return nil, newError(p.Name(), "translate", 0, fmt.Errorf("response missing translations"))
	}
	first := parsed.Data.Translations[0]
	translated := strings.TrimSpace(html.UnescapeString(first.TranslatedText))
	if translated == "" {
		return nil, newError(p.Name(), "translate", 0, fmt.Errorf("translation response was empty"))
	}
	return &Response{
		Text:               translated,
		DetectedSourceLang: language.NormalizeCode(first.DetectedSourceLanguage),
		Characters:         characters(req.Text),
	}, nil
}

func (p *Google) DetectLanguage(ctx context.Context, text string) (string, error) {
	if p.apiKey == "" {
		return "", newError(p.Name(), "detect", 0, ErrNotConfigured)
	}

	var parsed googleDetectResponse
	payload := googleDetectRequest{Q: []string{text}}
	if err := p.http.doJSON(ctx, "detect", http.MethodPost, p.endpoint("/detect"), nil, payload, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Data.Detections) == 0 || len(parsed.Data.Detections[0]) == 0 {
		return "", newError(p.Name(), "detect", 0, fmt.Errorf("response missing detections"))
	}
	code := language.NormalizeCode(parsed.Data.Detections[0][0].Language)
	if code == "" || code == "und" {
		return "", newError(p.Name(), "detect", 0, fmt.Errorf("language could not be determined"))
	}
	return code, nil
}

func (p *Google) Ping(ctx context.Context) error {
	if p.apiKey == "" {
		return newError(p.Name(), "ping", 0, ErrNotConfigured)
	}
	return p.http.doJSON(ctx, "ping", http.MethodGet, p.endpoint("/languages"), nil, nil, nil)
}

func (p *Google) endpoint(suffix string) string {
	return p.baseURL + "/language/translate/v2" + suffix + "?key=" + url.QueryEscape(p.apiKey)
}

type googleTranslateRequest struct {
	Q      []string `json:"q"`
	Source string   `json:"source,omitempty"`
	Target string   `json:"target"`
	Format string   `json:"format"`
}

type googleTranslateResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText         string `json:"translatedText"`
			DetectedSourceLanguage string `json:"detectedSourceLanguage"`
		} `json:"translations"`
	} `json:"data"`
}

type googleDetectRequest struct {
	Q []string `json:"q"`
}

type googleDetectResponse struct {
	Data struct {
		Detections [][]struct {
			Language   string  `json:"language"`
			Confidence float64 `json:"confidence"`
		} `json:"detections"`
	} `json:"data"`
}
