package settings

import (
	"context"
	"strings"

	"horse.fit/babel/internal/language"
)

// Settings are the site-level values the translation surface reads.
type Settings struct {
	DefaultTargetLang string
	// EnabledLanguages narrows the supported set; empty means all.
	EnabledLanguages []string
}

// Source supplies site settings owned by an external admin surface.
type Source interface {
	SiteSettings(ctx context.Context) (Settings, error)
}

// Static serves fixed settings from configuration.
type Static struct {
	settings Settings
}

func NewStatic(defaultTarget string, enabled []string) *Static {
	target := language.NormalizeCode(defaultTarget)
	if target == "" {
		target = "en"
	}
	normalized := make([]string, 0, len(enabled))
	for _, code := range enabled {
		if c := language.NormalizeCode(code); c != "" && language.IsSupported(c) {
			normalized = append(normalized, c)
		}
	}
	return &Static{settings: Settings{DefaultTargetLang: target, EnabledLanguages: normalized}}
}

func (s *Static) SiteSettings(ctx context.Context) (Settings, error) {
	out := s.settings
	out.EnabledLanguages = append([]string(nil), s.settings.EnabledLanguages...)
	return out, nil
}

// Allows reports whether code is enabled under these settings.
func (s Settings) Allows(code string) bool {
	if len(s.EnabledLanguages) == 0 {
		return true
	}
	code = language.NormalizeCode(code)
	for _, enabled := range s.EnabledLanguages {
		if strings.EqualFold(enabled, code) {
			return true
		}
	}
	return false
}
