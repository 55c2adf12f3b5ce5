package translation

import (
	"context"
	"strings"
	"unicode/utf8"

	"horse.fit/babel/internal/langdetect"
	"horse.fit/babel/internal/language"
	"horse.fit/babel/internal/provider"
)

// DetectLanguage identifies the language of text. Memoised results are
// returned first; otherwise providers are asked in priority order and the
// local lingua model answers last. An exhausted hard-fail budget skips the
// providers.
func (o *Orchestrator) DetectLanguage(ctx context.Context, identity, text string) (Detection, error) {
	if err := o.admit(identity); err != nil {
		return Detection{}, err
	}
	if strings.TrimSpace(text) == "" {
		return Detection{}, invalid("text", "text is required")
	}
	if n := utf8.RuneCountInString(text); n > o.opts.MaxTextLength {
		return Detection{}, invalid("text", "text is %d characters; the limit is %d", n, o.opts.MaxTextLength)
	}

	if o.detector != nil {
		if hit, ok := o.detector.Lookup(text); ok {
			return Detection{Language: hit.Language, Source: hit.Source, Confidence: hit.Confidence, Cached: true}, nil
		}
	}

	providers := o.providers
	if err := o.cost.CheckBudget(); err != nil {
		o.logger.Debug().Err(err).Msg("budget exhausted; detecting locally")
		providers = nil
	}

	for _, p := range providers {
		if ctx.Err() != nil {
			break
		}
		started := o.opts.Now()
		code, err := p.DetectLanguage(ctx, text)
		code = language.NormalizeCode(code)
		if err == nil && !language.IsSupported(code) {
			o.logger.Debug().Str("provider", p.Name()).Str("language", code).Msg("provider detected an unsupported language")
			code = ""
		}
		o.perf.RecordOutcome(p.Name(), o.opts.Now().Sub(started), err == nil)
		if err != nil || code == "" {
			if err != nil {
				o.logger.Debug().Err(err).Str("provider", p.Name()).Msg("provider detection failed")
			}
			continue
		}

		o.cost.TrackRequest(p.Name(), utf8.RuneCountInString(text), provider.ModelName(p))
		result := langdetect.Result{Language: code, Source: p.Name()}
		o.remember(text, result)
		return Detection{Language: result.Language, Source: result.Source}, nil
	}

	local, ok := o.detectLocal(text)
	if !ok {
		return Detection{}, ErrUndetermined
	}
	o.remember(text, local)
	return Detection{Language: local.Language, Source: local.Source, Confidence: local.Confidence}, nil
}

func (o *Orchestrator) detectLocal(text string) (langdetect.Result, bool) {
	if o.detector != nil {
		return o.detector.DetectLocal(text)
	}
	code, confidence := langdetect.Detect(text)
	if code == "" {
		return langdetect.Result{}, false
	}
	return langdetect.Result{Language: code, Source: langdetect.SourceLocal, Confidence: confidence}, true
}

func (o *Orchestrator) remember(text string, result langdetect.Result) {
	if o.detector != nil {
		o.detector.Remember(text, result)
	}
}
