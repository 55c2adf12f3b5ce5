package app

import (
	"context"
	"fmt"
	"os"

	"horse.fit/babel/internal/reader"
	"horse.fit/babel/internal/translation"
)

type pageTranslation struct {
	URL        string                  `json:"url"`
	Title      string                  `json:"title,omitempty"`
	TargetLang string                  `json:"target_lang"`
	Chunks     []translation.BatchItem `json:"chunks"`
	Succeeded  int                     `json:"succeeded"`
	Failed     int                     `json:"failed"`
}

// translatePage extracts the readable text of pageURL and translates it in
// chunks that respect the text length and batch size limits.
func translatePage(ctx context.Context, eng *engine, pageURL string, template translation.Request) int {
	doc, err := reader.Extract(ctx, pageURL, reader.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read page: %v\n", err)
		return 1
	}

	chunks := reader.Chunk(doc.Paragraphs(), eng.cfg.MaxTextLength)
	eng.logger.Info().
		Str("url", doc.URL).
		Int("chunks", len(chunks)).
		Msg("translating page")

	out, err := translateChunks(ctx, eng.orch, chunks, template, eng.cfg.BatchMaxItems)
	eng.orch.Wait()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Translation failed: %v\n", err)
		if translation.IsClientError(err) {
			return 2
		}
		return 1
	}
	out.URL = doc.URL
	out.Title = doc.Title

	if err := printJSON(out); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
		return 1
	}
	if out.Failed > 0 {
		return 1
	}
	return 0
}

type batchTranslator interface {
	TranslateBatch(ctx context.Context, identity string, reqs []translation.Request) (translation.BatchResult, error)
}

func translateChunks(ctx context.Context, orch batchTranslator, chunks []string, template translation.Request, batchSize int) (pageTranslation, error) {
	if batchSize < 1 {
		batchSize = translation.DefaultBatchMaxItems
	}

	out := pageTranslation{
		TargetLang: template.TargetLang,
		Chunks:     make([]translation.BatchItem, 0, len(chunks)),
	}
	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))

		reqs := make([]translation.Request, 0, end-start)
		for _, chunk := range chunks[start:end] {
			req := template
			req.Text = chunk
			reqs = append(reqs, req)
		}

		result, err := orch.TranslateBatch(ctx, cliIdentity, reqs)
		if err != nil {
			return pageTranslation{}, err
		}
		for _, item := range result.Items {
			item.Index += start
			out.Chunks = append(out.Chunks, item)
		}
		out.Succeeded += result.Succeeded
		out.Failed += result.Failed
	}
	return out, nil
}
