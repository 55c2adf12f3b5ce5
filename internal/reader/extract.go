package reader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	readability "codeberg.org/readeck/go-readability/v2"
)

const (
	DefaultFetchTimeout  = 12 * time.Second
	DefaultBodyByteLimit = 2 * 1024 * 1024

	defaultUserAgent = "babel-reader/1.0"
)

// Options controls how a page is fetched.
type Options struct {
	Timeout       time.Duration
	BodyByteLimit int64
	UserAgent     string
	HTTPClient    *http.Client
}

// Document is the readable content extracted from one page.
type Document struct {
	URL   string
	Title string
	// Text holds paragraphs separated by blank lines.
	Text string
}

// Paragraphs splits Text on blank lines.
func (d Document) Paragraphs() []string {
	if strings.TrimSpace(d.Text) == "" {
		return nil
	}
	return strings.Split(d.Text, "\n\n")
}

// Extract fetches pageURL and returns its readable text. Plain-text
// responses are cleaned and returned as-is.
func Extract(ctx context.Context, pageURL string, opts Options) (Document, error) {
	page := strings.TrimSpace(pageURL)
	if page == "" {
		return Document{}, fmt.Errorf("page URL is required")
	}
	parsed, err := url.Parse(page)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return Document{}, fmt.Errorf("page URL must be an absolute http(s) URL")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	bodyLimit := opts.BodyByteLimit
	if bodyLimit <= 0 {
		bodyLimit = DefaultBodyByteLimit
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, page, nil)
	if err != nil {
		return Document{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Document{}, fmt.Errorf("fetch status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, bodyLimit))
	if err != nil {
		return Document{}, fmt.Errorf("read body: %w", err)
	}

	doc := Document{URL: page}
	contentType := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Type")))
	if strings.HasPrefix(contentType, "text/plain") {
		doc.Text = CleanText(string(body))
	} else {
		article, err := readability.FromReader(bytes.NewReader(body), parsed)
		if err != nil {
			return Document{}, fmt.Errorf("readability parse: %w", err)
		}

		var rendered bytes.Buffer
		if err := article.RenderText(&rendered); err != nil {
			return Document{}, fmt.Errorf("render readability text: %w", err)
		}
		doc.Title = strings.TrimSpace(article.Title())
		doc.Text = CleanText(rendered.String())
		if doc.Text == "" {
			doc.Text = CleanText(article.Excerpt())
		}
	}

	if doc.Text == "" {
		return Document{}, fmt.Errorf("reader extracted empty content")
	}
	return doc, nil
}

// CleanText normalizes line endings, collapses in-line whitespace and joins
// non-empty lines as paragraphs.
func CleanText(raw string) string {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	lines := strings.Split(normalized, "\n")
	paragraphs := make([]string, 0, len(lines))
	for _, line := range lines {
		clean := strings.Join(strings.Fields(line), " ")
		if clean == "" {
			continue
		}
		paragraphs = append(paragraphs, clean)
	}
	return strings.Join(paragraphs, "\n\n")
}

// Chunk packs paragraphs into pieces of at most maxRunes runes, joining short
// neighbours and splitting oversized paragraphs on word boundaries.
func Chunk(paragraphs []string, maxRunes int) []string {
	if maxRunes < 1 {
		return append([]string(nil), paragraphs...)
	}

	var (
		chunks  []string
		current strings.Builder
		size    int
	)
	flush := func() {
		if size > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			size = 0
		}
	}
	add := func(piece string) {
		n := utf8.RuneCountInString(piece)
		sep := 0
		if size > 0 {
			sep = 2
		}
		if size+sep+n > maxRunes {
			flush()
			sep = 0
		}
		if sep > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(piece)
		size += sep + n
	}

	for _, paragraph := range paragraphs {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		if utf8.RuneCountInString(paragraph) <= maxRunes {
			add(paragraph)
			continue
		}
		flush()
		chunks = append(chunks, splitWords(paragraph, maxRunes)...)
	}
	flush()
	return chunks
}

// splitWords cuts text on spaces into pieces of at most maxRunes runes. A
// single word longer than maxRunes is cut mid-word.
func splitWords(text string, maxRunes int) []string {
	var (
		pieces []string
		line   []rune
	)
	for _, word := range strings.Fields(text) {
		runes := []rune(word)
		for len(runes) > maxRunes {
			if len(line) > 0 {
				pieces = append(pieces, string(line))
				line = line[:0]
			}
			pieces = append(pieces, string(runes[:maxRunes]))
			runes = runes[maxRunes:]
		}
		switch {
		case len(line) == 0:
			line = append(line, runes...)
		case len(line)+1+len(runes) <= maxRunes:
			line = append(line, ' ')
			line = append(line, runes...)
		default:
			pieces = append(pieces, string(line))
			line = append(line[:0], runes...)
		}
	}
	if len(line) > 0 {
		pieces = append(pieces, string(line))
	}
	return pieces
}
