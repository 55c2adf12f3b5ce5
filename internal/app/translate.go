package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"horse.fit/babel/internal/cli"
	"horse.fit/babel/internal/translation"
)

// cliIdentity is the rate limiter identity used by one-shot commands.
const cliIdentity = "cli"

func runTranslate(args []string) int {
	fs := flag.NewFlagSet("translate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", time.Minute, "Command timeout")
	to := fs.String("to", "", "Target language (ISO 639-1); defaults to DEFAULT_TARGET_LANG")
	from := fs.String("from", "auto", "Source language (ISO 639-1) or auto")
	hint := fs.String("context", "", "Optional context hint passed to LLM providers")
	pageURL := fs.String("url", "", "Translate the readable text of this web page instead of an argument")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	var text string
	if strings.TrimSpace(*pageURL) != "" {
		if fs.NArg() != 0 {
			fmt.Fprintln(os.Stderr, "translate accepts either --url or text, not both")
			return 2
		}
	} else {
		var err error
		if text, err = textArgument(fs); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
	}

	cfg, logger, err := loadConfig(envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Startup failed: %v\n", err)
		return 1
	}

	eng, err := buildEngine(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer eng.close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if strings.TrimSpace(*pageURL) != "" {
		return translatePage(ctx, eng, *pageURL, translation.Request{
			SourceLang: *from,
			TargetLang: *to,
			Context:    *hint,
		})
	}

	result, err := eng.orch.Translate(ctx, cliIdentity, translation.Request{
		Text:       text,
		SourceLang: *from,
		TargetLang: *to,
		Context:    *hint,
	})
	eng.orch.Wait()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Translation failed: %v\n", err)
		if translation.IsClientError(err) {
			return 2
		}
		return 1
	}

	if err := printJSON(result); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
		return 1
	}
	return 0
}

// textArgument joins the positional arguments, or reads stdin when there are
// none.
func textArgument(fs *flag.FlagSet) (string, error) {
	if fs.NArg() > 0 {
		text := strings.TrimSpace(strings.Join(fs.Args(), " "))
		if text == "" {
			return "", fmt.Errorf("%s requires non-empty text", fs.Name())
		}
		return text, nil
	}

	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "", fmt.Errorf("%s requires text as arguments or on stdin", fs.Name())
	}
	return text, nil
}
