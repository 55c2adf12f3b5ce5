package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/babel/internal/cli"
	"horse.fit/babel/internal/translation"
)

func runDetect(args []string) int {
	fs := flag.NewFlagSet("detect", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	text, err := textArgument(fs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
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

	detection, err := eng.orch.DetectLanguage(ctx, cliIdentity, text)
	eng.orch.Wait()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Detection failed: %v\n", err)
		if errors.Is(err, translation.ErrUndetermined) || translation.IsClientError(err) {
			return 2
		}
		return 1
	}

	if err := printJSON(detection); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
		return 1
	}
	return 0
}
