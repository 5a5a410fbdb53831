// Command heracli is the operator-facing entry point for a heraclitus
// repository: today, just enough to stand a fresh one up.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/heraclitus/heraclitus/repo"
)

func main() {
	repoURL := flag.String("repo", "", "repository URL (postgres://..., postgresql://..., or a debugfs directory path)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: heracli --repo <url> <init>")
		os.Exit(1)
	}
	command := flag.Arg(0)

	if *repoURL == "" {
		fmt.Fprintln(os.Stderr, "heracli: --repo is required")
		os.Exit(1)
	}

	if err := run(*repoURL, command); err != nil {
		fmt.Fprintf(os.Stderr, "heracli: %v\n", err)
		os.Exit(1)
	}
}

func run(repoURL, command string) error {
	switch command {
	case "init":
		return runInit(repoURL)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func runInit(repoURL string) error {
	ctx := context.Background()

	reg, err := repo.DefaultRegistry()
	if err != nil {
		return fmt.Errorf("failed to build datatype registry: %w", err)
	}

	r, err := repo.Open(ctx, repoURL, reg)
	if err != nil {
		return fmt.Errorf("failed to open repository: %w", err)
	}
	defer r.Close()

	if err := r.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}

	r.Logger.Info("repository initialized", "url", repoURL)
	return nil
}
