package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"qflasher/internal/adapter/flashercli"
	"qflasher/internal/domain"
	"qflasher/internal/infra/config"
	"qflasher/internal/infra/logger"
)

func runVersions(args []string) error {
	asJSON := false
	for _, arg := range args {
		switch arg {
		case "--json":
			asJSON = true
		default:
			return fmt.Errorf("unknown argument: %s", arg)
		}
	}

	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := newToolClient(cfg, nil, log)
	list, err := client.ListVersions(ctx)
	if err != nil {
		return fmt.Errorf("%s", domain.UserMessage(err))
	}
	return writeVersions(os.Stdout, list, asJSON)
}

// writeVersions prints the list as indented JSON or as a table, newest
// first, with the latest image marked.
func writeVersions(w io.Writer, list *domain.VersionList, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	newest := flashercli.Newest(list)
	if newest == nil {
		_, err := fmt.Fprintln(w, "No images available.")
		return err
	}
	fmt.Fprintf(w, "Latest: %s\n", newest.Version)

	releases := flashercli.SortedReleases(list)
	if len(releases) == 0 {
		releases = []domain.VersionInfo{*newest}
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("", "VERSION", "SHA256", "URL")
	for _, r := range releases {
		mark := ""
		if r.Version == newest.Version {
			mark = "*"
		}
		t.Row(mark, r.Version, shortHash(r.SHA256), r.URL)
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
