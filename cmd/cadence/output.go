package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/CleoKiama/cadence/internal/store"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// addQueryFlags registers --format and --as-of.
func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().String("format", formatText, "Output format: text, json or yaml")
	cmd.Flags().String("as-of", "", `Reference day instead of today ("2025-03-19", "yesterday", "last friday")`)
}

func outputFormat(cmd *cobra.Command) string {
	format, _ := cmd.Flags().GetString("format")
	format = strings.ToLower(format)
	switch format {
	case formatText, formatJSON, formatYAML:
		return format
	default:
		fatalf("unknown format %q (want text, json or yaml)", format)
		return ""
	}
}

// emit writes v as JSON or YAML, or calls text for the text format.
func emit(format string, v any, text func()) {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			fatalf("encoding JSON: %v", err)
		}
	case formatYAML:
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			fatalf("encoding YAML: %v", err)
		}
		_ = enc.Close()
	default:
		text()
	}
}

var dateParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseAsOf resolves a reference day: a YYYY-MM-DD date or a natural
// language expression relative to now.
func parseAsOf(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return now, nil
	}
	if day, err := store.ParseDate(s); err == nil {
		return day, nil
	}

	r, err := dateParser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("unrecognized date %q", s)
	}
	return r.Time, nil
}

// clockFlag returns the engine clock for --as-of.
func clockFlag(cmd *cobra.Command) func() time.Time {
	raw, _ := cmd.Flags().GetString("as-of")
	asOf, err := parseAsOf(raw, time.Now())
	if err != nil {
		fatalf("--as-of: %v", err)
	}
	if raw == "" {
		return time.Now
	}
	return func() time.Time { return asOf }
}

// parseMonth parses YYYY-MM.
func parseMonth(s string) (int, time.Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid month %q (want YYYY-MM)", s)
	}
	return t.Year(), t.Month(), nil
}
