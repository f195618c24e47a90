package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"fetchgate/internal/fetch"
	"fetchgate/internal/security"
	"fetchgate/internal/types"
)

// newHTTPClient is replaced in tests.
var newHTTPClient = security.NewSafeHTTPClient

// fetchReport is the JSON printed by the fetch command.
type fetchReport struct {
	URL         string `json:"url"`
	Outcome     string `json:"outcome"`
	FinalURL    string `json:"finalUrl,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Bytes       int    `json:"bytes,omitempty"`
	StatusCode  int    `json:"statusCode,omitempty"`
	Error       string `json:"error,omitempty"`
	RejectedURL string `json:"rejectedUrl,omitempty"`
	ElapsedMS   int64  `json:"elapsedMs"`
	HTML        string `json:"html,omitempty"`
}

func newFetchCmd() *cobra.Command {
	var (
		pf      policyFlags
		opts    fetch.Options
		showRaw bool
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Fetch a URL through the redirect-safe fetcher",
		Long:  "Validate the URL, fetch it with the gateway's fetcher and print a JSON report of the outcome.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := args[0]
			out := cmd.OutOrStdout()

			policy, err := pf.policy()
			if err != nil {
				return fmt.Errorf("building policy: %w", err)
			}

			res := policy.Validate(raw)
			if !res.Valid {
				red := color.New(color.FgRed, color.Bold).SprintFunc()
				fmt.Fprintf(out, "%s  %s (%s)\n", red("REJECT"), raw, res.Error)
				return errRejected
			}

			client, err := newHTTPClient()
			if err != nil {
				return fmt.Errorf("building HTTP client: %w", err)
			}

			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(tint.NewHandler(cmd.ErrOrStderr(), &tint.Options{
				Level:      level,
				TimeFormat: time.Kitchen,
				NoColor:    color.NoColor,
			}))

			fetcher, err := fetch.New(client, policy, opts, logger)
			if err != nil {
				return fmt.Errorf("building fetcher: %w", err)
			}

			start := time.Now()
			outcome := fetcher.Fetch(cmd.Context(), res.ParsedURL)
			report := newFetchReport(raw, outcome, time.Since(start), showRaw)

			if err := writeJSON(out, report); err != nil {
				return err
			}
			if _, ok := outcome.(types.ValidationRejected); ok {
				return errRejected
			}
			return nil
		},
	}

	defaults := fetch.DefaultOptions()
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", defaults.Timeout, "whole-chain fetch timeout")
	cmd.Flags().IntVar(&opts.MaxRedirects, "max-redirects", defaults.MaxRedirects, "maximum redirects to follow")
	cmd.Flags().Int64Var(&opts.MaxBodyBytes, "max-bytes", defaults.MaxBodyBytes, "response body size ceiling")
	cmd.Flags().StringVar(&opts.UserAgent, "user-agent", defaults.UserAgent, "User-Agent header")
	cmd.Flags().BoolVar(&showRaw, "html", false, "include the decoded body in the report")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log each redirect hop to stderr")
	pf.register(cmd)
	return cmd
}

func newFetchReport(raw string, outcome types.FetchOutcome, elapsed time.Duration, withHTML bool) fetchReport {
	r := fetchReport{URL: raw, Outcome: outcome.Kind(), ElapsedMS: elapsed.Milliseconds()}
	switch o := outcome.(type) {
	case types.FetchSuccess:
		r.FinalURL = o.FinalURL
		r.ContentType = o.ContentType
		r.Bytes = len(o.HTML)
		if withHTML {
			r.HTML = o.HTML
		}
	case types.UpstreamFailure:
		r.FinalURL = o.FinalURL
		r.StatusCode = o.StatusCode
		r.Error = o.StatusText
	case types.TooLarge:
		r.FinalURL = o.FinalURL
		r.Bytes = int(o.SizeBytes)
		r.Error = "response too large"
	case types.ValidationRejected:
		r.Error = o.Reason
		r.RejectedURL = o.URL
	case types.NetworkError:
		r.Error = o.Message
	}
	return r
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
