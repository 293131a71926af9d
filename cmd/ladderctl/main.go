// Command ladderctl drives a running ladder service from the terminal.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/ladder/internal/client"
)

const defaultURL = "http://localhost:9080"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the global flags.
type options struct {
	url     string
	timeout time.Duration
	json    bool
}

func (o *options) client() *client.Client {
	return client.New(o.url, o.timeout)
}

func rootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "ladderctl",
		Short: "Move students along the reward ladder",
		Long: `ladderctl talks to a ladder service over HTTP.

Students advance one tier at a time: none → green → bronze → silver → gold.
Reaching gold puts the student on the weekly spotlight.

Examples:
  ladderctl sections
  ladderctl students 7A
  ladderctl advance 7A S1 green
  ladderctl spotlight --at 2026-10-21T09:00:00+07:00
  ladderctl purge 2026-10-19`,
		SilenceUsage: true,
	}

	env := os.Getenv("LADDER_URL")
	if env == "" {
		env = defaultURL
	}
	cmd.PersistentFlags().StringVar(&opts.url, "url", env, "Base URL of the service (env LADDER_URL)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", client.DefaultTimeout, "HTTP request timeout")
	cmd.PersistentFlags().BoolVar(&opts.json, "json", false, "Print raw JSON")

	cmd.AddCommand(
		sectionsCmd(opts),
		studentsCmd(opts),
		advanceCmd(opts),
		resetCmd(opts),
		reportCmd(opts),
		spotlightCmd(opts),
		purgeCmd(opts),
	)
	return cmd
}

func sectionsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sections",
		Short: "List sections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sections, err := opts.client().Sections(cmd.Context())
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), sections)
			}
			for _, s := range sections {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}
}

func studentsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "students <section>",
		Short: "List a section's students and tiers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			students, err := opts.client().Students(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), students)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tTIER")
			for _, s := range students {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, s.Name, s.Tier)
			}
			return tw.Flush()
		},
	}
}

func advanceCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "advance <section> <student> <tier>",
		Short: "Move a student to the next tier",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.client().Advance(cmd.Context(), args[0], args[1], args[2])
			if rej, ok := client.IsRejected(err); ok {
				if rej.Terminal {
					return fmt.Errorf("%s is already at the top tier", args[1])
				}
				return fmt.Errorf("forward only: next step for %s is %s", args[1], rej.Expected)
			}
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), res)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s → %s\n", res.Name, res.From, res.To)
			switch {
			case res.NewSpotlight:
				fmt.Fprintf(out, "%s is in this week's spotlight\n", res.Name)
			case res.Spotlight:
				fmt.Fprintf(out, "%s is already in this week's spotlight\n", res.Name)
			}
			return nil
		},
	}
}

func resetCmd(opts *options) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset <section>",
		Short: "Clear every tier in a section",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("reset %s clears every student's tier; pass --yes to confirm", args[0])
			}
			if err := opts.client().Reset(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s reset\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the reset")
	return cmd
}

func reportCmd(opts *options) *cobra.Command {
	var csvOut bool
	var output string
	cmd := &cobra.Command{
		Use:   "report <section>",
		Short: "Print or save a section progress report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			if csvOut {
				return saveCSV(cmd, c, args[0], output)
			}
			rep, err := c.Report(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), rep)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Section: %s\nTeacher: %s\nSubject: %s\nDate:    %s\n\n", rep.Section, rep.Teacher, rep.Subject, rep.Date)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RN\tSTUDENT\tLEVEL")
			for _, r := range rep.Rows {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", r.RN, r.Name, r.Level)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&csvOut, "csv", false, "Download as CSV")
	cmd.Flags().StringVarP(&output, "output", "o", "", "CSV file path (default: server-suggested name, - for stdout)")
	return cmd
}

func saveCSV(cmd *cobra.Command, c *client.Client, section, output string) error {
	if output == "-" {
		_, err := c.ReportCSV(cmd.Context(), section, cmd.OutOrStdout())
		return err
	}
	var buf bytes.Buffer
	name, err := c.ReportCSV(cmd.Context(), section, &buf)
	if err != nil {
		return err
	}
	if output == "" {
		output = name
	}
	if err := os.WriteFile(output, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", output)
	return nil
}

func spotlightCmd(opts *options) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "spotlight",
		Short: "Show the weekly spotlight",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var when time.Time
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at must be RFC3339: %w", err)
				}
				when = t
			}
			poster, err := opts.client().Spotlight(cmd.Context(), when)
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), poster)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Spotlight %s to %s\n", poster.From, poster.To)
			if len(poster.Entries) == 0 {
				fmt.Fprintln(out, "no gold yet this week")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tSECTION\tSTUDENT")
			for _, e := range poster.Entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", time.UnixMilli(e.Timestamp).Format("Mon 15:04"), e.Section, e.StudentName)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Any instant in the week (RFC3339, default now)")
	return cmd
}

func purgeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <week>",
		Short: "Delete a week's spotlight entries (week is its Monday, YYYY-MM-DD)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := opts.client().Purge(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries from week %s\n", n, args[0])
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
