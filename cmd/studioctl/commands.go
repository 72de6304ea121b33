package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL  string
	jsonOutput bool
)

// Run command flags
var (
	runTeam         string
	runProject      string
	runMode         string
	runQuality      string
	runInstructions string
	runWait         bool
	runTimeout      time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "studioctl",
	Short: "Command-line client for Agency Studio",
	Long: `studioctl starts content runs on an Agency Studio server and inspects
their progress and generated content.

Examples:
  studioctl teams
  studioctl run --team team-1 --mode phased --quality BOOST --wait
  studioctl status <run-id>
  studioctl content <run-id>`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a run for a team",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient(serverURL)
		ctx := cmd.Context()
		r, err := c.startRun(ctx, runTeam, map[string]string{
			"project_id":          runProject,
			"custom_instructions": runInstructions,
			"mode":                runMode,
			"quality":             runQuality,
		})
		if err != nil {
			return err
		}
		if !runWait {
			return printRun(cmd.OutOrStdout(), r)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Run %s started, waiting...\n", r.ID)
		waitCtx, cancel := context.WithTimeout(ctx, runTimeout)
		defer cancel()
		r, err = c.waitRun(waitCtx, r.ID, time.Second)
		if err != nil {
			return err
		}
		return printRun(cmd.OutOrStdout(), r)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show a run's status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newClient(serverURL).getRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printRun(cmd.OutOrStdout(), r)
	},
}

var contentCmd = &cobra.Command{
	Use:   "content <run-id>",
	Short: "List the content a run generated",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recs, err := newClient(serverURL).listContent(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(out, recs)
		}
		for _, rec := range recs {
			flags := []string{rec.Type}
			if rec.Publishable {
				flags = append(flags, "publishable")
			}
			if rec.Fallback {
				flags = append(flags, "fallback")
			}
			fmt.Fprintf(out, "== %s [%s] from %s\n%s\n\n", rec.Title, strings.Join(flags, ", "), rec.WorkerID, rec.RawOutput)
		}
		return nil
	},
}

var teamsCmd = &cobra.Command{
	Use:   "teams",
	Short: "List configured teams",
	RunE: func(cmd *cobra.Command, args []string) error {
		teams, err := newClient(serverURL).listTeams(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(out, teams)
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME")
		for _, t := range teams {
			fmt.Fprintf(tw, "%s\t%s\n", t.ID, t.Name)
		}
		return tw.Flush()
	},
}

func init() {
	defaultServer := os.Getenv("STUDIO_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer, "studio server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw JSON")

	runCmd.Flags().StringVar(&runTeam, "team", "", "team id (required)")
	runCmd.Flags().StringVar(&runProject, "project", "", "project id for brand and stored context")
	runCmd.Flags().StringVar(&runMode, "mode", "pipeline", "execution mode: pipeline or phased")
	runCmd.Flags().StringVar(&runQuality, "quality", "", "quality override: BOOST or ULTRA")
	runCmd.Flags().StringVar(&runInstructions, "instructions", "", "custom instructions for this run")
	runCmd.Flags().BoolVar(&runWait, "wait", false, "wait for the run to finish")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 15*time.Minute, "maximum time to wait with --wait")
	_ = runCmd.MarkFlagRequired("team")

	rootCmd.AddCommand(runCmd, statusCmd, contentCmd, teamsCmd)
}

func printRun(w io.Writer, r *run) error {
	if jsonOutput {
		return writeJSON(w, r)
	}
	fmt.Fprintf(w, "Run:      %s\n", r.ID)
	fmt.Fprintf(w, "Team:     %s\n", r.TeamID)
	fmt.Fprintf(w, "Mode:     %s\n", r.Mode)
	if r.Quality != "" {
		fmt.Fprintf(w, "Quality:  %s\n", r.Quality)
	}
	fmt.Fprintf(w, "Status:   %s\n", r.Status)
	if r.CurrentStage != "" {
		fmt.Fprintf(w, "Stage:    %s\n", r.CurrentStage)
	}
	fmt.Fprintf(w, "Steps:    %d completed\n", len(r.StepsCompleted))
	if len(r.GeneratedContentIDs) > 0 {
		fmt.Fprintf(w, "Content:  %d items\n", len(r.GeneratedContentIDs))
	}
	if r.Credits > 0 {
		fmt.Fprintf(w, "Credits:  %.2f\n", r.Credits)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", r.Error)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
