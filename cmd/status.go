package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/repo-harvester/internal/config"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the cursor and progress toward the limit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.GetConfig()
			cursor, err := appInstance.CheckpointStore().Read()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			remaining := remainingIterations(cursor, cfg.Crawl.IDLimit, cfg.Crawl.IDSkip)
			fmt.Fprintf(out, "checkpoint:  %s\n", cfg.Crawl.CheckpointPath)
			fmt.Fprintf(out, "cursor:      %s of %s (%.2f%%)\n",
				humanize.Comma(cursor), humanize.Comma(cfg.Crawl.IDLimit), percent(cursor, cfg.Crawl.IDLimit))
			fmt.Fprintf(out, "remaining:   %s iterations\n", humanize.Comma(remaining))
			if remaining > 0 {
				now := time.Now()
				eta := now.Add(minimumDuration(cfg, remaining))
				fmt.Fprintf(out, "finishes in: at least %s\n", strings.TrimSpace(humanize.RelTime(now, eta, "", "")))
			}
			if info, err := os.Stat(cfg.Crawl.AuditLog); err == nil {
				fmt.Fprintf(out, "audit log:   %s (%s, updated %s)\n",
					cfg.Crawl.AuditLog, humanize.Bytes(uint64(info.Size())), humanize.Time(info.ModTime()))
			}
			return nil
		},
	}
	cmd.Flags().String("checkpoint", "", "cursor file path")
	return cmd
}

func remainingIterations(cursor, limit, skip int64) int64 {
	if cursor >= limit || skip <= 0 {
		return 0
	}
	return (limit - cursor + skip - 1) / skip
}

func percent(cursor, limit int64) float64 {
	if limit <= 0 {
		return 100
	}
	p := float64(cursor) / float64(limit) * 100
	if p > 100 {
		return 100
	}
	return p
}

// minimumDuration is the lower bound set by the iteration delay and the
// hourly batch limit; clone time comes on top.
func minimumDuration(cfg config.Config, remaining int64) time.Duration {
	byDelay := time.Duration(remaining) * cfg.Crawl.IterationDelay
	var byWindow time.Duration
	if cfg.Crawl.RateBatch > 0 {
		byWindow = time.Duration(remaining/int64(cfg.Crawl.RateBatch)) * cfg.Crawl.RateWindow
	}
	if byWindow > byDelay {
		return byWindow
	}
	return byDelay
}
