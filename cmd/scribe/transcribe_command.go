package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"scribe/internal/logging"
	"scribe/internal/queue"
)

const transcribePollInterval = 500 * time.Millisecond

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var languageFlag string

	cmd := &cobra.Command{
		Use:   "transcribe <file>",
		Short: "Transcribe a local media file without the bot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			d, err := buildDaemon(cfg, logger, false)
			if err != nil {
				return err
			}
			defer d.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := d.Start(runCtx); err != nil {
				return err
			}
			defer d.Stop()

			item, err := d.AddFile(runCtx, args[0], languageFlag)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Queued %s (item %d)\n", item.SourceName, item.ID)

			lastStatus := item.Status
			ticker := time.NewTicker(transcribePollInterval)
			defer ticker.Stop()
			for !item.Terminal() {
				select {
				case <-runCtx.Done():
					return runCtx.Err()
				case <-ticker.C:
				}
				item, err = d.QueueItem(runCtx, item.ID)
				if err != nil {
					return err
				}
				if item.Status != lastStatus {
					fmt.Fprintf(out, "%s\n", item.Status)
					lastStatus = item.Status
				}
			}

			switch item.Status {
			case queue.StatusCompleted:
				fmt.Fprintf(out, "Transcript: %s\n", item.TranscriptPath)
				fmt.Fprintf(out, "Subtitles:  %s\n", item.SubtitlePath)
				return nil
			default:
				return fmt.Errorf("transcription %s: %s", item.Status, item.ErrorMessage)
			}
		},
	}

	cmd.Flags().StringVarP(&languageFlag, "language", "l", "", "Language hint (ISO 639 code or name)")
	return cmd
}
