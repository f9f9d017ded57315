package cmd

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"audio-moderation/config"
	"audio-moderation/constant"
	"audio-moderation/pkg/storage"
	"audio-moderation/repository"
	"audio-moderation/service"
)

func cleanup(cfg *config.Config) *cobra.Command {
	var hours int
	var status string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "delete jobs (and their artifacts) older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
			ctx := logger.WithContext(context.Background())

			repo, err := repository.NewRepo(cfg.DB)
			if err != nil {
				return err
			}
			store, err := storage.NewLocalStore(cfg.Media.Root)
			if err != nil {
				return err
			}

			// pipeline collaborators are not needed for sweeping
			svc := service.New(service.Dependencies{
				Repo:     repo,
				Store:    store,
				Archiver: storage.NewArchiver(cfg.Storage, cfg.ArchiveBucket),
			})

			report, err := svc.Sweep(ctx, time.Duration(hours)*time.Hour, constant.JobStatus(status), dryRun)
			if err != nil {
				return err
			}

			logger.Info().
				Int("matched", report.Matched).
				Int("deleted", report.Deleted).
				Int("file_failures", report.FileFailures).
				Bool("dry_run", dryRun).
				Msg("cleanup finished")
			return nil
		},
	}

	cmd.Flags().IntVar(&hours, "hours", 168, "delete jobs older than this many hours")
	cmd.Flags().StringVar(&status, "status", "", "only delete jobs with this status (PENDING, RUNNING, SUCCESS, FAILED)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report the matching count without deleting")
	return cmd
}
