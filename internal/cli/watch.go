package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"route-pipeline/internal/orchestrator"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var (
	watchSchedule string
	watchNow      bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run collections on a cron schedule",
	Long: `Run collections on the standard five-field cron schedule from
settings.schedule, or --schedule. Runs that would overlap a run still in
progress are skipped.`,
	Example: `  routepipe watch --schedule "*/15 * * * *"
  routepipe watch --now`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchSchedule, "schedule", "", "cron schedule (default settings.schedule)")
	watchCmd.Flags().BoolVar(&watchNow, "now", false, "run once immediately before the first tick")
}

func runWatch(cmd *cobra.Command, args []string) error {
	schedule := watchSchedule
	if schedule == "" {
		schedule = cfg.Settings.Schedule
	}
	if schedule == "" {
		return errors.New("no schedule: set settings.schedule or pass --schedule")
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tick := func() {
		rep, err := orch.Run(ctx, orchestrator.RunOptions{})
		switch {
		case errors.Is(err, orchestrator.ErrRunInProgress):
			logger.Warn("scheduled run skipped, previous run still in progress")
		case err != nil:
			logger.Error("scheduled run failed", "error", err)
		default:
			logger.Info("scheduled run finished", "run_id", rep.RunID, "status", rep.Status,
				"accepted", rep.Summary.RecordsAccepted, "rejected", rep.Summary.RecordsRejected)
		}
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, tick); err != nil {
		return err
	}
	if watchNow {
		tick()
	}
	c.Start()
	logger.Info("watching", "schedule", schedule)

	<-ctx.Done()
	logger.Info("stopping scheduler")
	<-c.Stop().Done()
	return nil
}
