package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/d28khalil/Bidnology-sub001/internal/model"
)

var (
	syncSweep bool
	syncAll   bool
)

var syncCmd = &cobra.Command{
	Use:   "sync [\"Platform | Source\"...]",
	Short: "Run one sync for the named sources",
	Long:  "Resolves each trigger name against the source registry and runs one incremental sync per source. With --all, syncs every enabled source instead.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if !syncAll && len(args) == 0 {
			return eris.New("name at least one source or pass --all")
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		runOpts := e.runOpts
		if cmd.Flags().Changed("sweep") {
			runOpts.Sweep = syncSweep
		}

		var sources []model.Source
		if syncAll {
			sources, err = e.store.ListSources(ctx, true)
			if err != nil {
				return eris.Wrap(err, "list sources")
			}
		} else {
			for _, trigger := range args {
				src, err := e.resolver.Resolve(ctx, trigger)
				if err != nil {
					return err
				}
				sources = append(sources, *src)
			}
		}
		if len(sources) == 0 {
			fmt.Fprintln(os.Stderr, "No sources to sync.")
			return nil
		}

		var failed []string
		for _, src := range sources {
			sum, err := e.orc.SyncSource(ctx, src, runOpts)
			if err != nil {
				zap.L().Error("sync failed", zap.String("source", src.TriggerName()), zap.Error(err))
				failed = append(failed, src.TriggerName())
				continue
			}
			notifySummary(ctx, sum)
			fmt.Printf("%s: %s (new=%d changed=%d unchanged=%d removed=%d errors=%d)\n",
				src.TriggerName(), sum.Status, sum.New, sum.Changed, sum.Unchanged, sum.Removed, sum.Errors)
			if sum.Status == model.RunStatusFailed {
				failed = append(failed, src.TriggerName())
			}
		}

		if len(failed) > 0 {
			return eris.Errorf("sync failed for: %s", strings.Join(failed, ", "))
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncSweep, "sweep", false, "tombstone listings missing from this run (default from config)")
	syncCmd.Flags().BoolVar(&syncAll, "all", false, "sync every enabled source")
	rootCmd.AddCommand(syncCmd)
}
