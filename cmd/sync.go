package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/naka-gawa/github-trailer/internal/config"
	"github.com/naka-gawa/github-trailer/internal/events"
	"github.com/naka-gawa/github-trailer/internal/usecase"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Runs the periodic refresh loop until interrupted",
	Long: `Runs the periodic refresh loop until SIGINT or SIGTERM.
SIGHUP reloads the settings from the config file and SIGUSR1 forces a
refresh; both make the next refresh start right away.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a := mustApp(ctx, cmd)
		defer a.Close()

		sub, cancel := a.bus.Subscribe(16)
		defer cancel()
		go func() {
			for ev := range sub {
				a.logger.Debug("event", "kind", ev.Kind.String(), "success", ev.Success)
				if ev.Kind == events.PreferencesChanged {
					a.refresher.StartRefreshIfDue(ctx)
				}
			}
		}()

		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP, syscall.SIGUSR1)
		defer signal.Stop(hup)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case sig := <-hup:
					if sig == syscall.SIGUSR1 {
						a.library.MarkPreferencesDirty()
						continue
					}
					reloadSettings(cmd, a)
				}
			}
		}()

		a.logger.Info("sync loop started", "period", a.prefs.Settings().Period)
		if err := a.refresher.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Sync loop failed: %v\n", err)
			os.Exit(1)
		}
		if err := a.library.Save(context.WithoutCancel(ctx)); err != nil {
			a.logger.Error("failed to save on shutdown", "error", err)
		}
		a.logger.Info("sync loop stopped")
	},
}

// reloadSettings re-reads the config file and applies its settings. Server
// and repo changes need a restart.
func reloadSettings(cmd *cobra.Command, a *app) {
	cfg, err := config.Load(configPath(cmd))
	if err != nil {
		a.logger.Error("failed to reload config, keeping current settings", "error", err)
		return
	}
	a.library.ApplySettings(cfg.DomainSettings())
	a.logger.Info("settings reloaded", "period", cfg.Settings.Period)
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Runs a single refresh cycle and reports whether new data arrived",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a := mustApp(ctx, cmd)
		defer a.Close()

		result := make(chan usecase.FetchResult, 1)
		a.refresher.FetchInBackground(ctx, func(r usecase.FetchResult) { result <- r })
		r := <-result
		a.refresher.Wait()

		fmt.Println(r.String())
		if r == usecase.Failed {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(refreshCmd)
}
