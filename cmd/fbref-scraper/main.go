// Command fbref-scraper scrapes FBref league pages into the configured sink.
//
// Usage:
//
//	fbref-scraper players --league "Premier League"
//	fbref-scraper matches --league "Premier League" --gw 1-12 --materialize
//	fbref-scraper positions
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tyler180/fbref-backends/internal/app/scrape"
	"github.com/tyler180/fbref-backends/internal/config"
	"github.com/tyler180/fbref-backends/internal/metrics"
)

func main() {
	var leagues []string

	root := &cobra.Command{
		Use:          "fbref-scraper",
		Short:        "Scrape FBref match and player stats",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringSliceVar(&leagues, "league", nil, "League names (default: LEAGUES or all known)")

	root.AddCommand(&cobra.Command{
		Use:   "players",
		Short: "Upsert player profiles from the league stats pages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(leagues, scrape.Event{Mode: scrape.ModePlayers})
		},
	})
	root.AddCommand(matchesCmd(&leagues))
	root.AddCommand(&cobra.Command{
		Use:   "positions",
		Short: "Resolve and store the position of every stored player",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(leagues, scrape.Event{Mode: scrape.ModePositions})
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func matchesCmd(leagues *[]string) *cobra.Command {
	var gws string
	var materialize bool
	cmd := &cobra.Command{
		Use:   "matches",
		Short: "Scrape every played match of the given gameweeks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(*leagues, scrape.Event{Mode: scrape.ModeMatches, Gameweeks: gws, Materialize: materialize})
		},
	}
	cmd.Flags().StringVar(&gws, "gw", "1", "Gameweeks, e.g. 3 or 1-12 or 1,4,7")
	cmd.Flags().BoolVar(&materialize, "materialize", false, "Rebuild the Athena season totals afterwards")
	return cmd
}

func run(leagueNames []string, e scrape.Event) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	leagues := cfg.Leagues
	if len(leagueNames) > 0 {
		if leagues, err = config.DefaultLeagues().Subset(leagueNames); err != nil {
			return err
		}
	}
	logger := cfg.Logger()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
				logger.Error("metrics server", "error", err)
			}
		}()
	}

	svc, err := scrape.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	msg, err := svc.Dispatch(ctx, leagues, e)
	if err != nil {
		return err
	}
	fmt.Println(msg)
	return nil
}
