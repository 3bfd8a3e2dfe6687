package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/tyler180/fbref-backends/internal/config"
	"github.com/tyler180/fbref-backends/internal/export"
	"github.com/tyler180/fbref-backends/internal/fetch"
	"github.com/tyler180/fbref-backends/internal/materializer"
	"github.com/tyler180/fbref-backends/internal/retry"
	"github.com/tyler180/fbref-backends/internal/store"
)

// Build wires a Service from cfg. AWS config is loaded only when the sink,
// export bucket or Athena database needs it.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Service, error) {
	runID := uuid.New()
	logger = logger.With("run", runID.String())

	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg == nil {
			c, err := awsconfig.LoadDefaultConfig(ctx)
			if err != nil {
				return aws.Config{}, fmt.Errorf("aws config: %w", err)
			}
			awsCfg = &c
		}
		return *awsCfg, nil
	}

	cls := store.Classifier{}
	tables := store.Tables{Matches: cfg.MatchTable, Players: cfg.PlayerTable, Totals: cfg.TotalsTable, Fixtures: cfg.FixtureTable}

	var sink store.Sink
	switch cfg.Sink {
	case config.SinkDynamo:
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		sink = store.NewDynamoSink(dynamodb.NewFromConfig(c), tables, cls, logger)
	case config.SinkSQL:
		s, err := store.OpenSQL(ctx, cfg.DatabaseURL, tables, cls, logger)
		if err != nil {
			return nil, err
		}
		sink = s
	default:
		sink = store.NewMemorySink(cls, logger)
	}

	svc := &Service{
		Fetcher: fetch.New(fetch.Options{
			Delay:     cfg.RequestDelay,
			Timeout:   cfg.HTTPTimeout,
			UserAgent: cfg.UserAgent,
			Referer:   cfg.BaseURL + "/",
			Logger:    logger,
		}),
		Sink:       sink,
		BaseURL:    cfg.BaseURL,
		Retry:      retry.Policy{MaxRetries: cfg.RetryMax, Delay: cfg.RetryDelay, Logger: logger},
		Workers:    cfg.Workers,
		Precedence: cfg.PositionSources,
		Classifier: cls,
		ExportDir:  cfg.ExportDir,
		Logger:     logger,
		RunID:      runID,
	}
	if cfg.ExportBucket != "" {
		c, err := loadAWS()
		if err != nil {
			sink.Close()
			return nil, err
		}
		svc.Uploader = export.NewUploader(s3.NewFromConfig(c), cfg.ExportBucket, cfg.ExportPrefix)
	}
	if cfg.AthenaDB != "" {
		c, err := loadAWS()
		if err != nil {
			sink.Close()
			return nil, err
		}
		svc.Athena = &materializer.Runner{
			Client:    athena.NewFromConfig(c),
			Workgroup: cfg.AthenaWorkgroup,
			Database:  cfg.AthenaDB,
			OutputS3:  cfg.AthenaOutput,
			Logger:    logger,
		}
	}
	return svc, nil
}

// Dispatch runs one mode over the given leagues.
func (s *Service) Dispatch(ctx context.Context, leagues config.Leagues, e Event) (string, error) {
	mode := strings.TrimSpace(e.Mode)
	if mode == "" {
		mode = ModeMatches
	}
	names := leagues.Names()
	switch mode {
	case ModePlayers:
		total := 0
		for _, n := range names {
			res, err := s.ScrapePlayers(ctx, leagues[n])
			if err != nil {
				return "", err
			}
			total += res.Inserted + res.ClubUpdates
		}
		return fmt.Sprintf("OK players: wrote %d rows for %s", total, strings.Join(names, ", ")), nil

	case ModeMatches:
		gws, err := ParseGameweeks(e.Gameweeks)
		if err != nil {
			return "", err
		}
		total := 0
		for _, n := range names {
			results, err := s.ScrapeGameweeks(ctx, leagues[n], gws, e.Materialize)
			if err != nil {
				return "", err
			}
			for _, r := range results {
				total += r.Written.Inserted
			}
		}
		return fmt.Sprintf("OK matches: wrote %d rows for %s gw %s", total, strings.Join(names, ", "), e.Gameweeks), nil

	case ModePositions:
		total := 0
		for _, n := range names {
			res, err := s.UpdatePositions(ctx, n)
			if err != nil {
				return "", err
			}
			total += res.Updated
		}
		return fmt.Sprintf("OK positions: updated %d players for %s", total, strings.Join(names, ", ")), nil

	default:
		return "", fmt.Errorf("unknown mode %q", mode)
	}
}

// LambdaEntrypoint is the single Lambda handler exported from this package.
func LambdaEntrypoint(ctx context.Context, raw Raw) (string, error) {
	var e Event
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &e); err != nil {
			return "", fmt.Errorf("decode event: %w", err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	leagues := cfg.Leagues
	if e.Leagues != "" {
		if leagues, err = config.DefaultLeagues().Subset(splitCSV(e.Leagues)); err != nil {
			return "", err
		}
	}
	svc, err := Build(ctx, cfg, cfg.Logger())
	if err != nil {
		return "", err
	}
	defer svc.Close()
	return svc.Dispatch(ctx, leagues, e)
}
