package config

import (
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tyler180/fbref-backends/internal/fbref"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"LEAGUES", "REQUEST_DELAY", "WORKERS", "SINK", "POSITION_PRECEDENCE", "DEBUG", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	c, err := FromEnv()
	require.NoError(t, err)
	require.Len(t, c.Leagues, 4)
	require.Equal(t, 4*time.Second, c.RequestDelay)
	require.Equal(t, 3, c.RetryMax)
	require.Equal(t, 5*time.Second, c.RetryDelay)
	require.Equal(t, 1, c.Workers)
	require.Equal(t, SinkDynamo, c.Sink)
	require.Equal(t, fbref.DefaultPositionPrecedence, c.PositionSources)
	require.Equal(t, slog.LevelInfo, c.LogLevel)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("LEAGUES", "premier-league, Serie A")
	t.Setenv("REQUEST_DELAY", "3.5")
	t.Setenv("RETRY_DELAY", "250ms")
	t.Setenv("WORKERS", "2")
	t.Setenv("SINK", "sql")
	t.Setenv("DATABASE_URL", "file:test.db")
	t.Setenv("POSITION_PRECEDENCE", "bio,roster")
	t.Setenv("DEBUG", "1")

	c, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, []string{"Premier League", "Serie A"}, c.Leagues.Names())
	require.Equal(t, 3500*time.Millisecond, c.RequestDelay)
	require.Equal(t, 250*time.Millisecond, c.RetryDelay)
	require.Equal(t, 2, c.Workers)
	require.Equal(t, []fbref.PositionSource{fbref.SourceBio, fbref.SourceRoster}, c.PositionSources)
	require.Equal(t, slog.LevelDebug, c.LogLevel)
}

func TestFromEnv_Invalid(t *testing.T) {
	t.Setenv("LEAGUES", "MLS")
	_, err := FromEnv()
	require.ErrorContains(t, err, "unknown league")

	t.Setenv("LEAGUES", "")
	t.Setenv("SINK", "sql")
	t.Setenv("DATABASE_URL", "")
	_, err = FromEnv()
	require.ErrorContains(t, err, "DATABASE_URL")
}

func TestDefaultLeagues(t *testing.T) {
	pl, ok := DefaultLeagues().Lookup("premier league")
	require.True(t, ok)
	require.Equal(t, "https://fbref.com/en/comps/9/schedule/Premier-League-Scores-and-Fixtures", pl.ScheduleURL)
	require.Equal(t, "https://fbref.com/en/comps/9/stats/Premier-League-Stats", pl.RosterURL)

	for name, lg := range DefaultLeagues() {
		prefix := fmt.Sprintf("https://fbref.com/en/comps/%d/", lg.CompID)
		require.True(t, strings.HasPrefix(lg.RosterURL, prefix+"stats/"), "%s roster url %s", name, lg.RosterURL)
		require.True(t, strings.HasSuffix(lg.RosterURL, "-Stats"), name)
		require.True(t, strings.HasPrefix(lg.ScheduleURL, prefix+"schedule/"), name)
	}

	bl, ok := DefaultLeagues().Lookup("Bundesliga")
	require.True(t, ok)
	require.Equal(t, 20, bl.CompID)
}
