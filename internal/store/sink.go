// Package store persists match records, player profiles, fixtures and
// running player totals. Every sink is idempotent: a repeated
// (playerID, matchID) write is logged and skipped.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tyler180/fbref-backends/internal/fbref"
)

// ErrNotFound marks an update against a missing key.
var ErrNotFound = errors.New("store: not found")

// WriteResult counts the outcome of a batch write.
type WriteResult struct {
	Inserted    int
	Duplicates  int
	ClubUpdates int
}

func (w *WriteResult) Add(o WriteResult) {
	w.Inserted += o.Inserted
	w.Duplicates += o.Duplicates
	w.ClubUpdates += o.ClubUpdates
}

func (w WriteResult) String() string {
	return fmt.Sprintf("inserted=%d duplicates=%d club_updates=%d", w.Inserted, w.Duplicates, w.ClubUpdates)
}

// Sink is the persistence contract of the pipeline.
type Sink interface {
	PutMatchRecords(ctx context.Context, league string, recs []fbref.MatchRecord) (WriteResult, error)
	PutPlayerProfiles(ctx context.Context, profiles []fbref.PlayerProfile) (WriteResult, error)
	PutFixtures(ctx context.Context, league string, matches []fbref.Match) error
	ListPlayerProfiles(ctx context.Context, league string) ([]fbref.PlayerProfile, error)
	UpdatePosition(ctx context.Context, playerID, pos string) error
	Close() error
}

func logDuplicate(logger *slog.Logger, rec fbref.MatchRecord) {
	logger.Warn(fmt.Sprintf("Duplicate entry found for player=%s match=%s. Skipping", rec.PlayerID, rec.MatchID),
		"player", rec.Player, "club", rec.Club)
}

func orDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
