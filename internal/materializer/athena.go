package materializer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
)

type AthenaAPI interface {
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
	GetQueryResults(ctx context.Context, params *athena.GetQueryResultsInput, optFns ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error)
}

type Runner struct {
	Client    AthenaAPI
	Workgroup string
	Database  string
	OutputS3  string // s3://bucket/prefix/, optional when the workgroup sets one
	Poll      time.Duration
	Logger    *slog.Logger
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// ExecAndWait submits a query and waits for SUCCEEDED.
func (r *Runner) ExecAndWait(ctx context.Context, sql string) (string, error) {
	in := &athena.StartQueryExecutionInput{
		QueryString: aws.String(sql),
		QueryExecutionContext: &types.QueryExecutionContext{
			Database: aws.String(r.Database),
		},
		WorkGroup: aws.String(r.Workgroup),
	}
	if r.OutputS3 != "" {
		in.ResultConfiguration = &types.ResultConfiguration{OutputLocation: aws.String(r.OutputS3)}
	}
	start, err := r.Client.StartQueryExecution(ctx, in)
	if err != nil {
		return "", fmt.Errorf("start query: %w", err)
	}
	qid := aws.ToString(start.QueryExecutionId)
	r.logger().Debug("athena: started", "qid", qid)

	poll := r.Poll
	if poll <= 0 {
		poll = 800 * time.Millisecond
	}
	tick := time.NewTicker(poll)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return qid, ctx.Err()
		case <-tick.C:
		}
		ge, err := r.Client.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
			QueryExecutionId: aws.String(qid),
		})
		if err != nil {
			return qid, fmt.Errorf("get query execution: %w", err)
		}
		qe := ge.QueryExecution
		if qe == nil || qe.Status == nil {
			continue
		}
		switch qe.Status.State {
		case types.QueryExecutionStateSucceeded:
			// Stats are pointers; guard nils
			var scannedMB, durMs float64
			if st := qe.Statistics; st != nil {
				scannedMB = float64(aws.ToInt64(st.DataScannedInBytes)) / (1024 * 1024)
				durMs = float64(aws.ToInt64(st.EngineExecutionTimeInMillis))
			}
			r.logger().Info(fmt.Sprintf("athena: OK qid=%s scanned=%.1fMB time=%.0fms", qid, scannedMB, durMs))
			return qid, nil
		case types.QueryExecutionStateFailed, types.QueryExecutionStateCancelled:
			msg := "unknown error"
			if qe.Status.AthenaError != nil && qe.Status.AthenaError.ErrorMessage != nil {
				msg = aws.ToString(qe.Status.AthenaError.ErrorMessage)
			} else if qe.Status.StateChangeReason != nil {
				msg = aws.ToString(qe.Status.StateChangeReason)
			}
			return qid, fmt.Errorf("athena %s: %s", qe.Status.State, msg)
		default:
			// running/queued: continue
		}
	}
}

// FetchSingleInt runs a query that returns a single BIGINT (e.g., COUNT(*)).
func (r *Runner) FetchSingleInt(ctx context.Context, sql string) (int64, string, error) {
	qid, err := r.ExecAndWait(ctx, sql)
	if err != nil {
		return 0, qid, err
	}
	res, err := r.Client.GetQueryResults(ctx, &athena.GetQueryResultsInput{
		QueryExecutionId: aws.String(qid),
	})
	if err != nil {
		return 0, qid, fmt.Errorf("get results: %w", err)
	}
	// row 0 is header; row 1 is value
	if res.ResultSet == nil || len(res.ResultSet.Rows) < 2 || len(res.ResultSet.Rows[1].Data) < 1 {
		return 0, qid, errors.New("no rows returned")
	}
	var n int64
	if _, err := fmt.Sscan(aws.ToString(res.ResultSet.Rows[1].Data[0].VarCharValue), &n); err != nil {
		return 0, qid, fmt.Errorf("parse result: %w", err)
	}
	return n, qid, nil
}

// Result summarizes one materialization.
type Result struct {
	Table    string   `json:"table"`
	QueryIDs []string `json:"query_ids"`
	RowCount int64    `json:"row_count"`
}

// Materialize declares the source table, rebuilds the totals table and
// counts its rows. QA queries for league are logged but never fail the run.
func (r *Runner) Materialize(ctx context.Context, location, league string, cols []Column) (*Result, error) {
	db := r.Database
	res := &Result{Table: fmt.Sprintf("%s.%s", db, TableName)}

	// the source is recreated so columns first seen in this run are visible
	qid, err := r.ExecAndWait(ctx, BuildDropSource(db))
	if err != nil {
		return nil, fmt.Errorf("drop source: %w", err)
	}
	res.QueryIDs = append(res.QueryIDs, qid)

	qid, err = r.ExecAndWait(ctx, BuildCreateSource(db, location, cols))
	if err != nil {
		return nil, fmt.Errorf("create source: %w", err)
	}
	res.QueryIDs = append(res.QueryIDs, qid)

	// DROP (best effort)
	if qid, err := r.ExecAndWait(ctx, BuildDrop(db)); err != nil {
		r.logger().Warn("drop table failed", "err", err)
	} else {
		res.QueryIDs = append(res.QueryIDs, qid)
	}

	qid, err = r.ExecAndWait(ctx, BuildCTAS(db, cols))
	if err != nil {
		return nil, fmt.Errorf("create CTAS: %w", err)
	}
	res.QueryIDs = append(res.QueryIDs, qid)

	n, qid, err := r.FetchSingleInt(ctx, BuildCount(db, league))
	if err != nil {
		return nil, fmt.Errorf("count rows: %w", err)
	}
	res.QueryIDs = append(res.QueryIDs, qid)
	res.RowCount = n
	r.logger().Info("athena: count", "table", res.Table, "league", league, "rows", n)

	if league != "" {
		for _, q := range []string{BuildPerClubCounts(db, league), BuildSample(db, league)} {
			if qid, err := r.ExecAndWait(ctx, q); err == nil {
				res.QueryIDs = append(res.QueryIDs, qid)
			}
		}
	}
	return res, nil
}
