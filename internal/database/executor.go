// sta-go - OGC SensorThings API Server for PostgreSQL/PostGIS
// Copyright 2026 The sta-go authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/istsos/sta-go

package database

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/istsos/sta-go/internal/config"
	"github.com/istsos/sta-go/internal/logging"
	"github.com/istsos/sta-go/internal/query/compiler"
)

// Executor runs compiled statements. Collections stream through a server-side
// cursor fetched in PartitionChunk slices, so the response size never depends
// on available memory.
type Executor struct {
	db        *DB
	chunk     int
	countMode string
	threshold int
}

// NewExecutor returns an Executor over the read pool.
func NewExecutor(db *DB, q *config.QueryConfig) *Executor {
	return &Executor{
		db:        db,
		chunk:     q.PartitionChunk,
		countMode: q.CountMode,
		threshold: q.CountEstimateThreshold,
	}
}

// Single runs a single-resource statement and returns the JSON (or, for
// $value paths, the raw) bytes. A missing row is a NotFoundError; a NULL
// $value returns nil bytes.
func (e *Executor) Single(ctx context.Context, stmt *compiler.Statement) ([]byte, error) {
	var text *string
	err := e.db.read.QueryRow(ctx, stmt.SQL, stmt.Args...).Scan(&text)
	if err == pgx.ErrNoRows {
		return nil, &NotFoundError{Entity: stmt.Entity.Name}
	}
	if err != nil {
		return nil, fmt.Errorf("query single %s: %w", stmt.Entity.Name, err)
	}
	if text == nil {
		return nil, nil
	}
	return []byte(*text), nil
}

// Stream runs a collection statement and writes the full response envelope
// to w. The statement fetches Top+1 rows; the probe row is dropped and turns
// into @iot.nextLink.
func (e *Executor) Stream(ctx context.Context, stmt *compiler.Statement, w io.Writer) error {
	tx, err := e.db.read.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("begin read transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil && err != pgx.ErrTxClosed {
			logging.Warn().Err(err).Msg("Rollback of streaming transaction failed")
		}
	}()

	ew := &envelopeWriter{w: w}
	ew.open()

	if stmt.Count {
		count, err := e.resolveCount(ctx, tx, stmt)
		if err != nil {
			return err
		}
		ew.key("@iot.count")
		ew.raw(strconv.FormatInt(count, 10))
	}
	if stmt.AsOf != nil {
		ew.key("@iot.as_of")
		ew.str(stmt.AsOf.UTC().Format("2006-01-02T15:04:05Z"))
	}

	if _, err := tx.Exec(ctx, "DECLARE sta_cur NO SCROLL CURSOR FOR "+stmt.SQL, stmt.Args...); err != nil {
		return fmt.Errorf("declare cursor: %w", err)
	}

	ew.key("value")
	ew.raw("[")

	var hasNext bool
	if stmt.DataArray {
		hasNext, err = e.streamDataArray(ctx, tx, stmt, ew)
	} else {
		hasNext, err = e.streamEntities(ctx, tx, stmt, ew)
	}
	if err != nil {
		return err
	}
	ew.raw("]")

	if hasNext && stmt.NextLink != "" {
		ew.key("@iot.nextLink")
		ew.str(stmt.NextLink)
	}
	ew.close()
	return ew.err
}

// streamEntities pumps single-column rows out of the cursor, emitting at most
// stmt.Top and reporting whether the probe row showed up.
func (e *Executor) streamEntities(ctx context.Context, tx pgx.Tx, stmt *compiler.Statement, ew *envelopeWriter) (bool, error) {
	emitted := 0
	fetch := fmt.Sprintf("FETCH FORWARD %d FROM sta_cur", e.chunk)
	for {
		rows, err := tx.Query(ctx, fetch)
		if err != nil {
			return false, fmt.Errorf("fetch cursor chunk: %w", err)
		}
		n := 0
		for rows.Next() {
			n++
			if emitted >= stmt.Top {
				// the probe row: a next page exists
				rows.Close()
				return true, nil
			}
			var entity string
			if err := rows.Scan(&entity); err != nil {
				rows.Close()
				return false, fmt.Errorf("scan entity row: %w", err)
			}
			ew.element(entity)
			emitted++
		}
		if err := rows.Err(); err != nil {
			return false, fmt.Errorf("read cursor chunk: %w", err)
		}
		if n < e.chunk {
			return false, nil
		}
	}
}

// streamDataArray pumps dataArray group envelopes. The second column carries
// the fetched observation count including the probe row, so a count beyond
// Top means a next page exists.
func (e *Executor) streamDataArray(ctx context.Context, tx pgx.Tx, stmt *compiler.Statement, ew *envelopeWriter) (bool, error) {
	var total int64
	fetch := fmt.Sprintf("FETCH FORWARD %d FROM sta_cur", e.chunk)
	for {
		rows, err := tx.Query(ctx, fetch)
		if err != nil {
			return false, fmt.Errorf("fetch cursor chunk: %w", err)
		}
		n := 0
		for rows.Next() {
			n++
			var envelope string
			if err := rows.Scan(&envelope, &total); err != nil {
				rows.Close()
				return false, fmt.Errorf("scan dataArray row: %w", err)
			}
			ew.element(envelope)
		}
		if err := rows.Err(); err != nil {
			return false, fmt.Errorf("read cursor chunk: %w", err)
		}
		if n < e.chunk {
			break
		}
	}
	return total > int64(stmt.Top), nil
}

// resolveCount answers $count=true per the configured mode.
func (e *Executor) resolveCount(ctx context.Context, tx pgx.Tx, stmt *compiler.Statement) (int64, error) {
	switch e.countMode {
	case config.CountModeLimitEstimate:
		count, err := e.exactCount(ctx, tx, stmt)
		if err != nil {
			return 0, err
		}
		if count < int64(e.threshold) {
			return count, nil
		}
		estimate, err := e.estimateCount(ctx, tx, stmt)
		if err != nil {
			return 0, err
		}
		if estimate > count {
			return estimate, nil
		}
		return count, nil

	case config.CountModeEstimateLimit:
		estimate, err := e.estimateCount(ctx, tx, stmt)
		if err != nil {
			return 0, err
		}
		if estimate >= int64(e.threshold) {
			return estimate, nil
		}
		return e.exactCount(ctx, tx, stmt)

	default:
		return e.exactCount(ctx, tx, stmt)
	}
}

func (e *Executor) exactCount(ctx context.Context, tx pgx.Tx, stmt *compiler.Statement) (int64, error) {
	var count int64
	if err := tx.QueryRow(ctx, stmt.CountSQL, stmt.CountArgs...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count query: %w", err)
	}
	return count, nil
}

// estimateCount reads the planner's row estimate from EXPLAIN output.
func (e *Executor) estimateCount(ctx context.Context, tx pgx.Tx, stmt *compiler.Statement) (int64, error) {
	var doc []byte
	if err := tx.QueryRow(ctx, stmt.EstimateSQL, stmt.EstimateArgs...).Scan(&doc); err != nil {
		return 0, fmt.Errorf("estimate query: %w", err)
	}
	var plans []struct {
		Plan struct {
			PlanRows float64 `json:"Plan Rows"`
		} `json:"Plan"`
	}
	if err := json.Unmarshal(doc, &plans); err != nil {
		return 0, fmt.Errorf("parse planner estimate: %w", err)
	}
	if len(plans) == 0 {
		return 0, fmt.Errorf("planner returned no plan")
	}
	return int64(plans[0].Plan.PlanRows), nil
}

// envelopeWriter assembles the top-level response object, tracking comma
// placement and the first write error. JSON values stream through verbatim.
type envelopeWriter struct {
	w        io.Writer
	err      error
	needsSep bool
	elements int
}

func (ew *envelopeWriter) write(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = io.WriteString(ew.w, s)
}

func (ew *envelopeWriter) open() { ew.write("{") }

func (ew *envelopeWriter) close() { ew.write("}") }

func (ew *envelopeWriter) key(name string) {
	if ew.needsSep {
		ew.write(",")
	}
	ew.write(`"` + name + `":`)
	ew.needsSep = true
}

func (ew *envelopeWriter) raw(s string) {
	ew.write(s)
}

func (ew *envelopeWriter) str(s string) {
	b, _ := json.Marshal(s)
	ew.write(string(b))
}

func (ew *envelopeWriter) element(s string) {
	if ew.elements > 0 {
		ew.write(",")
	}
	ew.write(s)
	ew.elements++
}
