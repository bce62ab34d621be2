// Package journal records every live event the dispatcher consumes in DuckDB and exports the
// session to parquet.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-connector/internal/types"
	"github.com/rxtech-lab/argo-connector/pkg/errors"
	"github.com/shopspring/decimal"
)

var columns = []string{
	"sequence", "venue", "symbol", "kind", "time", "reason",
	"order_id", "exchange_order_id", "order_status", "side", "price", "quantity", "executed_quantity",
	"trade_id", "fill_price", "fill_quantity", "fee", "is_maker",
	"error_origin", "error_code", "best_bid", "best_ask",
}

// Record is one journaled event, flattened. Prices and quantities are stored as decimal text so
// they survive a parquet round trip exactly.
type Record struct {
	Sequence         uint64
	Venue            string
	Symbol           string
	Kind             types.EventKind
	Time             time.Time
	Reason           string
	OrderID          string
	ExchangeOrderID  string
	OrderStatus      types.OrderStatus
	Side             types.Side
	Price            decimal.Decimal
	Quantity         decimal.Decimal
	ExecutedQuantity decimal.Decimal
	TradeID          string
	FillPrice        decimal.Decimal
	FillQuantity     decimal.Decimal
	Fee              decimal.Decimal
	IsMaker          bool
	ErrorOrigin      types.ErrorOrigin
	ErrorCode        int
	BestBid          decimal.Decimal
	BestAsk          decimal.Decimal
}

// EventJournal stores events in an in-memory DuckDB table and exports them to a parquet file.
type EventJournal struct {
	db         *sql.DB
	sq         squirrel.StatementBuilderType
	outputPath string
	mu         sync.Mutex
}

// NewEventJournal creates a journal exporting to outputPath. An empty path keeps the journal in
// memory only.
func NewEventJournal(outputPath string) *EventJournal {
	return &EventJournal{
		db:         nil,
		sq:         squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		outputPath: outputPath,
		mu:         sync.Mutex{},
	}
}

// Initialize opens DuckDB, creates the events table and reloads an existing parquet export.
func (j *EventJournal) Initialize() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.outputPath != "" {
		if err := os.MkdirAll(filepath.Dir(j.outputPath), 0755); err != nil {
			return errors.Wrap(errors.ErrCodeJournalWriteFailed, "failed to create journal directory", err)
		}
	}

	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return errors.Wrap(errors.ErrCodeJournalWriteFailed, "failed to open DuckDB connection", err)
	}

	j.db = db

	_, err = j.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			sequence UBIGINT,
			venue TEXT,
			symbol TEXT,
			kind TEXT,
			time TIMESTAMP,
			reason TEXT,
			order_id TEXT,
			exchange_order_id TEXT,
			order_status TEXT,
			side TEXT,
			price VARCHAR,
			quantity VARCHAR,
			executed_quantity VARCHAR,
			trade_id TEXT,
			fill_price VARCHAR,
			fill_quantity VARCHAR,
			fee VARCHAR,
			is_maker BOOLEAN,
			error_origin TEXT,
			error_code INTEGER,
			best_bid VARCHAR,
			best_ask VARCHAR
		)
	`)
	if err != nil {
		j.db.Close()
		j.db = nil

		return errors.Wrap(errors.ErrCodeJournalWriteFailed, "failed to create events table", err)
	}

	if j.outputPath == "" {
		return nil
	}

	if _, err := os.Stat(j.outputPath); err == nil {
		_, err = j.db.Exec(fmt.Sprintf(`INSERT INTO events SELECT * FROM read_parquet('%s')`, j.outputPath))
		if err != nil {
			j.db.Close()
			j.db = nil

			return errors.Wrapf(errors.ErrCodeJournalWriteFailed, err, "failed to reload journal %s", j.outputPath)
		}
	}

	return nil
}

// Write appends one event.
func (j *EventJournal) Write(event types.LiveEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return errors.New(errors.ErrCodeJournalWriteFailed, "journal not initialized")
	}

	record := toRecord(event)

	_, err := j.sq.
		Insert("events").
		Columns(columns...).
		Values(
			record.Sequence, record.Venue, record.Symbol, string(record.Kind), record.Time, record.Reason,
			record.OrderID, record.ExchangeOrderID, string(record.OrderStatus), string(record.Side),
			record.Price.String(), record.Quantity.String(), record.ExecutedQuantity.String(),
			record.TradeID, record.FillPrice.String(), record.FillQuantity.String(), record.Fee.String(), record.IsMaker,
			string(record.ErrorOrigin), record.ErrorCode, record.BestBid.String(), record.BestAsk.String(),
		).
		RunWith(j.db).
		Exec()
	if err != nil {
		return errors.Wrap(errors.ErrCodeJournalWriteFailed, "failed to insert event", err)
	}

	return nil
}

func toRecord(event types.LiveEvent) Record {
	record := Record{ //nolint:exhaustruct
		Sequence: event.Sequence,
		Venue:    event.Venue,
		Symbol:   event.Symbol,
		Kind:     event.Kind,
		Time:     event.Time,
		Reason:   event.Reason,
	}

	if event.Order.IsSome() {
		order := event.Order.Unwrap()
		record.OrderID = order.ID
		record.ExchangeOrderID = order.ExchangeOrderID
		record.OrderStatus = order.Status
		record.Side = order.Side
		record.Price = order.Price
		record.Quantity = order.Quantity
		record.ExecutedQuantity = order.ExecutedQuantity
	}

	if event.Fill.IsSome() {
		fill := event.Fill.Unwrap()
		record.TradeID = fill.TradeID
		record.FillPrice = fill.Price
		record.FillQuantity = fill.Quantity
		record.Fee = fill.Fee
		record.IsMaker = fill.IsMaker
	}

	if event.Error.IsSome() {
		failure := event.Error.Unwrap()
		record.ErrorOrigin = failure.Origin
		record.ErrorCode = failure.Code
	}

	if event.MarketData.IsSome() {
		depth := event.MarketData.Unwrap()
		record.BestBid = depth.BestBid
		record.BestAsk = depth.BestAsk
	}

	return record
}

// EventsForOrder returns the journaled events of one order in the order they were written.
func (j *EventJournal) EventsForOrder(orderID string) ([]Record, error) {
	return j.query(squirrel.Eq{"order_id": orderID})
}

// EventsForVenue returns the journaled events of one venue in sequence order.
func (j *EventJournal) EventsForVenue(venue string) ([]Record, error) {
	return j.query(squirrel.Eq{"venue": venue})
}

func (j *EventJournal) query(where squirrel.Sqlizer) ([]Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return nil, errors.New(errors.ErrCodeJournalQueryFailed, "journal not initialized")
	}

	rows, err := j.sq.
		Select(columns...).
		From("events").
		Where(where).
		OrderBy("venue ASC", "sequence ASC").
		RunWith(j.db).
		Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeJournalQueryFailed, "failed to query events", err)
	}
	defer rows.Close()

	var records []Record

	for rows.Next() {
		var (
			record      Record
			kind        string
			status      string
			side        string
			errorOrigin string
		)

		err := rows.Scan(
			&record.Sequence, &record.Venue, &record.Symbol, &kind, &record.Time, &record.Reason,
			&record.OrderID, &record.ExchangeOrderID, &status, &side,
			&record.Price, &record.Quantity, &record.ExecutedQuantity,
			&record.TradeID, &record.FillPrice, &record.FillQuantity, &record.Fee, &record.IsMaker,
			&errorOrigin, &record.ErrorCode, &record.BestBid, &record.BestAsk,
		)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeJournalQueryFailed, "failed to scan event", err)
		}

		record.Kind = types.EventKind(kind)
		record.OrderStatus = types.OrderStatus(status)
		record.Side = types.Side(side)
		record.ErrorOrigin = types.ErrorOrigin(errorOrigin)
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeJournalQueryFailed, "failed to read events", err)
	}

	return records, nil
}

// Count returns the number of journaled events of a kind. An empty kind counts every event.
func (j *EventJournal) Count(kind types.EventKind) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return 0, errors.New(errors.ErrCodeJournalQueryFailed, "journal not initialized")
	}

	query := j.sq.Select("COUNT(*)").From("events")
	if kind != "" {
		query = query.Where(squirrel.Eq{"kind": string(kind)})
	}

	var count int
	if err := query.RunWith(j.db).QueryRow().Scan(&count); err != nil {
		return 0, errors.Wrap(errors.ErrCodeJournalQueryFailed, "failed to count events", err)
	}

	return count, nil
}

// Flush exports the journal to its parquet file.
func (j *EventJournal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return errors.New(errors.ErrCodeJournalExportFailed, "journal not initialized")
	}

	return j.exportToParquet()
}

// Finalize exports the journal and releases the database.
func (j *EventJournal) Finalize() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return nil
	}

	exportErr := j.exportToParquet()

	if err := j.db.Close(); err != nil && exportErr == nil {
		exportErr = errors.Wrap(errors.ErrCodeJournalExportFailed, "failed to close database", err)
	}

	j.db = nil

	return exportErr
}

// GetOutputPath returns the parquet file path.
func (j *EventJournal) GetOutputPath() string {
	return j.outputPath
}

func (j *EventJournal) exportToParquet() error {
	if j.outputPath == "" {
		return nil
	}

	_, err := j.db.Exec(fmt.Sprintf(`
		COPY (SELECT * FROM events ORDER BY venue ASC, sequence ASC)
		TO '%s' (FORMAT PARQUET)
	`, j.outputPath))
	if err != nil {
		return errors.Wrapf(errors.ErrCodeJournalExportFailed, err, "failed to export journal to %s", j.outputPath)
	}

	return nil
}
