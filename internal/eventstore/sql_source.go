// Package eventstore reads raw subscription events from databases and files.
package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/internal/logging"
	"github.com/huangsam/subpulse/schema"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver
)

// eventColumns are read from the event table in this order.
var eventColumns = []string{
	"userID",
	"dateUTC",
	"type",
	"country",
	"currentPackageName",
	"lastAmountPaidEUR",
	"customerCreatedTimeUTC",
	"convertedFromTrial",
	"recruitMode",
}

// SQLSource fetches events from a relational event table.
type SQLSource struct {
	db      *sql.DB
	backend schema.EventBackend
	table   string
}

var _ contract.EventSource = &SQLSource{} // Compile-time check

// NewSQLSource opens the event store and waits for it to answer, retrying the ping
// with exponential backoff up to maxWait.
func NewSQLSource(ctx context.Context, backend schema.EventBackend, connStr, table string, maxWait time.Duration) (*SQLSource, error) {
	if err := contract.ValidateTableName(table); err != nil {
		return nil, err
	}

	var driverName string
	switch backend {
	case schema.MySQLEvents:
		driverName = "mysql"
	case schema.PostgreSQLEvents:
		driverName = "pgx"
	case schema.SQLiteEvents:
		driverName = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported event backend: %s. Must be mysql, postgresql or sqlite", backend)
	}

	db, err := sql.Open(driverName, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s event store: %w", backend, err)
	}
	if backend == schema.SQLiteEvents {
		db.SetMaxOpenConns(1)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxWait
	attempt := 0
	ping := func() error {
		attempt++
		err := db.PingContext(ctx)
		if err != nil {
			logging.Debug().Err(err).Int("attempt", attempt).Str("backend", string(backend)).Msg("event store not ready")
		}
		return err
	}
	if err := backoff.Retry(ping, backoff.WithContext(policy, ctx)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s event store. Check that the server is running and connection parameters are valid: %w", backend, err)
	}

	return &SQLSource{db: db, backend: backend, table: table}, nil
}

// FetchEvents returns every event whose timestamp falls in r. A zero range fetches all.
func (s *SQLSource) FetchEvents(ctx context.Context, r schema.DateRange) ([]schema.RawEvent, error) {
	quoted := make([]string, len(eventColumns))
	for i, c := range eventColumns {
		quoted[i] = contract.QuoteIdentifier(c, string(s.backend))
	}
	dateCol := contract.QuoteIdentifier("dateUTC", string(s.backend))
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IS NOT NULL",
		strings.Join(quoted, ", "), contract.QuoteIdentifier(s.table, string(s.backend)), dateCol)

	var args []any
	if !r.IsZero() {
		query += fmt.Sprintf(" AND %s >= %s AND %s < %s", dateCol, s.placeholder(1), dateCol, s.placeholder(2))
		args = append(args, r.Start.Format(time.DateTime), r.End.Format(time.DateTime))
	}
	query += " ORDER BY " + dateCol

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []schema.RawEvent
	for rows.Next() {
		var userID, date, typ, country, pkg, amount, created, trial, recruit sql.NullString
		if err := rows.Scan(&userID, &date, &typ, &country, &pkg, &amount, &created, &trial, &recruit); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev := schema.RawEvent{
			SubscriberID: userID.String,
			EventType:    typ.String,
			Timestamp:    date.String,
			PackageTier:  pkg.String,
			Location:     country.String,
			Amount:       amount.String,
			RecruitMode:  recruit.String,
		}
		ev.Origin, ev.OriginAt = originOf(trial.String, created.String)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}

// Close closes the underlying DB connection.
func (s *SQLSource) Close() error {
	return s.db.Close()
}

func (s *SQLSource) placeholder(n int) string {
	if s.backend == schema.PostgreSQLEvents {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// originOf marks subscribers converted from a trial, or created before subscribing
// as leads. Without a creation time there is no origin.
func originOf(convertedFromTrial, createdAt string) (string, string) {
	if createdAt == "" {
		return "", ""
	}
	if ok, err := contract.ParseBoolString(convertedFromTrial); err == nil && ok {
		return "trial", createdAt
	}
	return "lead", createdAt
}
