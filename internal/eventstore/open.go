package eventstore

import (
	"context"
	"time"

	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/internal/logging"
	"github.com/huangsam/subpulse/schema"
)

// DefaultConnectWait bounds how long Open retries an unreachable database.
const DefaultConnectWait = 30 * time.Second

// Source is an event source that holds resources.
type Source interface {
	contract.EventSource
	Close() error
}

type fileCloser struct{ *FileSource }

func (fileCloser) Close() error { return nil }

type breakerCloser struct {
	*Breaker
	closer func() error
}

func (b breakerCloser) Close() error { return b.closer() }

// Open builds the event source described by cfg. A MySQL backend without a connection
// string resolves its connection from MongoDB or the SQL_* environment. Database sources
// are wrapped in a circuit breaker.
func Open(ctx context.Context, cfg *contract.Config) (Source, error) {
	if cfg.EventBackend == schema.FileEvents {
		src, err := NewFileSource(cfg.EventsFile)
		if err != nil {
			return nil, err
		}
		return fileCloser{src}, nil
	}

	connStr, table := cfg.EventDBConnect, cfg.EventTable
	if connStr == "" && cfg.EventBackend == schema.MySQLEvents {
		conn, err := LoadConnectionConfig(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
		if err != nil {
			return nil, err
		}
		connStr = conn.DSN()
		if conn.TableName != "" {
			table = conn.TableName
		}
	}

	src, err := NewSQLSource(ctx, cfg.EventBackend, connStr, table, DefaultConnectWait)
	if err != nil {
		return nil, err
	}
	logging.Info().Str("backend", string(cfg.EventBackend)).Str("table", table).Msg("event store connected")
	return breakerCloser{Breaker: NewBreaker(src, DefaultBreakerConfig()), closer: src.Close}, nil
}
