package internal

import (
	"context"
	"fmt"
	"github.com/jmoiron/sqlx"
	"github.com/sethvargo/go-retry"
	"time"
)

type Database struct {
	*sqlx.DB
}

// NewDatabaseConnection opens the pool without touching the network;
// call WaitReady before serving traffic.
func NewDatabaseConnection(dbDriver string, dbConnectionStr string) (*Database, error) {
	database, err := sqlx.Open(dbDriver, dbConnectionStr)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	database.SetMaxOpenConns(10)
	database.SetConnMaxIdleTime(5 * time.Minute)

	return &Database{
		database,
	}, nil
}

// WaitReady pings with exponential backoff until the database answers,
// the attempts run out or ctx is done.
func (db *Database) WaitReady(ctx context.Context, attempts uint64) error {
	backoff := retry.WithMaxRetries(attempts, retry.NewExponential(200*time.Millisecond))
	backoff = retry.WithCappedDuration(5*time.Second, backoff)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ошибка пинга БД: %w", err)
	}
	return nil
}

func (db *Database) Close() error {
	err := db.DB.Close()
	if err != nil {
		return fmt.Errorf("ошибка закрытия соединения с БД: %w", err)
	}

	return nil
}
