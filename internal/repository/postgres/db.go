// Package postgres персистентность хранилищ, политик, заявок и журнала аудита.
// database/sql поверх драйвера pgx: так же работает go-sqlmock в тестах.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres
)

const uniqueViolation = "23505"

// Open создает пул и сразу проверяет соединение
func Open(ctx context.Context, connString string) (*sql.DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return db, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

type rowScanner interface {
	Scan(dest ...any) error
}

// numeric суммы хранятся в NUMERIC(20,0): BIGINT не вмещает весь диапазон uint64
func numeric(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// u64 приемник NUMERIC(20,0)
type u64 uint64

func (u *u64) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*u = 0
		return nil
	case int64:
		if v < 0 {
			return fmt.Errorf("postgres: negative amount %d", v)
		}
		*u = u64(v)
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("postgres: cannot scan %T into uint64", src)
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("postgres: bad numeric %q: %w", raw, err)
	}
	*u = u64(n)
	return nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
