package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"chatbot-auth/internal/model"
)

type errorKind int

const (
	kindUnknown errorKind = iota
	kindNotFound
	kindConflict
	kindUnavailable
)

// errorTable maps driver-specific failures onto the store taxonomy. The first
// matching rule wins.
var errorTable = []struct {
	kind  errorKind
	match func(error) bool
}{
	{kindNotFound, func(err error) bool {
		return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) || errors.Is(err, redis.Nil)
	}},
	{kindConflict, pgCode("23505")},
	{kindUnavailable, func(err error) bool {
		return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	}},
	// query_canceled, admin_shutdown, connection_exception family
	{kindUnavailable, pgCode("57014", "57P01", "08000", "08003", "08006")},
	{kindUnavailable, func(err error) bool {
		var connectErr *pgconn.ConnectError
		return errors.As(err, &connectErr)
	}},
	{kindUnavailable, func(err error) bool {
		var netErr net.Error
		if errors.As(err, &netErr) {
			return true
		}
		var opErr *net.OpError
		return errors.As(err, &opErr)
	}},
}

func pgCode(codes ...string) func(error) bool {
	return func(err error) bool {
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) {
			return false
		}
		for _, code := range codes {
			if pgErr.Code == code {
				return true
			}
		}
		return false
	}
}

func classify(err error) errorKind {
	for _, rule := range errorTable {
		if rule.match(err) {
			return rule.kind
		}
	}
	return kindUnknown
}

// translateError wraps err with the taxonomy sentinel for its kind. notFound and
// conflict are the entity specific sentinels of the calling repository.
func translateError(op string, err error, notFound error, conflict error) error {
	if err == nil {
		return nil
	}

	switch classify(err) {
	case kindNotFound:
		return fmt.Errorf("%s: %w", op, notFound)
	case kindConflict:
		return fmt.Errorf("%s: %w", op, conflict)
	case kindUnavailable:
		return fmt.Errorf("%s: %w: %w", op, model.ErrUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
