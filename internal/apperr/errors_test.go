package apperr

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestKindMapping(t *testing.T) {
	cases := map[Kind]int{
		KindInvalidArgument: fiber.StatusBadRequest,
		KindUnauthenticated: fiber.StatusUnauthorized,
		KindForbidden:       fiber.StatusForbidden,
		KindNotFound:        fiber.StatusNotFound,
		KindConflict:        fiber.StatusConflict,
		KindUnavailable:     fiber.StatusServiceUnavailable,
		KindInternal:        fiber.StatusInternalServerError,
	}
	for kind, status := range cases {
		require.Equal(t, status, kind.HTTPStatus(), kind.String())
		require.Equal(t, kind == KindUnavailable, kind.Retryable(), kind.String())
	}
}

func TestErrorsIsAndWrap(t *testing.T) {
	err := fmt.Errorf("decide: %w", NotFound("user %s not found", "u1"))
	require.ErrorIs(t, err, ErrNotFound)
	require.NotErrorIs(t, err, ErrConflict)
	require.Equal(t, KindNotFound, KindOf(err))
	require.Equal(t, "user u1 not found", Message(err))

	cause := errors.New("disk full")
	wrapped := Internal("append failed for %s", "u1").WithCause(cause)
	require.ErrorIs(t, wrapped, cause)
	require.Contains(t, wrapped.Error(), "disk full")

	require.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestFromStorage(t *testing.T) {
	require.NoError(t, FromStorage("op", nil))

	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"record not found", gorm.ErrRecordNotFound, KindNotFound},
		{"duplicate key", gorm.ErrDuplicatedKey, KindConflict},
		{"foreign key", gorm.ErrForeignKeyViolated, KindNotFound},
		{"deadline", context.DeadlineExceeded, KindUnavailable},
		{"cancelled", fmt.Errorf("query: %w", context.Canceled), KindUnavailable},
		{"bad conn", driver.ErrBadConn, KindUnavailable},
		{"unique violation", &pgconn.PgError{Code: "23505"}, KindConflict},
		{"serialization", &pgconn.PgError{Code: "40001"}, KindUnavailable},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, KindUnavailable},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, KindUnavailable},
		{"connection failure", &pgconn.PgError{Code: "08006"}, KindUnavailable},
		{"syntax", &pgconn.PgError{Code: "42601"}, KindInternal},
		{"unknown", errors.New("boom"), KindInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := FromStorage("op", tc.err)
			require.Equal(t, tc.want, KindOf(err))
			require.ErrorIs(t, err, tc.err)
		})
	}

	classified := Conflict("already done")
	require.Same(t, classified, FromStorage("op", classified))
}
