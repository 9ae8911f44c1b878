package ledger

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"translated by gorm", gorm.ErrDuplicatedKey, true},
		{"wrapped translation", errors.Wrap(gorm.ErrDuplicatedKey, "insert"), true},
		{"postgres unique violation", &pgconn.PgError{Code: pgerrcode.UniqueViolation}, true},
		{"postgres other error", &pgconn.PgError{Code: pgerrcode.SerializationFailure}, false},
		{"sqlite unique", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, true},
		{"sqlite not null", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintNotNull}, false},
		{"generic", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isDuplicate(tt.err))
		})
	}
}
