package postgres_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/store/postgres"
)

func TestRebind_NumbersPlaceholdersOutsideQuotes(t *testing.T) {
	d := postgres.Dialect{}

	got := d.Rebind(`SELECT * FROM "t?" WHERE a = ? AND b = '?' AND c IN (?, ?)`)

	assert.Equal(t, `SELECT * FROM "t?" WHERE a = $1 AND b = '?' AND c IN ($2, $3)`, got)
}

func TestClassify_MapsSQLState(t *testing.T) {
	d := postgres.Dialect{}

	tests := []struct {
		code string
		want generic.ErrorKind
	}{
		{"42703", generic.KindSchemaDrift},
		{"42P01", generic.KindSchemaDrift},
		{"42P10", generic.KindNoConflictTarget},
		{"23505", generic.KindDuplicateKey},
		{"22012", generic.KindOther},
	}
	for _, tt := range tests {
		err := fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: tt.code})
		kind, code := d.Classify(err)
		assert.Equal(t, tt.want, kind, tt.code)
		assert.Equal(t, tt.code, code)
	}

	kind, _ := d.Classify(errors.New("connection reset"))
	assert.Equal(t, generic.KindOther, kind)
}
