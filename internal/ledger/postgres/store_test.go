package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidIdent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want bool
	}{
		{"strata_editions", true},
		{"ledger.editions", true},
		{"t2", true},
		{"2t", false},
		{"Editions", false},
		{"editions; drop table x", false},
		{"", false},
		{"a..b", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, validIdent(tt.name))
		})
	}
}

func TestSelectSQL(t *testing.T) {
	t.Parallel()

	q, args := selectSQL("strata_editions", "")
	assert.True(t, strings.HasSuffix(q, "ORDER BY run_id, seq"))
	assert.Nil(t, args)

	q, args = selectSQL("strata_editions", "run-1")
	assert.Contains(t, q, "WHERE run_id = $1")
	assert.Equal(t, []any{"run-1"}, args)
}

func TestStatementsUseTable(t *testing.T) {
	t.Parallel()

	assert.Contains(t, createTableSQL("x.ledger"), "CREATE TABLE IF NOT EXISTS x.ledger")
	assert.Contains(t, createTableSQL("x.ledger"), "PRIMARY KEY (run_id, seq)")
	assert.Contains(t, insertSQL("x.ledger"), "INSERT INTO x.ledger")
	assert.Equal(t, 6, strings.Count(insertSQL("x.ledger"), "$"))
}

func TestOpenRejectsBadTable(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "", "Bad-Name")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid table name")
}

func TestOpenReportsDriverError(t *testing.T) {
	orig := sqlOpen
	sqlOpen = func(string, string) (*sql.DB, error) { return nil, errors.New("no route") }
	defer func() { sqlOpen = orig }()

	_, err := Open(context.Background(), "postgres://nowhere/db", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open postgres: no route")
}
