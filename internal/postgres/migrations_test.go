package postgres

import (
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPending(t *testing.T) {
	all, err := Pending(semver.MustParse("0.0.0"))
	require.NoError(t, err)
	assert.Len(t, all, len(Migrations))

	rest, err := Pending(semver.MustParse("1.0.0"))
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "1.1.0", rest[0].Version)

	none, err := Pending(semver.MustParse("9.0.0"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSchemaCoversStores(t *testing.T) {
	for _, table := range []string{"products", "stock_batches", "stock_audit", "customers", "points_transactions", "orders"} {
		assert.Contains(t, schemaV1, "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
	assert.Contains(t, schemaV1, "online_order_seq")
}
