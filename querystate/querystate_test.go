package querystate

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/cdr/am"
	"github.com/teranos/cdr/errors"
	cdrtest "github.com/teranos/cdr/internal/testing"
	"github.com/teranos/cdr/orm"
)

func newKeys(n int) []uuid.UUID {
	keys := make([]uuid.UUID, n)
	for i := range keys {
		keys[i] = uuid.New()
	}
	return keys
}

func registries(t *testing.T) map[string]Registry {
	log := zaptest.NewLogger(t).Sugar()
	p := orm.NewProvider(cdrtest.CreateTestDB(t), orm.SQLite, log)
	return map[string]Registry{
		"memory": NewMemoryRegistry(16, time.Hour, log),
		"sql":    NewSQLRegistry(p, time.Hour, log),
	}
}

func TestRegistry_PagingPartitionsKeys(t *testing.T) {
	ctx := context.Background()
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			id := uuid.New()
			keys := newKeys(437)
			require.NoError(t, reg.RegisterQuerySet(ctx, id, keys, "statusKey != obsolete", len(keys)))

			ok, err := reg.IsRegistered(ctx, id)
			require.NoError(t, err)
			assert.True(t, ok)

			total, err := reg.GetTotalCount(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, 437, total)

			var got []uuid.UUID
			for offset := 0; offset < total; offset += 50 {
				pageKeys, err := reg.GetResultPage(ctx, id, offset, 50)
				require.NoError(t, err)
				got = append(got, pageKeys...)
			}
			assert.Equal(t, keys, got)

			rest, err := reg.GetResultPage(ctx, id, 430, -1)
			require.NoError(t, err)
			assert.Equal(t, keys[430:], rest)

			past, err := reg.GetResultPage(ctx, id, 1000, 10)
			require.NoError(t, err)
			assert.Empty(t, past)
		})
	}
}

func TestRegistry_RejectsDuplicateAndUnknown(t *testing.T) {
	ctx := context.Background()
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			id := uuid.New()
			require.NoError(t, reg.RegisterQuerySet(ctx, id, newKeys(3), "", 3))

			err := reg.RegisterQuerySet(ctx, id, newKeys(3), "", 3)
			assert.True(t, errors.IsConflict(err), "got %v", err)

			_, err = reg.GetResultPage(ctx, uuid.New(), 0, 10)
			assert.True(t, errors.IsNotFoundError(err), "got %v", err)

			_, err = reg.GetTotalCount(ctx, uuid.New())
			assert.True(t, errors.IsNotFoundError(err))

			err = reg.RegisterQuerySet(ctx, uuid.Nil, nil, "", 0)
			assert.True(t, errors.IsArgumentError(err))
		})
	}
}

func TestRegistry_EmptySet(t *testing.T) {
	ctx := context.Background()
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			id := uuid.New()
			require.NoError(t, reg.RegisterQuerySet(ctx, id, nil, "", 0))
			keys, err := reg.GetResultPage(ctx, id, 0, 10)
			require.NoError(t, err)
			assert.Empty(t, keys)
		})
	}
}

func TestMemoryRegistry_Expires(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry(4, 20*time.Millisecond, nil)
	id := uuid.New()
	require.NoError(t, reg.RegisterQuerySet(ctx, id, newKeys(2), "shape", 2))

	shape, ok := reg.Shape(id)
	require.True(t, ok)
	assert.Equal(t, "shape", shape)

	time.Sleep(60 * time.Millisecond)
	ok, err := reg.IsRegistered(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	// an expired id can be registered again
	assert.NoError(t, reg.RegisterQuerySet(ctx, id, newKeys(1), "", 1))
}

func TestSQLRegistry_PurgesExpired(t *testing.T) {
	ctx := context.Background()
	conn := cdrtest.CreateTestDB(t)
	p := orm.NewProvider(conn, orm.SQLite, nil)
	reg := NewSQLRegistry(p, 0, nil)

	stale := uuid.New()
	require.NoError(t, reg.RegisterQuerySet(ctx, stale, newKeys(5), "", 5))

	ok, err := reg.IsRegistered(ctx, stale)
	require.NoError(t, err)
	assert.False(t, ok, "zero retention expires immediately")

	require.NoError(t, reg.RegisterQuerySet(ctx, uuid.New(), newKeys(2), "", 2))

	var keyRows int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM query_registration_key WHERE query_id = ?", stale).Scan(&keyRows))
	assert.Zero(t, keyRows, "registering purges expired sets and their keys")

	purged, err := reg.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)
}

func TestNew_SelectsImplementation(t *testing.T) {
	reg, err := New(am.QueryConfig{Registry: am.RegistryMemory, MaxRegistrations: 8, RetentionSeconds: 60}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryRegistry{}, reg)

	_, err = New(am.QueryConfig{Registry: am.RegistrySQL}, nil, nil)
	assert.Error(t, err)

	_, err = New(am.QueryConfig{Registry: "redis"}, nil, nil)
	assert.Error(t, err)
}
