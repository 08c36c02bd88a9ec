package persistence

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/cdr/am"
	"github.com/teranos/cdr/cache"
	cdrtest "github.com/teranos/cdr/internal/testing"
	"github.com/teranos/cdr/model"
	"github.com/teranos/cdr/orm"
)

const actor = "test-actor"

var ctx = context.Background()

// stepClock advances a millisecond per reading so every write gets a
// distinct, ordered timestamp.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

type fixture struct {
	repo     *Repository
	db       *sql.DB
	provider *orm.Provider
	cache    *cache.LRU
	metrics  *Metrics
	log      *zap.SugaredLogger
}

func defaultPolicy() am.PersistenceConfig {
	return am.PersistenceConfig{
		FullVersioning:        true,
		AssociationVersioning: true,
		LogicalDeletion:       true,
		PageChunkSize:         7,
	}
}

func newFixture(t *testing.T, mutate ...func(*am.PersistenceConfig)) *fixture {
	t.Helper()
	return newFixtureOn(t, cdrtest.CreateTestDB(t), mutate...)
}

// newFixtureOn builds the fixture over conn, for tests that need a database
// other than the single-connection memory one.
func newFixtureOn(t *testing.T, conn *sql.DB, mutate ...func(*am.PersistenceConfig)) *fixture {
	t.Helper()
	policy := defaultPolicy()
	for _, fn := range mutate {
		fn(&policy)
	}

	log := zaptest.NewLogger(t).Sugar()
	p := orm.NewProvider(conn, orm.SQLite, log)
	lru := cache.NewLRU(256, time.Hour, cache.CategoryAll, log)
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	clock := &stepClock{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}

	repo, err := New(policy, p, Options{Cache: lru, Metrics: m, Logger: log, Now: clock.Now})
	require.NoError(t, err)
	return &fixture{repo: repo, db: conn, provider: p, cache: lru, metrics: m, log: log}
}

func (f *fixture) count(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRow(query, args...).Scan(&n))
	return n
}

func quantity(value float64) *model.QuantityObservation {
	return &model.QuantityObservation{
		Act: model.Act{
			ActTime: timePtr(time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC)),
			Participations: []model.ActParticipation{
				{PlayerKey: uuid.New(), RoleKey: model.RoleRecordTarget},
			},
		},
		Value:   value,
		UnitKey: unitMillimolePerLitre,
	}
}

var unitMillimolePerLitre = uuid.MustParse("0f3a31c0-8d2b-4f0a-9a65-2c3f6b9b4d11")

func timePtr(t time.Time) *time.Time { return &t }

func ptr[T any](v T) *T { return &v }
