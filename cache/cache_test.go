package cache

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/cdr/am"
)

func TestParseCategories(t *testing.T) {
	c, err := ParseCategories([]string{"models", " Rows "})
	require.NoError(t, err)
	assert.True(t, c.Has(CategoryModels))
	assert.True(t, c.Has(CategoryRows))
	assert.False(t, c.Has(CategoryAssociations))
	assert.Equal(t, "models|rows", c.String())

	_, err = ParseCategories([]string{"sessions"})
	assert.Error(t, err)

	none, err := ParseCategories(nil)
	require.NoError(t, err)
	assert.Equal(t, "none", none.String())
	assert.False(t, none.Has(CategoryNone))
}

func TestLRU_HonoursCategories(t *testing.T) {
	c := NewLRU(8, time.Minute, CategoryModels, nil)

	Store(c, CategoryModels, "m", 1)
	Store(c, CategoryRows, "r", 2)

	v, ok := Lookup(c, CategoryModels, "m")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = Lookup(c, CategoryRows, "r")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	Evict(c, "m")
	_, ok = Lookup(c, CategoryModels, "m")
	assert.False(t, ok)
}

func TestLRU_Expires(t *testing.T) {
	c := NewLRU(8, 20*time.Millisecond, CategoryAll, nil)
	c.Add("k", "v")
	_, ok := c.Get("k")
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestLookup_NilServiceNeverHits(t *testing.T) {
	var s Service
	Store(s, CategoryModels, "k", 1)
	_, ok := Lookup(s, CategoryModels, "k")
	assert.False(t, ok)
	Evict(s, "k")
}

func TestNew_FromConfig(t *testing.T) {
	s, err := New(am.CacheConfig{Categories: []string{}, Size: 16, ExpirySeconds: 60}, nil)
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = New(am.CacheConfig{Categories: []string{"rows"}, Size: 16, ExpirySeconds: 60}, nil)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.True(t, s.Caches(CategoryRows))
	assert.False(t, s.Caches(CategoryModels))

	_, err = New(am.CacheConfig{Categories: []string{"rows"}, Size: 0}, nil)
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	k := uuid.MustParse("6f2b9a4e-3c1d-4e8a-9b7f-2d5c8e1a0f34")
	assert.Equal(t, "6f2b9a4e-3c1d-4e8a-9b7f-2d5c8e1a0f34", ModelKey(k))
	assert.Equal(t, "ExtensionType.6f2b9a4e-3c1d-4e8a-9b7f-2d5c8e1a0f34", RowKey("ExtensionType", k))
	assert.Equal(t, "act_tag@6f2b9a4e-3c1d-4e8a-9b7f-2d5c8e1a0f34", AssociationKey("act_tag", k))
}
