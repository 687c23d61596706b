package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

type unmarshalable struct{}

func (unmarshalable) MarshalJSON() ([]byte, error) {
	return nil, errors.New("cannot encode")
}

func backendsUnderTest(t *testing.T) map[string]Backend {
	t.Helper()

	sqlite, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "state", "cowch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]Backend{
		"memory": NewMemoryBackend(),
		"sqlite": sqlite,
		"redis":  NewRedisBackendFromClient(client),
	}
}

func TestBackends_GetSetDeleteKeys(t *testing.T) {
	ctx := context.Background()
	for name, b := range backendsUnderTest(t) {
		b := b
		t.Run(name, func(t *testing.T) {
			_, found, err := b.Get(ctx, "cowch:u1:therapy_profile")
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, b.Set(ctx, "cowch:u1:therapy_profile", []byte(`{"a":1}`)))
			require.NoError(t, b.Set(ctx, "cowch:u1:full_history", []byte(`[]`)))
			require.NoError(t, b.Set(ctx, "cowch:u2:therapy_profile", []byte(`{}`)))
			require.NoError(t, b.Set(ctx, "other:u3:therapy_profile", []byte(`{}`)))

			v, found, err := b.Get(ctx, "cowch:u1:therapy_profile")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, `{"a":1}`, string(v))

			keys, err := b.Keys(ctx, "cowch:")
			require.NoError(t, err)
			assert.Equal(t, []string{"cowch:u1:full_history", "cowch:u1:therapy_profile", "cowch:u2:therapy_profile"}, keys)

			require.NoError(t, b.Delete(ctx, "cowch:u1:therapy_profile"))
			_, found, err = b.Get(ctx, "cowch:u1:therapy_profile")
			require.NoError(t, err)
			assert.False(t, found)

			// Deleting a missing key is not an error.
			require.NoError(t, b.Delete(ctx, "cowch:missing:therapy_profile"))
		})
	}
}

func TestSQLiteBackend_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "cowch.db")

	b, err := NewSQLiteBackend(path)
	require.NoError(t, err)
	require.NoError(t, b.Set(ctx, "cowch:u1:therapy_profile", []byte(`{"sessionCount":3}`)))
	require.NoError(t, b.Close())

	b2, err := NewSQLiteBackend(path)
	require.NoError(t, err)
	defer b2.Close()

	v, found, err := b2.Get(ctx, "cowch:u1:therapy_profile")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, `{"sessionCount":3}`, string(v))
}

func TestAdapter_LoadDefaultsOnMissingAndCorrupt(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	a := NewAdapter(mem, "")

	def := func() record { return record{Name: "default", Items: []string{}} }

	got := Load(ctx, a, a.Key("u1", "rec"), def)
	assert.Equal(t, def(), got)

	require.NoError(t, mem.Set(ctx, a.Key("u1", "rec"), []byte("{broken")))
	got = Load(ctx, a, a.Key("u1", "rec"), def)
	assert.Equal(t, def(), got)

	require.NoError(t, mem.Set(ctx, a.Key("u1", "rec"), []byte("null")))
	got = Load(ctx, a, a.Key("u1", "rec"), def)
	assert.Equal(t, def(), got)
}

func TestAdapter_SaveLoadClear(t *testing.T) {
	ctx := context.Background()
	a := NewAdapter(NewMemoryBackend(), "cowch")
	key := a.Key("u1", "rec")

	assert.Equal(t, "cowch:u1:rec", key)
	require.True(t, a.Save(ctx, key, record{Name: "saved", Items: []string{"x"}}))

	got := Load(ctx, a, key, func() record { return record{} })
	assert.Equal(t, record{Name: "saved", Items: []string{"x"}}, got)

	require.True(t, a.Clear(ctx, key))
	got = Load(ctx, a, key, func() record { return record{Name: "empty"} })
	assert.Equal(t, "empty", got.Name)
}

func TestAdapter_FailuresNeverPropagate(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	a := NewAdapter(mem, "cowch")
	require.NoError(t, mem.Close())

	assert.False(t, a.Save(ctx, a.Key("u1", "rec"), record{Name: "x"}))
	assert.False(t, a.Clear(ctx, a.Key("u1", "rec")))
	got := Load(ctx, a, a.Key("u1", "rec"), func() record { return record{Name: "fallback"} })
	assert.Equal(t, "fallback", got.Name)
	assert.Empty(t, a.Users(ctx))

	// Values that cannot be serialized are reported, not raised.
	open := NewAdapter(NewMemoryBackend(), "cowch")
	assert.False(t, open.Save(ctx, open.Key("u1", "rec"), unmarshalable{}))
}

func TestAdapter_Users(t *testing.T) {
	ctx := context.Background()
	a := NewAdapter(NewMemoryBackend(), "cowch")

	require.True(t, a.Save(ctx, a.Key("bob", "therapy_profile"), record{}))
	require.True(t, a.Save(ctx, a.Key("bob", "full_history"), []record{}))
	require.True(t, a.Save(ctx, a.Key("web:alice", "therapy_profile"), record{}))

	assert.Equal(t, []string{"bob", "web:alice"}, a.Users(ctx))
}

func TestOpen(t *testing.T) {
	b, err := Open(Options{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryBackend{}, b)

	_, err = Open(Options{Backend: "sqlite"})
	assert.Error(t, err)

	_, err = Open(Options{Backend: "etcd"})
	assert.ErrorContains(t, err, "unsupported storage backend")

	s := miniredis.RunT(t)
	rb, err := Open(Options{Backend: "redis", RedisAddr: s.Addr()})
	require.NoError(t, err)
	assert.NoError(t, rb.Close())
}
