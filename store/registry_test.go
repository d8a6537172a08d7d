package store

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/siemvaessen/zieook-sub000/utils"
	"github.com/siemvaessen/zieook-sub000/zieook_errors"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := OpenRegistry(t.TempDir(), utils.NewDefaultLogger(slog.LevelWarn), false)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRegistryCreateAndResolve(t *testing.T) {
	r := testRegistry(t)

	h, err := r.CreateTenant("acme")
	assert.NoError(t, err)
	assert.Equal(t, "acme", h.Tenant())

	again, err := r.Resolve("acme")
	assert.NoError(t, err)
	assert.Same(t, h, again)
}

func TestRegistryCreateIdempotent(t *testing.T) {
	r := testRegistry(t)

	first, err := r.CreateTenant("acme")
	assert.NoError(t, err)
	second, err := r.CreateTenant("acme")
	assert.NoError(t, err)
	assert.Same(t, first, second)

	infos, err := r.Tenants()
	assert.NoError(t, err)
	assert.Len(t, infos, 1)
	assert.Equal(t, "acme", infos[0].Name)
	assert.False(t, infos[0].Created.IsZero())
}

func TestRegistryUnknownTenant(t *testing.T) {
	r := testRegistry(t)
	_, err := r.Resolve("ghost")
	assert.ErrorIs(t, err, zieook_errors.ErrTenantUnknown)
}

func TestRegistryRejectsBadNames(t *testing.T) {
	r := testRegistry(t)
	for _, name := range []string{"", "system", "with\x00nul"} {
		_, err := r.CreateTenant(name)
		assert.ErrorIs(t, err, zieook_errors.ErrInvalidArgument, "name %q", name)
	}
}

func TestRegistryConcurrentResolve(t *testing.T) {
	r := testRegistry(t)
	_, err := r.CreateTenant("acme")
	assert.NoError(t, err)

	var wg sync.WaitGroup
	handles := make([]Handle, 16)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := r.Resolve("acme")
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()
	for _, h := range handles[1:] {
		assert.Same(t, handles[0], h)
	}
}

func TestRegistryClose(t *testing.T) {
	r := testRegistry(t)
	_, err := r.CreateTenant("acme")
	assert.NoError(t, err)

	assert.NoError(t, r.Close())
	assert.NoError(t, r.Close())

	_, err = r.Resolve("beta")
	assert.Error(t, err)
}

func TestRegistryHandlesIncludeSystem(t *testing.T) {
	r := testRegistry(t)
	_, err := r.CreateTenant("acme")
	assert.NoError(t, err)

	names := map[string]bool{}
	for _, h := range r.Handles() {
		names[h.Tenant()] = true
	}
	assert.True(t, names["system"])
	assert.True(t, names["acme"])
}
