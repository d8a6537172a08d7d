package store

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/goccy/go-json"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/siemvaessen/zieook-sub000/keys"
	"github.com/siemvaessen/zieook-sub000/utils"
	"github.com/siemvaessen/zieook-sub000/zieook_errors"
)

// systemName is the directory of the system database (tenant registry and
// task store). Tenant names must not collide with it; ValidName already
// rejects the empty string, and CreateTenant rejects this one.
const systemName = "system"

type TenantInfo struct {
	Name    string    `json:"name"`
	Created time.Time `json:"created"`
}

// TenantHandle is an open Pebble database scoped to one tenant.
type TenantHandle struct {
	tenant string
	db     *pebble.DB
	log    utils.Logger
	wo     *pebble.WriteOptions
}

func (h *TenantHandle) Tenant() string                     { return h.tenant }
func (h *TenantHandle) Database() *pebble.DB               { return h.db }
func (h *TenantHandle) Logger() utils.Logger               { return h.log }
func (h *TenantHandle) WriteOptions() *pebble.WriteOptions { return h.wo }
func (h *TenantHandle) Snapshot() pebble.Reader            { return h.db.NewSnapshot() }

// Registry resolves tenant names to open handles. Databases live under
// <dir>/<tenant> and are opened lazily on first use; the system database
// opens eagerly. A tenant exists once its registry row is written; it is
// never implicitly deleted.
type Registry struct {
	dir    string
	log    utils.Logger
	wo     *pebble.WriteOptions
	system *TenantHandle

	handles *xsync.MapOf[string, *TenantHandle]
	openmu  sync.Mutex
	closed  bool
}

func OpenRegistry(dir string, log utils.Logger, sync bool) (*Registry, error) {
	r := &Registry{
		dir:     dir,
		log:     log,
		wo:      pebble.NoSync,
		handles: xsync.NewMapOf[string, *TenantHandle](),
	}
	if sync {
		r.wo = pebble.Sync
	}
	db, err := r.open(systemName, false)
	if err != nil {
		return nil, err
	}
	r.system = &TenantHandle{tenant: systemName, db: db, log: log, wo: r.wo}
	return r, nil
}

func (r *Registry) open(name string, mustExist bool) (*pebble.DB, error) {
	opts := &pebble.Options{
		ErrorIfNotExists: mustExist,
		Merger:           Merger(),
	}
	db, err := pebble.Open(filepath.Join(r.dir, name), opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", zieook_errors.ErrStoreUnavailable, name, err)
	}
	return db, nil
}

// System returns the handle of the system database.
func (r *Registry) System() Handle { return r.system }

// CreateTenant registers a tenant and opens its database. Creating an
// already-registered tenant is a no-op returning the existing handle.
func (r *Registry) CreateTenant(name string) (Handle, error) {
	if !keys.ValidName(name) || name == systemName {
		return nil, fmt.Errorf("%w: tenant name %q", zieook_errors.ErrInvalidArgument, name)
	}
	if h, ok := r.handles.Load(name); ok {
		return h, nil
	}
	info, err := json.Marshal(TenantInfo{Name: name, Created: time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("%w: tenant info: %v", zieook_errors.ErrInvalidArgument, err)
	}
	ok, err := Exists(r.system, keys.TenantKey(name))
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := Set(r.system, keys.TenantKey(name), info); err != nil {
			return nil, err
		}
		r.log.Info("tenant registered", "tenant", name)
	}
	return r.Resolve(name)
}

// Resolve returns the open handle for a registered tenant, opening its
// database on first use. Unregistered tenants yield ErrTenantUnknown.
func (r *Registry) Resolve(name string) (Handle, error) {
	if h, ok := r.handles.Load(name); ok {
		return h, nil
	}
	ok, err := Exists(r.system, keys.TenantKey(name))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", zieook_errors.ErrTenantUnknown, name)
	}

	r.openmu.Lock()
	defer r.openmu.Unlock()
	if r.closed {
		return nil, zieook_errors.ErrClosed
	}
	if h, ok := r.handles.Load(name); ok {
		return h, nil
	}
	db, err := r.open(name, false)
	if err != nil {
		return nil, err
	}
	h := &TenantHandle{tenant: name, db: db, log: r.log, wo: r.wo}
	r.handles.Store(name, h)
	return h, nil
}

// Tenants lists all registered tenants from the system database.
func (r *Registry) Tenants() ([]TenantInfo, error) {
	it, err := r.system.db.NewIter(&pebble.IterOptions{
		LowerBound: keys.TenantPrefix(),
		UpperBound: keys.PrefixEnd(keys.TenantPrefix()),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: iter: %v", zieook_errors.ErrStoreUnavailable, err)
	}
	defer it.Close()
	var out []TenantInfo
	for valid := it.First(); valid; valid = it.Next() {
		var info TenantInfo
		if err := json.Unmarshal(it.Value(), &info); err != nil {
			name, kerr := keys.ParseTenantKey(it.Key())
			if kerr != nil {
				r.log.Warn("skipping malformed tenant row", "err", kerr)
				continue
			}
			info = TenantInfo{Name: name}
		}
		out = append(out, info)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("%w: iter: %v", zieook_errors.ErrStoreUnavailable, err)
	}
	return out, nil
}

// Handles returns the currently open tenant handles, system included.
func (r *Registry) Handles() []Handle {
	out := []Handle{r.system}
	r.handles.Range(func(_ string, h *TenantHandle) bool {
		out = append(out, h)
		return true
	})
	return out
}

func (r *Registry) Close() error {
	r.openmu.Lock()
	defer r.openmu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	var first error
	r.handles.Range(func(name string, h *TenantHandle) bool {
		if err := h.db.Close(); err != nil && first == nil {
			first = err
		}
		r.handles.Delete(name)
		return true
	})
	if err := r.system.db.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
