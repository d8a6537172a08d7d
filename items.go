package zieook

import (
	"context"
	"errors"
	"regexp"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"

	"github.com/siemvaessen/zieook-sub000/keys"
	"github.com/siemvaessen/zieook-sub000/model"
	"github.com/siemvaessen/zieook-sub000/scan"
	"github.com/siemvaessen/zieook-sub000/store"
	"github.com/siemvaessen/zieook-sub000/zieook_errors"
)

// ---- items ----

func (e *Engine) PutItem(ctx context.Context, tenant string, item model.Item) error {
	h, err := e.handle(tenant)
	if err != nil {
		return err
	}
	if item.ID == 0 {
		return zieook_errors.ErrInvalidArgument
	}
	value, err := json.Marshal(item)
	if err != nil {
		return errors.Join(zieook_errors.ErrInvalidArgument, err)
	}
	if err := store.Set(h, keys.ItemKey(item.ID), value); err != nil {
		return err
	}
	e.facts.InvalidateItem(tenant, item.ID)
	return nil
}

func (e *Engine) GetItem(ctx context.Context, tenant string, id uint64) (model.Item, error) {
	h, err := e.handle(tenant)
	if err != nil {
		return model.Item{}, err
	}
	value, err := store.Get(h, keys.ItemKey(id))
	if err != nil {
		return model.Item{}, err
	}
	var item model.Item
	if err := json.Unmarshal(value, &item); err != nil {
		return model.Item{}, errors.Join(zieook_errors.ErrKeyFormat, err)
	}
	return item, nil
}

// GetItems pages through item metadata in id order, starting at the
// given id inclusive.
func (e *Engine) GetItems(ctx context.Context, tenant string, start uint64, size int) ([]model.Item, error) {
	h, err := e.handle(tenant)
	if err != nil {
		return nil, err
	}
	s := &scan.Scanner{
		Lower: keys.ItemKey(start),
		Upper: keys.PrefixEnd(keys.FamilyPrefix(keys.FamItem)),
		Limit: size,
	}
	var out []model.Item
	scanErr := s.Run(h.Database(), func(key, value []byte) bool {
		id, err := keys.ParseItemKey(key)
		if err != nil {
			h.Logger().Warn("skipping malformed item key", "tenant", tenant, "err", err)
			return true
		}
		var item model.Item
		if err := json.Unmarshal(value, &item); err != nil {
			h.Logger().Warn("skipping malformed item row", "tenant", tenant, "item", id, "err", err)
			return true
		}
		out = append(out, item)
		return true
	})
	return out, scanErr
}

// DeleteItem removes both the processed metadata and the raw payload.
func (e *Engine) DeleteItem(ctx context.Context, tenant string, id uint64) error {
	h, err := e.handle(tenant)
	if err != nil {
		return err
	}
	if err := store.Delete(h, keys.ItemKey(id)); err != nil {
		return err
	}
	if err := store.Delete(h, keys.ItemRawKey(id)); err != nil {
		return err
	}
	e.facts.InvalidateItem(tenant, id)
	return nil
}

// PutItemRaw stores the verbatim source payload of an item. The row
// carries the payload's xxhash so a re-import of unchanged content is
// skipped; it reports whether the row was written.
func (e *Engine) PutItemRaw(ctx context.Context, tenant string, id uint64, payload []byte) (bool, error) {
	h, err := e.handle(tenant)
	if err != nil {
		return false, err
	}
	if id == 0 {
		return false, zieook_errors.ErrInvalidArgument
	}
	sum := xxhash.Sum64(payload)
	key := keys.ItemRawKey(id)
	if prev, err := store.Get(h, key); err == nil {
		if prevSum, _, ok := keys.ParseRawValue(prev); ok && prevSum == sum {
			return false, nil
		}
	} else if !errors.Is(err, zieook_errors.ErrNotFound) {
		return false, err
	}
	return true, store.Set(h, key, keys.RawValue(sum, payload))
}

// GetItemRaw returns the verbatim source payload of an item.
func (e *Engine) GetItemRaw(ctx context.Context, tenant string, id uint64) ([]byte, error) {
	h, err := e.handle(tenant)
	if err != nil {
		return nil, err
	}
	value, err := store.Get(h, keys.ItemRawKey(id))
	if err != nil {
		return nil, err
	}
	_, payload, ok := keys.ParseRawValue(value)
	if !ok {
		return nil, errors.Join(zieook_errors.ErrKeyFormat, errors.New("raw item row truncated"))
	}
	return payload, nil
}

// SearchItems returns items whose title matches the pattern, in id
// order.
func (e *Engine) SearchItems(ctx context.Context, tenant, titlePattern string, limit int) ([]model.Item, error) {
	h, err := e.handle(tenant)
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(titlePattern)
	if err != nil {
		return nil, errors.Join(zieook_errors.ErrInvalidArgument, err)
	}
	s := scan.Range(keys.FamilyPrefix(keys.FamItem))
	var out []model.Item
	scanErr := s.Run(h.Database(), func(key, value []byte) bool {
		var item model.Item
		if err := json.Unmarshal(value, &item); err != nil {
			return true
		}
		if !re.MatchString(item.Title) {
			return true
		}
		out = append(out, item)
		return limit <= 0 || len(out) < limit
	})
	return out, scanErr
}

// ---- users ----

func (e *Engine) PutUser(ctx context.Context, tenant string, u model.User) error {
	h, err := e.handle(tenant)
	if err != nil {
		return err
	}
	if u.ID == 0 {
		return zieook_errors.ErrInvalidArgument
	}
	value, err := json.Marshal(u)
	if err != nil {
		return errors.Join(zieook_errors.ErrInvalidArgument, err)
	}
	return store.Set(h, keys.UserKey(u.ID), value)
}

func (e *Engine) GetUser(ctx context.Context, tenant string, id uint64) (model.User, error) {
	h, err := e.handle(tenant)
	if err != nil {
		return model.User{}, err
	}
	value, err := store.Get(h, keys.UserKey(id))
	if err != nil {
		return model.User{}, err
	}
	var u model.User
	if err := json.Unmarshal(value, &u); err != nil {
		return model.User{}, errors.Join(zieook_errors.ErrKeyFormat, err)
	}
	return u, nil
}

func (e *Engine) DeleteUser(ctx context.Context, tenant string, id uint64) error {
	h, err := e.handle(tenant)
	if err != nil {
		return err
	}
	return store.Delete(h, keys.UserKey(id))
}

// ---- collections ----

func (e *Engine) PutCollection(ctx context.Context, tenant string, c model.Collection) error {
	h, err := e.handle(tenant)
	if err != nil {
		return err
	}
	if !keys.ValidName(c.Name) {
		return zieook_errors.ErrInvalidArgument
	}
	value, err := json.Marshal(c)
	if err != nil {
		return errors.Join(zieook_errors.ErrInvalidArgument, err)
	}
	return store.Set(h, keys.CollectionKey(c.Name), value)
}

func (e *Engine) GetCollection(ctx context.Context, tenant, name string) (model.Collection, error) {
	h, err := e.handle(tenant)
	if err != nil {
		return model.Collection{}, err
	}
	value, err := store.Get(h, keys.CollectionKey(name))
	if err != nil {
		return model.Collection{}, err
	}
	var c model.Collection
	if err := json.Unmarshal(value, &c); err != nil {
		return model.Collection{}, errors.Join(zieook_errors.ErrKeyFormat, err)
	}
	return c, nil
}

func (e *Engine) Collections(ctx context.Context, tenant string) ([]model.Collection, error) {
	h, err := e.handle(tenant)
	if err != nil {
		return nil, err
	}
	s := scan.Range(keys.CollectionPrefix())
	var out []model.Collection
	scanErr := s.Run(h.Database(), func(key, value []byte) bool {
		var c model.Collection
		if err := json.Unmarshal(value, &c); err != nil {
			name, _ := keys.ParseCollectionKey(key)
			h.Logger().Warn("skipping malformed collection row", "tenant", tenant, "collection", name, "err", err)
			return true
		}
		out = append(out, c)
		return true
	})
	return out, scanErr
}

func (e *Engine) DeleteCollection(ctx context.Context, tenant, name string) error {
	h, err := e.handle(tenant)
	if err != nil {
		return err
	}
	return store.Delete(h, keys.CollectionKey(name))
}
