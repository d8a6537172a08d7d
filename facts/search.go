package facts

import (
	"context"
	"errors"
	"regexp"

	"github.com/goccy/go-json"

	"github.com/siemvaessen/zieook-sub000/keys"
	"github.com/siemvaessen/zieook-sub000/model"
	"github.com/siemvaessen/zieook-sub000/store"
	"github.com/siemvaessen/zieook-sub000/zieook_errors"
)

// itemMeta loads item metadata through the LRU cache. Absent items
// return ok=false without caching, so a later import becomes visible.
func (s *Store) itemMeta(h store.Handle, id uint64) (model.Item, bool, error) {
	ref := itemRef{h.Tenant(), id}
	if item, ok := s.items.Get(ref); ok {
		return item, true, nil
	}
	value, err := store.Get(h, keys.ItemKey(id))
	if errors.Is(err, zieook_errors.ErrNotFound) {
		return model.Item{}, false, nil
	}
	if err != nil {
		return model.Item{}, false, err
	}
	var item model.Item
	if err := json.Unmarshal(value, &item); err != nil {
		h.Logger().Warn("skipping malformed item row", "tenant", h.Tenant(), "item", id, "err", err)
		DecodeErrors.WithLabelValues(h.Tenant(), "item").Inc()
		return model.Item{}, false, nil
	}
	s.items.Add(ref, item)
	return item, true, nil
}

// SearchRatingsByTitle returns a user's ratings whose item title matches
// the pattern. Candidate item ids are deduplicated before the metadata
// lookup so no item row is fetched twice.
func (s *Store) SearchRatingsByTitle(ctx context.Context, h store.Handle, collection string, user uint64, titlePattern string, limit int) ([]model.Rating, error) {
	re, err := regexp.Compile(titlePattern)
	if err != nil {
		return nil, errors.Join(zieook_errors.ErrInvalidArgument, err)
	}
	ratings, err := s.GetRatingsFor(ctx, h, collection, user)
	if err != nil {
		return nil, err
	}

	matched := make(map[uint64]bool, len(ratings))
	var out []model.Rating
	for _, r := range ratings {
		verdict, seen := matched[r.Item]
		if !seen {
			item, ok, err := s.itemMeta(h, r.Item)
			if err != nil {
				return nil, err
			}
			verdict = ok && re.MatchString(item.Title)
			matched[r.Item] = verdict
		}
		if !verdict {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
