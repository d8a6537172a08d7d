// Package tasks is the scheduler store: CRUD and multi-predicate search
// over scheduled and executed units of work, with monotonic id
// allocation. Tasks live in the system database; the scheduler itself
// (deciding when to run what) is an external collaborator.
package tasks

import (
	"context"
	"fmt"

	"github.com/siemvaessen/zieook-sub000/counters"
	"github.com/siemvaessen/zieook-sub000/keys"
	"github.com/siemvaessen/zieook-sub000/scan"
	"github.com/siemvaessen/zieook-sub000/store"
	"github.com/siemvaessen/zieook-sub000/zieook_errors"
)

type Type string

const (
	TypeCollection  Type = "collection"
	TypeRecommender Type = "recommender"
	TypeStatistics  Type = "statistics"
)

func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeCollection, TypeRecommender, TypeStatistics:
		return Type(s), nil
	}
	return "", fmt.Errorf("%w: task type %q", zieook_errors.ErrInvalidArgument, s)
}

func taskTypeTag(t Type) byte {
	switch t {
	case TypeCollection:
		return 'C'
	case TypeRecommender:
		return 'R'
	case TypeStatistics:
		return 'S'
	}
	return 0
}

func taskTypeFromTag(tag byte) (Type, bool) {
	switch tag {
	case 'C':
		return TypeCollection, true
	case 'R':
		return TypeRecommender, true
	case 'S':
		return TypeStatistics, true
	}
	return "", false
}

// Task is a unit of scheduled or executed work. Dimension carries the
// type-specific name: the collection for import tasks, the recommender
// for model builds. Next and Start are millisecond timestamps; Result is
// empty until the task completed.
type Task struct {
	ID        uint64            `json:"id"`
	Type      Type              `json:"type"`
	Tenant    string            `json:"tenant"`
	Dimension string            `json:"dimension,omitempty"`
	Next      uint64            `json:"next,omitempty"`
	Start     uint64            `json:"start,omitempty"`
	Result    string            `json:"result,omitempty"`
	Payload   map[string]string `json:"payload,omitempty"`
}

type Store struct {
	h     store.Handle
	alloc *counters.Allocator
}

// New builds a task store on the system handle.
func New(h store.Handle) *Store {
	return &Store{h: h, alloc: counters.NewTaskAllocator(h)}
}

// AllocateID returns a unique, strictly increasing task id.
func (s *Store) AllocateID() (uint64, error) {
	return s.alloc.Next()
}

func (s *Store) check(t *Task) error {
	if taskTypeTag(t.Type) == 0 {
		return fmt.Errorf("%w: task type %q", zieook_errors.ErrInvalidArgument, t.Type)
	}
	if !keys.ValidName(t.Tenant) {
		return fmt.Errorf("%w: task tenant %q", zieook_errors.ErrInvalidArgument, t.Tenant)
	}
	return nil
}

// Create stores a task, allocating its id when unset.
func (s *Store) Create(ctx context.Context, t *Task) error {
	if err := s.check(t); err != nil {
		return err
	}
	if t.ID == 0 {
		id, err := s.AllocateID()
		if err != nil {
			return err
		}
		t.ID = id
	}
	value, err := taskValue(t)
	if err != nil {
		return err
	}
	return store.Set(s.h, keys.TaskKey(t.ID), value)
}

func (s *Store) Get(ctx context.Context, id uint64) (Task, error) {
	value, err := store.Get(s.h, keys.TaskKey(id))
	if err != nil {
		return Task{}, err
	}
	return parseTaskValue(id, value)
}

// Update is delete-then-recreate; there are no partial-update
// semantics.
func (s *Store) Update(ctx context.Context, t *Task) error {
	if t.ID == 0 {
		return fmt.Errorf("%w: update without task id", zieook_errors.ErrInvalidArgument)
	}
	if err := s.check(t); err != nil {
		return err
	}
	if err := s.Delete(ctx, t.ID); err != nil {
		return err
	}
	return s.Create(ctx, t)
}

func (s *Store) Delete(ctx context.Context, id uint64) error {
	return store.Delete(s.h, keys.TaskKey(id))
}

// TimeField selects which timestamp a search window applies to.
type TimeField byte

const (
	ByNone TimeField = iota
	ByNext
	ByStart
)

// Query is the compound task search predicate. Type and Tenant are
// mandatory; the rest are optional refinements.
type Query struct {
	Type   Type
	Tenant string

	Dimension string

	Field TimeField
	From  uint64
	To    uint64

	// Result filters on the completion result; Completed alone matches
	// any non-empty result.
	Result    string
	Completed bool
}

func (q *Query) filter() (scan.Filter, error) {
	tag := taskTypeTag(q.Type)
	if tag == 0 {
		return nil, fmt.Errorf("%w: task type %q", zieook_errors.ErrInvalidArgument, q.Type)
	}
	if !keys.ValidName(q.Tenant) {
		return nil, fmt.Errorf("%w: task tenant %q", zieook_errors.ErrInvalidArgument, q.Tenant)
	}
	filters := []scan.Filter{
		scan.ValueCmp(columnType, scan.OpEq, []byte{tag}),
		scan.ValueCmp(columnTenant, scan.OpEq, []byte(q.Tenant)),
	}
	if q.Dimension != "" {
		filters = append(filters, scan.ValueCmp(columnDimension, scan.OpEq, []byte(q.Dimension)))
	}
	if q.Field != ByNone {
		column := columnNext
		if q.Field == ByStart {
			column = columnStart
		}
		filters = append(filters,
			scan.Or(
				scan.ValueCmp(column, scan.OpGt, keys.TimeValue(q.From)),
				scan.ValueCmp(column, scan.OpEq, keys.TimeValue(q.From)),
			),
			scan.Or(
				scan.ValueCmp(column, scan.OpLt, keys.TimeValue(q.To)),
				scan.ValueCmp(column, scan.OpEq, keys.TimeValue(q.To)),
			),
		)
	}
	if q.Result != "" {
		filters = append(filters, scan.ValueCmp(columnResult, scan.OpEq, []byte(q.Result)))
	} else if q.Completed {
		filters = append(filters, scan.ValueCmp(columnResult, scan.OpGt, nil))
	}
	return scan.And(filters...), nil
}

// Search returns the ids of matching tasks, ascending. Only the id is
// materialized per row, keeping memory flat on large scans.
func (s *Store) Search(ctx context.Context, q Query) ([]uint64, error) {
	filter, err := q.filter()
	if err != nil {
		return nil, err
	}
	sc := &scan.Scanner{Lower: keys.FamilyPrefix(keys.FamTask), Filter: filter}
	var out []uint64
	snap := s.h.Snapshot()
	defer snap.Close()
	err = sc.Run(snap, func(key, _ []byte) bool {
		id, kerr := keys.ParseTaskKey(key)
		if kerr != nil {
			s.h.Logger().WarnCtx(ctx, "skipping malformed task row", "err", kerr)
			return true
		}
		out = append(out, id)
		return true
	})
	return out, err
}

// SearchCompleted returns ids of completed tasks of a type and tenant,
// optionally narrowed to one dimension value.
func (s *Store) SearchCompleted(ctx context.Context, typ Type, tenant, dimension string) ([]uint64, error) {
	return s.Search(ctx, Query{Type: typ, Tenant: tenant, Dimension: dimension, Completed: true})
}

// SearchFuture returns ids of tasks scheduled after now.
func (s *Store) SearchFuture(ctx context.Context, typ Type, tenant, dimension string, now uint64) ([]uint64, error) {
	if now == keys.MaxTime {
		return nil, nil
	}
	return s.Search(ctx, Query{
		Type: typ, Tenant: tenant, Dimension: dimension,
		Field: ByNext, From: now + 1, To: keys.MaxTime,
	})
}

// SearchLatest returns the most recently started matching task.
func (s *Store) SearchLatest(ctx context.Context, typ Type, tenant, dimension string) (Task, error) {
	q := Query{Type: typ, Tenant: tenant, Dimension: dimension}
	filter, err := q.filter()
	if err != nil {
		return Task{}, err
	}
	sc := &scan.Scanner{Lower: keys.FamilyPrefix(keys.FamTask), Filter: filter}
	var bestID uint64
	var bestStart uint64
	found := false
	snap := s.h.Snapshot()
	defer snap.Close()
	err = sc.Run(snap, func(key, value []byte) bool {
		column, ok := columnStart(key, value)
		if !ok {
			return true
		}
		start, perr := keys.ParseTimeValue(column)
		if perr != nil {
			return true
		}
		id, kerr := keys.ParseTaskKey(key)
		if kerr != nil {
			return true
		}
		if !found || start > bestStart || (start == bestStart && id > bestID) {
			bestID, bestStart, found = id, start, true
		}
		return true
	})
	if err != nil {
		return Task{}, err
	}
	if !found {
		return Task{}, zieook_errors.ErrNotFound
	}
	return s.Get(ctx, bestID)
}
