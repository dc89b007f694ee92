package repository

import (
	"context"
)

type recordKey struct {
	kind Kind
	id   string
}

// stagedWrite is the final state of one record inside a transaction.
// rec == nil stages a delete. expected is the base version the commit must
// still find.
type stagedWrite struct {
	key      recordKey
	rec      *Record
	expected int64
}

// stagedStore buffers writes over a base store; a commit func applies them.
// Reads see the buffered writes.
type stagedStore struct {
	base   Store
	writes map[recordKey]*stagedWrite
	order  []recordKey
}

func newStagedStore(base Store) *stagedStore {
	return &stagedStore{base: base, writes: map[recordKey]*stagedWrite{}}
}

func (s *stagedStore) pending() []*stagedWrite {
	out := make([]*stagedWrite, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.writes[k])
	}
	return out
}

func (s *stagedStore) Get(ctx context.Context, kind Kind, id string) (*Record, error) {
	if w, ok := s.writes[recordKey{kind, id}]; ok {
		if w.rec == nil {
			return nil, notFound(kind, id)
		}
		return w.rec.clone(), nil
	}
	return s.base.Get(ctx, kind, id)
}

func (s *stagedStore) List(ctx context.Context, kind Kind) ([]*Record, error) {
	base, err := s.base.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(base))
	for _, rec := range base {
		if _, ok := s.writes[recordKey{kind, rec.ID}]; ok {
			continue
		}
		out = append(out, rec)
	}
	for _, k := range s.order {
		w := s.writes[k]
		if k.kind == kind && w.rec != nil {
			out = append(out, w.rec.clone())
		}
	}
	sortRecords(out)
	return out, nil
}

// baseVersion returns the version of the record before this transaction
// touched it, and the version currently visible inside the transaction.
func (s *stagedStore) versions(ctx context.Context, key recordKey) (base int64, visible int64, exists bool, err error) {
	if w, ok := s.writes[key]; ok {
		if w.rec == nil {
			return w.expected, 0, false, nil
		}
		return w.expected, w.rec.Version, true, nil
	}
	rec, err := s.base.Get(ctx, key.kind, key.id)
	if err != nil {
		if isNotFound(err) {
			return 0, 0, false, nil
		}
		return 0, 0, false, err
	}
	return rec.Version, rec.Version, true, nil
}

func (s *stagedStore) stage(key recordKey, w *stagedWrite) {
	if _, ok := s.writes[key]; !ok {
		s.order = append(s.order, key)
	}
	s.writes[key] = w
}

func (s *stagedStore) Put(ctx context.Context, rec *Record) error {
	key := recordKey{rec.Kind, rec.ID}
	base, visible, _, err := s.versions(ctx, key)
	if err != nil {
		return err
	}
	if rec.Version != visible {
		return conflict(rec.Kind, rec.ID)
	}
	staged := rec.clone()
	staged.Version = base + 1
	s.stage(key, &stagedWrite{key: key, rec: staged, expected: base})
	rec.Version = staged.Version
	return nil
}

func (s *stagedStore) Delete(ctx context.Context, kind Kind, id string) error {
	key := recordKey{kind, id}
	base, _, exists, err := s.versions(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return notFound(kind, id)
	}
	s.stage(key, &stagedWrite{key: key, rec: nil, expected: base})
	return nil
}

// Nested transactions join the outer one.
func (s *stagedStore) Tx(ctx context.Context, fn func(Store) error) error {
	return fn(s)
}
