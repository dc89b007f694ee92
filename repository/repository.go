package repository

import (
	"context"
	"encoding/json"

	"github.com/mmdatafocus/billing_backend/events"
	"github.com/mmdatafocus/billing_backend/models"
	"github.com/mmdatafocus/billing_backend/utils"
	"github.com/sirupsen/logrus"
)

const sequenceMaxAttempts = 8

// Repository is the typed document API over a Store. Every committed
// mutation publishes one events.DocumentChanged; inside Tx the events are
// held back until the commit succeeds.
type Repository struct {
	store     Store
	publisher events.Publisher
	clock     utils.Clock
	logger    *logrus.Logger

	pending *[]events.DocumentChanged
}

func New(store Store, publisher events.Publisher, clock utils.Clock, logger *logrus.Logger) *Repository {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &Repository{store: store, publisher: publisher, clock: clock, logger: logger}
}

func (r *Repository) Store() Store {
	return r.store
}

func (r *Repository) InTx() bool {
	return r.pending != nil
}

// Tx runs fn with a repository bound to one store transaction. A nested call
// joins the outer transaction.
func (r *Repository) Tx(ctx context.Context, fn func(tx *Repository) error) error {
	if r.pending != nil {
		return fn(r)
	}
	var buffered []events.DocumentChanged
	err := r.store.Tx(ctx, func(s Store) error {
		buffered = buffered[:0]
		tx := &Repository{store: s, publisher: r.publisher, clock: r.clock, logger: r.logger, pending: &buffered}
		return fn(tx)
	})
	if err != nil {
		return err
	}
	r.publish(ctx, buffered)
	return nil
}

func (r *Repository) emit(ctx context.Context, kind Kind, id string, action events.Action) {
	evt := events.DocumentChanged{
		Kind:       string(kind),
		ID:         id,
		Action:     action,
		OccurredAt: r.clock.Now(),
	}
	if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		evt.CorrelationId = cid
	}
	if r.pending != nil {
		*r.pending = append(*r.pending, evt)
		return
	}
	r.publish(ctx, []events.DocumentChanged{evt})
}

// publish never fails the mutation that already committed.
func (r *Repository) publish(ctx context.Context, evts []events.DocumentChanged) {
	ctx = context.WithoutCancel(ctx)
	for _, evt := range evts {
		if err := r.publisher.Publish(ctx, evt); err != nil && r.logger != nil {
			r.logger.WithFields(logrus.Fields{
				"field":  "Repository",
				"kind":   evt.Kind,
				"id":     evt.ID,
				"action": evt.Action,
			}).Warn("document changed event not published: " + err.Error())
		}
	}
}

func decodeDoc[T any, PT interface {
	*T
	models.Versioned
}](rec *Record) (PT, error) {
	var v T
	if err := utils.UnmarshalFromJSON(rec.Data, &v); err != nil {
		return nil, persistenceError("decode", rec.Kind, err)
	}
	doc := PT(&v)
	doc.SetVersion(rec.Version)
	return doc, nil
}

func getDoc[T any, PT interface {
	*T
	models.Versioned
}](ctx context.Context, s Store, kind Kind, id string) (PT, error) {
	rec, err := s.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	return decodeDoc[T, PT](rec)
}

func listDocs[T any, PT interface {
	*T
	models.Versioned
}](ctx context.Context, s Store, kind Kind) ([]PT, error) {
	recs, err := s.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make([]PT, 0, len(recs))
	for _, rec := range recs {
		doc, err := decodeDoc[T, PT](rec)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (r *Repository) save(ctx context.Context, kind Kind, doc models.Versioned) error {
	if doc.GetId() == "" {
		return utils.NewValidationError("id", utils.ErrMissingField, "is required")
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return persistenceError("encode", kind, err)
	}
	created := doc.GetVersion() == 0
	rec := &Record{
		Kind:      kind,
		ID:        doc.GetId(),
		Version:   doc.GetVersion(),
		Data:      data,
		UpdatedAt: r.clock.Now(),
	}
	if err := r.store.Put(ctx, rec); err != nil {
		return err
	}
	doc.SetVersion(rec.Version)
	action := events.ActionUpdated
	if created {
		action = events.ActionCreated
	}
	r.emit(ctx, kind, rec.ID, action)
	return nil
}

func (r *Repository) delete(ctx context.Context, kind Kind, id string) error {
	if err := r.store.Delete(ctx, kind, id); err != nil {
		return err
	}
	r.emit(ctx, kind, id, events.ActionDeleted)
	return nil
}

type sequenceValue struct {
	Last int64 `json:"last"`
}

// NextNumber increments the named counter and returns the new value,
// starting at 1. Outside a transaction CAS conflicts are retried; inside one
// they surface at commit.
func (r *Repository) NextNumber(ctx context.Context, series string) (int64, error) {
	var lastErr error
	for attempt := 0; attempt < sequenceMaxAttempts; attempt++ {
		var cur sequenceValue
		version := int64(0)
		rec, err := r.store.Get(ctx, KindSequence, series)
		switch {
		case err == nil:
			if err := json.Unmarshal(rec.Data, &cur); err != nil {
				return 0, persistenceError("decode", KindSequence, err)
			}
			version = rec.Version
		case !utils.IsNotFound(err):
			return 0, err
		}

		next := cur.Last + 1
		data, _ := json.Marshal(sequenceValue{Last: next})
		err = r.store.Put(ctx, &Record{Kind: KindSequence, ID: series, Version: version, Data: data, UpdatedAt: r.clock.Now()})
		if err == nil {
			return next, nil
		}
		if !utils.IsConflict(err) || r.pending != nil {
			return 0, err
		}
		lastErr = err
	}
	return 0, lastErr
}

// EnsureNumberAtLeast raises the counter so the next NextNumber is above floor.
func (r *Repository) EnsureNumberAtLeast(ctx context.Context, series string, floor int64) error {
	for attempt := 0; attempt < sequenceMaxAttempts; attempt++ {
		var cur sequenceValue
		version := int64(0)
		rec, err := r.store.Get(ctx, KindSequence, series)
		switch {
		case err == nil:
			if err := json.Unmarshal(rec.Data, &cur); err != nil {
				return persistenceError("decode", KindSequence, err)
			}
			version = rec.Version
		case !utils.IsNotFound(err):
			return err
		}
		if cur.Last >= floor {
			return nil
		}
		data, _ := json.Marshal(sequenceValue{Last: floor})
		err = r.store.Put(ctx, &Record{Kind: KindSequence, ID: series, Version: version, Data: data, UpdatedAt: r.clock.Now()})
		if err == nil || !utils.IsConflict(err) || r.pending != nil {
			return err
		}
	}
	return conflict(KindSequence, series)
}
