package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mmdatafocus/billing_backend/utils"
)

type Kind string

const (
	KindQuote             Kind = "quote"
	KindInvoice           Kind = "invoice"
	KindPayment           Kind = "payment"
	KindCreditNote        Kind = "creditNote"
	KindRecurringTemplate Kind = "recurringTemplate"

	// KindSequence holds document number counters.
	KindSequence Kind = "sequence"
)

var DocumentKinds = []Kind{KindQuote, KindInvoice, KindPayment, KindCreditNote, KindRecurringTemplate}

// Record is one stored document. Data is the JSON body; Version is owned by
// the store and bumped on every successful Put.
type Record struct {
	Kind      Kind
	ID        string
	Version   int64
	Data      []byte
	UpdatedAt time.Time
}

func (r *Record) clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Data = append([]byte(nil), r.Data...)
	return &c
}

// Store is the key-value persistence contract.
//
// Put is a compare-and-swap: rec.Version must equal the stored version (0 for
// a record that must not exist yet), otherwise ErrConcurrencyConflict is
// returned and nothing is written. On success rec.Version holds the new version.
//
// Tx runs fn against a view of the store whose writes become visible together
// when fn returns nil, or not at all.
type Store interface {
	Get(ctx context.Context, kind Kind, id string) (*Record, error)
	List(ctx context.Context, kind Kind) ([]*Record, error)
	Put(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, kind Kind, id string) error
	Tx(ctx context.Context, fn func(Store) error) error
}

func notFound(kind Kind, id string) error {
	return &utils.NotFoundError{Kind: string(kind), ID: id}
}

func conflict(kind Kind, id string) error {
	return fmt.Errorf("%w: %s %s", utils.ErrConcurrencyConflict, kind, id)
}

func persistenceError(op string, kind Kind, err error) error {
	return &utils.PersistenceError{Op: op, Kind: string(kind), Err: err}
}

func sortRecords(records []*Record) {
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
}

func isNotFound(err error) bool {
	return utils.IsNotFound(err)
}
