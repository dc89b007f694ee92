package repository

import (
	"context"
	"errors"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// ledgerRecord is the single MySQL table behind GormStore.
type ledgerRecord struct {
	Kind      string    `gorm:"primaryKey;size:32"`
	ID        string    `gorm:"primaryKey;size:64"`
	Version   int64     `gorm:"not null"`
	Data      string    `gorm:"type:longtext;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time
}

func (ledgerRecord) TableName() string {
	return "ledger_records"
}

func (r *ledgerRecord) toRecord() *Record {
	return &Record{
		Kind:      Kind(r.Kind),
		ID:        r.ID,
		Version:   r.Version,
		Data:      []byte(r.Data),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

// GormStore persists records in MySQL through gorm. Writes are CAS updates on
// the version column; Tx maps onto a database transaction.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (g *GormStore) Migrate(ctx context.Context) error {
	return g.db.WithContext(ctx).AutoMigrate(&ledgerRecord{})
}

func (g *GormStore) Get(ctx context.Context, kind Kind, id string) (*Record, error) {
	var row ledgerRecord
	err := g.db.WithContext(ctx).Where("kind = ? AND id = ?", string(kind), id).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(kind, id)
		}
		return nil, persistenceError("get", kind, err)
	}
	return row.toRecord(), nil
}

func (g *GormStore) List(ctx context.Context, kind Kind) ([]*Record, error) {
	var rows []ledgerRecord
	if err := g.db.WithContext(ctx).Where("kind = ?", string(kind)).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, persistenceError("list", kind, err)
	}
	out := make([]*Record, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toRecord())
	}
	return out, nil
}

func (g *GormStore) Put(ctx context.Context, rec *Record) error {
	db := g.db.WithContext(ctx)
	if rec.Version == 0 {
		row := ledgerRecord{
			Kind:      string(rec.Kind),
			ID:        rec.ID,
			Version:   1,
			Data:      string(rec.Data),
			UpdatedAt: rec.UpdatedAt,
		}
		if err := db.Create(&row).Error; err != nil {
			if isDuplicateKey(err) {
				return conflict(rec.Kind, rec.ID)
			}
			return persistenceError("put", rec.Kind, err)
		}
		rec.Version = 1
		return nil
	}

	res := db.Model(&ledgerRecord{}).
		Where("kind = ? AND id = ? AND version = ?", string(rec.Kind), rec.ID, rec.Version).
		Updates(map[string]interface{}{
			"version":    gorm.Expr("version + 1"),
			"data":       string(rec.Data),
			"updated_at": rec.UpdatedAt,
		})
	if res.Error != nil {
		return persistenceError("put", rec.Kind, res.Error)
	}
	if res.RowsAffected == 0 {
		return conflict(rec.Kind, rec.ID)
	}
	rec.Version++
	return nil
}

func (g *GormStore) Delete(ctx context.Context, kind Kind, id string) error {
	res := g.db.WithContext(ctx).Where("kind = ? AND id = ?", string(kind), id).Delete(&ledgerRecord{})
	if res.Error != nil {
		return persistenceError("delete", kind, res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound(kind, id)
	}
	return nil
}

func (g *GormStore) Tx(ctx context.Context, fn func(Store) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func isDuplicateKey(err error) bool {
	var mysqlErr *mysqldriver.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
