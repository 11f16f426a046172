package kvstore

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/flowcore/flowcore/internal/errs"
)

// entryModel is the flat row shape a BunKeyValueStore persists, grounded
// in mbflow's bun.BaseModel tagging convention (internal/infrastructure/
// storage/bun_store.go's WorkflowModel/NodeModel/etc).
type entryModel struct {
	bun.BaseModel `bun:"table:kv_entries,alias:kv"`

	Namespace string `bun:"namespace,pk"`
	Key       string `bun:"key,pk"`
	Value     string `bun:"value,type:text"`
}

// BunKeyValueStore persists entries to Postgres via uptrace/bun, the same
// driver stack mbflow's storage layer uses.
type BunKeyValueStore struct {
	db *bun.DB
}

// NewBunKeyValueStore opens a connection pool against dsn.
func NewBunKeyValueStore(dsn string) *BunKeyValueStore {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return &BunKeyValueStore{db: bun.NewDB(sqldb, pgdialect.New())}
}

// InitSchema creates the backing table if it does not already exist.
func (s *BunKeyValueStore) InitSchema(ctx context.Context) error {
	_, err := s.db.NewCreateTable().Model((*entryModel)(nil)).IfNotExists().Exec(ctx)
	return err
}

func (s *BunKeyValueStore) Get(ctx context.Context, namespace, key string) (string, error) {
	model := new(entryModel)
	err := s.db.NewSelect().Model(model).Where("namespace = ? AND key = ?", namespace, key).Scan(ctx)
	if err != nil {
		return "", errs.NotFound(namespace + "/" + key)
	}
	return model.Value, nil
}

func (s *BunKeyValueStore) Set(ctx context.Context, namespace, key, value string) error {
	model := &entryModel{Namespace: namespace, Key: key, Value: value}
	_, err := s.db.NewInsert().Model(model).On("CONFLICT (namespace, key) DO UPDATE").Exec(ctx)
	if err != nil {
		return errs.Wrap(errs.KindExternalService, "writing kv entry", err, nil)
	}
	return nil
}

func (s *BunKeyValueStore) Delete(ctx context.Context, namespace, key string) error {
	_, err := s.db.NewDelete().Model((*entryModel)(nil)).Where("namespace = ? AND key = ?", namespace, key).Exec(ctx)
	if err != nil {
		return errs.Wrap(errs.KindExternalService, "deleting kv entry", err, nil)
	}
	return nil
}

func (s *BunKeyValueStore) List(ctx context.Context, namespace string) ([]string, error) {
	var models []entryModel
	if err := s.db.NewSelect().Model(&models).Where("namespace = ?", namespace).Scan(ctx); err != nil {
		return nil, errs.Wrap(errs.KindExternalService, "listing kv entries", err, nil)
	}
	out := make([]string, len(models))
	for i, m := range models {
		out[i] = m.Key
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (s *BunKeyValueStore) Close() error { return s.db.Close() }
