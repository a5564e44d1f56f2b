package api

import "github.com/tmashinini/quotewise/internal/services"

type migrationStoreAdapter struct {
	store Store
}

func newMigrationStoreAdapter(store Store) services.MigrationStore {
	return &migrationStoreAdapter{store: store}
}

func (a *migrationStoreAdapter) ListResponses(sessionKey string, category services.Category) ([]*services.ResponseRecord, error) {
	return a.store.ListResponses(sessionKey, category)
}

func (a *migrationStoreAdapter) GetQuestion(category services.Category, fieldName string) (*services.Question, error) {
	return a.store.GetQuestion(category, fieldName)
}

func (a *migrationStoreAdapter) UpsertResponse(r *services.ResponseRecord) (*services.ResponseRecord, error) {
	if r == nil {
		return nil, services.NewInvalidError("response required")
	}
	return a.store.UpsertResponse(r)
}

func (a *migrationStoreAdapter) DeleteResponses(sessionKey string, category services.Category, fields ...string) (int, error) {
	return a.store.DeleteResponses(sessionKey, category, fields...)
}

func (a *migrationStoreAdapter) InTx(fn func(services.MigrationStore) error) error {
	return a.store.InTx(func(tx Store) error {
		return fn(newMigrationStoreAdapter(tx))
	})
}

var _ services.MigrationStore = (*migrationStoreAdapter)(nil)
