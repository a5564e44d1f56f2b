package api

import "github.com/tmashinini/quotewise/internal/services"

type surveyStoreAdapter struct {
	store Store
}

func newSurveyStoreAdapter(store Store) services.SurveyStore {
	return &surveyStoreAdapter{store: store}
}

func (a *surveyStoreAdapter) ListQuestions(category services.Category) ([]*services.Question, error) {
	return a.store.ListQuestions(category)
}

func (a *surveyStoreAdapter) GetQuestion(category services.Category, fieldName string) (*services.Question, error) {
	return a.store.GetQuestion(category, fieldName)
}

func (a *surveyStoreAdapter) ListResponses(sessionKey string, category services.Category) ([]*services.ResponseRecord, error) {
	return a.store.ListResponses(sessionKey, category)
}

func (a *surveyStoreAdapter) UpsertResponse(r *services.ResponseRecord) (*services.ResponseRecord, error) {
	if r == nil {
		return nil, services.NewInvalidError("response required")
	}
	return a.store.UpsertResponse(r)
}

func (a *surveyStoreAdapter) InTx(fn func(services.SurveyStore) error) error {
	return a.store.InTx(func(tx Store) error {
		return fn(newSurveyStoreAdapter(tx))
	})
}

// criteriaStoreAdapter narrows the aggregate store to the read-only slice
// the criteria builder needs.
type criteriaStoreAdapter struct {
	store Store
}

func newCriteriaStoreAdapter(store Store) services.CriteriaStore {
	return &criteriaStoreAdapter{store: store}
}

func (a *criteriaStoreAdapter) ListResponses(sessionKey string, category services.Category) ([]*services.ResponseRecord, error) {
	return a.store.ListResponses(sessionKey, category)
}

var (
	_ services.SurveyStore   = (*surveyStoreAdapter)(nil)
	_ services.CriteriaStore = (*criteriaStoreAdapter)(nil)
)
