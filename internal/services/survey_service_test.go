package services

import (
	"testing"
)

type stubSurveyStore struct {
	*stubSessionStore
	questions []*Question
	records   map[string]*ResponseRecord
}

func newStubSurveyStore(questions ...*Question) *stubSurveyStore {
	return &stubSurveyStore{
		stubSessionStore: newStubSessionStore(),
		questions:        questions,
		records:          map[string]*ResponseRecord{},
	}
}

func (s *stubSurveyStore) ListQuestions(category Category) ([]*Question, error) {
	out := []*Question{}
	for _, q := range s.questions {
		if q.Category == category {
			copy := *q
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (s *stubSurveyStore) GetQuestion(category Category, fieldName string) (*Question, error) {
	for _, q := range s.questions {
		if q.Category == category && q.FieldName == fieldName {
			copy := *q
			return &copy, nil
		}
	}
	return nil, nil
}

func (s *stubSurveyStore) ListResponses(sessionKey string, category Category) ([]*ResponseRecord, error) {
	out := []*ResponseRecord{}
	for _, r := range s.records {
		if r.SessionKey == sessionKey && r.Category == category {
			copy := *r
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (s *stubSurveyStore) UpsertResponse(r *ResponseRecord) (*ResponseRecord, error) {
	copy := *r
	s.records[responseKey(r)] = &copy
	return &copy, nil
}

func (s *stubSurveyStore) InTx(fn func(SurveyStore) error) error {
	return fn(s)
}

func floatPtr(f float64) *float64 { return &f }

func surveyFixture() (*stubSurveyStore, *SurveyService) {
	store := newStubSurveyStore(
		&Question{ID: "q1", Category: CategoryHealth, FieldName: "age", InputType: InputNumber,
			Required: true, DisplayOrder: 1, MinValue: floatPtr(18), MaxValue: floatPtr(100)},
		&Question{ID: "q2", Category: CategoryHealth, FieldName: FieldInHospitalLevel, InputType: InputRadio,
			Required: true, DisplayOrder: 2, Choices: HospitalBenefitChoices},
		&Question{ID: "q3", Category: CategoryHealth, FieldName: "chronic_conditions", InputType: InputCheckbox,
			DisplayOrder: 3, Choices: []Choice{{Value: "None"}, {Value: "diabetes"}, {Value: "asthma"}}},
		&Question{ID: "q4", Category: CategoryHealth, FieldName: "location", InputType: InputText,
			DisplayOrder: 4, MaxLength: 10},
	)
	sessions := NewSessionService(store.stubSessionStore)
	return store, NewSurveyService(store, sessions)
}

func TestQuestionsSortedByDisplayOrder(t *testing.T) {
	store := newStubSurveyStore(
		&Question{ID: "b", Category: CategoryHealth, FieldName: "b", DisplayOrder: 2},
		&Question{ID: "a", Category: CategoryHealth, FieldName: "a", DisplayOrder: 1},
		&Question{ID: "f", Category: CategoryFuneral, FieldName: "f", DisplayOrder: 0},
	)
	svc := NewSurveyService(store, NewSessionService(store.stubSessionStore))

	questions, err := svc.Questions(CategoryHealth)
	if err != nil {
		t.Fatalf("Questions returned error: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("questions len = %d, want 2", len(questions))
	}
	if questions[0].ID != "a" || questions[1].ID != "b" {
		t.Fatalf("order = %s,%s, want a,b", questions[0].ID, questions[1].ID)
	}
}

func TestSubmitAnswersSavesValidRejectsInvalid(t *testing.T) {
	store, svc := surveyFixture()

	result, err := svc.SubmitAnswers("key1", CategoryHealth, map[string]AnswerValue{
		"age":                NumberValue(34),
		FieldInHospitalLevel: StringValue("teleporter"),
		"unknown_field":      StringValue("x"),
	})
	if err != nil {
		t.Fatalf("SubmitAnswers returned error: %v", err)
	}
	if result.Saved != 1 {
		t.Fatalf("saved = %d, want 1", result.Saved)
	}
	if len(result.FieldErrors) != 2 {
		t.Fatalf("field errors = %v, want 2 entries", result.FieldErrors)
	}
	if errs := result.FieldErrors[FieldInHospitalLevel]; len(errs) != 1 || errs[0] != "Please select a valid option" {
		t.Fatalf("choice errors = %v", errs)
	}
	if errs := result.FieldErrors["unknown_field"]; len(errs) != 1 || errs[0] != "Question not found" {
		t.Fatalf("unknown field errors = %v", errs)
	}

	// Session was created implicitly and accumulated the valid answer.
	sess := store.sessions[sessionStoreKey("key1", CategoryHealth)]
	if sess == nil {
		t.Fatalf("expected session to be created")
	}
	if sess.UserCriteria["age"] != 34.0 {
		t.Fatalf("session criteria age = %v, want 34", sess.UserCriteria["age"])
	}
	if result.Completion.IsComplete {
		t.Fatalf("required question still unanswered, must not be complete")
	}
}

func TestSubmitAnswersCompletesSession(t *testing.T) {
	store, svc := surveyFixture()

	result, err := svc.SubmitAnswers("key1", CategoryHealth, map[string]AnswerValue{
		"age":                NumberValue(40),
		FieldInHospitalLevel: StringValue(BenefitBasic),
	})
	if err != nil {
		t.Fatalf("SubmitAnswers returned error: %v", err)
	}
	if !result.Completion.IsComplete {
		t.Fatalf("completion = %+v, want complete", result.Completion)
	}
	if result.Completion.CompletionPercentage != 100 {
		t.Fatalf("percentage = %d, want 100", result.Completion.CompletionPercentage)
	}
	if !store.sessions[sessionStoreKey("key1", CategoryHealth)].IsCompleted {
		t.Fatalf("session not marked completed")
	}
}

func TestSubmitAnswersEmpty(t *testing.T) {
	_, svc := surveyFixture()
	_, err := svc.SubmitAnswers("key1", CategoryHealth, nil)
	if err == nil {
		t.Fatalf("expected error for empty submission")
	}
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorInvalid {
		t.Fatalf("expected invalid error, got %v", err)
	}
}

func TestCompletionStatusCounts(t *testing.T) {
	_, svc := surveyFixture()

	if _, err := svc.SubmitAnswers("key1", CategoryHealth, map[string]AnswerValue{
		"age":      NumberValue(25),
		"location": StringValue("CPT"),
	}); err != nil {
		t.Fatalf("SubmitAnswers returned error: %v", err)
	}

	status, err := svc.CompletionStatus("key1", CategoryHealth)
	if err != nil {
		t.Fatalf("CompletionStatus returned error: %v", err)
	}
	if status.TotalQuestions != 4 || status.RequiredQuestions != 2 {
		t.Fatalf("counts = %+v", status)
	}
	if status.AnsweredTotal != 2 || status.AnsweredRequired != 1 {
		t.Fatalf("answered = %+v", status)
	}
	if status.CompletionPercentage != 50 {
		t.Fatalf("percentage = %d, want 50", status.CompletionPercentage)
	}
}

func TestValidateAnswerNumber(t *testing.T) {
	q := &Question{FieldName: "age", InputType: InputNumber, Required: true,
		MinValue: floatPtr(18), MaxValue: floatPtr(100)}

	if _, errs := ValidateAnswer(q, StringValue("")); len(errs) != 1 || errs[0] != "This field is required" {
		t.Fatalf("required errors = %v", errs)
	}
	if _, errs := ValidateAnswer(q, StringValue("abc")); len(errs) != 1 || errs[0] != "Please enter a valid number" {
		t.Fatalf("parse errors = %v", errs)
	}
	if _, errs := ValidateAnswer(q, NumberValue(17)); len(errs) != 1 || errs[0] != "Value must be at least 18" {
		t.Fatalf("min errors = %v", errs)
	}
	if _, errs := ValidateAnswer(q, NumberValue(101)); len(errs) != 1 || errs[0] != "Value must be at most 100" {
		t.Fatalf("max errors = %v", errs)
	}

	cleaned, errs := ValidateAnswer(q, StringValue("42"))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if cleaned.Kind != ValueNumber || cleaned.Num != 42 {
		t.Fatalf("cleaned = %+v, want number 42", cleaned)
	}
}

func TestValidateAnswerCheckbox(t *testing.T) {
	q := &Question{FieldName: "chronic_conditions", InputType: InputCheckbox,
		Choices: []Choice{{Value: "None"}, {Value: "diabetes"}, {Value: "asthma"}}}

	cleaned, errs := ValidateAnswer(q, StringValue("diabetes, asthma"))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(cleaned.List) != 2 || cleaned.List[0] != "diabetes" || cleaned.List[1] != "asthma" {
		t.Fatalf("cleaned = %+v, want split list", cleaned)
	}

	if _, errs := ValidateAnswer(q, ListValue([]string{"diabetes", "gout"})); len(errs) != 1 || errs[0] != "Invalid choice: gout" {
		t.Fatalf("invalid choice errors = %v", errs)
	}

	// Optional and empty passes through without errors.
	cleaned, errs = ValidateAnswer(q, ListValue(nil))
	if len(errs) != 0 || !cleaned.IsZero() {
		t.Fatalf("empty optional = (%+v, %v)", cleaned, errs)
	}
}

func TestValidateAnswerText(t *testing.T) {
	q := &Question{FieldName: "location", InputType: InputText, MaxLength: 5}

	if _, errs := ValidateAnswer(q, StringValue("Johannesburg")); len(errs) != 1 {
		t.Fatalf("max length errors = %v", errs)
	}
	cleaned, errs := ValidateAnswer(q, StringValue("  CPT  "))
	if len(errs) != 0 || cleaned.Str != "CPT" {
		t.Fatalf("cleaned = %+v, %v, want trimmed CPT", cleaned, errs)
	}
}
