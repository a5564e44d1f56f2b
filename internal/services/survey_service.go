package services

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// SurveyStore abstracts persistence operations required by SurveyService.
type SurveyStore interface {
	ListQuestions(category Category) ([]*Question, error)
	GetQuestion(category Category, fieldName string) (*Question, error)
	ListResponses(sessionKey string, category Category) ([]*ResponseRecord, error)
	UpsertResponse(r *ResponseRecord) (*ResponseRecord, error)
	InTx(fn func(SurveyStore) error) error
}

// SubmitResult reports one answer-submission attempt. Valid answers are
// saved even when other fields in the same submission fail validation.
type SubmitResult struct {
	Saved       int                 `json:"saved"`
	FieldErrors map[string][]string `json:"field_errors,omitempty"`
	Completion  CompletionStatus    `json:"completion"`
}

// CompletionStatus describes how far a session has progressed through the
// category's required questions.
type CompletionStatus struct {
	SessionKey           string   `json:"session_key"`
	Category             Category `json:"category"`
	IsComplete           bool     `json:"is_complete"`
	TotalQuestions       int      `json:"total_questions"`
	RequiredQuestions    int      `json:"required_questions"`
	AnsweredTotal        int      `json:"answered_total"`
	AnsweredRequired     int      `json:"answered_required"`
	CompletionPercentage int      `json:"completion_percentage"`
}

// SurveyService serves question definitions and validates, cleans, and
// stores answers. Each submission touches the session so its expiry
// extends with activity.
type SurveyService struct {
	store    SurveyStore
	sessions *SessionService
	logger   *slog.Logger
}

func NewSurveyService(store SurveyStore, sessions *SessionService) *SurveyService {
	return &SurveyService{store: store, sessions: sessions, logger: slog.Default()}
}

// Questions returns the category's questions in display order.
func (s *SurveyService) Questions(category Category) ([]*Question, error) {
	questions, err := s.store.ListQuestions(category)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].DisplayOrder < questions[j].DisplayOrder
	})
	return questions, nil
}

// SubmitAnswers validates each answer against its question definition and
// upserts the valid ones in a single transaction. Invalid fields are
// reported per field and do not block the rest of the submission. Cleaned
// values are also merged into the session's accumulated criteria.
func (s *SurveyService) SubmitAnswers(sessionKey string, category Category, answers map[string]AnswerValue) (SubmitResult, error) {
	if len(answers) == 0 {
		return SubmitResult{}, NewInvalidError("no answers submitted")
	}

	session, _, err := s.sessions.CreateOrGetSession(sessionKey, category)
	if err != nil {
		return SubmitResult{}, err
	}

	fieldErrors := map[string][]string{}
	cleaned := map[string]AnswerValue{}
	for field, value := range answers {
		question, err := s.store.GetQuestion(category, field)
		if err != nil {
			return SubmitResult{}, err
		}
		if question == nil {
			fieldErrors[field] = []string{"Question not found"}
			continue
		}
		cleanedValue, errs := ValidateAnswer(question, value)
		if len(errs) > 0 {
			fieldErrors[field] = errs
			continue
		}
		cleaned[field] = cleanedValue
	}

	if len(cleaned) > 0 {
		err = s.store.InTx(func(tx SurveyStore) error {
			for field, value := range cleaned {
				if _, err := tx.UpsertResponse(&ResponseRecord{
					SessionKey: session.SessionKey,
					Category:   category,
					FieldName:  field,
					Value:      value,
				}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return SubmitResult{}, err
		}

		criteria := make(map[string]any, len(cleaned))
		for field, value := range cleaned {
			criteria[field] = value.Any()
		}
		if _, err := s.sessions.UpdateCriteria(session.SessionKey, category, criteria); err != nil {
			return SubmitResult{}, err
		}
	}

	completion, err := s.CompletionStatus(session.SessionKey, category)
	if err != nil {
		return SubmitResult{}, err
	}
	if completion.IsComplete {
		if _, err := s.sessions.MarkCompleted(session.SessionKey, category); err != nil {
			return SubmitResult{}, err
		}
	}

	s.logger.Info("answers submitted",
		"session_key", shortKey(session.SessionKey),
		"category", category,
		"saved", len(cleaned),
		"rejected", len(fieldErrors))

	result := SubmitResult{Saved: len(cleaned), Completion: completion}
	if len(fieldErrors) > 0 {
		result.FieldErrors = fieldErrors
	}
	return result, nil
}

// CompletionStatus reports progress through the category's required
// questions for a session.
func (s *SurveyService) CompletionStatus(sessionKey string, category Category) (CompletionStatus, error) {
	questions, err := s.store.ListQuestions(category)
	if err != nil {
		return CompletionStatus{}, err
	}
	responses, err := s.store.ListResponses(sessionKey, category)
	if err != nil {
		return CompletionStatus{}, err
	}

	required := map[string]bool{}
	for _, q := range questions {
		if q.Required {
			required[q.FieldName] = true
		}
	}

	answeredRequired := 0
	for _, r := range responses {
		if required[r.FieldName] {
			answeredRequired++
		}
	}

	status := CompletionStatus{
		SessionKey:        sessionKey,
		Category:          category,
		TotalQuestions:    len(questions),
		RequiredQuestions: len(required),
		AnsweredTotal:     len(responses),
		AnsweredRequired:  answeredRequired,
	}
	if len(required) == 0 {
		status.IsComplete = true
		status.CompletionPercentage = 100
	} else {
		status.IsComplete = answeredRequired >= len(required)
		status.CompletionPercentage = answeredRequired * 100 / len(required)
	}
	return status, nil
}

// ValidateAnswer checks a raw answer against the question's constraints and
// returns the cleaned value. A non-empty error list means the answer must
// not be stored.
func ValidateAnswer(q *Question, value AnswerValue) (AnswerValue, []string) {
	if value.IsEmpty() {
		if q.Required {
			return AnswerValue{}, []string{"This field is required"}
		}
		return AnswerValue{}, nil
	}

	switch q.InputType {
	case InputNumber:
		n, ok := value.AsNumber()
		if !ok {
			return AnswerValue{}, []string{"Please enter a valid number"}
		}
		var errs []string
		if q.MinValue != nil && n < *q.MinValue {
			errs = append(errs, fmt.Sprintf("Value must be at least %g", *q.MinValue))
		}
		if q.MaxValue != nil && n > *q.MaxValue {
			errs = append(errs, fmt.Sprintf("Value must be at most %g", *q.MaxValue))
		}
		if len(errs) > 0 {
			return AnswerValue{}, errs
		}
		return NumberValue(n), nil

	case InputSelect, InputRadio:
		choice := strings.TrimSpace(value.Display())
		if !validChoice(q.Choices, choice) {
			return AnswerValue{}, []string{"Please select a valid option"}
		}
		return StringValue(choice), nil

	case InputCheckbox:
		selections := asSelectionList(value)
		if selections == nil {
			return AnswerValue{}, []string{"Invalid checkbox response format"}
		}
		for _, sel := range selections {
			if !validChoice(q.Choices, sel) {
				return AnswerValue{}, []string{"Invalid choice: " + sel}
			}
		}
		return ListValue(selections), nil

	default: // text
		text := strings.TrimSpace(value.Display())
		if q.MaxLength > 0 && len(text) > q.MaxLength {
			return AnswerValue{}, []string{fmt.Sprintf("Text must be no more than %d characters", q.MaxLength)}
		}
		return StringValue(text), nil
	}
}

func validChoice(choices []Choice, value string) bool {
	for _, c := range choices {
		if c.Value == value {
			return true
		}
	}
	return false
}

// asSelectionList coerces a checkbox answer into a list, splitting
// comma-separated strings.
func asSelectionList(value AnswerValue) []string {
	switch value.Kind {
	case ValueList:
		return value.List
	case ValueString:
		var out []string
		for _, part := range strings.Split(value.Str, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return nil
}
