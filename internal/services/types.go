package services

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category is the top-level insurance product line a survey belongs to.
type Category string

const (
	CategoryHealth  Category = "health"
	CategoryFuneral Category = "funeral"
)

// ParseCategory validates a raw category string.
func ParseCategory(raw string) (Category, error) {
	switch Category(strings.TrimSpace(raw)) {
	case CategoryHealth:
		return CategoryHealth, nil
	case CategoryFuneral:
		return CategoryFuneral, nil
	}
	return "", NewInvalidError("invalid category: " + raw)
}

// InputType describes the control a question renders as, which also
// constrains the shape of its answers.
type InputType string

const (
	InputText     InputType = "text"
	InputNumber   InputType = "number"
	InputSelect   InputType = "select"
	InputRadio    InputType = "radio"
	InputCheckbox InputType = "checkbox"
)

// Choice is one selectable option of a select/radio/checkbox question.
type Choice struct {
	Value       string `json:"value"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// Question is a survey question definition. (Category, FieldName) is unique.
type Question struct {
	ID           string    `json:"id"`
	Category     Category  `json:"category"`
	Text         string    `json:"text"`
	FieldName    string    `json:"field_name"`
	InputType    InputType `json:"input_type"`
	Choices      []Choice  `json:"choices,omitempty"`
	Required     bool      `json:"required"`
	DisplayOrder int       `json:"display_order"`
	MinValue     *float64  `json:"min_value,omitempty"`
	MaxValue     *float64  `json:"max_value,omitempty"`
	MaxLength    int       `json:"max_length,omitempty"`
}

// ValueKind tags the concrete shape carried by an AnswerValue.
type ValueKind int

const (
	ValueNone ValueKind = iota
	ValueString
	ValueNumber
	ValueBool
	ValueList
)

// AnswerValue is the polymorphic response payload: exactly one of the typed
// fields is meaningful, selected by Kind.
type AnswerValue struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
	List []string
}

func StringValue(s string) AnswerValue  { return AnswerValue{Kind: ValueString, Str: s} }
func NumberValue(n float64) AnswerValue { return AnswerValue{Kind: ValueNumber, Num: n} }
func BoolValue(b bool) AnswerValue      { return AnswerValue{Kind: ValueBool, Bool: b} }
func ListValue(l []string) AnswerValue  { return AnswerValue{Kind: ValueList, List: l} }

// ValueOf converts loosely typed input (decoded JSON, criteria maps) into an
// AnswerValue.
func ValueOf(v any) AnswerValue {
	switch t := v.(type) {
	case nil:
		return AnswerValue{}
	case AnswerValue:
		return t
	case string:
		return StringValue(t)
	case bool:
		return BoolValue(t)
	case float64:
		return NumberValue(t)
	case int:
		return NumberValue(float64(t))
	case int64:
		return NumberValue(float64(t))
	case []string:
		return ListValue(t)
	case []any:
		list := make([]string, 0, len(t))
		for _, item := range t {
			list = append(list, ValueOf(item).Display())
		}
		return ListValue(list)
	}
	return StringValue(toString(v))
}

// IsZero reports whether the value carries no answer at all.
func (v AnswerValue) IsZero() bool { return v.Kind == ValueNone }

// IsEmpty reports whether the value should be treated as an unanswered field
// for required-question validation.
func (v AnswerValue) IsEmpty() bool {
	switch v.Kind {
	case ValueNone:
		return true
	case ValueString:
		return strings.TrimSpace(v.Str) == ""
	case ValueList:
		return len(v.List) == 0
	}
	return false
}

// AsNumber returns the numeric interpretation of the value, parsing string
// payloads when possible.
func (v AnswerValue) AsNumber() (float64, bool) {
	switch v.Kind {
	case ValueNumber:
		return v.Num, true
	case ValueString:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	case ValueBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// AsBool returns the truthiness of the value. Strings recognise yes/no
// spellings and otherwise fall back to non-empty truthiness, matching how the
// legacy binary questions were stored.
func (v AnswerValue) AsBool() bool {
	switch v.Kind {
	case ValueBool:
		return v.Bool
	case ValueNumber:
		return v.Num != 0
	case ValueString:
		switch strings.ToLower(strings.TrimSpace(v.Str)) {
		case "", "false", "no", "0":
			return false
		}
		return true
	case ValueList:
		return len(v.List) > 0
	}
	return false
}

// Display renders a human-readable form of the value.
func (v AnswerValue) Display() string {
	switch v.Kind {
	case ValueString:
		return v.Str
	case ValueNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case ValueBool:
		return strconv.FormatBool(v.Bool)
	case ValueList:
		return strings.Join(v.List, ", ")
	}
	return ""
}

// Any unwraps the value into the plain Go type used in criteria maps.
func (v AnswerValue) Any() any {
	switch v.Kind {
	case ValueString:
		return v.Str
	case ValueNumber:
		return v.Num
	case ValueBool:
		return v.Bool
	case ValueList:
		return v.List
	}
	return nil
}

// MarshalJSON encodes the underlying payload, not the wrapper.
func (v AnswerValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// UnmarshalJSON infers the kind from the JSON shape.
func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = ValueOf(raw)
	return nil
}

// ResponseRecord is one answer, upserted per (session key, field).
type ResponseRecord struct {
	SessionKey string      `json:"session_key"`
	Category   Category    `json:"category"`
	FieldName  string      `json:"field_name"`
	Value      AnswerValue `json:"value"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Session tracks one anonymous survey lifecycle per (session key, category).
type Session struct {
	SessionKey   string         `json:"session_key"`
	Category     Category       `json:"category"`
	UserCriteria map[string]any `json:"user_criteria,omitempty"`
	IsCompleted  bool           `json:"is_completed"`
	CreatedAt    time.Time      `json:"created_at"`
	ExpiresAt    time.Time      `json:"expires_at"`
}

// IsExpired reports whether the session has passed its expiry time.
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Clone returns a deep copy, so callers can mutate session state without
// aliasing store-held records.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	if s.UserCriteria != nil {
		cp.UserCriteria = make(map[string]any, len(s.UserCriteria))
		for k, v := range s.UserCriteria {
			cp.UserCriteria[k] = v
		}
	}
	return &cp
}

// SessionLifetime is how long a session lives without renewal.
const SessionLifetime = 24 * time.Hour

// DefaultCleanupBatchSize bounds how many expired sessions one cleanup call
// processes.
const DefaultCleanupBatchSize = 100

type ErrorCode string

const (
	ErrorInvalid      ErrorCode = "invalid"
	ErrorNotFound     ErrorCode = "not_found"
	ErrorConflict     ErrorCode = "conflict"
	ErrorUnauthorized ErrorCode = "unauthorized"
)

type ServiceError struct {
	Code    ErrorCode
	Message string
}

func (e *ServiceError) Error() string { return e.Message }

func NewInvalidError(msg string) error  { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewNotFoundError(msg string) error { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewConflictError(msg string) error { return &ServiceError{Code: ErrorConflict, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// NewSessionKey generates an opaque session identifier.
func NewSessionKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
