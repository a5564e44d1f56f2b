package services

import (
	"fmt"
	"log/slog"
)

// Survey field names involved in the schema migration. The old generation is
// the retired binary question set; the new generation replaces it with
// benefit levels and bucketed ranges.
const (
	FieldWantsInHospital  = "wants_in_hospital_benefit"
	FieldWantsOutHospital = "wants_out_hospital_benefit"
	FieldMedicalAid       = "currently_on_medical_aid"

	FieldInHospitalLevel  = "in_hospital_benefit_level"
	FieldOutHospitalLevel = "out_hospital_benefit_level"
	FieldFamilyRange      = "annual_limit_family_range"
	FieldMemberRange      = "annual_limit_member_range"

	// Numeric legacy fields used only for range inference.
	FieldFamilyLimit     = "preferred_annual_limit_per_family"
	FieldMemberLimit     = "preferred_annual_limit"
	FieldHouseholdIncome = "monthly_household_income"
)

var oldFormatFields = []string{
	FieldWantsInHospital,
	FieldWantsOutHospital,
	FieldMedicalAid, // retired outright, no replacement field
}

var newFormatFields = []string{
	FieldInHospitalLevel,
	FieldOutHospitalLevel,
	FieldFamilyRange,
	FieldMemberRange,
}

func isOldFormatField(field string) bool {
	for _, f := range oldFormatFields {
		if f == field {
			return true
		}
	}
	return false
}

func isNewFormatField(field string) bool {
	for _, f := range newFormatFields {
		if f == field {
			return true
		}
	}
	return false
}

// MigrationStatus classifies a session's responses by schema generation.
type MigrationStatus string

const (
	StatusNoResponses   MigrationStatus = "no_responses"
	StatusOldFormat     MigrationStatus = "old_format"
	StatusNewFormat     MigrationStatus = "new_format"
	StatusMixedFormat   MigrationStatus = "mixed_format"
	StatusUnknownFormat MigrationStatus = "unknown_format"
	StatusError         MigrationStatus = "error"
)

// StatusReport is the result of classifying a session's responses.
type StatusReport struct {
	Status            MigrationStatus `json:"status"`
	NeedsMigration    bool            `json:"needs_migration"`
	CanAutoMigrate    bool            `json:"can_auto_migrate"`
	RequiresUserInput bool            `json:"requires_user_input"`
	OldResponses      int             `json:"old_responses,omitempty"`
	NewResponses      int             `json:"new_responses,omitempty"`
	UnknownResponses  int             `json:"unknown_responses,omitempty"`
	Message           string          `json:"message"`
}

// MigrationLogEntry records the outcome of one field during auto-migration.
type MigrationLogEntry struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value,omitempty"`
	NewField string `json:"new_field,omitempty"`
	NewValue string `json:"new_value,omitempty"`
	Dropped  bool   `json:"dropped,omitempty"`
	Error    string `json:"error,omitempty"`
}

// MigrationResult reports one auto-migration attempt.
type MigrationResult struct {
	Success           bool                `json:"success"`
	MigratedCount     int                 `json:"migrated_count"`
	TotalOldResponses int                 `json:"total_old_responses"`
	Log               []MigrationLogEntry `json:"migration_log"`
	Error             string              `json:"error,omitempty"`
	Message           string              `json:"message"`
}

// MigrationSuggestion proposes a new-format value during user review.
type MigrationSuggestion struct {
	NewField       string `json:"new_field,omitempty"`
	SuggestedValue string `json:"suggested_value,omitempty"`
	Reason         string `json:"reason"`
}

// MigrationFormData feeds the user-facing review screen. Building it never
// mutates stored responses.
type MigrationFormData struct {
	FormData        map[string]any                 `json:"form_data"`
	Suggestions     map[string]MigrationSuggestion `json:"migration_suggestions"`
	Status          StatusReport                   `json:"migration_status"`
	RequiresReview  bool                           `json:"requires_review"`
}

// MixedResult is the outcome of filling missing new-format criteria with
// fallback values.
type MixedResult struct {
	Criteria        map[string]any `json:"criteria"`
	FallbackApplied bool           `json:"fallback_applied"`
	FallbackDetails []string       `json:"fallback_details,omitempty"`
	Message         string         `json:"message"`
}

// PromptPayload is user-facing migration prompt copy.
type PromptPayload struct {
	ShowPrompt     bool              `json:"show_prompt"`
	Status         MigrationStatus   `json:"status,omitempty"`
	CanAutoMigrate bool              `json:"can_auto_migrate,omitempty"`
	OldAnswers     map[string]string `json:"old_answers,omitempty"`
	Explanation    []string          `json:"explanation,omitempty"`
	Benefits       []string          `json:"benefits,omitempty"`
	Message        string            `json:"message"`
}

// NotificationAction is one call-to-action in a migration notification.
type NotificationAction struct {
	Text    string `json:"text"`
	URL     string `json:"url"`
	Primary bool   `json:"primary"`
}

// NotificationPayload is banner-style notification copy about an available
// migration.
type NotificationPayload struct {
	ShowNotification bool                 `json:"show_notification"`
	Type             string               `json:"type,omitempty"`
	Title            string               `json:"title,omitempty"`
	Message          string               `json:"message,omitempty"`
	Actions          []NotificationAction `json:"actions,omitempty"`
	Dismissible      bool                 `json:"dismissible,omitempty"`
	Persistent       bool                 `json:"persistent,omitempty"`
}

// MigrationStore abstracts persistence operations required by
// MigrationService.
type MigrationStore interface {
	ListResponses(sessionKey string, category Category) ([]*ResponseRecord, error)
	GetQuestion(category Category, fieldName string) (*Question, error)
	UpsertResponse(r *ResponseRecord) (*ResponseRecord, error)
	DeleteResponses(sessionKey string, category Category, fields ...string) (int, error)
	InTx(fn func(MigrationStore) error) error
}

// MigrationService reconciles survey responses recorded under the retired
// binary question schema with the current benefit-level/range schema. It
// classifies sessions, auto-migrates pure old-format ones, suggests values
// for user review, and supplies fallback criteria for mixed sessions.
type MigrationService struct {
	store  MigrationStore
	logger *slog.Logger
}

func NewMigrationService(store MigrationStore) *MigrationService {
	return &MigrationService{store: store, logger: slog.Default()}
}

// CheckMigrationStatus partitions a session's responses by schema generation
// and classifies the session. Classification is a pure function of the
// retrieved response set; store failures surface as an error-status report,
// never silently.
func (s *MigrationService) CheckMigrationStatus(sessionKey string, category Category) StatusReport {
	responses, err := s.store.ListResponses(sessionKey, category)
	if err != nil {
		s.logger.Error("check migration status", "session_key", shortKey(sessionKey), "category", category, "err", err)
		return StatusReport{
			Status:            StatusError,
			RequiresUserInput: true,
			Message:           fmt.Sprintf("error checking migration status: %v", err),
		}
	}
	return classifyResponses(responses)
}

func classifyResponses(responses []*ResponseRecord) StatusReport {
	if len(responses) == 0 {
		return StatusReport{
			Status:  StatusNoResponses,
			Message: "no existing responses found",
		}
	}

	var oldCount, newCount, unknownCount int
	for _, r := range responses {
		switch {
		case isOldFormatField(r.FieldName):
			oldCount++
		case isNewFormatField(r.FieldName):
			newCount++
		default:
			unknownCount++
		}
	}

	switch {
	case oldCount > 0 && newCount == 0:
		return StatusReport{
			Status:         StatusOldFormat,
			NeedsMigration: true,
			CanAutoMigrate: true,
			OldResponses:   oldCount,
			Message:        "responses in old format - can be automatically migrated",
		}
	case oldCount > 0 && newCount > 0:
		return StatusReport{
			Status:            StatusMixedFormat,
			NeedsMigration:    true,
			RequiresUserInput: true,
			OldResponses:      oldCount,
			NewResponses:      newCount,
			Message:           "mixed old and new format responses - user review required",
		}
	case newCount > 0:
		return StatusReport{
			Status:       StatusNewFormat,
			NewResponses: newCount,
			Message:      "responses already in new format",
		}
	default:
		return StatusReport{
			Status:            StatusUnknownFormat,
			RequiresUserInput: true,
			UnknownResponses:  unknownCount,
			Message:           "unknown response format - manual review required",
		}
	}
}

// AutoMigrateResponses converts a pure old-format session to the new schema.
// All per-field conversions run in one transaction: either every mapping
// commits or none does. A disallowed status is reported as a failed result,
// not an error, since callers branch on CanAutoMigrate routinely.
func (s *MigrationService) AutoMigrateResponses(sessionKey string, category Category) MigrationResult {
	status := s.CheckMigrationStatus(sessionKey, category)
	if !status.CanAutoMigrate {
		return MigrationResult{
			Success: false,
			Error:   "cannot auto-migrate responses",
			Message: status.Message,
		}
	}

	result := MigrationResult{Log: []MigrationLogEntry{}}
	err := s.store.InTx(func(tx MigrationStore) error {
		responses, err := tx.ListResponses(sessionKey, category)
		if err != nil {
			return err
		}
		for _, r := range responses {
			if !isOldFormatField(r.FieldName) {
				continue
			}
			result.TotalOldResponses++
			entry, err := s.migrateSingleResponse(tx, r)
			if err != nil {
				return err
			}
			if entry.Error == "" && !entry.Dropped {
				result.MigratedCount++
			}
			result.Log = append(result.Log, entry)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("auto-migrate responses", "session_key", shortKey(sessionKey), "category", category, "err", err)
		return MigrationResult{
			Success: false,
			Error:   err.Error(),
			Message: "failed to auto-migrate responses",
		}
	}

	result.Success = true
	result.Message = fmt.Sprintf("successfully migrated %d responses", result.MigratedCount)
	return result
}

// migrateSingleResponse applies the deterministic per-field mapping. Store
// failures return an error (aborting the transaction); a missing target
// question is a logical failure recorded in the log entry, leaving the old
// response in place.
func (s *MigrationService) migrateSingleResponse(tx MigrationStore, r *ResponseRecord) (MigrationLogEntry, error) {
	entry := MigrationLogEntry{Field: r.FieldName, OldValue: r.Value.Display()}

	var newField, newValue string
	switch r.FieldName {
	case FieldWantsInHospital:
		newField = FieldInHospitalLevel
		newValue = BenefitNoCover
		if r.Value.AsBool() {
			newValue = BenefitBasic
		}
	case FieldWantsOutHospital:
		newField = FieldOutHospitalLevel
		newValue = BenefitNoCover
		if r.Value.AsBool() {
			newValue = BenefitBasicVisits
		}
	case FieldMedicalAid:
		// Retired with no replacement: the response is dropped, not migrated.
		if _, err := tx.DeleteResponses(r.SessionKey, r.Category, r.FieldName); err != nil {
			return entry, err
		}
		entry.Dropped = true
		return entry, nil
	default:
		entry.Error = "unknown old format field: " + r.FieldName
		return entry, nil
	}

	question, err := tx.GetQuestion(r.Category, newField)
	if err != nil {
		return entry, err
	}
	if question == nil {
		entry.Error = "question not found for field: " + newField
		return entry, nil
	}

	if _, err := tx.UpsertResponse(&ResponseRecord{
		SessionKey: r.SessionKey,
		Category:   r.Category,
		FieldName:  newField,
		Value:      StringValue(newValue),
	}); err != nil {
		return entry, err
	}
	if _, err := tx.DeleteResponses(r.SessionKey, r.Category, r.FieldName); err != nil {
		return entry, err
	}

	entry.NewField = newField
	entry.NewValue = newValue
	return entry, nil
}

// GetMigrationFormData builds the review-screen payload: the flat map of
// current responses, a suggestion for every old-format answer, and inferred
// suggestions for absent new-format fields. Nothing is persisted.
func (s *MigrationService) GetMigrationFormData(sessionKey string, category Category) (MigrationFormData, error) {
	responses, err := s.store.ListResponses(sessionKey, category)
	if err != nil {
		return MigrationFormData{}, err
	}

	formData := map[string]any{}
	suggestions := map[string]MigrationSuggestion{}
	for _, r := range responses {
		formData[r.FieldName] = r.Value.Any()
		if isOldFormatField(r.FieldName) {
			if sg, ok := suggestionFor(r.FieldName, r.Value); ok {
				suggestions[r.FieldName] = sg
			}
		}
	}

	for _, field := range newFormatFields {
		if _, ok := formData[field]; ok {
			continue
		}
		if inferred, ok := inferNewFieldValue(field, formData); ok {
			suggestions[field] = MigrationSuggestion{
				SuggestedValue: inferred,
				Reason:         "Inferred from existing responses",
			}
		}
	}

	status := classifyResponses(responses)
	return MigrationFormData{
		FormData:       formData,
		Suggestions:    suggestions,
		Status:         status,
		RequiresReview: status.RequiresUserInput,
	}, nil
}

func suggestionFor(field string, value AnswerValue) (MigrationSuggestion, bool) {
	switch field {
	case FieldWantsInHospital:
		suggested := BenefitNoCover
		if value.AsBool() {
			suggested = BenefitBasic
		}
		return MigrationSuggestion{
			NewField:       FieldInHospitalLevel,
			SuggestedValue: suggested,
			Reason:         "Converted from yes/no to benefit level",
		}, true
	case FieldWantsOutHospital:
		suggested := BenefitNoCover
		if value.AsBool() {
			suggested = BenefitBasicVisits
		}
		return MigrationSuggestion{
			NewField:       FieldOutHospitalLevel,
			SuggestedValue: suggested,
			Reason:         "Converted from yes/no to benefit level",
		}, true
	case FieldMedicalAid:
		return MigrationSuggestion{Reason: "This question has been removed"}, true
	}
	return MigrationSuggestion{}, false
}

func inferNewFieldValue(field string, existing map[string]any) (string, bool) {
	switch field {
	case FieldFamilyRange:
		if limit, ok := existing[FieldFamilyLimit]; ok {
			return MapLimitToRange(limit, RangeFamily), true
		}
	case FieldMemberRange:
		if limit, ok := existing[FieldMemberLimit]; ok {
			return MapLimitToRange(limit, RangeMember), true
		}
	}
	return "", false
}

// HandleMixedResponses fills any new-format field still missing from an
// already-processed criteria map, using old answers, income estimates, or
// mid-range defaults, and halves the weight of each filled field to reflect
// reduced confidence. The input criteria is never mutated; a fresh structure
// is returned.
func (s *MigrationService) HandleMixedResponses(sessionKey string, category Category, criteria map[string]any) (MixedResult, error) {
	status := s.CheckMigrationStatus(sessionKey, category)
	if status.Status == StatusError {
		return MixedResult{Criteria: copyCriteria(criteria), Message: status.Message},
			NewInvalidError(status.Message)
	}
	if status.Status != StatusMixedFormat && status.Status != StatusOldFormat {
		return MixedResult{
			Criteria: copyCriteria(criteria),
			Message:  "no mixed responses detected",
		}, nil
	}

	enhanced := copyCriteria(criteria)
	var details []string
	var filled []string

	if _, ok := enhanced[FieldInHospitalLevel]; !ok {
		value := s.fallbackBenefitLevel(sessionKey, category, FieldWantsInHospital, BenefitBasic)
		enhanced[FieldInHospitalLevel] = value
		filled = append(filled, FieldInHospitalLevel)
		details = append(details, fmt.Sprintf("%s set to %s", FieldInHospitalLevel, value))
	}
	if _, ok := enhanced[FieldOutHospitalLevel]; !ok {
		value := s.fallbackBenefitLevel(sessionKey, category, FieldWantsOutHospital, BenefitBasicVisits)
		enhanced[FieldOutHospitalLevel] = value
		filled = append(filled, FieldOutHospitalLevel)
		details = append(details, fmt.Sprintf("%s set to %s", FieldOutHospitalLevel, value))
	}
	if _, ok := enhanced[FieldFamilyRange]; !ok {
		value := fallbackRange(RangeFamily, enhanced)
		enhanced[FieldFamilyRange] = value
		filled = append(filled, FieldFamilyRange)
		details = append(details, fmt.Sprintf("%s set to %s", FieldFamilyRange, value))
	}
	if _, ok := enhanced[FieldMemberRange]; !ok {
		value := fallbackRange(RangeMember, enhanced)
		enhanced[FieldMemberRange] = value
		filled = append(filled, FieldMemberRange)
		details = append(details, fmt.Sprintf("%s set to %s", FieldMemberRange, value))
	}

	if len(filled) > 0 {
		halveWeights(enhanced, filled)
		s.logger.Info("applied fallback values", "session_key", shortKey(sessionKey), "details", details)
		return MixedResult{
			Criteria:        enhanced,
			FallbackApplied: true,
			FallbackDetails: details,
			Message:         "mixed responses handled with fallback values",
		}, nil
	}
	return MixedResult{Criteria: enhanced, Message: "no fallback needed"}, nil
}

// fallbackBenefitLevel infers a benefit level from the session's old boolean
// answer when one exists, else returns the given default level.
func (s *MigrationService) fallbackBenefitLevel(sessionKey string, category Category, oldField, positive string) string {
	responses, err := s.store.ListResponses(sessionKey, category)
	if err != nil {
		s.logger.Warn("could not infer from old responses", "session_key", shortKey(sessionKey), "err", err)
		return positive
	}
	for _, r := range responses {
		if r.FieldName != oldField {
			continue
		}
		if r.Value.AsBool() {
			return positive
		}
		return BenefitNoCover
	}
	return positive
}

// fallbackRange estimates an annual-limit bucket from household income
// (annual capacity taken as three months of income), else a mid-range
// default.
func fallbackRange(rangeType RangeType, criteria map[string]any) string {
	if income, ok := criteria[FieldHouseholdIncome]; ok {
		if monthly, ok := toFloat(income); ok {
			return MapLimitToRange(monthly*3, rangeType)
		}
	}
	if rangeType == RangeFamily {
		return DefaultFamilyRange
	}
	return DefaultMemberRange
}

// halveWeights discounts the weights of fallback-filled fields (integer
// floor, never below 1). Weights are map[string]int from in-process callers
// and map[string]any after a JSON round trip through session criteria.
func halveWeights(criteria map[string]any, fields []string) {
	switch weights := criteria["weights"].(type) {
	case map[string]int:
		for _, field := range fields {
			if w, ok := weights[field]; ok {
				weights[field] = halveWeight(w)
			}
		}
	case map[string]any:
		for _, field := range fields {
			if w, ok := toFloat(weights[field]); ok {
				weights[field] = halveWeight(int(w))
			}
		}
	}
}

func halveWeight(w int) int {
	half := w / 2
	if half < 1 {
		half = 1
	}
	return half
}

func copyCriteria(criteria map[string]any) map[string]any {
	out := make(map[string]any, len(criteria))
	for k, v := range criteria {
		if k == "weights" {
			switch weights := v.(type) {
			case map[string]int:
				cp := make(map[string]int, len(weights))
				for wk, wv := range weights {
					cp[wk] = wv
				}
				out[k] = cp
				continue
			case map[string]any:
				cp := make(map[string]any, len(weights))
				for wk, wv := range weights {
					cp[wk] = wv
				}
				out[k] = cp
				continue
			}
		}
		out[k] = v
	}
	return out
}

// GetUserMigrationPrompt derives the explanatory prompt shown before a
// migration, based purely on status and the old answers.
func (s *MigrationService) GetUserMigrationPrompt(sessionKey string, category Category) (PromptPayload, error) {
	status := s.CheckMigrationStatus(sessionKey, category)
	if !status.NeedsMigration {
		return PromptPayload{ShowPrompt: false, Message: "no migration needed"}, nil
	}

	responses, err := s.store.ListResponses(sessionKey, category)
	if err != nil {
		return PromptPayload{}, err
	}

	oldAnswers := map[string]string{}
	for _, r := range responses {
		answer := "No"
		if r.Value.AsBool() {
			answer = "Yes"
		}
		switch r.FieldName {
		case FieldWantsInHospital:
			oldAnswers["hospital"] = answer
		case FieldWantsOutHospital:
			oldAnswers["out_hospital"] = answer
		case FieldMedicalAid:
			oldAnswers["medical_aid"] = answer
		}
	}

	var explanation []string
	if answer, ok := oldAnswers["hospital"]; ok {
		if answer == "Yes" {
			explanation = append(explanation, "Your 'Yes' to hospital benefits will become 'Basic hospital care'")
		} else {
			explanation = append(explanation, "Your 'No' to hospital benefits will become 'No hospital cover'")
		}
	}
	if answer, ok := oldAnswers["out_hospital"]; ok {
		if answer == "Yes" {
			explanation = append(explanation, "Your 'Yes' to out-of-hospital benefits will become 'Basic clinic visits'")
		} else {
			explanation = append(explanation, "Your 'No' to out-of-hospital benefits will become 'No out-of-hospital cover'")
		}
	}
	if _, ok := oldAnswers["medical_aid"]; ok {
		explanation = append(explanation, "The medical aid status question has been removed as it's no longer needed")
	}

	return PromptPayload{
		ShowPrompt:     true,
		Status:         status.Status,
		CanAutoMigrate: status.CanAutoMigrate,
		OldAnswers:     oldAnswers,
		Explanation:    explanation,
		Benefits: []string{
			"More precise coverage matching",
			"Better policy recommendations",
			"Clearer understanding of your needs",
			"Improved comparison results",
		},
		Message: migrationMessage(status.Status),
	}, nil
}

func migrationMessage(status MigrationStatus) string {
	switch status {
	case StatusOldFormat:
		return "We've improved our questions to better match you with policies. Your previous answers can be automatically updated."
	case StatusMixedFormat:
		return "Some of your answers are in our old format. Please review and update them to get better policy matches."
	case StatusUnknownFormat:
		return "We need to review your previous answers to ensure they work with our improved system."
	}
	return "Your responses need to be updated to our new format."
}

// CreateMigrationNotification wraps the prompt into banner-notification
// copy with actions.
func (s *MigrationService) CreateMigrationNotification(sessionKey string, category Category) (NotificationPayload, error) {
	prompt, err := s.GetUserMigrationPrompt(sessionKey, category)
	if err != nil {
		return NotificationPayload{}, err
	}
	if !prompt.ShowPrompt {
		return NotificationPayload{ShowNotification: false}, nil
	}

	notifType := "warning"
	actionText := "Review & Update"
	if prompt.CanAutoMigrate {
		notifType = "info"
		actionText = "Auto-Update"
	}
	return NotificationPayload{
		ShowNotification: true,
		Type:             notifType,
		Title:            "Survey Questions Updated",
		Message:          prompt.Message,
		Actions: []NotificationAction{
			{Text: actionText, URL: fmt.Sprintf("/surveys/%s/migrate/", category), Primary: true},
			{Text: "Learn More", URL: "#migration-details"},
		},
		Dismissible: true,
		// Keep showing the banner while manual review is still outstanding.
		Persistent: !prompt.CanAutoMigrate,
	}, nil
}
