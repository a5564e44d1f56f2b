package services

import (
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// CriteriaStore abstracts persistence operations required by CriteriaService.
type CriteriaStore interface {
	ListResponses(sessionKey string, category Category) ([]*ResponseRecord, error)
}

// CriteriaMetadata describes the response set a criteria map was built from.
type CriteriaMetadata struct {
	Category       Category  `json:"category"`
	SessionKey     string    `json:"session_key"`
	ProcessedAt    time.Time `json:"processed_at"`
	TotalResponses int       `json:"total_responses"`
}

// ProcessedResponses is a session's responses flattened to field -> value.
type ProcessedResponses struct {
	Fields   map[string]any   `json:"fields"`
	Metadata CriteriaMetadata `json:"metadata"`
}

// CriteriaResult is the final criteria map handed to the policy matcher,
// plus whether fallback inference had to run.
type CriteriaResult struct {
	Criteria        map[string]any   `json:"criteria"`
	Metadata        CriteriaMetadata `json:"metadata"`
	FallbackApplied bool             `json:"fallback_applied"`
	FallbackDetails []string         `json:"fallback_details,omitempty"`
}

// CriteriaService flattens survey responses into the criteria format the
// policy-matching side consumes. It maps survey field names onto matcher
// field names, attaches default weights, applies category adjustments, and
// hands mixed-format sessions to the migration service for fallback filling.
// It never performs matching itself.
type CriteriaService struct {
	store      CriteriaStore
	migrations *MigrationService
	now        func() time.Time
	logger     *slog.Logger
}

func NewCriteriaService(store CriteriaStore, migrations *MigrationService) *CriteriaService {
	return &CriteriaService{
		store:      store,
		migrations: migrations,
		now:        time.Now,
		logger:     slog.Default(),
	}
}

// ProcessResponses flattens the session's responses into a field -> value
// map with a metadata block. The metadata count reflects stored responses,
// not map entries.
func (s *CriteriaService) ProcessResponses(sessionKey string, category Category) (ProcessedResponses, error) {
	responses, err := s.store.ListResponses(sessionKey, category)
	if err != nil {
		return ProcessedResponses{}, err
	}

	fields := make(map[string]any, len(responses))
	for _, r := range responses {
		fields[r.FieldName] = r.Value.Any()
	}
	return ProcessedResponses{
		Fields: fields,
		Metadata: CriteriaMetadata{
			Category:       category,
			SessionKey:     sessionKey,
			ProcessedAt:    s.now().UTC(),
			TotalResponses: len(responses),
		},
	}, nil
}

// BuildCriteria produces the complete criteria map for a session: mapped
// fields, a weights sub-map for the criteria present, category-specific
// adjustments, then fallback filling when the session is not cleanly in the
// current schema.
func (s *CriteriaService) BuildCriteria(sessionKey string, category Category) (CriteriaResult, error) {
	processed, err := s.ProcessResponses(sessionKey, category)
	if err != nil {
		return CriteriaResult{}, err
	}

	mappings := fieldMappings(category)
	criteria := map[string]any{}
	for surveyField, value := range processed.Fields {
		matcherField, ok := mappings[surveyField]
		if !ok {
			continue
		}
		criteria[matcherField] = convertResponseValue(surveyField, value)
	}

	criteria["weights"] = defaultWeights(category, criteria)
	applyCategoryProcessing(category, criteria)

	result := CriteriaResult{Criteria: criteria, Metadata: processed.Metadata}

	status := s.migrations.CheckMigrationStatus(sessionKey, category)
	if status.Status != StatusNewFormat && status.Status != StatusNoResponses {
		mixed, err := s.migrations.HandleMixedResponses(sessionKey, category, criteria)
		if err != nil {
			s.logger.Warn("mixed response handling failed",
				"session_key", shortKey(sessionKey), "err", err)
		} else {
			result.Criteria = mixed.Criteria
			result.FallbackApplied = mixed.FallbackApplied
			result.FallbackDetails = mixed.FallbackDetails
			if mixed.FallbackApplied {
				s.logger.Info("applied fallback values for mixed responses",
					"session_key", shortKey(sessionKey))
			}
		}
	}

	return result, nil
}

// fieldMappings maps survey field names to the matcher's field names. Fields
// absent from the map are internal to the survey and never forwarded.
func fieldMappings(category Category) map[string]string {
	switch category {
	case CategoryHealth:
		return map[string]string{
			"age":                      "age",
			"location":                 "location",
			"family_size":              "family_size",
			"health_status":            "health_status",
			"chronic_conditions":       "chronic_conditions",
			"coverage_priority":        "coverage_priority",
			"monthly_budget":           "base_premium",
			"preferred_deductible":     "deductible_amount",
			"household_income":         FieldHouseholdIncome,
			"wants_ambulance_coverage": "ambulance_coverage",
			"needs_chronic_medication": "chronic_medication_availability",
			FieldFamilyLimit:           "annual_limit_per_family",
			FieldInHospitalLevel:       FieldInHospitalLevel,
			FieldOutHospitalLevel:      FieldOutHospitalLevel,
			FieldFamilyRange:           FieldFamilyRange,
			FieldMemberRange:           FieldMemberRange,
		}
	case CategoryFuneral:
		return map[string]string{
			"age":                      "age",
			"location":                 "location",
			"family_members_to_cover":  "family_size",
			"coverage_amount_needed":   "coverage_amount",
			"service_preference":       "service_level",
			"monthly_budget":           "base_premium",
			"waiting_period_tolerance": "waiting_period_days",
			"preferred_cover_amount":   "cover_amount",
			"marital_status":           "marital_status_requirement",
			"gender":                   "gender_requirement",
		}
	}
	return map[string]string{}
}

// convertResponseValue coerces a raw survey value into the type the matcher
// expects for that field.
func convertResponseValue(surveyField string, value any) any {
	switch surveyField {
	case "age", "family_size", "family_members_to_cover", "monthly_budget", "household_income":
		if f, ok := toFloat(value); ok {
			return int(f)
		}
		return 0
	case FieldFamilyLimit, "preferred_cover_amount":
		if f, ok := toFloat(value); ok {
			return f
		}
		return 0.0
	case "wants_ambulance_coverage", "needs_chronic_medication":
		return ValueOf(value).AsBool()
	case "coverage_amount_needed":
		return parseCoverAmount(value)
	case "waiting_period_tolerance":
		return parseWaitingPeriod(value)
	}
	return value
}

// parseCoverAmount reads shorthand amounts like "R25k" or "R100k+" as rand.
func parseCoverAmount(value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	cleaned := strings.NewReplacer("R", "", "k", "", "+", "").Replace(s)
	n, err := strconv.Atoi(strings.TrimSpace(cleaned))
	if err != nil {
		return 50000
	}
	return n * 1000
}

// parseWaitingPeriod converts tolerance answers ("None", "6 months") to days.
func parseWaitingPeriod(value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	if s == "None" {
		return 0
	}
	if strings.Contains(s, "months") {
		if n, err := strconv.Atoi(strings.Fields(s)[0]); err == nil {
			return n * 30
		}
	}
	return value
}

// defaultWeights returns matcher weights for the criteria actually present.
func defaultWeights(category Category, criteria map[string]any) map[string]int {
	var defaults map[string]int
	switch category {
	case CategoryHealth:
		defaults = map[string]int{
			"base_premium":                    25,
			"annual_limit_per_family":         30,
			FieldHouseholdIncome:              20,
			"ambulance_coverage":              12,
			"coverage_priority":               20,
			"health_status":                   15,
			"chronic_medication_availability": 15,
			FieldInHospitalLevel:              25,
			FieldOutHospitalLevel:             20,
			FieldFamilyRange:                  30,
			FieldMemberRange:                  25,
			"deductible_amount":               8,
		}
	case CategoryFuneral:
		defaults = map[string]int{
			"base_premium":               35,
			"cover_amount":               30,
			"service_level":              20,
			"waiting_period_days":        15,
			"marital_status_requirement": 10,
			"gender_requirement":         10,
		}
	}

	weights := map[string]int{}
	for field, weight := range defaults {
		if _, ok := criteria[field]; ok {
			weights[field] = weight
		}
	}
	return weights
}

// applyCategoryProcessing adjusts criteria in ways specific to each
// insurance category: budget tolerance scales with family size for health,
// and funeral coverage gets a floor for large families.
func applyCategoryProcessing(category Category, criteria map[string]any) {
	switch category {
	case CategoryHealth:
		if size, ok := intValue(criteria["family_size"]); ok {
			if budget, ok := intValue(criteria["base_premium"]); ok {
				switch {
				case size > 4:
					criteria["base_premium"] = int(float64(budget) * 1.2)
				case size > 2:
					criteria["base_premium"] = int(float64(budget) * 1.1)
				}
			}
		}
		if conditions, ok := criteria["chronic_conditions"].([]string); ok {
			if hasRealConditions(conditions) {
				if weights, ok := criteria["weights"].(map[string]int); ok {
					current, ok := weights["coverage_priority"]
					if !ok {
						current = 25
					}
					weights["coverage_priority"] = current + 10
				}
			}
		}
	case CategoryFuneral:
		if size, ok := intValue(criteria["family_size"]); ok {
			if coverage, ok := intValue(criteria["coverage_amount"]); ok {
				switch {
				case size > 10 && coverage < 100000:
					criteria["coverage_amount"] = 100000
				case size > 5 && coverage < 50000:
					criteria["coverage_amount"] = 50000
				}
			}
		}
	}
}

func hasRealConditions(conditions []string) bool {
	if len(conditions) == 0 {
		return false
	}
	for _, c := range conditions {
		if c == "None" {
			return false
		}
	}
	return true
}

func intValue(v any) (int, bool) {
	if f, ok := toFloat(v); ok {
		return int(f), true
	}
	return 0, false
}
