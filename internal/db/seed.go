package db

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/tmashinini/quotewise/internal/api"
	"github.com/tmashinini/quotewise/internal/services"
)

var yesNoChoices = []services.Choice{
	{Value: "yes", Label: "Yes"},
	{Value: "no", Label: "No"},
}

// SeedDefaultQuestions installs the default health and funeral survey
// questions. It is a no-op when a category already has questions, so
// operator edits survive restarts.
func SeedDefaultQuestions(store api.Store) error {
	for _, category := range []services.Category{services.CategoryHealth, services.CategoryFuneral} {
		existing, err := store.ListQuestions(category)
		if err != nil {
			return fmt.Errorf("seed %s questions: %w", category, err)
		}
		if len(existing) > 0 {
			continue
		}
		for _, q := range defaultQuestions(category) {
			q.ID = uuid.NewString()
			q.Category = category
			if err := store.UpsertQuestion(q); err != nil {
				return fmt.Errorf("seed %s question %s: %w", category, q.FieldName, err)
			}
		}
	}
	return nil
}

func defaultQuestions(category services.Category) []*services.Question {
	switch category {
	case services.CategoryHealth:
		return healthQuestions()
	case services.CategoryFuneral:
		return funeralQuestions()
	}
	return nil
}

func floatPtr(v float64) *float64 { return &v }

func healthQuestions() []*services.Question {
	return []*services.Question{
		{
			FieldName: "age", Text: "How old are you?",
			InputType: services.InputNumber, Required: true, DisplayOrder: 1,
			MinValue: floatPtr(18), MaxValue: floatPtr(100),
		},
		{
			FieldName: "location", Text: "Where do you live?",
			InputType: services.InputText, DisplayOrder: 2, MaxLength: 100,
		},
		{
			FieldName: "family_size", Text: "How many family members need cover, including yourself?",
			InputType: services.InputNumber, Required: true, DisplayOrder: 3,
			MinValue: floatPtr(1), MaxValue: floatPtr(20),
		},
		{
			FieldName: "health_status", Text: "How would you describe your overall health?",
			InputType: services.InputSelect, Required: true, DisplayOrder: 4,
			Choices: []services.Choice{
				{Value: "excellent", Label: "Excellent"},
				{Value: "good", Label: "Good"},
				{Value: "fair", Label: "Fair"},
				{Value: "poor", Label: "Poor"},
			},
		},
		{
			FieldName: "chronic_conditions", Text: "Do you have any chronic conditions?",
			InputType: services.InputCheckbox, DisplayOrder: 5,
			Choices: []services.Choice{
				{Value: "None", Label: "None"},
				{Value: "diabetes", Label: "Diabetes"},
				{Value: "hypertension", Label: "Hypertension"},
				{Value: "asthma", Label: "Asthma"},
				{Value: "other", Label: "Other"},
			},
		},
		{
			FieldName: "needs_chronic_medication", Text: "Do you need regular chronic medication?",
			InputType: services.InputRadio, DisplayOrder: 6, Choices: yesNoChoices,
		},
		{
			FieldName: "coverage_priority", Text: "What matters most in your cover?",
			InputType: services.InputSelect, DisplayOrder: 7,
			Choices: []services.Choice{
				{Value: "comprehensive", Label: "Comprehensive cover"},
				{Value: "hospital_only", Label: "Hospital cover only"},
				{Value: "essential", Label: "Essential day-to-day care"},
			},
		},
		{
			FieldName: "monthly_budget", Text: "What is your monthly budget for health cover?",
			InputType: services.InputNumber, Required: true, DisplayOrder: 8,
			MinValue: floatPtr(0),
		},
		{
			FieldName: "household_income", Text: "What is your monthly household income?",
			InputType: services.InputNumber, DisplayOrder: 9, MinValue: floatPtr(0),
		},
		{
			FieldName: "wants_ambulance_coverage", Text: "Do you want ambulance cover?",
			InputType: services.InputRadio, DisplayOrder: 10, Choices: yesNoChoices,
		},
		{
			FieldName: services.FieldInHospitalLevel, Text: "What level of in-hospital cover do you need?",
			InputType: services.InputRadio, Required: true, DisplayOrder: 11,
			Choices: services.HospitalBenefitChoices,
		},
		{
			FieldName: services.FieldOutHospitalLevel, Text: "What level of out-of-hospital cover do you need?",
			InputType: services.InputRadio, Required: true, DisplayOrder: 12,
			Choices: services.OutHospitalBenefitChoices,
		},
		{
			FieldName: services.FieldFamilyRange, Text: "What annual limit do you need for your whole family?",
			InputType: services.InputSelect, Required: true, DisplayOrder: 13,
			Choices: services.FamilyLimitRangeChoices,
		},
		{
			FieldName: services.FieldMemberRange, Text: "What annual limit do you need per family member?",
			InputType: services.InputSelect, DisplayOrder: 14,
			Choices: services.MemberLimitRangeChoices,
		},
		{
			FieldName: "preferred_deductible", Text: "What excess amount could you pay per claim?",
			InputType: services.InputNumber, DisplayOrder: 15, MinValue: floatPtr(0),
		},
	}
}

func funeralQuestions() []*services.Question {
	return []*services.Question{
		{
			FieldName: "age", Text: "How old are you?",
			InputType: services.InputNumber, Required: true, DisplayOrder: 1,
			MinValue: floatPtr(18), MaxValue: floatPtr(85),
		},
		{
			FieldName: "location", Text: "Where do you live?",
			InputType: services.InputText, DisplayOrder: 2, MaxLength: 100,
		},
		{
			FieldName: "family_members_to_cover", Text: "How many family members should the policy cover?",
			InputType: services.InputNumber, Required: true, DisplayOrder: 3,
			MinValue: floatPtr(1), MaxValue: floatPtr(20),
		},
		{
			FieldName: "coverage_amount_needed", Text: "How much cover do you need per person?",
			InputType: services.InputSelect, Required: true, DisplayOrder: 4,
			Choices: []services.Choice{
				{Value: "R10k", Label: "R10,000"},
				{Value: "R25k", Label: "R25,000"},
				{Value: "R50k", Label: "R50,000"},
				{Value: "R75k", Label: "R75,000"},
				{Value: "R100k", Label: "R100,000"},
			},
		},
		{
			FieldName: "service_preference", Text: "What level of funeral service do you want?",
			InputType: services.InputSelect, DisplayOrder: 5,
			Choices: []services.Choice{
				{Value: "basic", Label: "Basic"},
				{Value: "standard", Label: "Standard"},
				{Value: "premium", Label: "Premium"},
			},
		},
		{
			FieldName: "monthly_budget", Text: "What is your monthly budget for funeral cover?",
			InputType: services.InputNumber, Required: true, DisplayOrder: 6,
			MinValue: floatPtr(0),
		},
		{
			FieldName: "waiting_period_tolerance", Text: "What waiting period could you accept?",
			InputType: services.InputSelect, DisplayOrder: 7,
			Choices: []services.Choice{
				{Value: "None", Label: "No waiting period"},
				{Value: "3 months", Label: "Up to 3 months"},
				{Value: "6 months", Label: "Up to 6 months"},
				{Value: "12 months", Label: "Up to 12 months"},
			},
		},
		{
			FieldName: "marital_status", Text: "What is your marital status?",
			InputType: services.InputSelect, DisplayOrder: 8,
			Choices: []services.Choice{
				{Value: "single", Label: "Single"},
				{Value: "married", Label: "Married"},
				{Value: "divorced", Label: "Divorced"},
				{Value: "widowed", Label: "Widowed"},
			},
		},
		{
			FieldName: "gender", Text: "What is your gender?",
			InputType: services.InputSelect, DisplayOrder: 9,
			Choices: []services.Choice{
				{Value: "male", Label: "Male"},
				{Value: "female", Label: "Female"},
				{Value: "other", Label: "Other"},
			},
		},
	}
}
