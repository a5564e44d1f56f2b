package services

import (
	"testing"
	"time"
)

func newCriteriaFixture() (*stubMigrationStore, *CriteriaService) {
	store := newStubMigrationStore()
	svc := NewCriteriaService(store, NewMigrationService(store))
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return store, svc
}

func TestProcessResponsesMetadata(t *testing.T) {
	store, svc := newCriteriaFixture()
	store.addResponse("s1", CategoryHealth, "age", NumberValue(30))
	store.addResponse("s1", CategoryHealth, FieldFamilyRange, StringValue("100k-250k"))

	processed, err := svc.ProcessResponses("s1", CategoryHealth)
	if err != nil {
		t.Fatalf("ProcessResponses returned error: %v", err)
	}
	if processed.Metadata.TotalResponses != 2 {
		t.Fatalf("total responses = %d, want 2", processed.Metadata.TotalResponses)
	}
	if processed.Metadata.Category != CategoryHealth || processed.Metadata.SessionKey != "s1" {
		t.Fatalf("metadata = %+v", processed.Metadata)
	}
	if processed.Metadata.ProcessedAt.IsZero() {
		t.Fatalf("expected processed_at timestamp")
	}
	if processed.Fields["age"] != 30.0 {
		t.Fatalf("age = %v, want 30", processed.Fields["age"])
	}
}

func TestBuildCriteriaHealthNewFormat(t *testing.T) {
	store, svc := newCriteriaFixture()
	store.addResponse("s1", CategoryHealth, "age", NumberValue(34))
	store.addResponse("s1", CategoryHealth, "family_size", NumberValue(5))
	store.addResponse("s1", CategoryHealth, "monthly_budget", NumberValue(1000))
	store.addResponse("s1", CategoryHealth, FieldInHospitalLevel, StringValue(BenefitBasic))
	store.addResponse("s1", CategoryHealth, FieldOutHospitalLevel, StringValue(BenefitBasicVisits))
	store.addResponse("s1", CategoryHealth, FieldFamilyRange, StringValue("250k-500k"))
	store.addResponse("s1", CategoryHealth, FieldMemberRange, StringValue("50k-100k"))

	result, err := svc.BuildCriteria("s1", CategoryHealth)
	if err != nil {
		t.Fatalf("BuildCriteria returned error: %v", err)
	}
	if result.FallbackApplied {
		t.Fatalf("clean new-format session must not trigger fallback")
	}

	c := result.Criteria
	if c["age"] != 34 {
		t.Fatalf("age = %v, want 34", c["age"])
	}
	// Budget tolerance scaled 1.2x for a family of five.
	if c["base_premium"] != 1200 {
		t.Fatalf("base_premium = %v, want 1200", c["base_premium"])
	}
	if c[FieldFamilyRange] != "250k-500k" {
		t.Fatalf("family range = %v", c[FieldFamilyRange])
	}

	weights := c["weights"].(map[string]int)
	want := map[string]int{
		"base_premium":        25,
		FieldInHospitalLevel:  25,
		FieldOutHospitalLevel: 20,
		FieldFamilyRange:      30,
		FieldMemberRange:      25,
	}
	for field, w := range want {
		if weights[field] != w {
			t.Fatalf("weight[%s] = %d, want %d", field, weights[field], w)
		}
	}
	if _, ok := weights["annual_limit_per_family"]; ok {
		t.Fatalf("weight present for absent criterion")
	}
}

func TestBuildCriteriaChronicConditionsBumpWeight(t *testing.T) {
	store, svc := newCriteriaFixture()
	store.addResponse("s1", CategoryHealth, "coverage_priority", StringValue("comprehensive"))
	store.addResponse("s1", CategoryHealth, "chronic_conditions", ListValue([]string{"diabetes"}))
	store.addResponse("s1", CategoryHealth, FieldFamilyRange, StringValue("100k-250k"))

	result, err := svc.BuildCriteria("s1", CategoryHealth)
	if err != nil {
		t.Fatalf("BuildCriteria returned error: %v", err)
	}
	weights := result.Criteria["weights"].(map[string]int)
	if weights["coverage_priority"] != 30 {
		t.Fatalf("coverage_priority weight = %d, want 30", weights["coverage_priority"])
	}

	// A "None" selection must not bump anything.
	store2, svc2 := newCriteriaFixture()
	store2.addResponse("s2", CategoryHealth, "coverage_priority", StringValue("basic"))
	store2.addResponse("s2", CategoryHealth, "chronic_conditions", ListValue([]string{"None"}))
	store2.addResponse("s2", CategoryHealth, FieldFamilyRange, StringValue("100k-250k"))
	result, err = svc2.BuildCriteria("s2", CategoryHealth)
	if err != nil {
		t.Fatalf("BuildCriteria returned error: %v", err)
	}
	weights = result.Criteria["weights"].(map[string]int)
	if weights["coverage_priority"] != 20 {
		t.Fatalf("coverage_priority weight = %d, want default 20", weights["coverage_priority"])
	}
}

func TestBuildCriteriaMixedFormatAppliesFallback(t *testing.T) {
	store, svc := newCriteriaFixture()
	store.addResponse("s1", CategoryHealth, FieldWantsInHospital, BoolValue(true))
	store.addResponse("s1", CategoryHealth, FieldFamilyRange, StringValue("100k-250k"))

	result, err := svc.BuildCriteria("s1", CategoryHealth)
	if err != nil {
		t.Fatalf("BuildCriteria returned error: %v", err)
	}
	if !result.FallbackApplied {
		t.Fatalf("mixed session must apply fallback")
	}
	if result.Criteria[FieldInHospitalLevel] != BenefitBasic {
		t.Fatalf("in-hospital = %v, want basic from old answer", result.Criteria[FieldInHospitalLevel])
	}
	if result.Criteria[FieldOutHospitalLevel] != BenefitBasicVisits {
		t.Fatalf("out-hospital = %v, want default", result.Criteria[FieldOutHospitalLevel])
	}
	if result.Criteria[FieldMemberRange] != DefaultMemberRange {
		t.Fatalf("member range = %v, want default", result.Criteria[FieldMemberRange])
	}
	// The retired binary field is never forwarded to the matcher.
	if _, ok := result.Criteria[FieldWantsInHospital]; ok {
		t.Fatalf("old-format field leaked into criteria")
	}
}

func TestBuildCriteriaFuneral(t *testing.T) {
	store, svc := newCriteriaFixture()
	store.addResponse("s1", CategoryFuneral, "coverage_amount_needed", StringValue("R50k"))
	store.addResponse("s1", CategoryFuneral, "waiting_period_tolerance", StringValue("6 months"))
	store.addResponse("s1", CategoryFuneral, "family_members_to_cover", NumberValue(12))
	store.addResponse("s1", CategoryFuneral, "monthly_budget", NumberValue(300))
	store.addResponse("s1", CategoryFuneral, "marital_status", StringValue("married"))

	result, err := svc.BuildCriteria("s1", CategoryFuneral)
	if err != nil {
		t.Fatalf("BuildCriteria returned error: %v", err)
	}

	c := result.Criteria
	// Coverage floor kicks in for twelve covered members.
	if c["coverage_amount"] != 100000 {
		t.Fatalf("coverage_amount = %v, want 100000", c["coverage_amount"])
	}
	if c["waiting_period_days"] != 180 {
		t.Fatalf("waiting_period_days = %v, want 180", c["waiting_period_days"])
	}
	if c["family_size"] != 12 {
		t.Fatalf("family_size = %v, want 12", c["family_size"])
	}
	if c["marital_status_requirement"] != "married" {
		t.Fatalf("marital status = %v", c["marital_status_requirement"])
	}

	weights := c["weights"].(map[string]int)
	if weights["base_premium"] != 35 {
		t.Fatalf("base_premium weight = %d, want 35", weights["base_premium"])
	}
	if weights["waiting_period_days"] != 15 {
		t.Fatalf("waiting_period_days weight = %d, want 15", weights["waiting_period_days"])
	}
}

func TestConvertResponseValueCoercions(t *testing.T) {
	if got := convertResponseValue("coverage_amount_needed", "R100k+"); got != 100000 {
		t.Fatalf("coverage = %v, want 100000", got)
	}
	if got := convertResponseValue("coverage_amount_needed", "unparseable"); got != 50000 {
		t.Fatalf("coverage fallback = %v, want 50000", got)
	}
	if got := convertResponseValue("waiting_period_tolerance", "None"); got != 0 {
		t.Fatalf("waiting period = %v, want 0", got)
	}
	if got := convertResponseValue("age", "41"); got != 41 {
		t.Fatalf("age = %v, want 41", got)
	}
	if got := convertResponseValue("age", "not a number"); got != 0 {
		t.Fatalf("bad age = %v, want 0", got)
	}
	if got := convertResponseValue("wants_ambulance_coverage", "yes"); got != true {
		t.Fatalf("ambulance = %v, want true", got)
	}
	if got := convertResponseValue("wants_ambulance_coverage", "no"); got != false {
		t.Fatalf("ambulance = %v, want false", got)
	}
}
