package services

// Benefit levels and annual-limit range buckets. These are closed value sets:
// the ordered tables below are the single source of truth for both the survey
// choices and the migration/fallback logic.

const (
	BenefitNoCover     = "no_cover"
	BenefitBasic       = "basic"
	BenefitBasicVisits = "basic_visits"

	RangeNotSure = "not_sure"

	// Mid-range defaults used when neither old answers nor income are
	// available to infer a range from.
	DefaultFamilyRange = "100k-250k"
	DefaultMemberRange = "50k-100k"
)

// HospitalBenefitChoices is the ordered in-hospital benefit ladder.
var HospitalBenefitChoices = []Choice{
	{Value: "no_cover", Label: "No hospital cover", Description: "I do not need cover for hospital admission"},
	{Value: "basic", Label: "Basic hospital care", Description: "Covers admission and standard hospital treatment"},
	{Value: "moderate", Label: "Moderate hospital care", Description: "Covers admission, procedures, and specialist treatment"},
	{Value: "extensive", Label: "Extensive hospital care", Description: "Covers most hospital needs, including major procedures"},
	{Value: "comprehensive", Label: "Comprehensive hospital care", Description: "Covers all hospital-related treatment and services"},
}

// OutHospitalBenefitChoices is the ordered out-of-hospital benefit ladder.
var OutHospitalBenefitChoices = []Choice{
	{Value: "no_cover", Label: "No out-of-hospital cover", Description: "No cover for day-to-day medical care"},
	{Value: "basic_visits", Label: "Basic clinic visits", Description: "Covers GP/clinic visits only"},
	{Value: "routine_care", Label: "Routine medical care", Description: "Covers GP visits and basic medication"},
	{Value: "extended_care", Label: "Extended medical care", Description: "Covers GP visits, specialists, and diagnostics"},
	{Value: "comprehensive_care", Label: "Comprehensive day-to-day care", Description: "Covers most medical needs outside hospital, including chronic care"},
}

// FamilyLimitRangeChoices is the ordered annual-limit bucket set for a whole
// family.
var FamilyLimitRangeChoices = []Choice{
	{Value: "10k-50k", Label: "R10,000 - R50,000"},
	{Value: "50k-100k", Label: "R50,001 - R100,000"},
	{Value: "100k-250k", Label: "R100,001 - R250,000"},
	{Value: "250k-500k", Label: "R250,001 - R500,000"},
	{Value: "500k-1m", Label: "R500,001 - R1,000,000"},
	{Value: "1m-2m", Label: "R1,000,001 - R2,000,000"},
	{Value: "2m-5m", Label: "R2,000,001 - R5,000,000"},
	{Value: "5m-plus", Label: "R5,000,001+"},
	{Value: "not_sure", Label: "Not sure / Need guidance"},
}

// MemberLimitRangeChoices is the ordered annual-limit bucket set per member.
// Its thresholds are a distinct business ladder, not derived from the family
// one.
var MemberLimitRangeChoices = []Choice{
	{Value: "10k-25k", Label: "R10,000 - R25,000"},
	{Value: "25k-50k", Label: "R25,001 - R50,000"},
	{Value: "50k-100k", Label: "R50,001 - R100,000"},
	{Value: "100k-200k", Label: "R100,001 - R200,000"},
	{Value: "200k-500k", Label: "R200,001 - R500,000"},
	{Value: "500k-1m", Label: "R500,001 - R1,000,000"},
	{Value: "1m-2m", Label: "R1,000,001 - R2,000,000"},
	{Value: "2m-plus", Label: "R2,000,001+"},
	{Value: "not_sure", Label: "Not sure / Need guidance"},
}

// RangeType selects which annual-limit ladder applies.
type RangeType string

const (
	RangeFamily RangeType = "family"
	RangeMember RangeType = "member"
)

type rangeBucket struct {
	value   string
	ceiling float64
}

// Ladders are ascending; classification takes the first bucket whose ceiling
// is >= the limit, and the overflow value past the last ceiling.
var familyLimitLadder = []rangeBucket{
	{"10k-50k", 50000},
	{"50k-100k", 100000},
	{"100k-250k", 250000},
	{"250k-500k", 500000},
	{"500k-1m", 1000000},
	{"1m-2m", 2000000},
	{"2m-5m", 5000000},
}

const familyLimitOverflow = "5m-plus"

var memberLimitLadder = []rangeBucket{
	{"10k-25k", 25000},
	{"25k-50k", 50000},
	{"50k-100k", 100000},
	{"100k-200k", 200000},
	{"200k-500k", 500000},
	{"500k-1m", 1000000},
	{"1m-2m", 2000000},
}

const memberLimitOverflow = "2m-plus"

// MapLimitToRange snaps a numeric annual limit into a labeled range bucket.
// Non-numeric input yields "not_sure". Pure function, monotonic over the
// ladder ceilings.
func MapLimitToRange(limit any, rangeType RangeType) string {
	value, ok := toFloat(limit)
	if !ok {
		return RangeNotSure
	}

	ladder, overflow := familyLimitLadder, familyLimitOverflow
	if rangeType == RangeMember {
		ladder, overflow = memberLimitLadder, memberLimitOverflow
	}
	for _, bucket := range ladder {
		if value <= bucket.ceiling {
			return bucket.value
		}
	}
	return overflow
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case AnswerValue:
		return t.AsNumber()
	case string:
		return StringValue(t).AsNumber()
	}
	return 0, false
}
