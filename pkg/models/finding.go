package models

// Severity grades a dark-pattern finding.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRank orders severities for deterministic sorting.
var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
}

// SeverityRank returns a sort key for s (critical sorts first).
// Unknown severities sort last.
func SeverityRank(s Severity) int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return len(severityRank)
}

// Dark-pattern taxonomy: five top-level categories.
const (
	CategorySneaking     = "sneaking"
	CategoryUrgency      = "urgency"
	CategoryMisdirection = "misdirection"
	CategorySocialProof  = "social_proof"
	CategoryForcedAction = "forced_action"
)

// CategoryID returns a stable numeric id for a category, used for
// deterministic recommendation ordering. Unknown categories sort last.
func CategoryID(category string) int {
	switch category {
	case CategorySneaking:
		return 0
	case CategoryUrgency:
		return 1
	case CategoryMisdirection:
		return 2
	case CategorySocialProof:
		return 3
	case CategoryForcedAction:
		return 4
	}
	return 5
}

// Sub-types, grouped by category.
const (
	// sneaking
	SubTypeHiddenCosts        = "hidden_costs"
	SubTypeHiddenSubscription = "hidden_subscription"
	SubTypeBaitAndSwitch      = "bait_and_switch"
	SubTypeDripPricing        = "drip_pricing"

	// urgency
	SubTypeCountdownTimer   = "countdown_timer"
	SubTypeLimitedTime      = "limited_time_message"
	SubTypeFakeDeadline     = "fake_deadline"
	SubTypeLowStockMessage  = "low_stock_message"
	SubTypeHighDemandNotice = "high_demand_notice"

	// misdirection
	SubTypeConfirmshaming     = "confirmshaming"
	SubTypeTrickQuestion      = "trick_question"
	SubTypeVisualInterference = "visual_interference"
	SubTypeDisguisedAd        = "disguised_ad"
	SubTypePressuredSelling   = "pressured_selling"

	// social_proof
	SubTypeFakeActivity    = "fake_activity_notification"
	SubTypeFakeTestimonial = "fake_testimonial"
	SubTypeFakeReview      = "fake_review"

	// forced_action
	SubTypeForcedEnrollment = "forced_enrollment"
	SubTypePrivacyZuckering = "privacy_zuckering"
	SubTypeNagging          = "nagging"
	SubTypeHardToCancel     = "hard_to_cancel"
	SubTypePreselection     = "preselection"
)

// SubTypeCategory maps every known sub-type to its category.
var SubTypeCategory = map[string]string{
	SubTypeHiddenCosts:        CategorySneaking,
	SubTypeHiddenSubscription: CategorySneaking,
	SubTypeBaitAndSwitch:      CategorySneaking,
	SubTypeDripPricing:        CategorySneaking,
	SubTypeCountdownTimer:     CategoryUrgency,
	SubTypeLimitedTime:        CategoryUrgency,
	SubTypeFakeDeadline:       CategoryUrgency,
	SubTypeLowStockMessage:    CategoryUrgency,
	SubTypeHighDemandNotice:   CategoryUrgency,
	SubTypeConfirmshaming:     CategoryMisdirection,
	SubTypeTrickQuestion:      CategoryMisdirection,
	SubTypeVisualInterference: CategoryMisdirection,
	SubTypeDisguisedAd:        CategoryMisdirection,
	SubTypePressuredSelling:   CategoryMisdirection,
	SubTypeFakeActivity:       CategorySocialProof,
	SubTypeFakeTestimonial:    CategorySocialProof,
	SubTypeFakeReview:         CategorySocialProof,
	SubTypeForcedEnrollment:   CategoryForcedAction,
	SubTypePrivacyZuckering:   CategoryForcedAction,
	SubTypeNagging:            CategoryForcedAction,
	SubTypeHardToCancel:       CategoryForcedAction,
	SubTypePreselection:       CategoryForcedAction,
}

// Finding is a single dark-pattern observation.
type Finding struct {
	Category    string   `json:"category"`
	SubType     string   `json:"sub_type"`
	Severity    Severity `json:"severity"`
	Confidence  float64  `json:"confidence"` // 0..1
	Description string   `json:"description"`
	Plain       string   `json:"plain_english"` // non-technical paraphrase
	// ScreenshotIndex points into the screenshot list (-1 when absent).
	ScreenshotIndex int `json:"screenshot_index"`
}
