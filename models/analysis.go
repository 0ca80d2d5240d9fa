package models

import (
	"github.com/shopspring/decimal"
)

// Trust score weights: T = 0.40*S + 0.35*C + 0.25*V.
var (
	weightSpecificity  = decimal.RequireFromString("0.40")
	weightConsistency  = decimal.RequireFromString("0.35")
	weightVerification = decimal.RequireFromString("0.25")

	redUpperBound    = decimal.NewFromInt(40)
	yellowUpperBound = decimal.NewFromInt(75)
)

const UnknownCompany = "Unknown Company"

type CompanyInfo struct {
	Name         string `json:"name"`
	IndustryType string `json:"industry_type"`
	PrimaryFocus string `json:"primary_focus"`
}

type Scores struct {
	FinalTrustScore float64      `json:"final_trust_score"`
	Specificity     int          `json:"specificity"`
	Consistency     int          `json:"consistency"`
	Verification    int          `json:"verification"`
	TrafficLight    TrafficLight `json:"traffic_light"`
}

type Contradiction struct {
	Claim   string  `json:"claim"`
	Reality string  `json:"reality"`
	Source  *string `json:"source,omitempty"`
}

type AuditDetails struct {
	MajorCommitments       []string        `json:"major_commitments"`
	DetectedContradictions []Contradiction `json:"detected_contradictions"`
	VagueLanguageCount     int             `json:"vague_language_count"`
	HardMetricsFound       int             `json:"hard_metrics_found"`
}

type CO2Recommendation struct {
	Action      string                 `json:"action"`
	Impact      string                 `json:"impact"`
	Priority    RecommendationPriority `json:"priority"`
	Timeline    string                 `json:"timeline"`
	CostBenefit string                 `json:"cost_benefit"`
}

type CO2Analysis struct {
	CurrentEmissions       string              `json:"current_emissions"`
	ReductionPotential     string              `json:"reduction_potential"`
	Recommendations        []CO2Recommendation `json:"recommendations"`
	IndustryBenchmarks     string              `json:"industry_benchmarks"`
	CertificationsToPursue []string            `json:"certifications_to_pursue"`
}

type AnalysisResult struct {
	CompanyInfo    CompanyInfo  `json:"company_info"`
	Scores         Scores       `json:"scores"`
	AuditDetails   AuditDetails `json:"audit_details"`
	CO2Analysis    *CO2Analysis `json:"co2_analysis,omitempty"`
	AdminBrief     string       `json:"admin_brief"`
	ClientFeedback string       `json:"client_feedback"`
}

// ComputeTrustScore applies the fixed weights and rounds half-up to one decimal place.
func ComputeTrustScore(specificity, consistency, verification int) decimal.Decimal {
	return weightSpecificity.Mul(decimal.NewFromInt(int64(specificity))).
		Add(weightConsistency.Mul(decimal.NewFromInt(int64(consistency)))).
		Add(weightVerification.Mul(decimal.NewFromInt(int64(verification)))).
		Round(1)
}

// ClassifyTrafficLight: <40 RED, [40,75) YELLOW, >=75 GREEN.
func ClassifyTrafficLight(score decimal.Decimal) TrafficLight {
	if score.LessThan(redUpperBound) {
		return TrafficLightRed
	}
	if score.LessThan(yellowUpperBound) {
		return TrafficLightYellow
	}
	return TrafficLightGreen
}

// Recompute overwrites the derived score fields from the three component scores.
// Oracle-supplied values for FinalTrustScore and TrafficLight are never kept.
func (s *Scores) Recompute() {
	score := ComputeTrustScore(s.Specificity, s.Consistency, s.Verification)
	s.FinalTrustScore = score.InexactFloat64()
	s.TrafficLight = ClassifyTrafficLight(score)
}
