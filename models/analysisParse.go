package models

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/greenaudit/greenwash_backend/utils"
)

var (
	fenceOpen  = regexp.MustCompile("^```(?:json|JSON)?[ \t]*\r?\n?")
	fenceClose = regexp.MustCompile("\r?\n?```\\s*$")
)

// StripCodeFence removes a surrounding ``` or ```json block if present.
func StripCodeFence(raw string) string {
	content := strings.TrimSpace(raw)
	if strings.HasPrefix(content, "```") {
		content = fenceOpen.ReplaceAllString(content, "")
		content = fenceClose.ReplaceAllString(content, "")
	}
	return strings.TrimSpace(content)
}

// ParseAnalysis decodes raw oracle output into an AnalysisResult.
// The payload is checked field by field as untyped JSON first; any mismatch is
// ErrMalformedOracleResponse. Derived score fields are recomputed, never copied.
func ParseAnalysis(raw string) (*AnalysisResult, error) {
	content := StripCodeFence(raw)
	var payload map[string]any
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, utils.Wrap(utils.ErrMalformedOracleResponse, err, "response is not a JSON object: "+excerpt(content, 300))
	}
	if payload == nil {
		return nil, malformed("response is null")
	}

	var result AnalysisResult
	var err error

	companyInfo, err := object(payload, "company_info")
	if err != nil {
		return nil, err
	}
	if result.CompanyInfo.Name, err = str(companyInfo, "company_info.name"); err != nil {
		return nil, err
	}
	if result.CompanyInfo.IndustryType, err = str(companyInfo, "company_info.industry_type"); err != nil {
		return nil, err
	}
	if result.CompanyInfo.PrimaryFocus, err = str(companyInfo, "company_info.primary_focus"); err != nil {
		return nil, err
	}

	scores, err := object(payload, "scores")
	if err != nil {
		return nil, err
	}
	if result.Scores.Specificity, err = score(scores, "scores.specificity"); err != nil {
		return nil, err
	}
	if result.Scores.Consistency, err = score(scores, "scores.consistency"); err != nil {
		return nil, err
	}
	if result.Scores.Verification, err = score(scores, "scores.verification"); err != nil {
		return nil, err
	}
	result.Scores.Recompute()

	details, err := object(payload, "audit_details")
	if err != nil {
		return nil, err
	}
	if result.AuditDetails.MajorCommitments, err = strList(details, "audit_details.major_commitments"); err != nil {
		return nil, err
	}
	if result.AuditDetails.DetectedContradictions, err = contradictions(details, "audit_details.detected_contradictions"); err != nil {
		return nil, err
	}
	if result.AuditDetails.VagueLanguageCount, err = count(details, "audit_details.vague_language_count"); err != nil {
		return nil, err
	}
	if result.AuditDetails.HardMetricsFound, err = count(details, "audit_details.hard_metrics_found"); err != nil {
		return nil, err
	}

	if raw, ok := payload["co2_analysis"]; ok && raw != nil {
		co2, ok := raw.(map[string]any)
		if !ok {
			return nil, malformed("co2_analysis must be an object")
		}
		if result.CO2Analysis, err = co2Analysis(co2); err != nil {
			return nil, err
		}
	}

	if result.AdminBrief, err = str(payload, "admin_brief"); err != nil {
		return nil, err
	}
	if result.ClientFeedback, err = str(payload, "client_feedback"); err != nil {
		return nil, err
	}
	return &result, nil
}

func co2Analysis(m map[string]any) (*CO2Analysis, error) {
	var out CO2Analysis
	var err error
	if out.CurrentEmissions, err = str(m, "co2_analysis.current_emissions"); err != nil {
		return nil, err
	}
	if out.ReductionPotential, err = str(m, "co2_analysis.reduction_potential"); err != nil {
		return nil, err
	}
	if out.IndustryBenchmarks, err = optionalStr(m, "co2_analysis.industry_benchmarks"); err != nil {
		return nil, err
	}
	if _, ok := m["certifications_to_pursue"]; ok {
		if out.CertificationsToPursue, err = strList(m, "co2_analysis.certifications_to_pursue"); err != nil {
			return nil, err
		}
	}
	items, err := list(m, "co2_analysis.recommendations")
	if err != nil {
		return nil, err
	}
	out.Recommendations = make([]CO2Recommendation, 0, len(items))
	for i, item := range items {
		rec, ok := item.(map[string]any)
		if !ok {
			return nil, malformed(fmt.Sprintf("co2_analysis.recommendations[%d] must be an object", i))
		}
		prefix := fmt.Sprintf("co2_analysis.recommendations[%d].", i)
		var r CO2Recommendation
		if r.Action, err = str(rec, prefix+"action"); err != nil {
			return nil, err
		}
		if r.Impact, err = optionalStr(rec, prefix+"impact"); err != nil {
			return nil, err
		}
		priority, err := str(rec, prefix+"priority")
		if err != nil {
			return nil, err
		}
		r.Priority = RecommendationPriority(strings.ToUpper(strings.TrimSpace(priority)))
		if !r.Priority.IsValid() {
			return nil, malformed(prefix + "priority must be HIGH, MEDIUM or LOW")
		}
		if r.Timeline, err = optionalStr(rec, prefix+"timeline"); err != nil {
			return nil, err
		}
		if r.CostBenefit, err = optionalStr(rec, prefix+"cost_benefit"); err != nil {
			return nil, err
		}
		out.Recommendations = append(out.Recommendations, r)
	}
	return &out, nil
}

func contradictions(m map[string]any, path string) ([]Contradiction, error) {
	items, err := list(m, path)
	if err != nil {
		return nil, err
	}
	out := make([]Contradiction, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, malformed(fmt.Sprintf("%s[%d] must be an object", path, i))
		}
		prefix := fmt.Sprintf("%s[%d].", path, i)
		var c Contradiction
		if c.Claim, err = str(obj, prefix+"claim"); err != nil {
			return nil, err
		}
		if c.Reality, err = str(obj, prefix+"reality"); err != nil {
			return nil, err
		}
		if raw, ok := obj["source"]; ok && raw != nil {
			source, ok := raw.(string)
			if !ok {
				return nil, malformed(prefix + "source must be a string")
			}
			c.Source = &source
		}
		out = append(out, c)
	}
	return out, nil
}

// key returns the last path segment, the actual map key.
func key(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[i+1:]
	}
	return path
}

func object(m map[string]any, path string) (map[string]any, error) {
	raw, ok := m[key(path)]
	if !ok || raw == nil {
		return nil, malformed(path + " is required")
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, malformed(path + " must be an object")
	}
	return obj, nil
}

func str(m map[string]any, path string) (string, error) {
	raw, ok := m[key(path)]
	if !ok || raw == nil {
		return "", malformed(path + " is required")
	}
	s, ok := raw.(string)
	if !ok {
		return "", malformed(path + " must be a string")
	}
	return s, nil
}

func optionalStr(m map[string]any, path string) (string, error) {
	raw, ok := m[key(path)]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", malformed(path + " must be a string")
	}
	return s, nil
}

func list(m map[string]any, path string) ([]any, error) {
	raw, ok := m[key(path)]
	if !ok || raw == nil {
		return nil, malformed(path + " is required")
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, malformed(path + " must be an array")
	}
	return items, nil
}

func strList(m map[string]any, path string) ([]string, error) {
	items, err := list(m, path)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, malformed(fmt.Sprintf("%s[%d] must be a string", path, i))
		}
		out = append(out, s)
	}
	return out, nil
}

func integer(m map[string]any, path string) (int, error) {
	raw, ok := m[key(path)]
	if !ok || raw == nil {
		return 0, malformed(path + " is required")
	}
	f, ok := raw.(float64)
	if !ok {
		return 0, malformed(path + " must be a number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, malformed(path + " must be an integer")
	}
	return int(f), nil
}

func score(m map[string]any, path string) (int, error) {
	n, err := integer(m, path)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > 100 {
		return 0, malformed(fmt.Sprintf("%s must be within [0,100], got %d", path, n))
	}
	return n, nil
}

func count(m map[string]any, path string) (int, error) {
	n, err := integer(m, path)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, malformed(fmt.Sprintf("%s must not be negative, got %d", path, n))
	}
	return n, nil
}

func malformed(msg string) error {
	return utils.Errorf(utils.ErrMalformedOracleResponse, "%s", msg)
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
