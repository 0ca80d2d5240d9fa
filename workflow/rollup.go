package workflow

import (
	"context"
	"strings"

	"github.com/greenaudit/greenwash_backend/models"
	"github.com/greenaudit/greenwash_backend/utils"
	"github.com/shopspring/decimal"
)

// Rollups are derived on every read and never cached.

type CompanySummary struct {
	Company           *models.Company            `json:"company"`
	ReportCount       int                        `json:"report_count"`
	AverageTrustScore *float64                   `json:"avg_trust_score"`
	CreditBalances    map[string]decimal.Decimal `json:"credit_balances"`
	CreditEntryCount  int                        `json:"credit_entry_count"`
}

type RiskDistribution struct {
	Green  int `json:"green"`
	Yellow int `json:"yellow"`
	Red    int `json:"red"`
}

type PlatformStats struct {
	TotalCompanies          int                        `json:"total_companies"`
	TotalReports            int                        `json:"total_reports"`
	AverageTrustScore       *float64                   `json:"avg_trust_score"`
	AverageSpecificity      *float64                   `json:"avg_specificity"`
	AverageConsistency      *float64                   `json:"avg_consistency"`
	AverageVerification     *float64                   `json:"avg_verification"`
	RiskDistribution        RiskDistribution           `json:"risk_distribution"`
	TotalCreditsDistributed decimal.Decimal            `json:"total_credits_distributed"`
	CreditTotals            map[string]decimal.Decimal `json:"credit_totals"`
	IndustryDistribution    map[string]int             `json:"industry_distribution"`
	IndustryAverages        map[string]float64         `json:"industry_averages"`
}

const unspecifiedIndustry = "Unspecified"

// SummarizeCompany builds the rollup of one company from its reports and ledger entries.
func SummarizeCompany(company *models.Company, reports []*models.Report, entries []*models.CreditEntry) CompanySummary {
	var scores []decimal.Decimal
	for _, r := range reports {
		if r.Analysis != nil {
			scores = append(scores, decimal.NewFromFloat(r.Analysis.Scores.FinalTrustScore))
		}
	}
	return CompanySummary{
		Company:           company,
		ReportCount:       len(reports),
		AverageTrustScore: average(scores),
		CreditBalances:    ComputeBalances(entries),
		CreditEntryCount:  len(entries),
	}
}

// ComputePlatformStats aggregates every company, report and ledger entry.
func ComputePlatformStats(companies []*models.Company, reports []*models.Report, entries []*models.CreditEntry) PlatformStats {
	stats := PlatformStats{
		TotalCompanies:          len(companies),
		TotalReports:            len(reports),
		TotalCreditsDistributed: decimal.Zero,
		CreditTotals:            map[string]decimal.Decimal{},
		IndustryDistribution:    map[string]int{},
		IndustryAverages:        map[string]float64{},
	}

	var trust, specificity, consistency, verification []decimal.Decimal
	byIndustry := map[string][]decimal.Decimal{}
	for _, r := range reports {
		if r.Analysis == nil {
			continue
		}
		s := r.Analysis.Scores
		score := decimal.NewFromFloat(s.FinalTrustScore)
		trust = append(trust, score)
		specificity = append(specificity, decimal.NewFromInt(int64(s.Specificity)))
		consistency = append(consistency, decimal.NewFromInt(int64(s.Consistency)))
		verification = append(verification, decimal.NewFromInt(int64(s.Verification)))
		switch models.ClassifyTrafficLight(score) {
		case models.TrafficLightGreen:
			stats.RiskDistribution.Green++
		case models.TrafficLightYellow:
			stats.RiskDistribution.Yellow++
		default:
			stats.RiskDistribution.Red++
		}
		industry := industryName(r.Analysis.CompanyInfo.IndustryType)
		byIndustry[industry] = append(byIndustry[industry], score)
	}
	stats.AverageTrustScore = average(trust)
	stats.AverageSpecificity = average(specificity)
	stats.AverageConsistency = average(consistency)
	stats.AverageVerification = average(verification)
	for industry, scores := range byIndustry {
		stats.IndustryAverages[industry] = *average(scores)
	}

	for _, c := range companies {
		stats.IndustryDistribution[industryName(c.IndustryType)]++
	}

	// only issued credits count as distributed; debits reduce balances, not issuance
	for _, e := range entries {
		if e.TransactionType != models.TransactionTypeCredit {
			continue
		}
		stats.TotalCreditsDistributed = stats.TotalCreditsDistributed.Add(e.Amount)
		stats.CreditTotals[e.CreditType] = stats.CreditTotals[e.CreditType].Add(e.Amount)
	}
	return stats
}

// average is rounded to one decimal place; nil when there is nothing to average.
func average(values []decimal.Decimal) *float64 {
	if len(values) == 0 {
		return nil
	}
	avg := decimal.Avg(values[0], values[1:]...).Round(1).InexactFloat64()
	return &avg
}

func industryName(industry string) string {
	industry = strings.TrimSpace(industry)
	if industry == "" {
		return unspecifiedIndustry
	}
	return industry
}

// Rollups loads the stores and derives company and platform views.
type Rollups struct {
	companies CompanyStore
	reports   ReportStore
	credits   CreditStore
}

func NewRollups(companies CompanyStore, reports ReportStore, credits CreditStore) *Rollups {
	return &Rollups{companies: companies, reports: reports, credits: credits}
}

func (r *Rollups) CompanySummaries(ctx context.Context) ([]CompanySummary, error) {
	companies, err := r.companies.List(ctx)
	if err != nil {
		return nil, utils.Wrap(utils.ErrStorageFailure, err, "list companies")
	}
	summaries := make([]CompanySummary, 0, len(companies))
	for _, c := range companies {
		id := c.ID
		reports, err := r.reports.Find(ctx, models.ReportFilter{UserId: &id})
		if err != nil {
			return nil, utils.Wrap(utils.ErrStorageFailure, err, "find reports")
		}
		entries, err := r.credits.Find(ctx, models.CreditFilter{UserId: id})
		if err != nil {
			return nil, utils.Wrap(utils.ErrStorageFailure, err, "find credit entries")
		}
		summaries = append(summaries, SummarizeCompany(c, reports, entries))
	}
	return summaries, nil
}

func (r *Rollups) PlatformStats(ctx context.Context) (*PlatformStats, error) {
	companies, err := r.companies.List(ctx)
	if err != nil {
		return nil, utils.Wrap(utils.ErrStorageFailure, err, "list companies")
	}
	reports, err := r.reports.Find(ctx, models.ReportFilter{})
	if err != nil {
		return nil, utils.Wrap(utils.ErrStorageFailure, err, "find reports")
	}
	entries, err := r.credits.Find(ctx, models.CreditFilter{})
	if err != nil {
		return nil, utils.Wrap(utils.ErrStorageFailure, err, "find credit entries")
	}
	stats := ComputePlatformStats(companies, reports, entries)
	return &stats, nil
}
