package models

type TrafficLight string

const (
	TrafficLightRed    TrafficLight = "RED"
	TrafficLightYellow TrafficLight = "YELLOW"
	TrafficLightGreen  TrafficLight = "GREEN"
)

type TransactionType string

const (
	TransactionTypeCredit TransactionType = "credit"
	TransactionTypeDebit  TransactionType = "debit"
)

func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeCredit, TransactionTypeDebit:
		return true
	}
	return false
}

// RecommendationPriority ranks a CO2 reduction action.
type RecommendationPriority string

const (
	PriorityHigh   RecommendationPriority = "HIGH"
	PriorityMedium RecommendationPriority = "MEDIUM"
	PriorityLow    RecommendationPriority = "LOW"
)

func (p RecommendationPriority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}
