package model

import "time"

// CleaningCounts accounts for the rows removed by cleaning. The invalid_* counts are
// measured independently over the same input, so one row may appear in several.
type CleaningCounts struct {
	InitialRecords         int `json:"initial_records"`
	DuplicateEmailsRemoved int `json:"duplicate_emails_removed"`
	InvalidSessionsRemoved int `json:"invalid_sessions_removed"`
	InvalidPricesRemoved   int `json:"invalid_prices_removed"`
	InvalidStatusRemoved   int `json:"invalid_status_removed"`
	FinalRecords           int `json:"final_records"`
}

// Describe holds descriptive statistics of one numeric column.
type Describe struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	P25   float64 `json:"25%"`
	P50   float64 `json:"50%"`
	P75   float64 `json:"75%"`
	Max   float64 `json:"max"`
}

// QualityMetrics is the per-run data-quality snapshot.
type QualityMetrics struct {
	RunID                  string             `json:"run_id"`
	RunAt                  time.Time          `json:"run_at"`
	Cleaning               CleaningCounts     `json:"cleaning"`
	NullCounts             map[string]int     `json:"null_counts"`
	NullRates              map[string]float64 `json:"null_rates"`
	PriceStats             Describe           `json:"price_stats"`
	SessionDurationStats   Describe           `json:"session_duration_stats"`
	SessionDurationTail    map[string]float64 `json:"session_duration_tail"`
	DeviceTypeDistribution map[string]int     `json:"device_type_distribution"`
}
