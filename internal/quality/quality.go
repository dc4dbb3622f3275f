// Package quality builds the per-run data-quality snapshot.
package quality

import (
	"math"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/montanaflynn/stats"

	"actpipe/internal/clean"
	"actpipe/internal/model"
	"actpipe/internal/quantile"
)

// Columns of the cleaned table whose null rate is reported.
var Columns = []string{
	"user_id", "transact_id", "first_name", "last_name", "email", "date_of_birth",
	"address", "state", "country", "company", "job_title", "ip_address", "is_active",
	"login_time", "logout_time", "account_created", "account_updated", "account_deleted",
	"session_duration_minutes", "product_name", "price", "purchase_status", "user_agent",
	"device_type", "os", "browser",
}

// Input carries everything the collector reads. Records is the cleaned table.
type Input struct {
	RunID          string
	RunAt          time.Time
	InitialRecords int
	Basic          clean.BasicResult
	Advanced       clean.AdvancedResult
}

// Collect computes the snapshot. It does not modify its input.
func Collect(in Input) model.QualityMetrics {
	records := in.Advanced.Records
	m := model.QualityMetrics{
		RunID: in.RunID,
		RunAt: in.RunAt,
		Cleaning: model.CleaningCounts{
			InitialRecords:         in.InitialRecords,
			DuplicateEmailsRemoved: in.Basic.DuplicatesRemoved,
			InvalidSessionsRemoved: in.Advanced.InvalidSessions,
			InvalidPricesRemoved:   in.Advanced.InvalidPrices,
			InvalidStatusRemoved:   in.Advanced.InvalidStatus,
			FinalRecords:           len(records),
		},
		NullCounts:             make(map[string]int, len(Columns)),
		NullRates:              make(map[string]float64, len(Columns)),
		DeviceTypeDistribution: map[string]int{},
	}

	for _, c := range Columns {
		m.NullCounts[c] = 0
	}
	prices := make([]float64, 0, len(records))
	var durations []float64
	for _, r := range records {
		for c, isNull := range nulls(r) {
			if isNull {
				m.NullCounts[c]++
			}
		}
		prices = append(prices, r.Price)
		if r.SessionDurationMinutes != nil && !math.IsNaN(*r.SessionDurationMinutes) {
			durations = append(durations, *r.SessionDurationMinutes)
		}
		m.DeviceTypeDistribution[r.DeviceType]++
	}
	for _, c := range Columns {
		if len(records) > 0 {
			m.NullRates[c] = float64(m.NullCounts[c]) / float64(len(records))
		} else {
			m.NullRates[c] = 0
		}
	}
	m.PriceStats = Describe(prices)
	m.SessionDurationStats = Describe(durations)
	m.SessionDurationTail = Tail(durations)
	return m
}

// Describe returns count, mean, sample standard deviation, min, quartiles and max.
// All fields are zero for an empty input; Std is zero for a single value.
func Describe(values []float64) model.Describe {
	if len(values) == 0 {
		return model.Describe{}
	}
	data := stats.Float64Data(values)
	d := model.Describe{Count: len(values)}
	d.Mean, _ = stats.Mean(data)
	d.Min, _ = stats.Min(data)
	d.Max, _ = stats.Max(data)
	if len(values) > 1 {
		d.Std, _ = stats.StandardDeviationSample(data)
	}
	sorted := quantile.Sorted(values)
	d.P25 = quantile.Linear(sorted, 0.25)
	d.P50 = quantile.Linear(sorted, 0.5)
	d.P75 = quantile.Linear(sorted, 0.75)
	return d
}

// tail values are recorded in hundredths of a minute
const tailScale = 100

// Tail reports high percentiles of session duration from an HDR histogram. Values
// are accurate to three significant figures. Negative durations are ignored.
func Tail(minutes []float64) map[string]float64 {
	h := hdrhistogram.New(1, 10_000_000*tailScale, 3)
	for _, v := range minutes {
		if v < 0 {
			continue
		}
		_ = h.RecordValue(int64(math.Round(v * tailScale)))
	}
	if h.TotalCount() == 0 {
		return map[string]float64{}
	}
	return map[string]float64{
		"p90": float64(h.ValueAtQuantile(90)) / tailScale,
		"p95": float64(h.ValueAtQuantile(95)) / tailScale,
		"p99": float64(h.ValueAtQuantile(99)) / tailScale,
		"max": float64(h.Max()) / tailScale,
	}
}

func nulls(r model.CleanedRecord) map[string]bool {
	n := model.IsNull
	return map[string]bool{
		"user_id":                  n(r.UserID),
		"transact_id":              r.TransactID == nil,
		"first_name":               n(r.FirstName),
		"last_name":                n(r.LastName),
		"email":                    n(r.Email),
		"date_of_birth":            n(r.DateOfBirth),
		"address":                  n(r.Address),
		"state":                    n(r.State),
		"country":                  n(r.Country),
		"company":                  n(r.Company),
		"job_title":                n(r.JobTitle),
		"ip_address":               n(r.IPAddress),
		"is_active":                n(r.IsActive),
		"login_time":               n(r.LoginTime),
		"logout_time":              n(r.LogoutTime),
		"account_created":          n(r.AccountCreated),
		"account_updated":          n(r.AccountUpdated),
		"account_deleted":          n(r.AccountDeleted),
		"session_duration_minutes": r.SessionDurationMinutes == nil,
		"product_name":             n(r.ProductName),
		"price":                    false,
		"purchase_status":          n(r.PurchaseStatus),
		"user_agent":               n(r.UserAgent),
		"device_type":              n(r.DeviceType),
		"os":                       n(r.OS),
		"browser":                  n(r.Browser),
	}
}
