// Package enrich derives the analytical fields of the persisted table.
package enrich

import (
	"fmt"
	"math"
	"time"

	"actpipe/internal/model"
	"actpipe/internal/state"
)

const cohortLayout = "2006-01"

// Enrich derives cohort, tenure, engagement, price tier and lifetime value for every
// record. No record is dropped. Lifetime values are accumulated into st over the
// whole batch before any record is emitted.
func Enrich(records []model.CleanedRecord, st state.Store) ([]model.EnrichedRecord, error) {
	if err := AccumulateLifetime(st, records); err != nil {
		return nil, err
	}

	prices := make([]float64, len(records))
	for i, r := range records {
		prices[i] = r.Price
	}
	tier, _ := PriceTiers(prices)

	out := make([]model.EnrichedRecord, 0, len(records))
	for _, r := range records {
		clv, err := LifetimeValue(st, r.UserID)
		if err != nil {
			return nil, err
		}
		e := base(r)
		e.CohortDate = Cohort(e.AccountCreated)
		e.UserAgeDays = AgeDays(e.AccountCreated, e.LoginTime)
		e.EngagementLevel = Engagement(r.SessionDurationMinutes)
		e.PriceTier = tier(r.Price)
		e.CustomerLifetimeValue = clv
		if e.CustomerLifetimeValue < e.Price {
			return nil, fmt.Errorf("lifetime value %v below price %v for %q", clv, r.Price, r.UserID)
		}
		out = append(out, e)
	}
	return out, nil
}

// Cohort renders the account creation month as YYYY-MM, or nil.
func Cohort(created *time.Time) *string {
	if created == nil {
		return nil
	}
	s := created.Format(cohortLayout)
	return &s
}

// AgeDays is the whole-day difference login - created, floored, and 0 when negative
// or undeterminable.
func AgeDays(created, login *time.Time) int64 {
	if created == nil || login == nil {
		return 0
	}
	days := math.Floor(login.Sub(*created).Hours() / 24)
	if days < 0 {
		return 0
	}
	return int64(days)
}

func parseTime(s string) *time.Time {
	t, ok := model.ParseTimestamp(s)
	if !ok {
		return nil
	}
	return &t
}

func base(r model.CleanedRecord) model.EnrichedRecord {
	return model.EnrichedRecord{
		UserID:                 r.UserID,
		TransactID:             r.TransactID,
		FirstName:              r.FirstName,
		LastName:               r.LastName,
		Email:                  r.Email,
		DateOfBirth:            r.DateOfBirth,
		Address:                r.Address,
		State:                  r.State,
		Country:                r.Country,
		Company:                r.Company,
		JobTitle:               r.JobTitle,
		IPAddress:              r.IPAddress,
		IsActive:               r.IsActive,
		LoginTime:              parseTime(r.LoginTime),
		LogoutTime:             parseTime(r.LogoutTime),
		AccountCreated:         parseTime(r.AccountCreated),
		AccountUpdated:         parseTime(r.AccountUpdated),
		AccountDeleted:         parseTime(r.AccountDeleted),
		SessionDurationMinutes: r.SessionDurationMinutes,
		ProductName:            r.ProductName,
		Price:                  r.Price,
		PurchaseStatus:         r.PurchaseStatus,
		UserAgent:              r.UserAgent,
		DeviceType:             r.DeviceType,
		OS:                     r.OS,
		Browser:                r.Browser,
	}
}
