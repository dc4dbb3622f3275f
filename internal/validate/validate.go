// Package validate holds the pure per-record validity predicates applied during cleaning.
package validate

import (
	"math"
	"strconv"
	"strings"

	"actpipe/internal/model"
)

// Rejection reasons.
const (
	ReasonLoginUnparsable  = "login_time unparsable"
	ReasonLogoutUnparsable = "logout_time unparsable"
	ReasonLogoutBeforeIn   = "logout_time before login_time"
	ReasonPriceNotNumeric  = "price not numeric"
	ReasonPriceNotPositive = "price not positive"
	ReasonStatusUnknown    = "purchase_status not in allowed set"
)

// Statuses is the enumerated set of purchase statuses.
var Statuses = map[string]struct{}{
	"pending":   {},
	"completed": {},
	"failed":    {},
}

// Result is the outcome of one check on one record.
type Result struct {
	Valid  bool
	Reason string
}

func ok() Result { return Result{Valid: true} }
func reject(reason string) Result { return Result{Reason: reason} }

// Timestamps requires both session timestamps to parse and login <= logout.
func Timestamps(login, logout string) Result {
	in, okIn := model.ParseTimestamp(login)
	if !okIn {
		return reject(ReasonLoginUnparsable)
	}
	out, okOut := model.ParseTimestamp(logout)
	if !okOut {
		return reject(ReasonLogoutUnparsable)
	}
	if out.Before(in) {
		return reject(ReasonLogoutBeforeIn)
	}
	return ok()
}

// CoercePrice converts a price to a number. ok is false for blank, non-numeric,
// NaN and infinite values.
func CoercePrice(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if model.IsNull(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Price requires a positive numeric price.
func Price(raw string) Result {
	v, numeric := CoercePrice(raw)
	if !numeric {
		return reject(ReasonPriceNotNumeric)
	}
	if v <= 0 {
		return reject(ReasonPriceNotPositive)
	}
	return ok()
}

// NormalizeStatus lower-cases and trims a purchase status.
func NormalizeStatus(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Status requires the lower-cased status to be in Statuses.
func Status(raw string) Result {
	if _, found := Statuses[NormalizeStatus(raw)]; !found {
		return reject(ReasonStatusUnknown)
	}
	return ok()
}

// Report collects the three independent checks for one record.
type Report struct {
	Timestamps Result
	Price      Result
	Status     Result
}

// Valid reports whether every check passed.
func (r Report) Valid() bool {
	return r.Timestamps.Valid && r.Price.Valid && r.Status.Valid
}

// Reasons lists the failed checks' reasons in check order.
func (r Report) Reasons() []string {
	var out []string
	for _, res := range []Result{r.Timestamps, r.Price, r.Status} {
		if !res.Valid {
			out = append(out, res.Reason)
		}
	}
	return out
}

// Check runs every predicate against one record.
func Check(r model.CleanedRecord) Report {
	return Report{
		Timestamps: Timestamps(r.LoginTime, r.LogoutTime),
		Price:      Price(r.PriceText),
		Status:     Status(r.PurchaseStatus),
	}
}
