package clean

import (
	"actpipe/internal/model"
	"actpipe/internal/useragent"
	"actpipe/internal/validate"
)

// Classifier maps a user-agent string to device, OS and browser families.
type Classifier interface {
	Classify(ua string) useragent.Classification
}

// Rejection records why one input row was dropped by Advanced.
type Rejection struct {
	Index   int
	Email   string
	Reasons []string
}

// AdvancedResult is the output of the Advanced stage. The invalid counts are
// measured independently against the stage input.
type AdvancedResult struct {
	Records         []model.CleanedRecord
	InvalidSessions int
	InvalidPrices   int
	InvalidStatus   int
	Rejections      []Rejection
}

// Advanced classifies user agents, then drops rows failing the timestamp, price
// or status checks. Surviving rows carry a numeric price and a lower-cased status.
func Advanced(in []model.CleanedRecord, classifier Classifier) AdvancedResult {
	res := AdvancedResult{Records: make([]model.CleanedRecord, 0, len(in))}
	for i, r := range in {
		cl := classifier.Classify(r.UserAgent)
		r.DeviceType, r.OS, r.Browser = cl.Device, cl.OS, cl.Browser

		rep := validate.Check(r)
		if !rep.Timestamps.Valid {
			res.InvalidSessions++
		}
		if !rep.Price.Valid {
			res.InvalidPrices++
		}
		if !rep.Status.Valid {
			res.InvalidStatus++
		}
		if !rep.Valid() {
			res.Rejections = append(res.Rejections, Rejection{Index: i, Email: r.Email, Reasons: rep.Reasons()})
			continue
		}
		r.Price, _ = validate.CoercePrice(r.PriceText)
		r.PurchaseStatus = validate.NormalizeStatus(r.PurchaseStatus)
		res.Records = append(res.Records, r)
	}
	return res
}
