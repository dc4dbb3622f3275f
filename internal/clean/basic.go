// Package clean implements the structural (Basic) and semantic (Advanced) cleaning stages.
package clean

import (
	"strconv"
	"strings"

	"actpipe/internal/model"
)

// Country is the single jurisdiction the dataset is scoped to.
const Country = "United States"

// Active flag codes.
const (
	ActiveYes = "yes"
	ActiveNo  = "no"
)

const transactLayout = "20060102150405"

// BasicResult is the output of the Basic stage.
type BasicResult struct {
	Records           []model.CleanedRecord
	DuplicatesRemoved int
}

// Basic trims, derives transaction ids, drops later duplicates of an email and
// prunes the low-value identity columns. Input order is preserved.
func Basic(raw []model.RawRecord) BasicResult {
	out := make([]model.CleanedRecord, 0, len(raw))
	for _, r := range raw {
		out = append(out, basicRecord(r))
	}
	kept, dups := Dedup(out)
	return BasicResult{Records: kept, DuplicatesRemoved: dups}
}

// Dedup keeps the first record of every email in input order and returns the
// number of records dropped. Blank emails are treated as one key.
func Dedup(in []model.CleanedRecord) ([]model.CleanedRecord, int) {
	seen := make(map[string]struct{}, len(in))
	out := make([]model.CleanedRecord, 0, len(in))
	for _, r := range in {
		if _, dup := seen[r.Email]; dup {
			continue
		}
		seen[r.Email] = struct{}{}
		out = append(out, r)
	}
	return out, len(in) - len(out)
}

// TransactID renders txn_<user_id>_<login YYYYMMDDhhmmss>. It returns nil when the
// login time is null or unparsable.
func TransactID(userID, loginTime string) *string {
	t, ok := model.ParseTimestamp(loginTime)
	if !ok {
		return nil
	}
	id := "txn_" + strings.TrimSpace(userID) + "_" + t.Format(transactLayout)
	return &id
}

// ActiveCode maps a boolean or binary flag to yes/no. Unrecognized values map to "".
func ActiveCode(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "1.0", "true", "yes":
		return ActiveYes
	case "0", "0.0", "false", "no":
		return ActiveNo
	}
	return ""
}

func basicRecord(r model.RawRecord) model.CleanedRecord {
	t := strings.TrimSpace
	c := model.CleanedRecord{
		UserID:         t(r.UserID),
		TransactID:     TransactID(r.UserID, r.LoginTime),
		FirstName:      t(r.FirstName),
		LastName:       t(r.LastName),
		Email:          t(r.Email),
		DateOfBirth:    t(r.DateOfBirth),
		Address:        t(r.Address),
		State:          t(r.State),
		Country:        Country,
		Company:        t(r.Company),
		JobTitle:       t(r.JobTitle),
		IPAddress:      t(r.IPAddress),
		IsActive:       ActiveCode(r.IsActive),
		LoginTime:      t(r.LoginTime),
		LogoutTime:     t(r.LogoutTime),
		AccountCreated: t(r.AccountCreated),
		AccountUpdated: t(r.AccountUpdated),
		AccountDeleted: t(r.AccountDeleted),
		ProductName:    t(r.ProductName),
		PriceText:      t(r.Price),
		PurchaseStatus: t(r.PurchaseStatus),
		UserAgent:      t(r.UserAgent),
	}
	if s := t(r.SessionDurationMinutes); !model.IsNull(s) {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			c.SessionDurationMinutes = &v
		}
	}
	return c
}
