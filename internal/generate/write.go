package generate

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"actpipe/internal/model"
)

// BaseName is the file stem of generated batches.
const BaseName = "user_activity"

// jsonRecord keeps numeric and null values typed, the way an API payload would.
type jsonRecord struct {
	UserID                 string  `json:"user_id"`
	FirstName              string  `json:"first_name"`
	LastName               string  `json:"last_name"`
	Email                  string  `json:"email"`
	DateOfBirth            string  `json:"date_of_birth"`
	PhoneNumber            string  `json:"phone_number"`
	Address                string  `json:"address"`
	City                   string  `json:"city"`
	State                  string  `json:"state"`
	PostalCode             string  `json:"postal_code"`
	Country                string  `json:"country"`
	Company                string  `json:"company"`
	JobTitle               string  `json:"job_title"`
	IPAddress              string  `json:"ip_address"`
	IsActive               int     `json:"is_active"`
	LoginTime              string  `json:"login_time"`
	LogoutTime             string  `json:"logout_time"`
	AccountCreated         string  `json:"account_created"`
	AccountUpdated         string  `json:"account_updated"`
	AccountDeleted         *string `json:"account_deleted"`
	SessionDurationMinutes float64 `json:"session_duration_minutes"`
	ProductID              string  `json:"product_id"`
	ProductName            string  `json:"product_name"`
	Price                  float64 `json:"price"`
	PurchaseStatus         string  `json:"purchase_status"`
	UserAgent              string  `json:"user_agent"`
}

func toJSON(r Record) jsonRecord {
	raw := r.Raw()
	j := jsonRecord{
		UserID:                 raw.UserID,
		FirstName:              raw.FirstName,
		LastName:               raw.LastName,
		Email:                  raw.Email,
		DateOfBirth:            raw.DateOfBirth,
		PhoneNumber:            raw.PhoneNumber,
		Address:                raw.Address,
		City:                   raw.City,
		State:                  raw.State,
		PostalCode:             raw.PostalCode,
		Country:                raw.Country,
		Company:                raw.Company,
		JobTitle:               raw.JobTitle,
		IPAddress:              raw.IPAddress,
		IsActive:               r.IsActive,
		LoginTime:              raw.LoginTime,
		LogoutTime:             raw.LogoutTime,
		AccountCreated:         raw.AccountCreated,
		AccountUpdated:         raw.AccountUpdated,
		SessionDurationMinutes: r.SessionDurationMinutes,
		ProductID:              raw.ProductID,
		ProductName:            raw.ProductName,
		Price:                  r.Price,
		PurchaseStatus:         raw.PurchaseStatus,
		UserAgent:              raw.UserAgent,
	}
	if raw.AccountDeleted != "" {
		j.AccountDeleted = &raw.AccountDeleted
	}
	return j
}

// WriteCSV writes records under model.RawColumns headers.
func WriteCSV(path string, records []Record) error {
	f, err := create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(model.RawColumns); err != nil {
		f.Close()
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		if err := w.Write(r.Raw().Values()); err != nil {
			f.Close()
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush csv: %w", err)
	}
	return f.Close()
}

// WriteJSON writes records as one indented array.
func WriteJSON(path string, records []Record) error {
	out := make([]jsonRecord, len(records))
	for i, r := range records {
		out[i] = toJSON(r)
	}
	f, err := create(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "    ")
	if err := enc.Encode(out); err != nil {
		f.Close()
		return fmt.Errorf("encode json: %w", err)
	}
	return f.Close()
}

// WriteFiles writes <dir>/user_activity.csv and .json and returns their paths.
func WriteFiles(dir string, records []Record) ([]string, error) {
	csvPath := filepath.Join(dir, BaseName+".csv")
	jsonPath := filepath.Join(dir, BaseName+".json")
	if err := WriteCSV(csvPath, records); err != nil {
		return nil, err
	}
	if err := WriteJSON(jsonPath, records); err != nil {
		return nil, err
	}
	return []string{csvPath, jsonPath}, nil
}

func create(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return f, nil
}
