package model

import (
	"database/sql/driver"
	"strconv"
	"time"
)

// Raw source column names.
const (
	ColUserID                 = "user_id"
	ColFirstName              = "first_name"
	ColLastName               = "last_name"
	ColEmail                  = "email"
	ColDateOfBirth            = "date_of_birth"
	ColPhoneNumber            = "phone_number"
	ColAddress                = "address"
	ColCity                   = "city"
	ColState                  = "state"
	ColPostalCode             = "postal_code"
	ColCountry                = "country"
	ColCompany                = "company"
	ColJobTitle               = "job_title"
	ColIPAddress              = "ip_address"
	ColIsActive               = "is_active"
	ColLoginTime              = "login_time"
	ColLogoutTime             = "logout_time"
	ColAccountCreated         = "account_created"
	ColAccountUpdated         = "account_updated"
	ColAccountDeleted         = "account_deleted"
	ColSessionDurationMinutes = "session_duration_minutes"
	ColProductID              = "product_id"
	ColProductName            = "product_name"
	ColPrice                  = "price"
	ColPurchaseStatus         = "purchase_status"
	ColUserAgent              = "user_agent"
)

// RawColumns is the column order of generated source files.
var RawColumns = []string{
	ColUserID, ColFirstName, ColLastName, ColEmail, ColDateOfBirth, ColPhoneNumber,
	ColAddress, ColCity, ColState, ColPostalCode, ColCountry, ColCompany, ColJobTitle,
	ColIPAddress, ColIsActive, ColLoginTime, ColLogoutTime, ColAccountCreated,
	ColAccountUpdated, ColAccountDeleted, ColSessionDurationMinutes, ColProductID,
	ColProductName, ColPrice, ColPurchaseStatus, ColUserAgent,
}

// RequiredColumns must be present in every source batch.
var RequiredColumns = []string{
	ColUserID, ColEmail, ColLoginTime, ColLogoutTime, ColPrice, ColPurchaseStatus, ColUserAgent,
}

// RawRecord is one source event, every value kept as the text the source supplied.
type RawRecord struct {
	UserID                 string `json:"user_id"`
	FirstName              string `json:"first_name"`
	LastName               string `json:"last_name"`
	Email                  string `json:"email"`
	DateOfBirth            string `json:"date_of_birth"`
	PhoneNumber            string `json:"phone_number"`
	Address                string `json:"address"`
	City                   string `json:"city"`
	State                  string `json:"state"`
	PostalCode             string `json:"postal_code"`
	Country                string `json:"country"`
	Company                string `json:"company"`
	JobTitle               string `json:"job_title"`
	IPAddress              string `json:"ip_address"`
	IsActive               string `json:"is_active"`
	LoginTime              string `json:"login_time"`
	LogoutTime             string `json:"logout_time"`
	AccountCreated         string `json:"account_created"`
	AccountUpdated         string `json:"account_updated"`
	AccountDeleted         string `json:"account_deleted"`
	SessionDurationMinutes string `json:"session_duration_minutes"`
	ProductID              string `json:"product_id"`
	ProductName            string `json:"product_name"`
	Price                  string `json:"price"`
	PurchaseStatus         string `json:"purchase_status"`
	UserAgent              string `json:"user_agent"`
}

// RawRecordFromMap builds a RawRecord from a column->value map. Unknown columns are ignored.
func RawRecordFromMap(m map[string]string) RawRecord {
	return RawRecord{
		UserID:                 m[ColUserID],
		FirstName:              m[ColFirstName],
		LastName:               m[ColLastName],
		Email:                  m[ColEmail],
		DateOfBirth:            m[ColDateOfBirth],
		PhoneNumber:            m[ColPhoneNumber],
		Address:                m[ColAddress],
		City:                   m[ColCity],
		State:                  m[ColState],
		PostalCode:             m[ColPostalCode],
		Country:                m[ColCountry],
		Company:                m[ColCompany],
		JobTitle:               m[ColJobTitle],
		IPAddress:              m[ColIPAddress],
		IsActive:               m[ColIsActive],
		LoginTime:              m[ColLoginTime],
		LogoutTime:             m[ColLogoutTime],
		AccountCreated:         m[ColAccountCreated],
		AccountUpdated:         m[ColAccountUpdated],
		AccountDeleted:         m[ColAccountDeleted],
		SessionDurationMinutes: m[ColSessionDurationMinutes],
		ProductID:              m[ColProductID],
		ProductName:            m[ColProductName],
		Price:                  m[ColPrice],
		PurchaseStatus:         m[ColPurchaseStatus],
		UserAgent:              m[ColUserAgent],
	}
}

// Values returns the record in RawColumns order.
func (r RawRecord) Values() []string {
	return []string{
		r.UserID, r.FirstName, r.LastName, r.Email, r.DateOfBirth, r.PhoneNumber,
		r.Address, r.City, r.State, r.PostalCode, r.Country, r.Company, r.JobTitle,
		r.IPAddress, r.IsActive, r.LoginTime, r.LogoutTime, r.AccountCreated,
		r.AccountUpdated, r.AccountDeleted, r.SessionDurationMinutes, r.ProductID,
		r.ProductName, r.Price, r.PurchaseStatus, r.UserAgent,
	}
}

// CleanedRecord is a RawRecord after structural and semantic cleaning.
// Phone, email-domain, city, postal code and product id are not carried.
type CleanedRecord struct {
	UserID                 string
	TransactID             *string
	FirstName              string
	LastName               string
	Email                  string
	DateOfBirth            string
	Address                string
	State                  string
	Country                string
	Company                string
	JobTitle               string
	IPAddress              string
	IsActive               string
	LoginTime              string
	LogoutTime             string
	AccountCreated         string
	AccountUpdated         string
	AccountDeleted         string
	SessionDurationMinutes *float64
	ProductName            string
	PriceText              string
	Price                  float64
	PurchaseStatus         string
	UserAgent              string
	DeviceType             string
	OS                     string
	Browser                string
}

// EnrichedRecord is the persisted, query-ready row.
type EnrichedRecord struct {
	UserID                 string     `json:"user_id"`
	TransactID             *string    `json:"transact_id"`
	FirstName              string     `json:"first_name"`
	LastName               string     `json:"last_name"`
	Email                  string     `json:"email"`
	DateOfBirth            string     `json:"date_of_birth"`
	Address                string     `json:"address"`
	State                  string     `json:"state"`
	Country                string     `json:"country"`
	Company                string     `json:"company"`
	JobTitle               string     `json:"job_title"`
	IPAddress              string     `json:"ip_address"`
	IsActive               string     `json:"is_active"`
	LoginTime              *time.Time `json:"login_time"`
	LogoutTime             *time.Time `json:"logout_time"`
	AccountCreated         *time.Time `json:"account_created"`
	AccountUpdated         *time.Time `json:"account_updated"`
	AccountDeleted         *time.Time `json:"account_deleted"`
	SessionDurationMinutes *float64   `json:"session_duration_minutes"`
	ProductName            string     `json:"product_name"`
	Price                  float64    `json:"price"`
	PurchaseStatus         string     `json:"purchase_status"`
	UserAgent              string     `json:"user_agent"`
	DeviceType             string     `json:"device_type"`
	OS                     string     `json:"os"`
	Browser                string     `json:"browser"`
	CohortDate             *string    `json:"cohort_date"`
	UserAgeDays            int64      `json:"user_age_days"`
	EngagementLevel        string     `json:"engagement_level"`
	PriceTier              string     `json:"price_tier"`
	CustomerLifetimeValue  float64    `json:"customer_lifetime_value"`
}

// EnrichedColumns is the schema-stable column order of the persisted table.
var EnrichedColumns = []string{
	"user_id", "transact_id", "first_name", "last_name", "email", "date_of_birth",
	"address", "state", "country", "company", "job_title", "ip_address", "is_active",
	"login_time", "logout_time", "account_created", "account_updated", "account_deleted",
	"session_duration_minutes", "product_name", "price", "purchase_status", "user_agent",
	"device_type", "os", "browser", "cohort_date", "user_age_days", "engagement_level",
	"price_tier", "customer_lifetime_value",
}

// Strings renders the record in EnrichedColumns order; nulls become empty strings.
func (e EnrichedRecord) Strings() []string {
	return []string{
		e.UserID, strPtr(e.TransactID), e.FirstName, e.LastName, e.Email, e.DateOfBirth,
		e.Address, e.State, e.Country, e.Company, e.JobTitle, e.IPAddress, e.IsActive,
		timePtr(e.LoginTime), timePtr(e.LogoutTime), timePtr(e.AccountCreated),
		timePtr(e.AccountUpdated), timePtr(e.AccountDeleted),
		floatPtr(e.SessionDurationMinutes), e.ProductName, formatFloat(e.Price),
		e.PurchaseStatus, e.UserAgent, e.DeviceType, e.OS, e.Browser, strPtr(e.CohortDate),
		strconv.FormatInt(e.UserAgeDays, 10), e.EngagementLevel, e.PriceTier,
		formatFloat(e.CustomerLifetimeValue),
	}
}

// Row returns the record in EnrichedColumns order as driver values; nulls are nil.
func (e EnrichedRecord) Row() []driver.Value {
	return []driver.Value{
		e.UserID, nullString(e.TransactID), e.FirstName, e.LastName, e.Email, e.DateOfBirth,
		e.Address, e.State, e.Country, e.Company, e.JobTitle, e.IPAddress, e.IsActive,
		nullTime(e.LoginTime), nullTime(e.LogoutTime), nullTime(e.AccountCreated),
		nullTime(e.AccountUpdated), nullTime(e.AccountDeleted),
		nullFloat(e.SessionDurationMinutes), e.ProductName, e.Price, e.PurchaseStatus,
		e.UserAgent, e.DeviceType, e.OS, e.Browser, nullString(e.CohortDate),
		e.UserAgeDays, e.EngagementLevel, e.PriceTier, e.CustomerLifetimeValue,
	}
}

func strPtr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func timePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(TimestampLayout)
}

func floatPtr(f *float64) string {
	if f == nil {
		return ""
	}
	return formatFloat(*f)
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func nullString(s *string) driver.Value {
	if s == nil {
		return nil
	}
	return *s
}

func nullTime(t *time.Time) driver.Value {
	if t == nil {
		return nil
	}
	return *t
}

func nullFloat(f *float64) driver.Value {
	if f == nil {
		return nil
	}
	return *f
}
