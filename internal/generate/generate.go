// Package generate produces synthetic user activity batches.
package generate

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/montanaflynn/stats"

	"actpipe/internal/model"
)

// Options controls one generated batch.
type Options struct {
	Size       int
	Start, End time.Time
	// Seed fixes the faker's sequence; 0 draws a random seed.
	Seed int64
	// ActiveRatio is the share of active accounts; 0 means 0.8.
	ActiveRatio float64
}

// Record is one generated event with typed values.
type Record struct {
	UserID                 string
	FirstName, LastName    string
	Email                  string
	DateOfBirth            time.Time
	PhoneNumber            string
	Address                string
	City, State            string
	PostalCode             string
	Country                string
	Company                string
	JobTitle               string
	IPAddress              string
	IsActive               int
	LoginTime, LogoutTime  time.Time
	AccountCreated         time.Time
	AccountUpdated         time.Time
	AccountDeleted         *time.Time
	SessionDurationMinutes float64
	ProductID              string
	ProductName            string
	Price                  float64
	PurchaseStatus         string
	UserAgent              string
}

const isoLayout = "2006-01-02T15:04:05"

// Raw renders r as source text.
func (r Record) Raw() model.RawRecord {
	deleted := ""
	if r.AccountDeleted != nil {
		deleted = r.AccountDeleted.Format(isoLayout)
	}
	return model.RawRecord{
		UserID:                 r.UserID,
		FirstName:              r.FirstName,
		LastName:               r.LastName,
		Email:                  r.Email,
		DateOfBirth:            r.DateOfBirth.Format("2006-01-02"),
		PhoneNumber:            r.PhoneNumber,
		Address:                r.Address,
		City:                   r.City,
		State:                  r.State,
		PostalCode:             r.PostalCode,
		Country:                r.Country,
		Company:                r.Company,
		JobTitle:               r.JobTitle,
		IPAddress:              r.IPAddress,
		IsActive:               strconv.Itoa(r.IsActive),
		LoginTime:              r.LoginTime.Format(isoLayout),
		LogoutTime:             r.LogoutTime.Format(isoLayout),
		AccountCreated:         r.AccountCreated.Format(isoLayout),
		AccountUpdated:         r.AccountUpdated.Format(isoLayout),
		AccountDeleted:         deleted,
		SessionDurationMinutes: strconv.FormatFloat(r.SessionDurationMinutes, 'f', -1, 64),
		ProductID:              r.ProductID,
		ProductName:            r.ProductName,
		Price:                  strconv.FormatFloat(r.Price, 'f', -1, 64),
		PurchaseStatus:         r.PurchaseStatus,
		UserAgent:              r.UserAgent,
	}
}

var (
	products = []string{"Alpha", "Beta", "Gamma", "Delta", "Epsilon", "Zeta", "Eta", "Theta", "Iota", "Kappa",
		"Lambda", "Mu", "Nu", "Xi", "Omicron", "Pi", "Rho", "Sigma", "Tau", "Upsilon", "Phi", "Chi", "Psi", "Omega"}
	statuses = []string{"completed", "pending", "failed"}
)

// Generator is deterministic for a given seed.
type Generator struct {
	opts Options
	fake *gofakeit.Faker
}

func New(opts Options) (*Generator, error) {
	if opts.Size <= 0 {
		return nil, fmt.Errorf("generate: size must be positive, got %d", opts.Size)
	}
	if !opts.Start.Before(opts.End) {
		return nil, fmt.Errorf("generate: start %s is not before end %s", opts.Start, opts.End)
	}
	if opts.ActiveRatio == 0 {
		opts.ActiveRatio = 0.8
	}
	return &Generator{opts: opts, fake: gofakeit.New(uint64(opts.Seed))}, nil
}

// Records generates the batch. Rows that break a generation rule are
// skipped, so the result may be shorter than Size.
func (g *Generator) Records(log *slog.Logger) []Record {
	out := make([]Record, 0, g.opts.Size)
	for range g.opts.Size {
		r := g.record()
		if !r.LoginTime.Before(r.LogoutTime) || r.AccountUpdated.Before(r.AccountCreated) || r.Price <= 0 {
			continue
		}
		out = append(out, r)
	}
	if log != nil {
		active := 0
		prices := make([]float64, 0, len(out))
		for _, r := range out {
			active += r.IsActive
			prices = append(prices, r.Price)
		}
		mean, _ := stats.Mean(prices)
		log.Info("records generated", "records", len(out), "active", active, "mean_price", math.Round(mean*100)/100)
	}
	return out
}

func (g *Generator) record() Record {
	f := g.fake
	first, last := f.FirstName(), f.LastName()
	active := 0
	if f.Float64() < g.opts.ActiveRatio {
		active = 1
	}
	created := g.between(g.opts.Start, g.opts.End)
	updated := g.between(created, g.opts.End)
	var deleted *time.Time
	loginEnd := g.opts.End
	if active == 0 {
		d := g.between(updated, g.opts.End)
		deleted = &d
		loginEnd = d
	}
	login := g.between(created, loginEnd)
	logout := login.Add(time.Duration(f.Float64Range(0.5, 4) * float64(time.Hour))).Truncate(time.Second)

	return Record{
		UserID:                 f.UUID(),
		FirstName:              first,
		LastName:               last,
		Email:                  first + "_" + last + "@example.com",
		DateOfBirth:            g.between(g.opts.End.AddDate(-72, 0, 0), g.opts.End.AddDate(-18, 0, 0)),
		PhoneNumber:            f.Phone(),
		Address:                f.Street(),
		City:                   f.City(),
		State:                  f.State(),
		PostalCode:             f.Zip(),
		Country:                f.Country(),
		Company:                f.Company(),
		JobTitle:               f.JobTitle(),
		IPAddress:              f.IPv4Address(),
		IsActive:               active,
		LoginTime:              login,
		LogoutTime:             logout,
		AccountCreated:         created,
		AccountUpdated:         updated,
		AccountDeleted:         deleted,
		SessionDurationMinutes: math.Round(logout.Sub(login).Minutes()*100) / 100,
		ProductID:              f.UUID(),
		ProductName:            f.RandomString(products),
		Price:                  math.Round(f.Float64Range(100, 5000)*100) / 100,
		PurchaseStatus:         f.RandomString(statuses),
		UserAgent:              f.UserAgent(),
	}
}

// between returns a second-precision instant in [a, b].
func (g *Generator) between(a, b time.Time) time.Time {
	if !b.After(a) {
		return a
	}
	return g.fake.DateRange(a, b).Truncate(time.Second)
}
