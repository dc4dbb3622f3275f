// Package useragent classifies user-agent strings into device, OS and browser families.
//
// Parsing is delegated to a Parser; the Classifier owns the normalization policy,
// so the policy can be tested without the parsing library's taxonomy.
package useragent

import (
	"strings"

	"github.com/ua-parser/uap-go/uaparser"
)

const (
	// FamilyOther is the taxonomy's label for an unrecognized family.
	FamilyOther = "Other"
	// DeviceDesktop replaces unrecognized device families.
	DeviceDesktop = "Desktop"
)

// Classification is the family triple for one user-agent string.
type Classification struct {
	Device  string
	OS      string
	Browser string
}

// Parser maps a raw user-agent string to taxonomy families.
type Parser interface {
	Parse(ua string) Classification
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(ua string) Classification

func (f ParserFunc) Parse(ua string) Classification { return f(ua) }

// Classifier applies the device normalization policy on top of a Parser.
type Classifier struct {
	parser Parser
}

func NewClassifier(p Parser) *Classifier {
	return &Classifier{parser: p}
}

// Classify returns the families for ua. An unknown or empty device family is
// reported as Desktop.
func (c *Classifier) Classify(ua string) Classification {
	cl := c.parser.Parse(strings.TrimSpace(ua))
	if cl.Device == "" || cl.Device == FamilyOther {
		cl.Device = DeviceDesktop
	}
	if cl.OS == "" {
		cl.OS = FamilyOther
	}
	if cl.Browser == "" {
		cl.Browser = FamilyOther
	}
	return cl
}

// UAPParser is a Parser backed by the ua-parser regex definitions.
type UAPParser struct {
	p *uaparser.Parser
}

// NewUAPParser loads the definitions embedded in uap-go.
func NewUAPParser() *UAPParser {
	return &UAPParser{p: uaparser.NewFromSaved()}
}

func (u *UAPParser) Parse(ua string) Classification {
	client := u.p.Parse(ua)
	var cl Classification
	if client.Device != nil {
		cl.Device = client.Device.Family
	}
	if client.Os != nil {
		cl.OS = client.Os.Family
	}
	if client.UserAgent != nil {
		cl.Browser = client.UserAgent.Family
	}
	return cl
}

// Default returns a Classifier over the uap-go definitions.
func Default() *Classifier {
	return NewClassifier(NewUAPParser())
}
