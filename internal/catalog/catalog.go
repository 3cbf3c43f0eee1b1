// Package catalog models the permit and certificate types citizens can apply
// for.
package catalog

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pesio-ai/be-permits-portal/internal/platform/errors"
)

// Category distinguishes permits from certificates.
type Category string

const (
	CategoryPermit      Category = "Permit"
	CategoryCertificate Category = "Certificate"
)

// Entry is one published catalog item. Fees are in cents.
type Entry struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Category       Category `json:"category"`
	Description    string   `json:"description"`
	Requirements   []string `json:"requirements"`
	ApplicationFee int64    `json:"application_fee"`
	ProcessingFee  int64    `json:"processing_fee"`
}

// TotalFee is the amount an applicant pays.
func (e Entry) TotalFee() int64 {
	return e.ApplicationFee + e.ProcessingFee
}

// Validate checks the entry before it is published.
func (e Entry) Validate() error {
	switch {
	case strings.TrimSpace(e.ID) == "":
		return errors.InvalidInput("id", "is required")
	case strings.TrimSpace(e.Title) == "":
		return errors.InvalidInput("title", "is required")
	case e.Category != CategoryPermit && e.Category != CategoryCertificate:
		return errors.InvalidInput("category", fmt.Sprintf("must be Permit or Certificate, got %q", e.Category))
	case e.ApplicationFee < 0:
		return errors.InvalidInput("application_fee", "must not be negative")
	case e.ProcessingFee < 0:
		return errors.InvalidInput("processing_fee", "must not be negative")
	}
	return nil
}

type yamlFile struct {
	Entries []yamlEntry `yaml:"entries"`
}

type yamlEntry struct {
	ID             string   `yaml:"id"`
	Title          string   `yaml:"title"`
	Category       string   `yaml:"category"`
	Description    string   `yaml:"description"`
	Requirements   []string `yaml:"requirements"`
	ApplicationFee string   `yaml:"application_fee"`
	ProcessingFee  string   `yaml:"processing_fee"`
}

// LoadYAML parses a catalog file. Fees are written as decimals ("150.00").
func LoadYAML(r io.Reader) ([]Entry, error) {
	var f yamlFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to parse catalog")
	}

	seen := make(map[string]bool, len(f.Entries))
	entries := make([]Entry, 0, len(f.Entries))
	for i, y := range f.Entries {
		appFee, err := ParseFee(y.ApplicationFee)
		if err != nil {
			return nil, fmt.Errorf("entry %d (%s): application_fee: %w", i, y.ID, err)
		}
		procFee, err := ParseFee(y.ProcessingFee)
		if err != nil {
			return nil, fmt.Errorf("entry %d (%s): processing_fee: %w", i, y.ID, err)
		}
		e := Entry{
			ID:             strings.TrimSpace(y.ID),
			Title:          strings.TrimSpace(y.Title),
			Category:       Category(strings.TrimSpace(y.Category)),
			Description:    y.Description,
			Requirements:   y.Requirements,
			ApplicationFee: appFee,
			ProcessingFee:  procFee,
		}
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("entry %d (%s): %w", i, y.ID, err)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("entry %d: %w", i, errors.InvalidInput("id", "duplicate "+e.ID))
		}
		seen[e.ID] = true
		entries = append(entries, e)
	}
	return entries, nil
}

// ParseFee converts a decimal amount with at most two fraction digits into
// cents. An empty string is zero.
func ParseFee(v string) (int64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	if strings.HasPrefix(v, "-") {
		return 0, errors.InvalidInput("fee", "must not be negative")
	}
	whole, frac, _ := strings.Cut(v, ".")
	if len(frac) > 2 {
		return 0, errors.InvalidInput("fee", "at most two decimal places")
	}
	frac += strings.Repeat("0", 2-len(frac))

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || w > math.MaxInt64/100 {
		return 0, errors.InvalidInput("fee", fmt.Sprintf("invalid amount %q", v))
	}
	c, err := strconv.ParseUint(frac, 10, 8)
	if err != nil {
		return 0, errors.InvalidInput("fee", fmt.Sprintf("invalid amount %q", v))
	}
	return w*100 + int64(c), nil
}

// FormatFee renders cents as a decimal string.
func FormatFee(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
