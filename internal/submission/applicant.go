package submission

import "strings"

// Applicant holds the personal details captured by the submission form. They
// are frozen once the application is submitted.
type Applicant struct {
	FullName      string `json:"full_name"`
	ContactNumber string `json:"contact_number"`
	Address       string `json:"address"`
	Purpose       string `json:"purpose"`
}

// Validate reports the first missing field in form order.
func (a Applicant) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"full_name", a.FullName},
		{"contact_number", a.ContactNumber},
		{"address", a.Address},
		{"purpose", a.Purpose},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return &ValidationError{Field: f.name}
		}
	}
	return nil
}

// Normalize trims surrounding whitespace from every field.
func (a Applicant) Normalize() Applicant {
	return Applicant{
		FullName:      strings.TrimSpace(a.FullName),
		ContactNumber: strings.TrimSpace(a.ContactNumber),
		Address:       strings.TrimSpace(a.Address),
		Purpose:       strings.TrimSpace(a.Purpose),
	}
}
