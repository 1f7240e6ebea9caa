package applications

import (
	"net/mail"
	"regexp"
	"strings"
	"time"
)

// Application statuses.
const (
	StatusPending = "pending"
	StatusPaid    = "paid"
)

// Payment statuses mirrored onto the application record.
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
)

// Application is one scholarship application.
type Application struct {
	ID             string
	Name           string
	Email          string
	Phone          string
	DOB            time.Time
	Gender         string
	Category       string
	School         string
	State          string
	District       string
	Pincode        string
	Address        string
	IncomeAmount   int64
	IncomeBand     string
	Achievements   string
	Recommendation string
	SOP            string

	Status         string
	PaymentStatus  string
	PaymentOrderID string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

var phonePattern = regexp.MustCompile(`^[6-9]\d{9}$`)

// Validate returns the list of intake validation failures, empty when the
// application is acceptable.
func (a Application) Validate() []string {
	var errs []string

	if strings.TrimSpace(a.Name) == "" {
		errs = append(errs, "name is required")
	}
	switch {
	case strings.TrimSpace(a.Email) == "":
		errs = append(errs, "email is required")
	default:
		if _, err := mail.ParseAddress(a.Email); err != nil {
			errs = append(errs, "invalid email format")
		}
	}
	switch {
	case strings.TrimSpace(a.Phone) == "":
		errs = append(errs, "phone number is required")
	case !phonePattern.MatchString(a.Phone):
		errs = append(errs, "invalid Indian phone number")
	}
	if a.DOB.IsZero() {
		errs = append(errs, "date of birth is required")
	}
	if a.Gender == "" {
		errs = append(errs, "gender is required")
	}
	if a.Category == "" {
		errs = append(errs, "class/course is required")
	}
	if strings.TrimSpace(a.School) == "" {
		errs = append(errs, "school/college name is required")
	}
	if strings.TrimSpace(a.State) == "" {
		errs = append(errs, "state is required")
	}
	if strings.TrimSpace(a.District) == "" {
		errs = append(errs, "district is required")
	}
	if strings.TrimSpace(a.Pincode) == "" {
		errs = append(errs, "pincode is required")
	}
	if strings.TrimSpace(a.Address) == "" {
		errs = append(errs, "address is required")
	}
	if a.IncomeAmount <= 0 {
		errs = append(errs, "family income is required")
	}
	if a.IncomeBand == "" {
		errs = append(errs, "income band is required")
	}
	if strings.TrimSpace(a.Achievements) == "" {
		errs = append(errs, "achievements are required")
	}
	if strings.TrimSpace(a.Recommendation) == "" {
		errs = append(errs, "recommendation is required")
	}
	switch {
	case strings.TrimSpace(a.SOP) == "":
		errs = append(errs, "statement of purpose is required")
	case len(a.SOP) < 50:
		errs = append(errs, "statement of purpose must be at least 50 characters")
	}

	return errs
}
