// Package contact implements the contact form: field validation shared with
// the multi-step form, and the API that relays submissions.
package contact

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	ErrMissingFields = errors.New("contact: name, email and brief are required")
	ErrInvalidEmail  = errors.New("contact: invalid email address")
)

// Form steps, in the order the client walks them.
const (
	StepName = iota
	StepEmail
	StepBudget
	StepBrief
)

// minBriefLen is exclusive: a brief must be longer than this.
const minBriefLen = 10

var emailRE = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Submission is the body of POST /api/contact.
type Submission struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Budget string `json:"budget"`
	Brief  string `json:"brief"`
}

func ValidName(name string) bool { return strings.TrimSpace(name) != "" }

func ValidEmail(email string) bool { return emailRE.MatchString(email) }

func ValidBudget(budget string) bool { return budget != "" }

func ValidBrief(brief string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(brief)) > minBriefLen
}

// CanAdvance reports whether the form may move past step. Unknown steps
// never advance.
func CanAdvance(step int, s Submission) bool {
	switch step {
	case StepName:
		return ValidName(s.Name)
	case StepEmail:
		return ValidEmail(s.Email)
	case StepBudget:
		return ValidBudget(s.Budget)
	case StepBrief:
		return ValidBrief(s.Brief)
	default:
		return false
	}
}

// Validate checks what the API requires before relaying. It is looser than
// the step validators: budget is optional and the brief has no minimum.
func (s Submission) Validate() error {
	// whitespace-only values count as missing
	if strings.TrimSpace(s.Name) == "" || strings.TrimSpace(s.Email) == "" || strings.TrimSpace(s.Brief) == "" {
		return ErrMissingFields
	}
	if !ValidEmail(s.Email) {
		return ErrInvalidEmail
	}
	return nil
}
