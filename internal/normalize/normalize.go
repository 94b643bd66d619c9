// Package normalize standardizes raw lead contact fields before the rest of
// the pipeline runs. All functions are pure.
package normalize

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/leads-cli/internal/model"
)

// ErrInvalidLead marks malformed input that no pipeline stage can repair.
// Leads failing normalization land in the error status and stay there until
// an operator fixes the source data.
var ErrInvalidLead = eris.New("normalize: invalid lead")

var (
	emailRe    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phoneSepRe = regexp.MustCompile(`[\s\-().]`)
	spaceRe    = regexp.MustCompile(`\s+`)

	titleCaser = cases.Title(language.English)
)

// Email lowercases and trims an email address.
func Email(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Domain extracts the lowercased domain from an email address, or "" when
// the input has no @.
func Domain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

// Name trims and title-cases a person name component.
func Name(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return titleCaser.String(strings.ToLower(name))
}

// Phone normalizes a phone number toward E.164: separators stripped, a
// bare 10-digit number gets the +1 country prefix, an 11-digit number
// starting with 1 gets a +. Anything unrecognized is returned cleaned but
// otherwise untouched rather than discarded.
func Phone(phone string) string {
	cleaned := phoneSepRe.ReplaceAllString(strings.TrimSpace(phone), "")
	if cleaned == "" {
		return ""
	}
	digits := strings.TrimPrefix(cleaned, "+")
	for _, r := range digits {
		if r < '0' || r > '9' {
			return cleaned
		}
	}
	switch {
	case strings.HasPrefix(cleaned, "+"):
		return cleaned
	case len(digits) == 10:
		return "+1" + digits
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits
	}
	return cleaned
}

// JobTitle collapses whitespace and title-cases a job title.
func JobTitle(title string) string {
	title = strings.TrimSpace(spaceRe.ReplaceAllString(title, " "))
	if title == "" {
		return ""
	}
	return titleCaser.String(strings.ToLower(title))
}

// URL ensures a URL carries a scheme and no trailing slash.
func URL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	return strings.TrimRight(raw, "/")
}

// ValidEmail reports whether the email passes syntax validation.
func ValidEmail(email string) bool {
	return emailRe.MatchString(email)
}

// Lead normalizes every contact field on the lead in place. A lead without
// a syntactically valid email is rejected with ErrInvalidLead.
func Lead(l *model.Lead) error {
	l.Email = Email(l.Email)
	if !ValidEmail(l.Email) {
		return eris.Wrapf(ErrInvalidLead, "email %q", l.Email)
	}

	if l.CompanyDomain == "" {
		l.CompanyDomain = Domain(l.Email)
	} else {
		l.CompanyDomain = strings.ToLower(strings.TrimSpace(l.CompanyDomain))
	}

	l.FirstName = Name(l.FirstName)
	l.LastName = Name(l.LastName)
	l.Phone = Phone(l.Phone)
	l.JobTitle = JobTitle(l.JobTitle)
	l.CompanyName = strings.TrimSpace(l.CompanyName)
	l.CompanyWebsite = URL(l.CompanyWebsite)
	l.LinkedInURL = URL(l.LinkedInURL)

	return nil
}
