// Package score computes a deterministic 0-100 fit score from a lead's
// normalized and enriched fields. No I/O, no side effects.
package score

import (
	"math"
	"strconv"
	"strings"
)

// Component weights. Company fit is additive points rather than a weighted
// subscore, capped at its weight.
const (
	weightSeniority    = 0.30
	weightEmail        = 0.25
	weightCompleteness = 0.20
	weightSource       = 0.15
)

// Input carries everything the scorer looks at. Zero values score as missing.
type Input struct {
	JobTitle string

	EmailVerified       bool
	DeliverabilityScore float64

	FirstName      string
	LastName       string
	Email          string
	Phone          string
	CompanyName    string
	CompanyDomain  string
	CompanyWebsite string
	LinkedInURL    string

	// Source is where the lead originated: referral, api, upload, scraper.
	Source string

	// EmployeeCount is the enriched headcount, either a number ("250") or a
	// range ("51-200").
	EmployeeCount string
}

var seniorityTiers = []struct {
	score    float64
	keywords []string
}{
	{100, []string{"chief", "ceo", "cto", "cfo", "coo", "cmo", "cro", "founder", "co-founder", "owner", "partner"}},
	{85, []string{"president", "vp", "vice president", "evp", "svp"}},
	{70, []string{"director", "head of"}},
	{55, []string{"manager", "lead"}},
	{40, []string{"senior", "principal", "staff"}},
	{25, []string{"engineer", "developer", "analyst", "specialist", "consultant", "coordinator", "representative", "associate"}},
}

var sourceScores = map[string]float64{
	"referral": 100,
	"api":      80,
	"upload":   60,
	"csv":      60,
	"scraper":  40,
}

// Score computes the weighted fit score, clamped to [0,100] and rounded to
// two decimals. Identical inputs always produce identical scores.
func Score(in Input) float64 {
	total := weightSeniority*seniorityScore(in.JobTitle) +
		weightEmail*emailScore(in) +
		weightCompleteness*completenessScore(in) +
		weightSource*sourceScore(in.Source) +
		companyFitPoints(in)

	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}
	return math.Round(total*100) / 100
}

func seniorityScore(title string) float64 {
	title = strings.ToLower(strings.TrimSpace(title))
	if title == "" {
		return 10
	}
	for _, tier := range seniorityTiers {
		for _, kw := range tier.keywords {
			if containsWord(title, kw) {
				return tier.score
			}
		}
	}
	return 10
}

// containsWord matches kw on word boundaries so "vp" does not match inside
// "developer".
func containsWord(title, kw string) bool {
	if strings.Contains(kw, " ") {
		return strings.Contains(title, kw)
	}
	for _, word := range strings.FieldsFunc(title, func(r rune) bool {
		return r == ' ' || r == ',' || r == '/' || r == '(' || r == ')' || r == '&'
	}) {
		if word == kw {
			return true
		}
	}
	return false
}

func emailScore(in Input) float64 {
	if in.Email == "" {
		return 0
	}
	if in.EmailVerified {
		return in.DeliverabilityScore
	}
	return in.DeliverabilityScore * 0.5
}

func completenessScore(in Input) float64 {
	fields := []string{
		in.FirstName,
		in.LastName,
		in.Email,
		in.Phone,
		in.JobTitle,
		in.CompanyName,
		in.CompanyDomain,
		in.LinkedInURL,
	}
	filled := 0
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			filled++
		}
	}
	return float64(filled) / float64(len(fields)) * 100
}

func sourceScore(source string) float64 {
	if s, ok := sourceScores[strings.ToLower(strings.TrimSpace(source))]; ok {
		return s
	}
	return 25
}

func companyFitPoints(in Input) float64 {
	points := 0.0
	if in.CompanyName != "" || in.CompanyDomain != "" {
		points += 5
	}
	if lo, hi, ok := parseEmployeeCount(in.EmployeeCount); ok && hi >= 50 && lo <= 500 {
		points += 5
	}
	return points
}

// parseEmployeeCount accepts "250", "51-200", or "1,001-5,000".
func parseEmployeeCount(raw string) (lo, hi int, ok bool) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" {
		return 0, 0, false
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n, n, true
	}
	parts := strings.SplitN(raw, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	a, errA := strconv.Atoi(strings.TrimSpace(parts[0]))
	b, errB := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errA != nil || errB != nil {
		return 0, 0, false
	}
	return a, b, true
}
