// Package verify checks email deliverability. A syntax and heuristics pass
// always runs locally; ZeroBounce refines the result when a key is
// configured. Verification failures never block the pipeline.
package verify

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/leads-cli/pkg/zerobounce"
)

// Verification statuses stored on the lead.
const (
	StatusValid      = "valid"
	StatusInvalid    = "invalid"
	StatusCatchAll   = "catch_all"
	StatusUnknown    = "unknown"
	StatusUnverified = "unverified"
)

// DefaultTimeout bounds one provider call.
const DefaultTimeout = 10 * time.Second

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Domains that hand out throwaway mailboxes. The provider catches more; this
// list covers the common ones when the API is disabled.
var disposableDomains = map[string]bool{
	"mailinator.com":    true,
	"guerrillamail.com": true,
	"10minutemail.com":  true,
	"tempmail.com":      true,
	"temp-mail.org":     true,
	"throwawaymail.com": true,
	"yopmail.com":       true,
	"sharklasers.com":   true,
	"getnada.com":       true,
	"trashmail.com":     true,
}

var rolePrefixes = map[string]bool{
	"admin":      true,
	"billing":    true,
	"contact":    true,
	"hello":      true,
	"help":       true,
	"info":       true,
	"jobs":       true,
	"marketing":  true,
	"noreply":    true,
	"no-reply":   true,
	"office":     true,
	"postmaster": true,
	"sales":      true,
	"security":   true,
	"support":    true,
	"team":       true,
	"webmaster":  true,
}

// Result is the outcome of one verification.
type Result struct {
	// Status is one of the package status constants.
	Status string
	// Verified is true when the mailbox is believed deliverable.
	Verified bool
	// DeliverabilityScore is 0-100 after penalties.
	DeliverabilityScore float64
	Disposable          bool
	RoleBased           bool
	// Provider names the source of the verdict: "syntax", "heuristic", or
	// "zerobounce".
	Provider string
}

// Verifier validates lead email addresses.
type Verifier struct {
	client  zerobounce.Client
	timeout time.Duration
}

// New creates a Verifier. A nil client disables the external check; local
// syntax and heuristic checks still run.
func New(client zerobounce.Client, timeout time.Duration) *Verifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Verifier{client: client, timeout: timeout}
}

// Enabled reports whether the external provider is configured.
func (v *Verifier) Enabled() bool {
	return v.client != nil
}

// Verify checks email. A provider failure degrades to the local heuristic
// verdict and an error is returned alongside it so callers can log it;
// callers must treat the error as non-fatal.
func (v *Verifier) Verify(ctx context.Context, email string) (*Result, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if !emailPattern.MatchString(email) {
		return &Result{Status: StatusInvalid, DeliverabilityScore: 0, Provider: "syntax"}, nil
	}

	local, domain := splitAddress(email)
	disposable := disposableDomains[domain]
	role := rolePrefixes[local]

	if v.client == nil {
		res := &Result{
			Status:              StatusUnknown,
			Verified:            true,
			DeliverabilityScore: applyPenalties(50, disposable, role),
			Disposable:          disposable,
			RoleBased:           role,
			Provider:            "heuristic",
		}
		return res, nil
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	resp, err := v.client.Validate(ctx, email)
	if err != nil {
		zap.L().Warn("email verification failed",
			zap.String("domain", domain),
			zap.Error(err))
		return nil, err
	}

	disposable = disposable || resp.Disposable()
	role = role || resp.RoleBased()

	status, base, verified := mapStatus(resp.Status)
	return &Result{
		Status:              status,
		Verified:            verified,
		DeliverabilityScore: applyPenalties(base, disposable, role),
		Disposable:          disposable,
		RoleBased:           role,
		Provider:            "zerobounce",
	}, nil
}

func mapStatus(providerStatus string) (status string, base float64, verified bool) {
	switch providerStatus {
	case zerobounce.StatusValid:
		return StatusValid, 100, true
	case zerobounce.StatusCatchAll:
		return StatusCatchAll, 70, true
	case zerobounce.StatusUnknown:
		return StatusUnknown, 50, false
	case zerobounce.StatusInvalid, zerobounce.StatusSpamtrap,
		zerobounce.StatusAbuse, zerobounce.StatusDoNotMail:
		return StatusInvalid, 0, false
	default:
		return StatusUnknown, 50, false
	}
}

func applyPenalties(base float64, disposable, role bool) float64 {
	score := base
	if disposable {
		score *= 0.5
	}
	if role {
		score *= 0.8
	}
	return score
}

func splitAddress(email string) (local, domain string) {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email, ""
	}
	return email[:at], email[at+1:]
}
