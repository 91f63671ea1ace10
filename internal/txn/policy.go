package txn

import "github.com/raphaelgruber/mepfix/internal/models"

// AdvisoryPolicy decides what happens to advisories raised inside a
// transaction. Fatal advisories abort regardless of the policy.
type AdvisoryPolicy interface {
	Dismiss(a models.Advisory) bool
}

// DismissWarnings dismisses every non-fatal advisory. It is the policy for
// unattended batch runs.
type DismissWarnings struct{}

func (DismissWarnings) Dismiss(a models.Advisory) bool { return !a.Fatal() }

// Strict dismisses nothing, so any advisory aborts the transaction.
type Strict struct{}

func (Strict) Dismiss(models.Advisory) bool { return false }

// PolicyFor returns Strict when strict is set, DismissWarnings otherwise.
func PolicyFor(strict bool) AdvisoryPolicy {
	if strict {
		return Strict{}
	}
	return DismissWarnings{}
}
