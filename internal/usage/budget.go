package usage

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Unlimited is the budget of users without a spending cap.
var Unlimited = math.Inf(1)

// Membership is the view of the allow-list budgets depend on.
type Membership interface {
	IsAdmin(userID string) bool
	AllowsEveryone() bool
	Index(userID string) (int, bool)
}

// Budgets maps users to spending caps for a period.
type Budgets struct {
	Period Period

	// Unlimited disables caps for every allowed user.
	Unlimited bool

	// PerUser holds caps aligned with the allowed user list. When the list
	// allows everyone, the first entry applies to all users.
	PerUser []float64

	// Guest caps the shared guest pool.
	Guest float64
}

// ParseBudgets builds Budgets from the configured values. userBudgets is
// "*" or a comma separated list of amounts.
func ParseBudgets(period, userBudgets string, guest float64) (Budgets, error) {
	p, err := ParsePeriod(period)
	if err != nil {
		return Budgets{}, err
	}
	b := Budgets{Period: p, Guest: guest}

	userBudgets = strings.TrimSpace(userBudgets)
	if userBudgets == "" || userBudgets == "*" {
		b.Unlimited = true
		return b, nil
	}
	for part := range strings.SplitSeq(userBudgets, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return Budgets{}, fmt.Errorf("usage: invalid budget %q: %w", part, err)
		}
		b.PerUser = append(b.PerUser, v)
	}
	return b, nil
}

// Limit returns the cap of userID. guest is set when the user is not on
// the allow-list and spends from the guest pool instead. Unlimited budgets
// lift the guest cap too; guest usage is still charged to the pool.
func (b Budgets) Limit(m Membership, userID string) (limit float64, guest bool) {
	if m.IsAdmin(userID) {
		return Unlimited, false
	}
	i, listed := m.Index(userID)
	guest = !listed && !m.AllowsEveryone()
	switch {
	case b.Unlimited:
		return Unlimited, guest
	case guest:
		return b.Guest, true
	case m.AllowsEveryone():
		if len(b.PerUser) == 0 {
			return 0, false
		}
		return b.PerUser[0], false
	case i >= len(b.PerUser):
		return 0, false
	default:
		return b.PerUser[i], false
	}
}

// Remaining returns how much userID may still spend in the current period.
// Guests share what is left of the guest pool.
func (b Budgets) Remaining(r *Recorder, m Membership, userID string) float64 {
	limit, guest := b.Limit(m, userID)
	if math.IsInf(limit, 1) {
		return Unlimited
	}
	key := userID
	if guest {
		key = GuestKey
	}
	return limit - r.Snapshot(key).Cost(b.Period)
}

// Within reports whether userID has budget left.
func (b Budgets) Within(r *Recorder, m Membership, userID string) bool {
	return b.Remaining(r, m, userID) > 0
}
