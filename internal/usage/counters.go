// Package usage records token, image and transcription usage per user,
// prices it, and checks it against per-period budgets.
package usage

import (
	"fmt"
	"time"
)

// Period is the accounting window a budget applies to.
type Period string

// Budget periods.
const (
	PeriodDaily   Period = "daily"
	PeriodMonthly Period = "monthly"
	PeriodAllTime Period = "all-time"
)

// ParsePeriod validates a configured period. Empty means monthly.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case "":
		return PeriodMonthly, nil
	case PeriodDaily, PeriodMonthly, PeriodAllTime:
		return p, nil
	default:
		return "", fmt.Errorf("usage: unknown budget period %q (want daily, monthly or all-time)", s)
	}
}

// GuestKey is the counters key of the shared guest pool.
const GuestKey = "guests"

// Counters holds the usage of one user or of the guest pool.
// Today/Month values belong to Day and Month and are reset on rollover.
type Counters struct {
	Name  string `json:"name,omitempty"`
	Day   string `json:"day"`   // YYYY-MM-DD
	Month string `json:"month"` // YYYY-MM

	TokensToday   int `json:"tokens_today"`
	TokensMonth   int `json:"tokens_month"`
	TokensAllTime int `json:"tokens_all_time"`

	ImagesToday   int `json:"images_today"`
	ImagesMonth   int `json:"images_month"`
	ImagesAllTime int `json:"images_all_time"`

	TranscribeSecondsToday   float64 `json:"transcribe_seconds_today"`
	TranscribeSecondsMonth   float64 `json:"transcribe_seconds_month"`
	TranscribeSecondsAllTime float64 `json:"transcribe_seconds_all_time"`

	CostToday   float64 `json:"cost_today"`
	CostMonth   float64 `json:"cost_month"`
	CostAllTime float64 `json:"cost_all_time"`
}

// Cost returns the spend for the given period.
func (c Counters) Cost(p Period) float64 {
	switch p {
	case PeriodDaily:
		return c.CostToday
	case PeriodAllTime:
		return c.CostAllTime
	default:
		return c.CostMonth
	}
}

func dayOf(t time.Time) string   { return t.Format(time.DateOnly) }
func monthOf(t time.Time) string { return t.Format("2006-01") }

// rollover resets the daily and monthly counters when now falls in a later
// period than the one they were recorded in. It reports whether anything
// was reset.
func (c *Counters) rollover(now time.Time) bool {
	day, month := dayOf(now), monthOf(now)
	changed := false
	if c.Day != day {
		if c.Day != "" {
			c.TokensToday, c.ImagesToday = 0, 0
			c.TranscribeSecondsToday, c.CostToday = 0, 0
			changed = true
		}
		c.Day = day
	}
	if c.Month != month {
		if c.Month != "" {
			c.TokensMonth, c.ImagesMonth = 0, 0
			c.TranscribeSecondsMonth, c.CostMonth = 0, 0
			changed = true
		}
		c.Month = month
	}
	return changed
}

// TranscribeMinutes splits a seconds amount into whole minutes and seconds.
func TranscribeMinutes(seconds float64) (minutes, rest int) {
	total := int(seconds + 0.5)
	return total / 60, total % 60
}
