package session

import (
	"unicode/utf8"

	"github.com/flemzord/tgpt/internal/provider"
)

// Estimator guesses the token count of a text.
type Estimator interface {
	Estimate(text string) int
}

// CharsPerToken estimates tokens from the rune count. About 4 fits English,
// 3 other Latin-script languages.
type CharsPerToken float64

// DefaultEstimator assumes English text.
const DefaultEstimator CharsPerToken = 4

// Estimate rounds up so a non-empty text never counts as free.
func (r CharsPerToken) Estimate(text string) int {
	if text == "" {
		return 0
	}
	ratio := float64(r)
	if ratio <= 0 {
		ratio = float64(DefaultEstimator)
	}
	return int(float64(utf8.RuneCountInString(text))/ratio) + 1
}

// Chat models bill a few tokens per message around its content, plus a
// couple priming the reply.
const (
	messageOverhead = 4
	replyPriming    = 2
)

// EstimateMessages returns the estimated prompt size of msgs. A name
// stands in for the role token it replaces.
func EstimateMessages(est Estimator, msgs []provider.Message) int {
	total := replyPriming
	for _, m := range msgs {
		total += messageOverhead + est.Estimate(string(m.Role)) + est.Estimate(m.Content)
		if m.Name != "" {
			total += est.Estimate(m.Name) - 1
		}
	}
	return total
}
