// Package recommend scores completed provider calls and selects the
// top candidates for the user.
package recommend

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/jkindrix/callbridge/internal/domain"
)

// topK is how many providers a recommendation set carries at most.
const topK = 3

// Recommender ranks providers by their call outcomes.
type Recommender struct {
	logger *zap.Logger
}

// New creates a Recommender.
func New(logger *zap.Logger) *Recommender {
	return &Recommender{logger: logger}
}

// Generate filters, scores, and ranks the given providers into a
// recommendation set. Providers that did not complete a conversation or
// were disqualified never reach scoring. An empty survivor set still
// yields a set, with an explanation of why nobody qualified.
func (r *Recommender) Generate(providers []*domain.Provider) *domain.RecommendationSet {
	var survivors []scored
	var noAnswer, disqualified int

	for _, p := range providers {
		if p.CallStatus != domain.CallStatusCompleted || p.CallResult == nil {
			noAnswer++
			continue
		}
		switch p.CallResult.CallOutcome {
		case domain.OutcomeNoAnswer, domain.OutcomeVoicemail, domain.OutcomeBusy:
			noAnswer++
			continue
		}
		if p.CallResult.Disqualified {
			disqualified++
			continue
		}
		survivors = append(survivors, score(p))
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		a, b := survivors[i], survivors[j]
		if a.points != b.points {
			return a.points > b.points
		}
		if ra, rb := ratingOf(a.provider), ratingOf(b.provider); ra != rb {
			return ra > rb
		}
		return reviewsOf(a.provider) > reviewsOf(b.provider)
	})

	if len(survivors) > topK {
		survivors = survivors[:topK]
	}

	set := &domain.RecommendationSet{
		Providers:   make([]domain.RankedProvider, 0, len(survivors)),
		GeneratedAt: time.Now().UTC(),
	}
	for _, s := range survivors {
		data := s.provider.CallResult
		set.Providers = append(set.Providers, domain.RankedProvider{
			ProviderID:           s.provider.ID,
			Name:                 s.provider.Name,
			Phone:                s.provider.Phone,
			Score:                s.points,
			Rating:               s.provider.Rating,
			ReviewCount:          s.provider.ReviewCount,
			EstimatedRate:        data.EstimatedRate,
			EarliestAvailability: data.EarliestAvailability,
			Reasons:              s.reasons,
		})
	}
	set.OverallRecommendation = r.summarize(set.Providers, len(providers), noAnswer, disqualified)

	r.logger.Info("recommendations generated",
		zap.Int("candidates", len(providers)),
		zap.Int("recommended", len(set.Providers)),
		zap.Int("no_answer", noAnswer),
		zap.Int("disqualified", disqualified),
	)
	return set
}

type scored struct {
	provider *domain.Provider
	points   int
	reasons  []string
}

// score applies the four scoring dimensions: conversation quality (35),
// service fit (30), reputation (25), and trust (10).
func score(p *domain.Provider) scored {
	data := p.CallResult
	s := scored{provider: p}

	switch data.CallOutcome {
	case domain.OutcomePositive:
		s.add(20, "positive conversation")
	case domain.OutcomeNeutral:
		s.add(10, "neutral conversation")
	}
	if isSpecific(data.EarliestAvailability) {
		s.add(8, fmt.Sprintf("concrete availability: %s", data.EarliestAvailability))
	}
	if hasPrice(data.EstimatedRate) {
		s.add(7, fmt.Sprintf("quoted a rate: %s", data.EstimatedRate))
	}

	if data.AllCriteriaMet {
		s.add(20, "meets all criteria")
	}
	switch data.Availability {
	case domain.AvailabilityAvailable:
		s.add(7, "available")
	case domain.AvailabilityCallbackRequested:
		s.add(3, "requested a callback")
	}
	if data.SinglePersonFound {
		s.add(3, "one person covers everything")
	}

	s.points += ratingPoints(p.Rating)
	s.points += reviewPoints(p.ReviewCount)

	if data.Recommended {
		s.add(10, "agent recommends")
	}

	if s.points > 100 {
		s.points = 100
	}
	return s
}

func (s *scored) add(points int, reason string) {
	s.points += points
	s.reasons = append(s.reasons, reason)
}

func ratingPoints(rating *float64) int {
	if rating == nil {
		return 0
	}
	switch r := *rating; {
	case r >= 4.5:
		return 20
	case r >= 4.0:
		return 16
	case r >= 3.5:
		return 12
	case r >= 3.0:
		return 8
	case r > 0:
		return 4
	default:
		return 0
	}
}

func reviewPoints(reviews *int) int {
	if reviews == nil {
		return 0
	}
	switch n := *reviews; {
	case n >= 100:
		return 5
	case n >= 50:
		return 4
	case n >= 20:
		return 3
	case n >= 10:
		return 2
	case n > 0:
		return 1
	default:
		return 0
	}
}

func ratingOf(p *domain.Provider) float64 {
	if p.Rating == nil {
		return 0
	}
	return *p.Rating
}

func reviewsOf(p *domain.Provider) int {
	if p.ReviewCount == nil {
		return 0
	}
	return *p.ReviewCount
}

// vagueAnswers are agent outputs that read as availability without
// actually naming a date or time.
var vagueAnswers = map[string]bool{
	"":         true,
	"unknown":  true,
	"unclear":  true,
	"n/a":      true,
	"none":     true,
	"not sure": true,
	"tbd":      true,
}

// isSpecific reports whether the agent captured a concrete answer rather
// than a placeholder.
func isSpecific(s string) bool {
	return !vagueAnswers[strings.ToLower(strings.TrimSpace(s))]
}

// hasPrice reports whether the rate answer contains an actual number.
func hasPrice(s string) bool {
	if !isSpecific(s) {
		return false
	}
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// summarize builds the user-facing headline for the set.
func (r *Recommender) summarize(ranked []domain.RankedProvider, total, noAnswer, disqualified int) string {
	if len(ranked) == 0 {
		parts := []string{fmt.Sprintf("None of the %d providers we called qualified", total)}
		if noAnswer > 0 {
			parts = append(parts, fmt.Sprintf("%d did not answer or complete a conversation", noAnswer))
		}
		if disqualified > 0 {
			parts = append(parts, fmt.Sprintf("%d could not meet your criteria", disqualified))
		}
		return strings.Join(parts, "; ") + "."
	}

	top := ranked[0]
	msg := fmt.Sprintf("%s is the strongest match with a score of %d", top.Name, top.Score)
	if top.EarliestAvailability != "" {
		msg += fmt.Sprintf(", available %s", top.EarliestAvailability)
	}
	if top.EstimatedRate != "" {
		msg += fmt.Sprintf(" at %s", top.EstimatedRate)
	}
	if len(ranked) > 1 {
		msg += fmt.Sprintf(". %d other qualified option(s) included", len(ranked)-1)
	}
	return msg + "."
}
