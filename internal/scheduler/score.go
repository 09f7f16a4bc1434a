package scheduler

import (
	"time"

	"github.com/pubplan/pubplan/internal/config"
)

// Factor weights for the multiplicative scoring model. Each multiplier stays
// within roughly [0.8, 1.3] so no single signal can drown out the baseline.
const (
	wDemo       = 0.3
	wFormat     = 0.2
	wSeason     = 0.15
	recencyHalf = 0.5
)

// ScoreInput describes one channel-day to score.
type ScoreInput struct {
	Channel  config.Channel
	Kind     config.ContentKind
	Audience AudienceProfile
	Day      time.Time // any instant on the day being scored
	LastPost *time.Time
	MinGap   time.Duration
}

// ScoreDay computes the desirability of each of the day's 24 hours in [0,1].
// Hours a guardrail forbids score zero; everything else is normalized so the
// day's best hour scores exactly 1.0.
func (o *Optimizer) ScoreDay(in ScoreInput) [24]float64 {
	var scores [24]float64
	weekday := in.Day.Weekday()
	dayStart := time.Date(in.Day.Year(), in.Day.Month(), in.Day.Day(), 0, 0, 0, 0, in.Day.Location())

	for h := 0; h < 24; h++ {
		if guardrailForbids(in.Channel, in.Kind, h) {
			continue
		}

		base := o.baseline(in.Channel, in.Kind, weekday, h)
		s := base
		s *= 1 + wDemo*demoAdjust(in.Audience, weekday, h)
		s *= 1 + wFormat*formatAdjust(in.Kind, h)
		s *= 1 + wSeason*seasonality(in.Day.Month(), h)

		if in.LastPost != nil && in.MinGap > 0 {
			slot := dayStart.Add(time.Duration(h) * time.Hour)
			if absDuration(slot.Sub(*in.LastPost)) < in.MinGap {
				s *= recencyHalf
			}
		}

		scores[h] = s
	}

	// Normalize to peak 1.0. Keeping the floor non-zero preserves the
	// fallback hours instead of flattening them to zero.
	max := 0.0
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	if max > 0 {
		for h := range scores {
			scores[h] /= max
		}
	}
	return scores
}

// baseline prefers accumulated outcome evidence once a slot has enough
// samples; until then the static posting-window table decides.
func (o *Optimizer) baseline(channel config.Channel, kind config.ContentKind, weekday time.Weekday, hour int) float64 {
	if o.adaptive != nil {
		key := WeightKey{Channel: channel, Kind: kind, Weekday: weekday, Hour: hour}
		if w, samples := o.adaptive.Lookup(key); samples >= minSamples {
			return w
		}
	}
	return staticBaseline(channel, weekday, hour)
}

// demoAdjust returns an additive boost in [0,1] for hours the audience is
// likely reachable: evenings and weekends for mobile-heavy young audiences,
// post-workday hours for working-age audiences.
func demoAdjust(a AudienceProfile, weekday time.Weekday, hour int) float64 {
	weekend := weekday == time.Saturday || weekday == time.Sunday

	switch a.AgeBand {
	case "13-17", "18-24":
		if a.MobileShare >= 0.6 {
			switch {
			case hour >= 18 && hour <= 23 && weekend:
				return 1.0
			case hour >= 18 && hour <= 23:
				return 0.8
			case weekend:
				return 0.6
			}
		}
	case "25-34", "35-44":
		switch {
		case hour >= 17 && hour < 21:
			return 1.0
		case hour >= 12 && hour < 14:
			return 0.4
		}
	}
	return 0
}

// formatAdjust boosts hours where a content format typically lands well:
// long sessions in the evening, snackable formats at commute and lunch
// breaks, text posts in the working morning.
func formatAdjust(kind config.ContentKind, hour int) float64 {
	switch kind {
	case config.KindLongForm:
		if hour >= 19 && hour < 23 {
			return 1.0
		}
	case config.KindShortForm, config.KindReel, config.KindStory:
		switch {
		case hour >= 7 && hour < 9:
			return 1.0
		case hour >= 12 && hour < 14:
			return 0.8
		case hour >= 17 && hour < 19:
			return 1.0
		}
	case config.KindPost, config.KindThread:
		if hour >= 8 && hour < 11 {
			return 0.6
		}
	}
	return 0
}

// seasonality nudges evening hours up during the Q4 engagement spike and
// late evenings in the summer months.
func seasonality(month time.Month, hour int) float64 {
	switch {
	case month >= time.October && hour >= 18 && hour <= 23:
		return 0.5
	case month >= time.June && month <= time.August && hour >= 20 && hour <= 23:
		return 0.3
	}
	return 0
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
