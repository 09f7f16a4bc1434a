package scheduler

import (
	"time"

	"github.com/pubplan/pubplan/internal/config"
)

// PostingWindow is an evidence-derived time range in which a channel
// historically performs well. Weights are relative within a channel; the
// static tables below are read-only at runtime and only ever overridden by
// accumulated outcome evidence, never edited.
type PostingWindow struct {
	StartHour int // inclusive
	EndHour   int // exclusive
	Weight    float64
	Weekday   *time.Weekday // nil applies to every weekday
}

// defaultBaseline is the weight for hours outside every posting window.
// Deliberately non-zero so any hour stays selectable as a fallback.
const defaultBaseline = 0.1

func wd(d time.Weekday) *time.Weekday { return &d }

var baselineWindows = map[config.Channel][]PostingWindow{
	config.ChannelYouTube: {
		{StartHour: 15, EndHour: 18, Weight: 0.8},
		{StartHour: 18, EndHour: 22, Weight: 1.0},
		{StartHour: 9, EndHour: 12, Weight: 0.9, Weekday: wd(time.Saturday)},
		{StartHour: 9, EndHour: 12, Weight: 0.9, Weekday: wd(time.Sunday)},
	},
	config.ChannelInstagram: {
		{StartHour: 11, EndHour: 14, Weight: 0.9},
		{StartHour: 18, EndHour: 21, Weight: 1.0},
	},
	config.ChannelTikTok: {
		{StartHour: 12, EndHour: 15, Weight: 0.7},
		{StartHour: 19, EndHour: 23, Weight: 1.0},
	},
	config.ChannelTwitter: {
		{StartHour: 8, EndHour: 10, Weight: 1.0},
		{StartHour: 12, EndHour: 13, Weight: 0.9},
		{StartHour: 17, EndHour: 19, Weight: 0.8},
	},
	config.ChannelLinkedIn: {
		{StartHour: 7, EndHour: 9, Weight: 0.9, Weekday: wd(time.Tuesday)},
		{StartHour: 7, EndHour: 9, Weight: 0.9, Weekday: wd(time.Wednesday)},
		{StartHour: 7, EndHour: 9, Weight: 0.9, Weekday: wd(time.Thursday)},
		{StartHour: 10, EndHour: 12, Weight: 1.0},
		{StartHour: 16, EndHour: 18, Weight: 0.7},
	},
}

// staticBaseline returns the best matching window weight for a slot, or the
// fallback constant when no window covers it.
func staticBaseline(channel config.Channel, weekday time.Weekday, hour int) float64 {
	best := defaultBaseline
	for _, w := range baselineWindows[channel] {
		if w.Weekday != nil && *w.Weekday != weekday {
			continue
		}
		if hour < w.StartHour || hour >= w.EndHour {
			continue
		}
		if w.Weight > best {
			best = w.Weight
		}
	}
	return best
}

// guardrail is a hard per-channel policy hour range. An empty Kind applies
// to every content kind on the channel.
type guardrail struct {
	Channel   config.Channel
	Kind      config.ContentKind
	StartHour int // inclusive
	EndHour   int // exclusive
}

// Compliance policy: overnight quiet hours on the short-form platforms and
// no long-form drops into the dead of night anywhere.
var guardrails = []guardrail{
	{Channel: config.ChannelTikTok, StartHour: 0, EndHour: 6},
	{Channel: config.ChannelInstagram, Kind: config.KindReel, StartHour: 1, EndHour: 6},
	{Channel: config.ChannelInstagram, Kind: config.KindStory, StartHour: 1, EndHour: 6},
	{Channel: config.ChannelYouTube, Kind: config.KindLongForm, StartHour: 2, EndHour: 6},
	{Channel: config.ChannelLinkedIn, StartHour: 0, EndHour: 5},
}

// guardrailForbids reports whether policy forbids publishing this kind on
// this channel at this hour.
func guardrailForbids(channel config.Channel, kind config.ContentKind, hour int) bool {
	for _, g := range guardrails {
		if g.Channel != channel {
			continue
		}
		if g.Kind != "" && g.Kind != kind {
			continue
		}
		if hour >= g.StartHour && hour < g.EndHour {
			return true
		}
	}
	return false
}
