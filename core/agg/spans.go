package agg

import (
	"sort"
	"time"

	"github.com/huangsam/subpulse/schema"
	"github.com/samber/lo"
)

// Segment is a run of active periods during which a subscriber's attributes stay fixed.
// End is an exclusive period start; a zero End means still active.
type Segment struct {
	SubscriberID string
	Start        time.Time
	End          time.Time
	Event        schema.SubscriptionEvent // event whose attributes are in force
}

// spanBuilder walks one subscriber's events in time order.
type spanBuilder struct {
	g        schema.Granularity
	spans    []schema.ActiveSpan
	segments []Segment

	active        bool
	pendingCancel *time.Time // period of the first cancel since the last activation
	cancelledAt   time.Time
	current       schema.ActiveSpan
	segment       Segment
}

// Activity derives the active spans and attribute segments of every subscriber.
// Events must be ordered by timestamp. A cancel keeps the subscriber active through
// the cancel period; an activation in that same period annuls the cancel.
func Activity(events []schema.SubscriptionEvent, g schema.Granularity) (map[string][]schema.ActiveSpan, []Segment) {
	bySubscriber := lo.GroupBy(events, func(e schema.SubscriptionEvent) string { return e.SubscriberID })
	ids := lo.Keys(bySubscriber)
	sort.Strings(ids)

	spans := make(map[string][]schema.ActiveSpan, len(ids))
	var segments []Segment
	for _, id := range ids {
		b := &spanBuilder{g: g}
		for _, e := range bySubscriber[id] {
			b.apply(e)
		}
		b.finish()
		if len(b.spans) > 0 {
			spans[id] = b.spans
		}
		segments = append(segments, b.segments...)
	}
	return spans, segments
}

func (b *spanBuilder) apply(e schema.SubscriptionEvent) {
	p := schema.TruncatePeriod(e.Timestamp, b.g)

	if e.Type == schema.CancelEvent {
		if b.active && b.pendingCancel == nil {
			b.pendingCancel = &p
			b.cancelledAt = e.Timestamp
		}
		return
	}
	if !e.Type.IsActivating() {
		return
	}

	if b.active && b.pendingCancel != nil {
		if p.After(*b.pendingCancel) {
			b.close(schema.NextPeriod(*b.pendingCancel, b.g))
		} else {
			b.pendingCancel = nil
			b.cancelledAt = time.Time{}
		}
	}

	if !b.active {
		b.open(e, p)
		return
	}

	b.current.Tier = e.PackageTier
	if sameAttributes(b.segment.Event, e) {
		b.segment.Event = e
		return
	}
	if p.After(b.segment.Start) {
		b.segment.End = p
		b.segments = append(b.segments, b.segment)
		b.segment = Segment{SubscriberID: e.SubscriberID, Start: p, Event: e}
		return
	}
	// Single tier per period: the latest change wins.
	b.segment.Event = e
}

func (b *spanBuilder) open(e schema.SubscriptionEvent, p time.Time) {
	b.active = true
	b.current = schema.ActiveSpan{Start: p, StartedAt: e.Timestamp, Tier: e.PackageTier}
	b.segment = Segment{SubscriberID: e.SubscriberID, Start: p, Event: e}
}

func (b *spanBuilder) close(end time.Time) {
	b.current.End = end
	b.current.CancelledAt = b.cancelledAt
	b.spans = append(b.spans, b.current)
	b.segment.End = end
	b.segments = append(b.segments, b.segment)
	b.active = false
	b.pendingCancel = nil
	b.cancelledAt = time.Time{}
}

func (b *spanBuilder) finish() {
	if !b.active {
		return
	}
	if b.pendingCancel != nil {
		b.close(schema.NextPeriod(*b.pendingCancel, b.g))
		return
	}
	b.current.OpenEnded = true
	b.spans = append(b.spans, b.current)
	b.segments = append(b.segments, b.segment)
	b.active = false
}

// sameAttributes reports whether two events put a subscriber in the same bucket for every dimension.
func sameAttributes(a, b schema.SubscriptionEvent) bool {
	for _, d := range schema.AllDimensions {
		if a.Attribute(d) != b.Attribute(d) {
			return false
		}
	}
	return true
}
