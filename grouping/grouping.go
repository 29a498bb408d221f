// Package grouping projects the canonical alert list into date buckets for display.
package grouping

import (
	"time"

	"github.com/linesmerrill/planner-alerts/models"
)

// Labels used for the two most recent days.
const (
	LabelToday     = "Today"
	LabelYesterday = "Yesterday"
)

// DefaultDateLayout renders older days the way en-US toLocaleDateString does.
const DefaultDateLayout = "1/2/2006"

// Group is one date bucket of alerts. Groups are derived on demand and never stored.
type Group struct {
	Label  string
	Alerts []models.Alert
}

// Projector labels alerts relative to Now in Location. The zero value uses the wall
// clock, the local time zone and DefaultDateLayout.
type Projector struct {
	Now        func() time.Time
	Location   *time.Location
	DateLayout string
}

// Project buckets alerts by calendar day. Buckets come out in first-occurrence order and
// each bucket keeps the relative order of its input, so a newest-first list yields
// "Today" before older buckets. Every input alert lands in exactly one bucket.
func (p Projector) Project(alerts []models.Alert) []Group {
	if len(alerts) == 0 {
		return []Group{}
	}

	loc := p.Location
	if loc == nil {
		loc = time.Local
	}
	layout := p.DateLayout
	if layout == "" {
		layout = DefaultDateLayout
	}
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}
	now = now.In(loc)
	today := civilDay(now)
	yesterday := civilDay(now.AddDate(0, 0, -1))

	var groups []Group
	index := make(map[string]int)
	for _, a := range alerts {
		label := labelFor(a.CreatedAt.In(loc), today, yesterday, layout)
		i, ok := index[label]
		if !ok {
			i = len(groups)
			index[label] = i
			groups = append(groups, Group{Label: label})
		}
		groups[i].Alerts = append(groups[i].Alerts, a)
	}
	return groups
}

// Project buckets alerts with the zero Projector.
func Project(alerts []models.Alert) []Group {
	return Projector{}.Project(alerts)
}

type day struct {
	year  int
	month time.Month
	day   int
}

func civilDay(t time.Time) day {
	y, m, d := t.Date()
	return day{y, m, d}
}

func labelFor(t time.Time, today, yesterday day, layout string) string {
	switch civilDay(t) {
	case today:
		return LabelToday
	case yesterday:
		return LabelYesterday
	default:
		return t.Format(layout)
	}
}
