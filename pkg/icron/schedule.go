package icron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Parser accepts standard five-field expressions, an optional leading
// seconds field and descriptors such as "@every 1h".
var Parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour |
	cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type TriggerInfo struct {
	Next       time.Time
	Last       time.Time
	Expression string

	TimeSinceLast time.Duration
	TimeUntilNext time.Duration
}

func Parse(cronExpr string) (cron.Schedule, error) {
	schedule, err := Parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

// GetTriggerInfo reports the activations around refTime. Last stays zero
// when the expression did not fire within the previous year.
func GetTriggerInfo(cronExpr string, refTime time.Time) (*TriggerInfo, error) {
	schedule, err := Parse(cronExpr)
	if err != nil {
		return nil, err
	}

	info := &TriggerInfo{
		Expression: cronExpr,
		Next:       schedule.Next(refTime),
		Last:       lastActivation(schedule, refTime),
	}
	info.TimeUntilNext = info.Next.Sub(refTime)
	if !info.Last.IsZero() {
		info.TimeSinceLast = refTime.Sub(info.Last)
	}
	return info, nil
}

// lastActivation widens the look-back window until an activation at or before
// ref shows up, then walks forward to the latest one.
func lastActivation(schedule cron.Schedule, ref time.Time) time.Time {
	for back := time.Minute; back <= maxLookBack; back *= 2 {
		t := schedule.Next(ref.Add(-back))
		if t.IsZero() || t.After(ref) {
			continue
		}
		for {
			n := schedule.Next(t)
			if n.IsZero() || n.After(ref) || !n.After(t) {
				return t
			}
			t = n
		}
	}
	return time.Time{}
}

const maxLookBack = 366 * 24 * time.Hour
