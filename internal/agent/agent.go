// Package agent holds the worker agents the dispatcher routes jobs to. An
// agent reads what it needs from the analyzer and the meeting store and
// returns the writes as a dispatch.Outcome.
package agent

import (
	"fmt"
	"strings"
	"time"

	"mailagent-backend/internal/dispatch"
	meetingrepo "mailagent-backend/internal/meeting/repository"
	"mailagent-backend/pkg/ai"
)

const (
	defaultMeetingHour     = 10
	defaultMeetingDuration = 30 * time.Minute
)

// Options configures the agents
type Options struct {
	// Organizer owns meetings created from messages. Empty means the sender.
	Organizer string
	Now       func() time.Time
}

// NewRegistry returns one agent per job kind
func NewRegistry(analyzer ai.Analyzer, meetings meetingrepo.MeetingRepository, opts Options) map[dispatch.Kind]dispatch.Agent {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return map[dispatch.Kind]dispatch.Agent{
		dispatch.KindSchedule:   &ScheduleAgent{analyzer: analyzer, meetings: meetings, organizer: opts.Organizer, now: opts.Now},
		dispatch.KindReschedule: &RescheduleAgent{analyzer: analyzer, meetings: meetings, now: opts.Now},
		dispatch.KindFeedback:   &FeedbackAgent{meetings: meetings},
		dispatch.KindGeneric:    &GenericAgent{analyzer: analyzer, now: opts.Now},
	}
}

func unexpectedJob(want dispatch.Kind, job dispatch.Job) error {
	return fmt.Errorf("%s agent cannot handle %s job", want, job.Kind())
}

// nextSlot is the next default meeting start strictly after now
func nextSlot(now time.Time) time.Time {
	slot := time.Date(now.Year(), now.Month(), now.Day(), defaultMeetingHour, 0, 0, 0, now.Location())
	if !slot.After(now) {
		slot = slot.AddDate(0, 0, 1)
	}
	return slot
}

func appendUnique(list []string, values ...string) []string {
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		found := false
		for _, existing := range list {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			list = append(list, v)
		}
	}
	return list
}
