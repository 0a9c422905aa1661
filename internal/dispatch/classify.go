package dispatch

import (
	"log"
	"regexp"
	"strconv"
	"strings"

	emaildomain "mailagent-backend/internal/email/domain"
)

var (
	rescheduleKeywords = []string{"reschedule", "postpone", "move the meeting", "push the meeting", "change the meeting time", "new time for", "move our meeting"}
	feedbackKeywords   = []string{"feedback", "rating", "rate the meeting", "out of 5", "/5"}
	scheduleKeywords   = []string{"schedule", "meeting", "meet ", "call ", "appointment", "calendar invite", "set up a time", "book a time"}

	meetingIDPattern = regexp.MustCompile(`(?i)\bmeeting\s*(?:id\s*)?#?\s*(\d+)\b`)
	ratingPatterns   = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(\d)\s*(?:/|out of)\s*5\b`),
		regexp.MustCompile(`(?i)\brat(?:ing|ed|e)\s*(?:is|of|:|=)?\s*(\d)\b`),
	}
	commentsPattern = regexp.MustCompile(`(?is)\bcomments?\s*[:\-]\s*(.+)`)
)

// Classify maps a message to exactly one job. It is pure: the same message
// always yields the same job. Feedback that names a meeting and a rating wins
// over every other class, whatever its comments say. Messages that look like
// feedback but lack either fall back to generic processing.
func Classify(msg *emaildomain.Message) Job {
	text := msg.Subject + "\n" + msg.Body
	lower := strings.ToLower(text) + " "

	isFeedback := containsAny(lower, feedbackKeywords)
	if isFeedback {
		if job, ok := feedbackJob(msg); ok {
			return job
		}
	}

	switch {
	case containsAny(lower, rescheduleKeywords):
		return RescheduleJob{Msg: msg, MeetingID: parseMeetingID(text)}

	case isFeedback:
		log.Printf("[Dispatcher] Message %s looks like feedback but has no meeting id or rating, routing to generic", msg.ID)
		return GenericJob{Msg: msg}

	case containsAny(lower, scheduleKeywords):
		return ScheduleJob{Msg: msg}
	}
	return GenericJob{Msg: msg}
}

// Rebuild recreates the job for a message that was accepted as kind. The
// recorded kind always wins; only an unknown kind is classified afresh.
func Rebuild(kind Kind, msg *emaildomain.Message) Job {
	text := msg.Subject + "\n" + msg.Body
	switch kind {
	case KindSchedule:
		return ScheduleJob{Msg: msg}
	case KindReschedule:
		return RescheduleJob{Msg: msg, MeetingID: parseMeetingID(text)}
	case KindFeedback:
		// An unparsable body yields a zero id or rating, which the feedback
		// agent rejects as a permanent failure
		job, _ := feedbackJob(msg)
		return job
	case KindGeneric:
		return GenericJob{Msg: msg}
	}
	return Classify(msg)
}

// feedbackJob parses a feedback job from msg. ok is false when the meeting
// id or the rating is missing.
func feedbackJob(msg *emaildomain.Message) (job FeedbackJob, ok bool) {
	text := msg.Subject + "\n" + msg.Body
	job = FeedbackJob{
		Msg:       msg,
		MeetingID: parseMeetingID(text),
		Rating:    parseRating(text),
		Comments:  parseComments(msg.Body),
	}
	return job, job.MeetingID != 0 && job.Rating != 0
}

func parseMeetingID(text string) uint {
	m := meetingIDPattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	id, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return 0
	}
	return uint(id)
}

// parseRating returns a 1..5 rating or zero
func parseRating(text string) int {
	for _, p := range ratingPatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			if r, err := strconv.Atoi(m[1]); err == nil && r >= 1 && r <= 5 {
				return r
			}
		}
	}
	return 0
}

func parseComments(body string) string {
	if m := commentsPattern.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(body)
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
