package dispatch

import (
	"testing"

	emaildomain "mailagent-backend/internal/email/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		body    string
		want    Kind
	}{
		{"reschedule wins over schedule", "Reschedule our meeting", "Can we reschedule meeting 4 to Friday at 3pm?", KindReschedule},
		{"postpone", "Sync", "We need to postpone the sync until next week", KindReschedule},
		{"feedback with id and rating", "Feedback", "Feedback for meeting 7: rating 4/5. Comments: useful session", KindFeedback},
		{"feedback comments mentioning postpone", "Feedback", "Feedback for meeting 3: rating 2/5. Comments: please postpone less often", KindFeedback},
		{"reschedule request mentioning feedback", "Sync", "Thanks for the feedback, can we postpone meeting 3 to Monday?", KindReschedule},
		{"feedback without rating is generic", "Feedback", "Thanks for the feedback on the draft", KindGeneric},
		{"feedback without meeting id is generic", "Feedback", "I'd rate it 5/5", KindGeneric},
		{"schedule", "Project kickoff", "Can we schedule a meeting tomorrow at 10am?", KindSchedule},
		{"generic", "Invoice", "Please pay the attached invoice by Friday", KindGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &emaildomain.Message{ID: "m1", Subject: tt.subject, Body: tt.body}
			assert.Equal(t, tt.want, Classify(msg).Kind())
		})
	}
}

func TestClassifyIsPure(t *testing.T) {
	msg := &emaildomain.Message{ID: "m1", Subject: "Feedback", Body: "Meeting #12 was great, 5 out of 5. Comments: keep it short"}

	first := Classify(msg)
	second := Classify(msg)
	assert.Equal(t, first, second)

	fb, ok := first.(FeedbackJob)
	require.True(t, ok)
	assert.Equal(t, uint(12), fb.MeetingID)
	assert.Equal(t, 5, fb.Rating)
	assert.Equal(t, "keep it short", fb.Comments)
}

func TestRescheduleParsesMeetingID(t *testing.T) {
	job := Classify(&emaildomain.Message{ID: "m1", Subject: "Change", Body: "Please reschedule meeting 42 to Monday at 2pm"})
	r, ok := job.(RescheduleJob)
	require.True(t, ok)
	assert.Equal(t, uint(42), r.MeetingID)

	job = Classify(&emaildomain.Message{ID: "m2", Subject: "Change", Body: "Please reschedule to Monday at 2pm"})
	r, ok = job.(RescheduleJob)
	require.True(t, ok)
	assert.Zero(t, r.MeetingID)
}

func TestRebuildKeepsAcceptedKind(t *testing.T) {
	msg := &emaildomain.Message{ID: "api-1", Body: "Quarterly planning with bob@example.com"}

	assert.Equal(t, KindSchedule, Rebuild(KindSchedule, msg).Kind())
	assert.Equal(t, KindGeneric, Rebuild(KindGeneric, msg).Kind())
	// The recorded kind wins even when the body does not parse
	unparsed, ok := Rebuild(KindFeedback, msg).(FeedbackJob)
	require.True(t, ok)
	assert.Zero(t, unparsed.MeetingID)
	// Unknown kinds are classified afresh
	assert.Equal(t, KindGeneric, Rebuild(Kind("legacy"), msg).Kind())
}

func TestRebuildFeedbackNeverBecomesReschedule(t *testing.T) {
	msg := &emaildomain.Message{ID: "api-feedback-1", Body: "Feedback for meeting 3: rating 2/5. Comments: please postpone less often"}

	job := Rebuild(KindFeedback, msg)
	fb, ok := job.(FeedbackJob)
	require.True(t, ok, "got %T", job)
	assert.Equal(t, uint(3), fb.MeetingID)
	assert.Equal(t, 2, fb.Rating)
	assert.Equal(t, "please postpone less often", fb.Comments)
}
