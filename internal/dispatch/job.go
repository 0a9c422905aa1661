package dispatch

import (
	emaildomain "mailagent-backend/internal/email/domain"
)

// Kind names the worker agent a job is routed to
type Kind string

const (
	KindSchedule   Kind = "schedule"
	KindReschedule Kind = "reschedule"
	KindFeedback   Kind = "feedback"
	KindGeneric    Kind = "generic"
)

// Job is one unit of work derived from a message. The concrete types are
// ScheduleJob, RescheduleJob, FeedbackJob and GenericJob.
type Job interface {
	Kind() Kind
	Message() *emaildomain.Message
	isJob()
}

// ScheduleJob asks for a new meeting
type ScheduleJob struct {
	Msg *emaildomain.Message
}

// RescheduleJob asks to move an existing meeting. MeetingID is zero when
// the message did not name one.
type RescheduleJob struct {
	Msg       *emaildomain.Message
	MeetingID uint
}

// FeedbackJob records a rating for a meeting
type FeedbackJob struct {
	Msg       *emaildomain.Message
	MeetingID uint
	Rating    int
	Comments  string
}

// GenericJob tags sentiment and extracts tasks
type GenericJob struct {
	Msg *emaildomain.Message
}

func (j ScheduleJob) Kind() Kind                      { return KindSchedule }
func (j ScheduleJob) Message() *emaildomain.Message   { return j.Msg }
func (ScheduleJob) isJob()                            {}
func (j RescheduleJob) Kind() Kind                    { return KindReschedule }
func (j RescheduleJob) Message() *emaildomain.Message { return j.Msg }
func (RescheduleJob) isJob()                          {}
func (j FeedbackJob) Kind() Kind                      { return KindFeedback }
func (j FeedbackJob) Message() *emaildomain.Message   { return j.Msg }
func (FeedbackJob) isJob()                            {}
func (j GenericJob) Kind() Kind                       { return KindGeneric }
func (j GenericJob) Message() *emaildomain.Message    { return j.Msg }
func (GenericJob) isJob()                             {}
