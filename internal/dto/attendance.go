package dto

import "time"

// RowStatus is the per-row result of an attendance upload.
type RowStatus string

const (
	RowStatusCredited RowStatus = "credited"
	RowStatusFailed   RowStatus = "failed"
)

// RowOutcome reports what happened to one spreadsheet row.
type RowOutcome struct {
	Row       int       `json:"row"`
	RollNo    string    `json:"rollNo"`
	Status    RowStatus `json:"status"`
	StudentID string    `json:"studentId,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// AttendanceUploadResult summarises one ingestion run. Row failures never
// fail the batch; they are listed in Errors in row order.
type AttendanceUploadResult struct {
	EventID             string       `json:"eventId"`
	EventName           string       `json:"eventName"`
	TotalRecords        int          `json:"totalRecords"`
	ProcessedRecords    int          `json:"processedRecords"`
	FailedRecords       int          `json:"failedRecords"`
	Errors              []string     `json:"errors"`
	ProcessedStudentIDs []string     `json:"processedStudentIds"`
	Outcomes            []RowOutcome `json:"outcomes"`
	Message             string       `json:"message"`
	ArchivedAs          string       `json:"archivedAs,omitempty"`
}

// ManualCreditRequest credits one student identified by id or roll number.
// Hours default to the event's given hours when omitted.
type ManualCreditRequest struct {
	StudentID string   `json:"studentId" validate:"required_without=RollNo"`
	RollNo    string   `json:"rollNo" validate:"required_without=StudentID"`
	Hours     *float64 `json:"hours" validate:"omitempty,gt=0,lte=24"`
}

// ManualCreditResponse is returned after a manual credit.
type ManualCreditResponse struct {
	StudentID     string    `json:"studentId"`
	RollNo        string    `json:"rollNo"`
	EventID       string    `json:"eventId"`
	CreditedHours float64   `json:"creditedHours"`
	NewTotalHours float64   `json:"newTotalHours"`
	AttendedAt    time.Time `json:"attendedAt"`
}

// BonusHoursRequest adds a delta on top of an existing credit.
type BonusHoursRequest struct {
	StudentID  string   `json:"studentId" validate:"required_without=RollNo"`
	RollNo     string   `json:"rollNo" validate:"required_without=StudentID"`
	BonusHours *float64 `json:"bonusHours" validate:"required,gte=0,lte=10"`
}

// BonusHoursResponse reports the event entry before and after the bonus.
type BonusHoursResponse struct {
	StudentID     string  `json:"studentId"`
	EventID       string  `json:"eventId"`
	OriginalHours float64 `json:"originalHours"`
	BonusHours    float64 `json:"bonusHours"`
	NewEventHours float64 `json:"newEventHours"`
	NewTotalHours float64 `json:"newTotalHours"`
}

// EventCompletionResponse is returned when an event is marked completed.
type EventCompletionResponse struct {
	EventID     string    `json:"eventId"`
	Name        string    `json:"name"`
	CompletedAt time.Time `json:"completedAt"`
}

// EventRegistrationResponse confirms a student's registration change.
type EventRegistrationResponse struct {
	EventID       string `json:"eventId"`
	StudentID     string `json:"studentId"`
	Registered    bool   `json:"registered"`
	AttendeeCount int    `json:"attendeeCount"`
}
