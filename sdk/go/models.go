package sendiq

// Recipient is one addressee. BodyHTML overrides the request's body template.
type Recipient struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	BodyHTML string `json:"bodyHtml,omitempty"`
}

// ScheduleRequest is the payload for Schedule. SendAt is epoch milliseconds.
type ScheduleRequest struct {
	Recipients    []Recipient `json:"recipients"`
	Subject       string      `json:"subject"`
	BodyTemplate  string      `json:"bodyTemplate,omitempty"`
	SendAt        int64       `json:"sendAt"`
	CorrelationID string      `json:"correlationId,omitempty"`
}

// ScheduledSend is a pending deferred delivery.
type ScheduledSend struct {
	ID            string      `json:"id"`
	Recipients    []Recipient `json:"recipients"`
	Subject       string      `json:"subject"`
	SendAt        int64       `json:"sendAt"`
	CreatedAt     int64       `json:"createdAt"`
	CorrelationID string      `json:"correlationId,omitempty"`
	Failed        bool        `json:"failed,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// SendRequest is the payload for SendNow. A nil PacingMs selects the server default.
type SendRequest struct {
	Recipients   []Recipient `json:"recipients"`
	Subject      string      `json:"subject"`
	BodyTemplate string      `json:"bodyTemplate,omitempty"`
	PacingMs     *int64      `json:"pacingMs,omitempty"`
}

// SendResult is the outcome for one recipient of a mass send.
type SendResult struct {
	Email   string `json:"email"`
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// MassSendResult summarizes a completed mass send, delivered on the event stream.
type MassSendResult struct {
	Results         []SendResult `json:"results"`
	TotalRecipients int          `json:"totalRecipients"`
	Successful      int          `json:"successful"`
	Failed          int          `json:"failed"`
}

// Account is the mailbox owner.
type Account struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// DraftDeletion reports a draft cleanup.
type DraftDeletion struct {
	Deleted bool   `json:"deleted"`
	DraftID string `json:"draftId"`
	Method  string `json:"method"`
}

// Settings are the user's stored preferences.
type Settings struct {
	AutoIntercept bool `json:"autoIntercept"`
}

// Activity is one entry of the recent-activity log.
type Activity struct {
	Subject        string `json:"subject"`
	RecipientCount int    `json:"recipientCount"`
	Success        bool   `json:"success"`
	Timestamp      int64  `json:"timestamp"`
	Source         string `json:"source,omitempty"`
}

// Event is one notification from the event stream. Data is left raw for the caller to decode by Type.
type Event struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Data      []byte `json:"-"`
	Timestamp int64  `json:"timestamp"`
}
