package model

// Activity sources
const (
	ActivitySourceMassSend  = "mass_send"
	ActivitySourceScheduled = "scheduled"
)

// Activity is one entry in the bounded recent-activity log
type Activity struct {
	Subject        string `json:"subject"`
	RecipientCount int    `json:"recipientCount"`
	Success        bool   `json:"success"`
	Timestamp      int64  `json:"timestamp"`
	Source         string `json:"source,omitempty"`
}
