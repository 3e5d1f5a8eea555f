package model

// Recipient is one addressee of a send together with the body already personalized for them
type Recipient struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	BodyHTML string `json:"bodyHtml"`
}

// ScheduledSend is one pending deferred delivery. All timestamps are epoch milliseconds.
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

// Clone returns a deep copy so callers never share recipient slices with the store
func (s ScheduledSend) Clone() ScheduledSend {
	out := s
	if s.Recipients != nil {
		out.Recipients = make([]Recipient, len(s.Recipients))
		copy(out.Recipients, s.Recipients)
	}
	return out
}

// CloneScheduledSends deep-copies a snapshot
func CloneScheduledSends(in []ScheduledSend) []ScheduledSend {
	out := make([]ScheduledSend, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}
