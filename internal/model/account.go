package model

// Identity is the sender's own mailbox identity as reported by the identity provider
type Identity struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// Settings holds user preferences
type Settings struct {
	AutoIntercept bool `json:"autoIntercept"`
}

// Draft is a mailbox draft reduced to the fields used for matching
type Draft struct {
	ID       string
	Subject  string
	BodyData string // base64url-encoded body as returned by the mailbox
}
