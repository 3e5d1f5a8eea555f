package model

// SendResult is the outcome of sending to a single recipient
type SendResult struct {
	Email     string `json:"email"`
	Success   bool   `json:"success"`
	MessageID string `json:"id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// MassSendResult is the outcome of a whole mass-send batch
type MassSendResult struct {
	Results         []SendResult `json:"results"`
	TotalRecipients int          `json:"totalRecipients"`
	Successful      int          `json:"successful"`
	Failed          int          `json:"failed"`
}

// NewMassSendResult derives the counters from results
func NewMassSendResult(results []SendResult) *MassSendResult {
	res := &MassSendResult{
		Results:         results,
		TotalRecipients: len(results),
	}
	for _, r := range results {
		if r.Success {
			res.Successful++
		} else {
			res.Failed++
		}
	}
	return res
}
