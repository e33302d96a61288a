package domain

// EmailMessage is the payload handed to the outbound mail collaborator.
type EmailMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}
