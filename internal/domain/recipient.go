package domain

// Recipient is a user eligible to receive a notification email.
type Recipient struct {
	Email     string
	FirstName string
	LastName  string
}
