package mailer

import "github.com/iaai-platform/iaai-training-platform-sub002/internal/domain"

// Payload is the JSON body posted to the mail relay. The relay owns
// templating; this service only supplies structured data.
type Payload struct {
	Kind    string `json:"kind"`
	Subject string `json:"subject"`

	Course  *coursePayload  `json:"course,omitempty"`
	Courses []coursePayload `json:"courses,omitempty"` // digest only

	Changes    string             `json:"changes,omitempty"`
	Recipients []recipientPayload `json:"recipients,omitempty"`
	Emails     []string           `json:"emails,omitempty"` // instructor notifications
}

type coursePayload struct {
	CourseID    string   `json:"course_id"`
	Title       string   `json:"title"`
	Code        string   `json:"code,omitempty"`
	Schedule    string   `json:"schedule,omitempty"`
	Price       float64  `json:"price"`
	Currency    string   `json:"currency"`
	Platform    string   `json:"platform"`
	Instructors []string `json:"instructors,omitempty"`
	Technical   string   `json:"technical,omitempty"`
	Recording   string   `json:"recording,omitempty"`
	Interaction string   `json:"interaction,omitempty"`
}

type recipientPayload struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

func announcementPayload(data domain.AnnouncementData, recipients []domain.Recipient) Payload {
	course := coursePayload(data)
	p := Payload{
		Subject: "New course available: " + data.Title,
		Course:  &course,
	}
	for _, r := range recipients {
		p.Recipients = append(p.Recipients, recipientPayload(r))
	}
	return p
}
