package domain

// Defaults applied when a course record omits optional presentation fields.
const (
	DefaultPlatform = "Online Platform"
	DefaultCurrency = "USD"
)

// AnnouncementData is the snapshot of course fields captured at schedule
// time and used to render the announcement email. It is deliberately
// denormalized: the email body must not depend on the course record
// changing between scheduling and firing.
type AnnouncementData struct {
	CourseID string
	Title    string
	Code     string
	Schedule string

	Price    float64
	Currency string
	Platform string

	Instructors []string

	Technical   string
	Recording   string
	Interaction string
}

// NewAnnouncementData builds a snapshot from a course, applying the
// defaulting rules in one place.
func NewAnnouncementData(c Course) AnnouncementData {
	d := AnnouncementData{
		CourseID:    c.ID,
		Title:       c.Title,
		Code:        c.Code,
		Schedule:    c.Schedule,
		Price:       c.Price,
		Currency:    c.Currency,
		Platform:    c.Platform,
		Instructors: c.Instructors,
		Technical:   c.TechnicalSummary,
		Recording:   c.RecordingSummary,
		Interaction: c.InteractionSummary,
	}
	if d.Platform == "" {
		d.Platform = DefaultPlatform
	}
	if d.Currency == "" {
		d.Currency = DefaultCurrency
	}
	return d
}
