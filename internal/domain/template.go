package domain

// NotificationTemplate is an editable message body keyed by event.
type NotificationTemplate struct {
	ID       string
	Event    NotificationEvent
	Name     string
	Body     string
	IsActive bool
}
