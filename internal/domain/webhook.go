package domain

// WebhookSubscription registers an external URL for case events.
type WebhookSubscription struct {
	ID     string
	URL    string
	Secret string
	Events []string
	Active bool
}

// Wants reports whether the subscription listens to event.
func (w WebhookSubscription) Wants(event string) bool {
	if !w.Active {
		return false
	}
	for _, e := range w.Events {
		if e == event || e == "*" {
			return true
		}
	}
	return false
}
