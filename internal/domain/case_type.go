package domain

// CaseTypePolicy describes how cases of a given type are created and tracked.
type CaseTypePolicy struct {
	ID                string
	Name              string
	Category          string
	DefaultSeverity   Severity
	DefaultSLAMinutes int
	RequireProvider   bool
	RequireOrderID    bool
	NotifyOnCreate    bool
	IsActive          bool
}
