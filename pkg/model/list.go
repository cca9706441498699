package model

// ListOptions controls pagination and filtering for list queries.
type ListOptions struct {
	Limit  int
	Offset int
	// State filters invocations by state when non-empty.
	State string
}

// Clamp normalizes pagination bounds to sane defaults.
func (o *ListOptions) Clamp() {
	if o.Limit <= 0 {
		o.Limit = 50
	}
	if o.Limit > 200 {
		o.Limit = 200
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}
