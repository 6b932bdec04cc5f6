package handlers

import "time"

// WithNow overrides the clock used to age dashboard entries.
func (h *Dashboard) WithNow(now func() time.Time) *Dashboard {
	h.now = now
	return h
}
