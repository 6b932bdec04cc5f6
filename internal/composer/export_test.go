package composer

import "time"

// WithNow overrides the clock stamping submissions.
func WithNow(now func() time.Time) Options {
	return func(o *options) {
		o.now = now
	}
}
