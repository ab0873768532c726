package services

import "time"

// Clock returns the current time. Tests inject a fixed or stepping clock.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c()
}
