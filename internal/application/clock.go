package application

import "time"

// Clock abstraction so recorded timestamps are testable
type Clock interface {
	Now() time.Time
}

// SystemClock default implementation, pakai time.Now()
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
