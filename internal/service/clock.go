package service

import "time"

// Clock supplies the current time. Services never read the wall clock directly.
type Clock func() time.Time

// SystemClock is the wall clock in UTC at microsecond precision, the finest
// precision every supported store keeps.
func SystemClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func (c Clock) now() time.Time {
	return c().UTC().Truncate(time.Microsecond)
}
