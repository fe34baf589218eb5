package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("America/Los_Angeles")
	if err != nil {
		panic(err)
	}
}

// pin the clock to the west coast regardless of where the
// external scheduler happens to run, otherwise date math around
// "today" shifts when a run lands close to midnight UTC
func Now() time.Time {
	return time.Now().In(Location)
}

// Today returns midnight of the current day in the pinned location.
func Today() time.Time {
	now := Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, Location)
}
