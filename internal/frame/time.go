package frame

import "time"

// timeNow is a package-level variable for testability.
// Tests can replace this to control time in assertions.
var timeNow = time.Now

// rfc3339 formats a time the way every persisted timestamp is stored.
func rfc3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// nowStamp returns the current time in the persisted timestamp format.
func nowStamp() string {
	return rfc3339(timeNow())
}
