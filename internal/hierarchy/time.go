package hierarchy

import "time"

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// Now returns the current time formatted for storage.
func Now() string {
	return timeNow().UTC().Format("2006-01-02 15:04:05")
}

// NewNote builds a notes-log entry stamped with the current time.
func NewNote(author, content string) Note {
	return Note{Timestamp: Now(), Author: author, Content: content}
}
