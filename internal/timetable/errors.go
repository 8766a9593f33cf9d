package timetable

import "fmt"

// ArchiveError reports a missing, unreadable or malformed timetable archive.
// File is empty when the archive itself could not be opened.
type ArchiveError struct {
	Path string
	File string
	Err  error
}

func (e *ArchiveError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("timetable archive %s: %s: %v", e.Path, e.File, e.Err)
	}
	return fmt.Sprintf("timetable archive %s: %v", e.Path, e.Err)
}

func (e *ArchiveError) Unwrap() error { return e.Err }
