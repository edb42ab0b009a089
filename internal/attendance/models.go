package attendance

import (
	"context"
	"errors"
	"time"

	"geoattend/internal/course"
	"geoattend/internal/geofence"
	"geoattend/internal/identity"
)

var (
	ErrNotFound  = errors.New("attendance window not found")
	ErrDuplicate = errors.New("attendance already recorded")
)

// Window is a time- and location-bounded period during which students may
// mark attendance. Once stopped it stays stopped.
type Window struct {
	ID           string     `json:"id"`
	CourseID     int64      `json:"course_id"`
	Latitude     float64    `json:"latitude"`
	Longitude    float64    `json:"longitude"`
	RadiusMeters int        `json:"radius_meters"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	IsActive     bool       `json:"is_active"`
}

// Fence returns the window's geofence.
func (w Window) Fence() geofence.Fence {
	return geofence.Fence{
		Center:       geofence.Point{Lat: w.Latitude, Lng: w.Longitude},
		RadiusMeters: w.RadiusMeters,
	}
}

// ActiveWindow is a window joined with its course.
type ActiveWindow struct {
	Window
	Course course.Course `json:"course"`
}

// Record is one student's proof of presence in a window. The coordinates
// are the ones submitted by the student.
type Record struct {
	ID        string    `json:"id"`
	WindowID  string    `json:"window_id"`
	StudentID int64     `json:"student_id"`
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
}

// HistoryEntry is a record with the window and course it belongs to.
type HistoryEntry struct {
	Record
	Window Window        `json:"window"`
	Course course.Course `json:"course"`
}

// RosterEntry is a record with the student who made it.
type RosterEntry struct {
	Record
	Student identity.Student `json:"student"`
}

// Store persists windows and records.
type Store interface {
	CreateWindow(ctx context.Context, w Window) (Window, error)
	Window(ctx context.Context, id string) (Window, error)
	ActiveWindows(ctx context.Context) ([]ActiveWindow, error)
	// StopWindow deactivates an active window and reports whether this
	// call changed it. A stopped window is returned unchanged.
	StopWindow(ctx context.Context, id string, at time.Time) (Window, bool, error)

	// InsertRecord must fail with ErrDuplicate when (WindowID, StudentID)
	// already has a record, enforced by the store.
	InsertRecord(ctx context.Context, r Record) (Record, error)
	StudentHistory(ctx context.Context, studentID int64) ([]HistoryEntry, error)
	WindowRecords(ctx context.Context, windowID string) ([]RosterEntry, error)
}
