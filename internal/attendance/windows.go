package attendance

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"geoattend/internal/apperr"
	"geoattend/internal/course"
	"geoattend/internal/metrics"
)

// OpenWindow is the input for Manager.Open.
type OpenWindow struct {
	CourseID     int64
	Latitude     float64
	Longitude    float64
	RadiusMeters int
}

// Manager owns the lifecycle of attendance windows.
type Manager struct {
	store   Store
	courses course.Store
	now     func() time.Time
}

// NewManager creates a window manager.
func NewManager(store Store, courses course.Store) *Manager {
	return &Manager{store: store, courses: courses, now: func() time.Time { return time.Now().UTC() }}
}

// Open starts a window at the given location. Coordinates are not range
// checked; they only have to be finite numbers.
func (m *Manager) Open(ctx context.Context, in OpenWindow) (Window, error) {
	if in.CourseID <= 0 {
		return Window{}, apperr.New(apperr.ValidationError, "course id must be positive")
	}
	if in.RadiusMeters <= 0 {
		return Window{}, apperr.New(apperr.ValidationError, "radius must be a positive number of meters")
	}
	if !finite(in.Latitude) || !finite(in.Longitude) {
		return Window{}, apperr.New(apperr.ValidationError, "latitude and longitude must be numbers")
	}
	if _, err := m.courses.Course(ctx, in.CourseID); err != nil {
		if errors.Is(err, course.ErrNotFound) {
			return Window{}, apperr.New(apperr.ValidationError, "course %d does not exist", in.CourseID)
		}
		return Window{}, apperr.Internalf(err, "load course")
	}

	w, err := m.store.CreateWindow(ctx, Window{
		CourseID:     in.CourseID,
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
		RadiusMeters: in.RadiusMeters,
		StartTime:    m.now(),
		IsActive:     true,
	})
	if err != nil {
		return Window{}, apperr.Internalf(err, "create window")
	}
	metrics.WindowsOpened.Inc()
	log.Info().Str("window_id", w.ID).Int64("course_id", w.CourseID).Int("radius_m", w.RadiusMeters).Msg("attendance window opened")
	return w, nil
}

// ListActive returns open windows with their course.
func (m *Manager) ListActive(ctx context.Context) ([]ActiveWindow, error) {
	out, err := m.store.ActiveWindows(ctx)
	if err != nil {
		return nil, apperr.Internalf(err, "list active windows")
	}
	return out, nil
}

// Get loads a window.
func (m *Manager) Get(ctx context.Context, id string) (Window, error) {
	w, err := m.store.Window(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Window{}, apperr.New(apperr.WindowNotFound, "attendance window %s not found", id)
	}
	if err != nil {
		return Window{}, apperr.Internalf(err, "load window")
	}
	return w, nil
}

// Stop closes a window for good. Stopping a stopped window returns it as is.
func (m *Manager) Stop(ctx context.Context, id string) (Window, error) {
	w, changed, err := m.store.StopWindow(ctx, id, m.now())
	if errors.Is(err, ErrNotFound) {
		return Window{}, apperr.New(apperr.WindowNotFound, "attendance window %s not found", id)
	}
	if err != nil {
		return Window{}, apperr.Internalf(err, "stop window")
	}
	if !changed {
		log.Debug().Str("window_id", id).Msg("window already stopped")
		return w, nil
	}
	metrics.WindowsStopped.Inc()
	log.Info().Str("window_id", id).Msg("attendance window stopped")
	return w, nil
}

// Records lists the attendance taken in a window.
func (m *Manager) Records(ctx context.Context, windowID string) ([]RosterEntry, error) {
	if _, err := m.Get(ctx, windowID); err != nil {
		return nil, err
	}
	out, err := m.store.WindowRecords(ctx, windowID)
	if err != nil {
		return nil, apperr.Internalf(err, "list window records")
	}
	return out, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
