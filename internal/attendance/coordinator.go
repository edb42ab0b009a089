package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"geoattend/internal/apperr"
	"geoattend/internal/geofence"
	"geoattend/internal/identity"
	"geoattend/internal/metrics"
	"geoattend/internal/queue"
)

// TypeMarked is the queue message type published after a successful mark.
const TypeMarked = "attendance.marked"

// DeviceVerifier confirms that a device holds an identity's active session.
type DeviceVerifier interface {
	VerifyDevice(ctx context.Context, ref identity.Ref, deviceID string) error
}

// Publisher delivers events to the queue.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// MarkRequest is one attempt to mark attendance.
type MarkRequest struct {
	WindowID string
	Identity identity.Ref
	DeviceID string
	Lat      float64
	Lng      float64
}

// MarkedEvent is the body of a TypeMarked message.
type MarkedEvent struct {
	RecordID  string    `json:"record_id"`
	WindowID  string    `json:"window_id"`
	StudentID int64     `json:"student_id"`
	DeviceID  string    `json:"device_id"`
	At        time.Time `json:"at"`
}

// DecodeMarked parses a TypeMarked message body.
func DecodeMarked(body []byte) (MarkedEvent, error) {
	var evt MarkedEvent
	err := json.Unmarshal(body, &evt)
	return evt, err
}

// Coordinator decides whether a marking attempt is accepted and is the only
// writer of attendance records.
type Coordinator struct {
	store   Store
	devices DeviceVerifier
	events  Publisher
	now     func() time.Time
}

// NewCoordinator wires the coordinator. events may be nil.
func NewCoordinator(store Store, devices DeviceVerifier, events Publisher) *Coordinator {
	return &Coordinator{store: store, devices: devices, events: events, now: func() time.Time { return time.Now().UTC() }}
}

// Mark runs the checks in order (role, window, device, geofence, duplicate)
// and stops at the first failure. Over HTTP the auth middleware has already
// re-verified the token's device, so a superseded device sees DeviceMismatch
// there before any window lookup.
func (c *Coordinator) Mark(ctx context.Context, req MarkRequest) (rec Record, err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(apperr.KindOf(err))
		}
		metrics.MarkAttempts.WithLabelValues(outcome).Inc()
	}()

	if req.Identity.Role != identity.RoleStudent {
		return Record{}, apperr.New(apperr.Forbidden, "only students can mark attendance")
	}
	if strings.TrimSpace(req.WindowID) == "" {
		return Record{}, apperr.New(apperr.ValidationError, "window id is required")
	}
	if !finite(req.Lat) || !finite(req.Lng) {
		return Record{}, apperr.New(apperr.ValidationError, "latitude and longitude must be numbers")
	}

	w, err := c.store.Window(ctx, req.WindowID)
	if errors.Is(err, ErrNotFound) {
		return Record{}, apperr.New(apperr.WindowNotFound, "attendance window %s not found", req.WindowID)
	}
	if err != nil {
		return Record{}, apperr.Internalf(err, "load window")
	}
	if !w.IsActive {
		return Record{}, apperr.New(apperr.WindowInactive, "attendance window is not active")
	}

	if err := c.devices.VerifyDevice(ctx, req.Identity, req.DeviceID); err != nil {
		return Record{}, err
	}

	distance, inside := w.Fence().Check(geofence.Point{Lat: req.Lat, Lng: req.Lng})
	metrics.MarkDistance.Observe(distance)
	if !inside {
		log.Info().Str("window_id", w.ID).Int64("identity_id", req.Identity.ID).
			Float64("distance_m", distance).Int("radius_m", w.RadiusMeters).Msg("mark rejected outside geofence")
		return Record{}, apperr.NewOutOfRange(distance, w.RadiusMeters)
	}

	rec, err = c.store.InsertRecord(ctx, Record{
		WindowID:  w.ID,
		StudentID: req.Identity.ID,
		Timestamp: c.now(),
		Latitude:  req.Lat,
		Longitude: req.Lng,
	})
	if errors.Is(err, ErrDuplicate) {
		return Record{}, apperr.New(apperr.DuplicateAttendance, "attendance already marked for this window")
	}
	if err != nil {
		return Record{}, apperr.Internalf(err, "insert record")
	}

	log.Info().Str("window_id", w.ID).Int64("identity_id", rec.StudentID).Str("record_id", rec.ID).
		Float64("distance_m", distance).Msg("attendance marked")
	c.publish(ctx, rec, req.DeviceID)
	return rec, nil
}

func (c *Coordinator) publish(ctx context.Context, rec Record, deviceID string) {
	if c.events == nil {
		return
	}
	body, err := json.Marshal(MarkedEvent{
		RecordID:  rec.ID,
		WindowID:  rec.WindowID,
		StudentID: rec.StudentID,
		DeviceID:  deviceID,
		At:        rec.Timestamp,
	})
	if err != nil {
		log.Error().Err(err).Str("record_id", rec.ID).Msg("encode marked event")
		return
	}
	if err := c.events.Publish(ctx, queue.Message{Type: TypeMarked, Body: body}); err != nil {
		log.Warn().Err(err).Str("record_id", rec.ID).Msg("queue publish failed")
	}
}

// History lists a student's attendance, oldest first.
func (c *Coordinator) History(ctx context.Context, ref identity.Ref) ([]HistoryEntry, error) {
	if ref.Role != identity.RoleStudent {
		return nil, apperr.New(apperr.Forbidden, "students only")
	}
	out, err := c.store.StudentHistory(ctx, ref.ID)
	if err != nil {
		return nil, apperr.Internalf(err, "load history")
	}
	return out, nil
}
