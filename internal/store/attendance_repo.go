package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"geoattend/internal/attendance"
)

// AttendanceRepository persists windows and records in Postgres.
type AttendanceRepository struct {
	db *sql.DB
}

func NewAttendanceRepository(db *sql.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const windowColumns = `w.id, w.course_id, w.latitude, w.longitude, w.radius_meters, w.start_time, w.end_time, w.is_active`

func windowDest(w *attendance.Window, end *sql.NullTime) []any {
	return []any{&w.ID, &w.CourseID, &w.Latitude, &w.Longitude, &w.RadiusMeters, &w.StartTime, end, &w.IsActive}
}

func finishWindow(w *attendance.Window, end sql.NullTime) {
	if end.Valid {
		t := end.Time
		w.EndTime = &t
	}
}

// CreateWindow inserts an active window.
func (r *AttendanceRepository) CreateWindow(ctx context.Context, w attendance.Window) (attendance.Window, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.StartTime.IsZero() {
		w.StartTime = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_windows (id, course_id, latitude, longitude, radius_meters, start_time, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
	`, w.ID, w.CourseID, w.Latitude, w.Longitude, w.RadiusMeters, w.StartTime)
	if err != nil {
		return attendance.Window{}, err
	}
	w.IsActive = true
	w.EndTime = nil
	return w, nil
}

// Window loads a window by id.
func (r *AttendanceRepository) Window(ctx context.Context, id string) (attendance.Window, error) {
	if _, err := uuid.Parse(id); err != nil {
		return attendance.Window{}, attendance.ErrNotFound
	}
	var w attendance.Window
	var end sql.NullTime
	err := r.db.QueryRowContext(ctx, `SELECT `+windowColumns+` FROM attendance_windows w WHERE w.id = $1`, id).
		Scan(windowDest(&w, &end)...)
	if errors.Is(err, sql.ErrNoRows) {
		return attendance.Window{}, attendance.ErrNotFound
	}
	if err != nil {
		return attendance.Window{}, err
	}
	finishWindow(&w, end)
	return w, nil
}

// ActiveWindows lists open windows joined with their course.
func (r *AttendanceRepository) ActiveWindows(ctx context.Context) ([]attendance.ActiveWindow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+windowColumns+`, c.id, c.code, c.name, c.lecturer_id
		FROM attendance_windows w
		JOIN courses c ON c.id = w.course_id
		WHERE w.is_active
		ORDER BY w.start_time
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []attendance.ActiveWindow{}
	for rows.Next() {
		var aw attendance.ActiveWindow
		var end sql.NullTime
		dest := append(windowDest(&aw.Window, &end), &aw.Course.ID, &aw.Course.Code, &aw.Course.Name, &aw.Course.LecturerID)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		finishWindow(&aw.Window, end)
		out = append(out, aw)
	}
	return out, rows.Err()
}

// StopWindow deactivates an active window. A stopped window is returned as is.
func (r *AttendanceRepository) StopWindow(ctx context.Context, id string, at time.Time) (attendance.Window, bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return attendance.Window{}, false, attendance.ErrNotFound
	}
	var w attendance.Window
	var end sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		UPDATE attendance_windows w SET is_active = FALSE, end_time = $2
		WHERE w.id = $1 AND w.is_active
		RETURNING `+windowColumns, id, at).Scan(windowDest(&w, &end)...)
	if errors.Is(err, sql.ErrNoRows) {
		current, lookupErr := r.Window(ctx, id)
		return current, false, lookupErr
	}
	if err != nil {
		return attendance.Window{}, false, err
	}
	finishWindow(&w, end)
	return w, true, nil
}

// InsertRecord writes a record. The (window_id, student_id) unique
// constraint turns a second attempt into ErrDuplicate.
func (r *AttendanceRepository) InsertRecord(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, window_id, student_id, recorded_at, recorded_lat, recorded_lng)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.ID, rec.WindowID, rec.StudentID, rec.Timestamp, rec.Latitude, rec.Longitude)
	if isUniqueViolation(err) {
		return attendance.Record{}, attendance.ErrDuplicate
	}
	if err != nil {
		return attendance.Record{}, err
	}
	return rec, nil
}

const recordColumns = `r.id, r.window_id, r.student_id, r.recorded_at, r.recorded_lat, r.recorded_lng`

func recordDest(rec *attendance.Record) []any {
	return []any{&rec.ID, &rec.WindowID, &rec.StudentID, &rec.Timestamp, &rec.Latitude, &rec.Longitude}
}

// StudentHistory lists a student's records with window and course, oldest first.
func (r *AttendanceRepository) StudentHistory(ctx context.Context, studentID int64) ([]attendance.HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`, `+windowColumns+`, c.id, c.code, c.name, c.lecturer_id
		FROM attendance_records r
		JOIN attendance_windows w ON w.id = r.window_id
		JOIN courses c ON c.id = w.course_id
		WHERE r.student_id = $1
		ORDER BY r.recorded_at
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []attendance.HistoryEntry{}
	for rows.Next() {
		var h attendance.HistoryEntry
		var end sql.NullTime
		dest := recordDest(&h.Record)
		dest = append(dest, windowDest(&h.Window, &end)...)
		dest = append(dest, &h.Course.ID, &h.Course.Code, &h.Course.Name, &h.Course.LecturerID)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		finishWindow(&h.Window, end)
		out = append(out, h)
	}
	return out, rows.Err()
}

// WindowRecords lists the records of one window with the student who made each.
func (r *AttendanceRepository) WindowRecords(ctx context.Context, windowID string) ([]attendance.RosterEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`, s.id, s.index_number, s.name, s.is_registered, s.created_at
		FROM attendance_records r
		JOIN students s ON s.id = r.student_id
		WHERE r.window_id = $1
		ORDER BY r.recorded_at
	`, windowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []attendance.RosterEntry{}
	for rows.Next() {
		var e attendance.RosterEntry
		dest := recordDest(&e.Record)
		dest = append(dest, &e.Student.ID, &e.Student.IndexNumber, &e.Student.Name, &e.Student.IsRegistered, &e.Student.CreatedAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
