// Package memstore keeps all engine state in process memory. It enforces the
// same uniqueness rules as the Postgres schema and backs STORE_BACKEND=memory
// and the tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"geoattend/internal/attendance"
	"geoattend/internal/course"
	"geoattend/internal/devicesession"
	"geoattend/internal/identity"
)

type recordKey struct {
	windowID  string
	studentID int64
}

// DB implements identity.Store, course.Store, devicesession.Store and
// attendance.Store. One mutex guards everything.
type DB struct {
	mu sync.Mutex

	students    map[int64]identity.Student
	lecturers   map[int64]identity.Lecturer
	courses     map[int64]course.Course
	sessions    []devicesession.Session
	windows     map[string]attendance.Window
	records     map[recordKey]attendance.Record
	recordOrder []recordKey

	nextStudent  int64
	nextLecturer int64
	nextCourse   int64
}

// New returns an empty store.
func New() *DB {
	return &DB{
		students:  make(map[int64]identity.Student),
		lecturers: make(map[int64]identity.Lecturer),
		courses:   make(map[int64]course.Course),
		windows:   make(map[string]attendance.Window),
		records:   make(map[recordKey]attendance.Record),
	}
}

var (
	_ identity.Store      = (*DB)(nil)
	_ course.Store        = (*DB)(nil)
	_ devicesession.Store = (*DB)(nil)
	_ attendance.Store    = (*DB)(nil)
)

// Students

func (db *DB) StudentByIndex(_ context.Context, indexNumber string) (identity.Student, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, s := range db.students {
		if s.IndexNumber == indexNumber {
			return s, nil
		}
	}
	return identity.Student{}, identity.ErrNotFound
}

func (db *DB) StudentByID(_ context.Context, id int64) (identity.Student, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	s, ok := db.students[id]
	if !ok {
		return identity.Student{}, identity.ErrNotFound
	}
	return s, nil
}

func (db *DB) CreateStudent(_ context.Context, s identity.Student) (identity.Student, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, existing := range db.students {
		if existing.IndexNumber == s.IndexNumber {
			return identity.Student{}, identity.ErrDuplicate
		}
	}
	db.nextStudent++
	s.ID = db.nextStudent
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	db.students[s.ID] = s
	return s, nil
}

func (db *DB) UpsertStudent(_ context.Context, indexNumber, name string) (identity.UpsertOutcome, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for id, s := range db.students {
		if s.IndexNumber != indexNumber {
			continue
		}
		if s.Name == name {
			return identity.Skipped, nil
		}
		s.Name = name
		db.students[id] = s
		return identity.Updated, nil
	}
	db.nextStudent++
	db.students[db.nextStudent] = identity.Student{
		ID:          db.nextStudent,
		IndexNumber: indexNumber,
		Name:        name,
		CreatedAt:   time.Now().UTC(),
	}
	return identity.Added, nil
}

func (db *DB) ActivateStudent(_ context.Context, id int64, passwordHash string) (identity.Student, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	s, ok := db.students[id]
	if !ok {
		return identity.Student{}, identity.ErrNotFound
	}
	if s.IsRegistered {
		return identity.Student{}, identity.ErrAlreadyActivated
	}
	s.PasswordHash = &passwordHash
	s.IsRegistered = true
	db.students[id] = s
	return s, nil
}

// Lecturers

func (db *DB) LecturerByUsername(_ context.Context, username string) (identity.Lecturer, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, l := range db.lecturers {
		if l.Username == username {
			return l, nil
		}
	}
	return identity.Lecturer{}, identity.ErrNotFound
}

func (db *DB) LecturerByID(_ context.Context, id int64) (identity.Lecturer, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	l, ok := db.lecturers[id]
	if !ok {
		return identity.Lecturer{}, identity.ErrNotFound
	}
	return l, nil
}

func (db *DB) CreateLecturer(_ context.Context, l identity.Lecturer) (identity.Lecturer, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, existing := range db.lecturers {
		if existing.Username == l.Username {
			return identity.Lecturer{}, identity.ErrDuplicate
		}
	}
	db.nextLecturer++
	l.ID = db.nextLecturer
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	db.lecturers[l.ID] = l
	return l, nil
}

// Courses

func (db *DB) Courses(_ context.Context) ([]course.Course, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]course.Course, 0, len(db.courses))
	for _, c := range db.courses {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (db *DB) Course(_ context.Context, id int64) (course.Course, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	c, ok := db.courses[id]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	return c, nil
}

func (db *DB) CoursesByLecturer(ctx context.Context, lecturerID int64) ([]course.Course, error) {
	all, _ := db.Courses(ctx)
	out := []course.Course{}
	for _, c := range all {
		if c.LecturerID == lecturerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (db *DB) CreateCourse(_ context.Context, c course.Course) (course.Course, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, existing := range db.courses {
		if existing.Code == c.Code {
			return course.Course{}, course.ErrDuplicate
		}
	}
	db.nextCourse++
	c.ID = db.nextCourse
	db.courses[c.ID] = c
	return c, nil
}

// Device sessions

func (db *DB) activeIndex(ref identity.Ref) int {
	for i, s := range db.sessions {
		if s.IsActive && s.IdentityID == ref.ID && s.Role == ref.Role {
			return i
		}
	}
	return -1
}

func (db *DB) insertSession(ref identity.Ref, deviceID string, at time.Time) devicesession.Session {
	s := devicesession.Session{
		ID:         uuid.NewString(),
		IdentityID: ref.ID,
		Role:       ref.Role,
		DeviceID:   deviceID,
		IsActive:   true,
		LastSeen:   at,
	}
	db.sessions = append(db.sessions, s)
	return s
}

func (db *DB) Supersede(_ context.Context, ref identity.Ref, deviceID string, at time.Time) (devicesession.Session, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if i := db.activeIndex(ref); i >= 0 {
		db.sessions[i].IsActive = false
	}
	return db.insertSession(ref, deviceID, at), nil
}

func (db *DB) Acquire(_ context.Context, ref identity.Ref, deviceID string, at time.Time) (devicesession.Session, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if i := db.activeIndex(ref); i >= 0 {
		if db.sessions[i].DeviceID != deviceID {
			return devicesession.Session{}, devicesession.ErrConflict
		}
		db.sessions[i].IsActive = false
	}
	return db.insertSession(ref, deviceID, at), nil
}

func (db *DB) Active(_ context.Context, ref identity.Ref) (devicesession.Session, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if i := db.activeIndex(ref); i >= 0 {
		return db.sessions[i], nil
	}
	return devicesession.Session{}, devicesession.ErrNotFound
}

func (db *DB) Deactivate(_ context.Context, ref identity.Ref, deviceID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if i := db.activeIndex(ref); i >= 0 && (deviceID == "" || db.sessions[i].DeviceID == deviceID) {
		db.sessions[i].IsActive = false
	}
	return nil
}

func (db *DB) Touch(_ context.Context, ref identity.Ref, deviceID string, at time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	i := db.activeIndex(ref)
	if i < 0 || db.sessions[i].DeviceID != deviceID {
		return devicesession.ErrNotFound
	}
	db.sessions[i].LastSeen = at
	return nil
}

// Windows and records

func (db *DB) CreateWindow(_ context.Context, w attendance.Window) (attendance.Window, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	db.windows[w.ID] = w
	return w, nil
}

func (db *DB) Window(_ context.Context, id string) (attendance.Window, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	w, ok := db.windows[id]
	if !ok {
		return attendance.Window{}, attendance.ErrNotFound
	}
	return w, nil
}

func (db *DB) ActiveWindows(_ context.Context) ([]attendance.ActiveWindow, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := []attendance.ActiveWindow{}
	for _, w := range db.windows {
		if !w.IsActive {
			continue
		}
		c, ok := db.courses[w.CourseID]
		if !ok {
			continue
		}
		out = append(out, attendance.ActiveWindow{Window: w, Course: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (db *DB) StopWindow(_ context.Context, id string, at time.Time) (attendance.Window, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	w, ok := db.windows[id]
	if !ok {
		return attendance.Window{}, false, attendance.ErrNotFound
	}
	if !w.IsActive {
		return w, false, nil
	}
	w.IsActive = false
	w.EndTime = &at
	db.windows[id] = w
	return w, true, nil
}

func (db *DB) InsertRecord(_ context.Context, r attendance.Record) (attendance.Record, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	key := recordKey{windowID: r.WindowID, studentID: r.StudentID}
	if _, exists := db.records[key]; exists {
		return attendance.Record{}, attendance.ErrDuplicate
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	db.records[key] = r
	db.recordOrder = append(db.recordOrder, key)
	return r, nil
}

func (db *DB) StudentHistory(_ context.Context, studentID int64) ([]attendance.HistoryEntry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := []attendance.HistoryEntry{}
	for _, key := range db.recordOrder {
		if key.studentID != studentID {
			continue
		}
		r := db.records[key]
		w := db.windows[r.WindowID]
		out = append(out, attendance.HistoryEntry{Record: r, Window: w, Course: db.courses[w.CourseID]})
	}
	return out, nil
}

func (db *DB) WindowRecords(_ context.Context, windowID string) ([]attendance.RosterEntry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := []attendance.RosterEntry{}
	for _, key := range db.recordOrder {
		if key.windowID != windowID {
			continue
		}
		r := db.records[key]
		out = append(out, attendance.RosterEntry{Record: r, Student: db.students[r.StudentID]})
	}
	return out, nil
}

// Count returns how many records exist. Used by tests.
func (db *DB) Count() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.records)
}
