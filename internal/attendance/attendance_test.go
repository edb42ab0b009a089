package attendance_test

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoattend/internal/apperr"
	"geoattend/internal/attendance"
	"geoattend/internal/course"
	"geoattend/internal/devicesession"
	"geoattend/internal/identity"
	"geoattend/internal/queue"
	"geoattend/internal/store/memstore"
)

const (
	centerLat = 5.6037
	centerLng = -0.1870
)

type fixture struct {
	mem         *memstore.DB
	registry    *devicesession.Registry
	manager     *attendance.Manager
	coordinator *attendance.Coordinator
	events      *queue.InMemory
	course      course.Course
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := memstore.New()
	lec, err := mem.CreateLecturer(ctx, identity.Lecturer{Username: "prof", Name: "Prof", PasswordHash: "x"})
	require.NoError(t, err)
	c, err := mem.CreateCourse(ctx, course.Course{Code: "CS101", Name: "Intro", LecturerID: lec.ID})
	require.NoError(t, err)

	registry := devicesession.NewRegistry(mem, devicesession.PolicyBlock)
	events := queue.NewInMemory(16)
	return &fixture{
		mem:         mem,
		registry:    registry,
		manager:     attendance.NewManager(mem, mem),
		coordinator: attendance.NewCoordinator(mem, registry, events),
		events:      events,
		course:      c,
	}
}

func (f *fixture) student(t *testing.T, index, device string) identity.Ref {
	t.Helper()
	st, err := f.mem.CreateStudent(context.Background(), identity.Student{IndexNumber: index, Name: index})
	require.NoError(t, err)
	ref := identity.Ref{ID: st.ID, Role: identity.RoleStudent}
	require.NoError(t, f.registry.Bind(context.Background(), ref, device))
	return ref
}

func (f *fixture) open(t *testing.T, radius int) attendance.Window {
	t.Helper()
	w, err := f.manager.Open(context.Background(), attendance.OpenWindow{
		CourseID: f.course.ID, Latitude: centerLat, Longitude: centerLng, RadiusMeters: radius,
	})
	require.NoError(t, err)
	return w
}

func TestMarkWithinRadius(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.open(t, 50)
	st := f.student(t, "ST1", "phone-1")

	rec, err := f.coordinator.Mark(ctx, attendance.MarkRequest{
		WindowID: w.ID, Identity: st, DeviceID: "phone-1", Lat: centerLat + 0.0003, Lng: centerLng,
	})
	require.NoError(t, err)
	assert.Equal(t, w.ID, rec.WindowID)
	assert.Equal(t, st.ID, rec.StudentID)
	assert.Equal(t, centerLat+0.0003, rec.Latitude)

	_, err = f.coordinator.Mark(ctx, attendance.MarkRequest{
		WindowID: w.ID, Identity: st, DeviceID: "phone-1", Lat: centerLat, Lng: centerLng,
	})
	assert.Equal(t, apperr.DuplicateAttendance, apperr.KindOf(err))
	assert.Equal(t, 1, f.mem.Count())

	ctxCancel, cancel := context.WithCancel(ctx)
	msgs, err := f.events.Consume(ctxCancel)
	require.NoError(t, err)
	msg := <-msgs
	cancel()
	assert.Equal(t, attendance.TypeMarked, msg.Type)
	evt, err := attendance.DecodeMarked(msg.Body)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, evt.RecordID)
	assert.Equal(t, "phone-1", evt.DeviceID)
}

func TestMarkOutOfRange(t *testing.T) {
	f := newFixture(t)
	w := f.open(t, 50)
	st := f.student(t, "ST1", "phone-1")

	_, err := f.coordinator.Mark(context.Background(), attendance.MarkRequest{
		WindowID: w.ID, Identity: st, DeviceID: "phone-1", Lat: centerLat + 0.001, Lng: centerLng,
	})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.OutOfRange, e.Kind)
	assert.InDelta(t, 111.19, e.DistanceMeters, 0.5)
	assert.Equal(t, 50, e.RadiusMeters)
	assert.Zero(t, f.mem.Count())
}

func TestMarkCheckOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.open(t, 50)
	st := f.student(t, "ST1", "phone-1")
	farLat := centerLat + 1

	tests := []struct {
		name string
		req  attendance.MarkRequest
		want apperr.Kind
	}{
		{
			name: "lecturer",
			req:  attendance.MarkRequest{WindowID: "missing", Identity: identity.Ref{ID: 1, Role: identity.RoleLecturer}, DeviceID: "x", Lat: farLat, Lng: centerLng},
			want: apperr.Forbidden,
		},
		{
			name: "unknown window before device",
			req:  attendance.MarkRequest{WindowID: "missing", Identity: st, DeviceID: "other", Lat: farLat, Lng: centerLng},
			want: apperr.WindowNotFound,
		},
		{
			name: "device before geofence",
			req:  attendance.MarkRequest{WindowID: w.ID, Identity: st, DeviceID: "other", Lat: farLat, Lng: centerLng},
			want: apperr.DeviceMismatch,
		},
		{
			name: "not a number",
			req:  attendance.MarkRequest{WindowID: w.ID, Identity: st, DeviceID: "phone-1", Lat: math.NaN(), Lng: centerLng},
			want: apperr.ValidationError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.coordinator.Mark(ctx, tt.req)
			assert.Equal(t, tt.want, apperr.KindOf(err))
		})
	}
	assert.Zero(t, f.mem.Count())
}

func TestStoppedWindowRejectsMarks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.open(t, 50)
	st := f.student(t, "ST1", "phone-1")

	stopped, err := f.manager.Stop(ctx, w.ID)
	require.NoError(t, err)
	assert.False(t, stopped.IsActive)
	require.NotNil(t, stopped.EndTime)

	_, err = f.coordinator.Mark(ctx, attendance.MarkRequest{
		WindowID: w.ID, Identity: st, DeviceID: "phone-1", Lat: centerLat, Lng: centerLng,
	})
	assert.Equal(t, apperr.WindowInactive, apperr.KindOf(err))
}

func TestConcurrentMarksRecordOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.open(t, 50)
	st := f.student(t, "ST1", "phone-1")

	const n = 25
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		ok    int
		dupes int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.coordinator.Mark(ctx, attendance.MarkRequest{
				WindowID: w.ID, Identity: st, DeviceID: "phone-1", Lat: centerLat, Lng: centerLng,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case apperr.KindOf(err) == apperr.DuplicateAttendance:
				dupes++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, dupes)
	assert.Equal(t, 1, f.mem.Count())
}

func TestOpenValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   attendance.OpenWindow
	}{
		{"zero radius", attendance.OpenWindow{CourseID: f.course.ID, RadiusMeters: 0}},
		{"negative radius", attendance.OpenWindow{CourseID: f.course.ID, RadiusMeters: -5}},
		{"unknown course", attendance.OpenWindow{CourseID: 999, RadiusMeters: 10}},
		{"no course", attendance.OpenWindow{RadiusMeters: 10}},
		{"infinite latitude", attendance.OpenWindow{CourseID: f.course.ID, Latitude: math.Inf(1), RadiusMeters: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.manager.Open(ctx, tt.in)
			assert.Equal(t, apperr.ValidationError, apperr.KindOf(err))
		})
	}

	active, err := f.manager.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestStopIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.open(t, 30)

	first, err := f.manager.Stop(ctx, w.ID)
	require.NoError(t, err)
	second, err := f.manager.Stop(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, first.EndTime, second.EndTime)

	_, err = f.manager.Stop(ctx, "does-not-exist")
	assert.Equal(t, apperr.WindowNotFound, apperr.KindOf(err))
}

func TestListActiveAndHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	open := f.open(t, 50)
	closed := f.open(t, 50)
	_, err := f.manager.Stop(ctx, closed.ID)
	require.NoError(t, err)

	active, err := f.manager.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, open.ID, active[0].ID)
	assert.Equal(t, "CS101", active[0].Course.Code)

	st := f.student(t, "ST1", "phone-1")
	_, err = f.coordinator.Mark(ctx, attendance.MarkRequest{
		WindowID: open.ID, Identity: st, DeviceID: "phone-1", Lat: centerLat, Lng: centerLng,
	})
	require.NoError(t, err)

	history, err := f.coordinator.History(ctx, st)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "CS101", history[0].Course.Code)

	roster, err := f.manager.Records(ctx, open.ID)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, "ST1", roster[0].Student.IndexNumber)

	_, err = f.coordinator.History(ctx, identity.Ref{ID: 1, Role: identity.RoleLecturer})
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
}

func TestScenarioAtOrigin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w, err := f.manager.Open(ctx, attendance.OpenWindow{CourseID: f.course.ID, Latitude: 0, Longitude: 0, RadiusMeters: 50})
	require.NoError(t, err)
	first := f.student(t, "ST1", "x")
	second := f.student(t, "ST2", "y")

	_, err = f.coordinator.Mark(ctx, attendance.MarkRequest{WindowID: w.ID, Identity: first, DeviceID: "x", Lat: 0.0003, Lng: 0})
	require.NoError(t, err)

	_, err = f.coordinator.Mark(ctx, attendance.MarkRequest{WindowID: w.ID, Identity: first, DeviceID: "x", Lat: 0.0003, Lng: 0})
	assert.Equal(t, apperr.DuplicateAttendance, apperr.KindOf(err))

	_, err = f.coordinator.Mark(ctx, attendance.MarkRequest{WindowID: w.ID, Identity: second, DeviceID: "y", Lat: 0.0010, Lng: 0})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.OutOfRange, e.Kind)
	assert.InDelta(t, 111, e.DistanceMeters, 1)
	assert.Equal(t, 50, e.RadiusMeters)
	assert.Equal(t, 1, f.mem.Count())
}
