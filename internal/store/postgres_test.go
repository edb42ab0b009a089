package store

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoattend/internal/attendance"
	"geoattend/internal/course"
	"geoattend/internal/devicesession"
	"geoattend/internal/identity"
)

// openPostgres connects to TEST_DATABASE_URL and applies the schema. Rows
// are keyed by fresh ids, so runs can share a database.
func openPostgres(t *testing.T) Stores {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	stores, err := Open(context.Background(), "postgres", url, true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = stores.Close() })
	return stores
}

func uniqueRef(role identity.Role) identity.Ref {
	return identity.Ref{ID: time.Now().UnixNano(), Role: role}
}

func TestPostgresAcquire(t *testing.T) {
	stores := openPostgres(t)
	ctx := context.Background()
	ref := uniqueRef(identity.RoleStudent)
	now := time.Now().UTC()

	first, err := stores.Sessions.Acquire(ctx, ref, "phone-a", now)
	require.NoError(t, err)

	again, err := stores.Sessions.Acquire(ctx, ref, "phone-a", now)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, again.ID)

	_, err = stores.Sessions.Acquire(ctx, ref, "phone-b", now)
	assert.ErrorIs(t, err, devicesession.ErrConflict)

	active, err := stores.Sessions.Active(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "phone-a", active.DeviceID)
}

func TestPostgresAcquireRace(t *testing.T) {
	stores := openPostgres(t)
	ctx := context.Background()
	ref := uniqueRef(identity.RoleStudent)

	const n = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(device string) {
			defer wg.Done()
			_, err := stores.Sessions.Acquire(ctx, ref, device, time.Now().UTC())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case assert.ErrorIs(t, err, devicesession.ErrConflict):
				conflicts++
			}
		}(uuid.NewString())
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, n-1, conflicts)
	assert.Equal(t, 1, countActive(t, stores, ref))
}

func TestPostgresSupersedeRace(t *testing.T) {
	stores := openPostgres(t)
	ctx := context.Background()
	ref := uniqueRef(identity.RoleLecturer)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(device string) {
			defer wg.Done()
			// A racer may exhaust its retries; the index still holds.
			_, _ = stores.Sessions.Supersede(ctx, ref, device, time.Now().UTC())
		}(uuid.NewString())
	}
	wg.Wait()

	assert.Equal(t, 1, countActive(t, stores, ref))

	sess, err := stores.Sessions.Supersede(ctx, ref, "laptop", time.Now().UTC())
	require.NoError(t, err)
	active, err := stores.Sessions.Active(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, active.ID)

	require.NoError(t, stores.Sessions.Touch(ctx, ref, "laptop", time.Now().UTC()))
	assert.ErrorIs(t, stores.Sessions.Touch(ctx, ref, "someone-else", time.Now().UTC()), devicesession.ErrNotFound)

	require.NoError(t, stores.Sessions.Deactivate(ctx, ref, ""))
	_, err = stores.Sessions.Active(ctx, ref)
	assert.ErrorIs(t, err, devicesession.ErrNotFound)
}

func countActive(t *testing.T, stores Stores, ref identity.Ref) int {
	t.Helper()
	var n int
	require.NoError(t, stores.DB.Client.QueryRowContext(context.Background(), `
		SELECT COUNT(*) FROM device_sessions WHERE identity_id = $1 AND role = $2 AND is_active
	`, ref.ID, string(ref.Role)).Scan(&n))
	return n
}

func TestPostgresUpsertStudent(t *testing.T) {
	stores := openPostgres(t)
	ctx := context.Background()
	index := "IT-" + uuid.NewString()[:8]

	tests := []struct {
		name string
		in   string
		want identity.UpsertOutcome
	}{
		{"new row", "Alice", identity.Added},
		{"same name", "Alice", identity.Skipped},
		{"renamed", "Alice Renamed", identity.Updated},
	}
	for _, tt := range tests {
		got, err := stores.Identity.UpsertStudent(ctx, index, tt.in)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}

	st, err := stores.Identity.StudentByIndex(ctx, index)
	require.NoError(t, err)
	assert.Equal(t, "Alice Renamed", st.Name)
	assert.False(t, st.IsRegistered)

	_, err = stores.Identity.ActivateStudent(ctx, st.ID, "hash")
	require.NoError(t, err)
	_, err = stores.Identity.ActivateStudent(ctx, st.ID, "hash")
	assert.ErrorIs(t, err, identity.ErrAlreadyActivated)
}

func TestPostgresRecordsAreUniquePerWindow(t *testing.T) {
	stores := openPostgres(t)
	ctx := context.Background()
	suffix := uuid.NewString()[:8]

	lec, err := stores.Identity.CreateLecturer(ctx, identity.Lecturer{Username: "it-" + suffix, Name: "IT", PasswordHash: "x"})
	require.NoError(t, err)
	c, err := stores.Courses.CreateCourse(ctx, course.Course{Code: "IT" + suffix, Name: "Integration", LecturerID: lec.ID})
	require.NoError(t, err)
	_, err = stores.Courses.CreateCourse(ctx, course.Course{Code: "IT" + suffix, Name: "Again", LecturerID: lec.ID})
	assert.ErrorIs(t, err, course.ErrDuplicate)

	st, err := stores.Identity.CreateStudent(ctx, identity.Student{IndexNumber: "IT-" + suffix, Name: "Student"})
	require.NoError(t, err)
	w, err := stores.Attendance.CreateWindow(ctx, attendance.Window{CourseID: c.ID, Latitude: 5.6, Longitude: -0.18, RadiusMeters: 50})
	require.NoError(t, err)

	const n = 10
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
			_, err := stores.Attendance.InsertRecord(ctx, attendance.Record{WindowID: w.ID, StudentID: st.ID, Latitude: 5.6, Longitude: -0.18})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case assert.ErrorIs(t, err, attendance.ErrDuplicate):
				dupes++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, dupes)

	stopped, changed, err := stores.Attendance.StopWindow(ctx, w.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, changed)
	require.NotNil(t, stopped.EndTime)

	again, changed, err := stores.Attendance.StopWindow(ctx, w.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, stopped.EndTime.Unix(), again.EndTime.Unix())

	_, _, err = stores.Attendance.StopWindow(ctx, "not-a-uuid", time.Now().UTC())
	assert.ErrorIs(t, err, attendance.ErrNotFound)
}
