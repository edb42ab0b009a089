package store

import (
	"context"
	"fmt"

	"geoattend/internal/attendance"
	"geoattend/internal/course"
	"geoattend/internal/devicesession"
	"geoattend/internal/identity"
	"geoattend/internal/store/memstore"
)

// Stores bundles one implementation of every domain store.
type Stores struct {
	Identity   identity.Store
	Courses    course.Store
	Sessions   devicesession.Store
	Attendance attendance.Store

	// DB is nil for the memory backend.
	DB *DB
}

// Open builds the stores for backend ("postgres" or "memory").
func Open(ctx context.Context, backend, databaseURL string, migrate bool) (Stores, error) {
	switch backend {
	case "memory":
		mem := memstore.New()
		return Stores{Identity: mem, Courses: mem, Sessions: mem, Attendance: mem}, nil
	case "postgres", "":
		db, err := NewDB(databaseURL)
		if err != nil {
			_ = db.Close()
			return Stores{}, fmt.Errorf("connect postgres: %w", err)
		}
		if migrate {
			if err := db.Migrate(ctx); err != nil {
				_ = db.Close()
				return Stores{}, err
			}
		}
		return Stores{
			Identity:   NewIdentityRepository(db.Client),
			Courses:    NewCourseRepository(db.Client),
			Sessions:   NewSessionRepository(db.Client),
			Attendance: NewAttendanceRepository(db.Client),
			DB:         db,
		}, nil
	}
	return Stores{}, fmt.Errorf("unknown store backend %q", backend)
}

// Healthy reports whether the backing database answers. The memory backend is always healthy.
func (s Stores) Healthy(ctx context.Context) bool {
	if s.DB == nil {
		return true
	}
	return s.DB.Healthy(ctx)
}

// Close releases the database, if any.
func (s Stores) Close() error {
	return s.DB.Close()
}
