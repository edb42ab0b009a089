package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"geoattend/internal/course"
	"geoattend/internal/identity"
	"geoattend/internal/password"
)

// Seed inserts demo accounts and courses unless student ST001 already exists.
func Seed(ctx context.Context, ids identity.Store, courses course.Store) error {
	if _, err := ids.StudentByIndex(ctx, "ST001"); err == nil {
		log.Info().Msg("seed data already present")
		return nil
	} else if !errors.Is(err, identity.ErrNotFound) {
		return err
	}

	lecturerHash, err := password.Hash("admin123")
	if err != nil {
		return err
	}
	lec, err := ids.CreateLecturer(ctx, identity.Lecturer{Username: "prof.doe", Name: "Professor John Doe", PasswordHash: lecturerHash})
	if err != nil && !errors.Is(err, identity.ErrDuplicate) {
		return fmt.Errorf("seed lecturer: %w", err)
	}
	if errors.Is(err, identity.ErrDuplicate) {
		if lec, err = ids.LecturerByUsername(ctx, "prof.doe"); err != nil {
			return err
		}
	}

	for _, c := range []course.Course{
		{Code: "CS101", Name: "Intro to Computer Science", LecturerID: lec.ID},
		{Code: "ENG202", Name: "Advanced Engineering", LecturerID: lec.ID},
	} {
		if _, err := courses.CreateCourse(ctx, c); err != nil && !errors.Is(err, course.ErrDuplicate) {
			return fmt.Errorf("seed course %s: %w", c.Code, err)
		}
	}

	studentHash, err := password.Hash("student123")
	if err != nil {
		return err
	}
	for _, s := range []identity.Student{
		{IndexNumber: "ST001", Name: "Alice Student"},
		{IndexNumber: "ST002", Name: "Bob Scholar"},
		{IndexNumber: "ST999", Name: "Test Student (Registered)", PasswordHash: &studentHash, IsRegistered: true},
	} {
		if _, err := ids.CreateStudent(ctx, s); err != nil && !errors.Is(err, identity.ErrDuplicate) {
			return fmt.Errorf("seed student %s: %w", s.IndexNumber, err)
		}
	}
	log.Info().Msg("seed complete")
	return nil
}
