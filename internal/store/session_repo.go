package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"geoattend/internal/devicesession"
	"geoattend/internal/identity"
)

// SessionRepository persists device sessions. The partial unique index
// ux_device_sessions_active allows one active row per (identity_id, role).
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// supersedeAttempts bounds retries when two supersedes race on the unique index.
const supersedeAttempts = 3

// Supersede deactivates the active session, if any, and inserts a new one.
func (r *SessionRepository) Supersede(ctx context.Context, ref identity.Ref, deviceID string, at time.Time) (devicesession.Session, error) {
	var sess devicesession.Session
	var err error
	for attempt := 0; attempt < supersedeAttempts; attempt++ {
		err = inTx(ctx, r.db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `
				UPDATE device_sessions SET is_active = FALSE
				WHERE identity_id = $1 AND role = $2 AND is_active
			`, ref.ID, string(ref.Role)); err != nil {
				return err
			}
			var ierr error
			sess, ierr = insertSession(ctx, tx, ref, deviceID, at, false)
			return ierr
		})
		if !isUniqueViolation(err) {
			break
		}
	}
	return sess, err
}

// Acquire inserts an active session unless another device holds one.
func (r *SessionRepository) Acquire(ctx context.Context, ref identity.Ref, deviceID string, at time.Time) (devicesession.Session, error) {
	var sess devicesession.Session
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		// Same-device re-login replaces its own session.
		if _, err := tx.ExecContext(ctx, `
			UPDATE device_sessions SET is_active = FALSE
			WHERE identity_id = $1 AND role = $2 AND is_active AND device_id = $3
		`, ref.ID, string(ref.Role), deviceID); err != nil {
			return err
		}
		var err error
		sess, err = insertSession(ctx, tx, ref, deviceID, at, true)
		return err
	})
	if isUniqueViolation(err) {
		return devicesession.Session{}, devicesession.ErrConflict
	}
	return sess, err
}

// insertSession adds an active row. With onConflictNothing the unique index
// turns a competing active session into ErrConflict instead of an error.
func insertSession(ctx context.Context, tx *sql.Tx, ref identity.Ref, deviceID string, at time.Time, onConflictNothing bool) (devicesession.Session, error) {
	sess := devicesession.Session{
		ID:         uuid.NewString(),
		IdentityID: ref.ID,
		Role:       ref.Role,
		DeviceID:   deviceID,
		IsActive:   true,
		LastSeen:   at,
	}
	query := `INSERT INTO device_sessions (id, identity_id, role, device_id, is_active, last_seen)
		VALUES ($1, $2, $3, $4, TRUE, $5)`
	if onConflictNothing {
		query += ` ON CONFLICT (identity_id, role) WHERE is_active DO NOTHING`
	}
	res, err := tx.ExecContext(ctx, query, sess.ID, sess.IdentityID, string(sess.Role), sess.DeviceID, sess.LastSeen)
	if err != nil {
		return devicesession.Session{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return devicesession.Session{}, err
	}
	if n == 0 {
		return devicesession.Session{}, devicesession.ErrConflict
	}
	return sess, nil
}

// Active returns the active session for ref.
func (r *SessionRepository) Active(ctx context.Context, ref identity.Ref) (devicesession.Session, error) {
	var sess devicesession.Session
	var role string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, identity_id, role, device_id, is_active, last_seen
		FROM device_sessions
		WHERE identity_id = $1 AND role = $2 AND is_active
	`, ref.ID, string(ref.Role)).Scan(&sess.ID, &sess.IdentityID, &role, &sess.DeviceID, &sess.IsActive, &sess.LastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return devicesession.Session{}, devicesession.ErrNotFound
	}
	if err != nil {
		return devicesession.Session{}, err
	}
	sess.Role = identity.Role(role)
	return sess, nil
}

// Deactivate ends the active session, optionally only for deviceID.
func (r *SessionRepository) Deactivate(ctx context.Context, ref identity.Ref, deviceID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE device_sessions SET is_active = FALSE
		WHERE identity_id = $1 AND role = $2 AND is_active AND ($3 = '' OR device_id = $3)
	`, ref.ID, string(ref.Role), deviceID)
	return err
}

// Touch bumps last_seen on the active session held by deviceID.
func (r *SessionRepository) Touch(ctx context.Context, ref identity.Ref, deviceID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE device_sessions SET last_seen = $4
		WHERE identity_id = $1 AND role = $2 AND is_active AND device_id = $3
	`, ref.ID, string(ref.Role), deviceID, at)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return devicesession.ErrNotFound
	}
	return nil
}
