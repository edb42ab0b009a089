// Package devicesession binds each identity to at most one active device.
package devicesession

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"geoattend/internal/apperr"
	"geoattend/internal/identity"
)

var (
	ErrNotFound = errors.New("no active session")
	// ErrConflict is returned by Store.Acquire when another device holds
	// the active session.
	ErrConflict = errors.New("another device holds the active session")
)

// Session is one login of an identity on a device.
type Session struct {
	ID         string        `json:"id"`
	IdentityID int64         `json:"identity_id"`
	Role       identity.Role `json:"role"`
	DeviceID   string        `json:"device_id"`
	IsActive   bool          `json:"is_active"`
	LastSeen   time.Time     `json:"last_seen"`
}

// Store persists device sessions. Implementations must guarantee at most
// one active session per (identity, role) with a storage-level constraint.
type Store interface {
	// Supersede deactivates any active session for ref and inserts a new
	// active one for deviceID.
	Supersede(ctx context.Context, ref identity.Ref, deviceID string, at time.Time) (Session, error)
	// Acquire inserts an active session for deviceID unless a different
	// device already holds one (ErrConflict). An active session on the
	// same device is replaced.
	Acquire(ctx context.Context, ref identity.Ref, deviceID string, at time.Time) (Session, error)
	Active(ctx context.Context, ref identity.Ref) (Session, error)
	// Deactivate ends the active session for ref. A non-empty deviceID
	// restricts it to that device.
	Deactivate(ctx context.Context, ref identity.Ref, deviceID string) error
	Touch(ctx context.Context, ref identity.Ref, deviceID string, at time.Time) error
}

// Policy decides what a login from a second device does.
type Policy string

const (
	// PolicyBlock rejects the new login with DeviceConflict.
	PolicyBlock Policy = "block"
	// PolicyEvict ends the old session and lets the new device in.
	PolicyEvict Policy = "evict"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyBlock:
		return PolicyBlock, nil
	case PolicyEvict:
		return PolicyEvict, nil
	}
	return "", fmt.Errorf("unknown device policy %q", s)
}

// Registry is the single owner of device sessions.
type Registry struct {
	store  Store
	policy Policy
	now    func() time.Time
}

// NewRegistry creates a registry applying policy on Bind.
func NewRegistry(store Store, policy Policy) *Registry {
	if policy == "" {
		policy = PolicyBlock
	}
	return &Registry{store: store, policy: policy, now: func() time.Time { return time.Now().UTC() }}
}

// Policy returns the configured device policy.
func (r *Registry) Policy() Policy { return r.policy }

// Login makes deviceID the active device for ref, evicting any other.
func (r *Registry) Login(ctx context.Context, ref identity.Ref, deviceID string) error {
	if err := validDevice(deviceID); err != nil {
		return err
	}
	sess, err := r.store.Supersede(ctx, ref, deviceID, r.now())
	if err != nil {
		return apperr.Internalf(err, "supersede session")
	}
	log.Info().Int64("identity_id", ref.ID).Str("role", string(ref.Role)).Str("device_id", deviceID).
		Str("session_id", sess.ID).Msg("device session started")
	return nil
}

// Bind starts a session for a freshly authenticated identity according to
// the registry policy. Under PolicyBlock a different active device yields
// DeviceConflict and nothing changes.
func (r *Registry) Bind(ctx context.Context, ref identity.Ref, deviceID string) error {
	if r.policy == PolicyEvict {
		return r.Login(ctx, ref, deviceID)
	}
	if err := validDevice(deviceID); err != nil {
		return err
	}
	sess, err := r.store.Acquire(ctx, ref, deviceID, r.now())
	if errors.Is(err, ErrConflict) {
		log.Info().Int64("identity_id", ref.ID).Str("role", string(ref.Role)).Str("device_id", deviceID).
			Msg("login blocked by session on another device")
		return apperr.New(apperr.DeviceConflict, "you have an active session on another device, log out there first")
	}
	if err != nil {
		return apperr.Internalf(err, "acquire session")
	}
	log.Info().Int64("identity_id", ref.ID).Str("role", string(ref.Role)).Str("device_id", deviceID).
		Str("session_id", sess.ID).Msg("device session started")
	return nil
}

// ActiveDevice returns the device holding ref's active session, if any.
func (r *Registry) ActiveDevice(ctx context.Context, ref identity.Ref) (string, bool, error) {
	sess, err := r.store.Active(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Internalf(err, "load active session")
	}
	return sess.DeviceID, true, nil
}

// VerifyDevice fails with DeviceMismatch unless deviceID holds ref's active session.
func (r *Registry) VerifyDevice(ctx context.Context, ref identity.Ref, deviceID string) error {
	active, ok, err := r.ActiveDevice(ctx, ref)
	if err != nil {
		return err
	}
	if !ok || deviceID == "" || active != deviceID {
		return apperr.New(apperr.DeviceMismatch, "device mismatch, please log in again")
	}
	return nil
}

// Logout ends ref's active session, whichever device holds it.
func (r *Registry) Logout(ctx context.Context, ref identity.Ref) error {
	if err := r.store.Deactivate(ctx, ref, ""); err != nil {
		return apperr.Internalf(err, "deactivate session")
	}
	return nil
}

// LogoutDevice ends ref's active session only if deviceID holds it, so an
// evicted device cannot log out its successor.
func (r *Registry) LogoutDevice(ctx context.Context, ref identity.Ref, deviceID string) error {
	if deviceID == "" {
		return nil
	}
	if err := r.store.Deactivate(ctx, ref, deviceID); err != nil {
		return apperr.Internalf(err, "deactivate session")
	}
	return nil
}

// Touch records activity on ref's active session for deviceID.
func (r *Registry) Touch(ctx context.Context, ref identity.Ref, deviceID string) error {
	err := r.store.Touch(ctx, ref, deviceID, r.now())
	if err != nil && !errors.Is(err, ErrNotFound) {
		return apperr.Internalf(err, "touch session")
	}
	return nil
}

func validDevice(deviceID string) error {
	if strings.TrimSpace(deviceID) == "" {
		return apperr.New(apperr.ValidationError, "device id is required")
	}
	return nil
}
