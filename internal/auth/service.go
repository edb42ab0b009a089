package auth

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"geoattend/internal/apperr"
	"geoattend/internal/devicesession"
	"geoattend/internal/identity"
	"geoattend/internal/metrics"
)

// LoginInput is a login request.
type LoginInput struct {
	Username string
	Password string
	Role     identity.Role
	DeviceID string
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	Identity identity.Identity `json:"identity"`
	Tokens   TokenPair         `json:"tokens"`
}

// Service runs the login, logout and refresh flows.
type Service struct {
	identities *identity.Service
	registry   *devicesession.Registry
	issuer     *Issuer
}

func NewService(identities *identity.Service, registry *devicesession.Registry, issuer *Issuer) *Service {
	return &Service{identities: identities, registry: registry, issuer: issuer}
}

// Login checks credentials, binds the device according to the registry
// policy and issues tokens.
func (s *Service) Login(ctx context.Context, in LoginInput) (res LoginResult, err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(apperr.KindOf(err))
		}
		metrics.LoginAttempts.WithLabelValues(string(in.Role), outcome).Inc()
	}()

	if strings.TrimSpace(in.DeviceID) == "" {
		return LoginResult{}, apperr.New(apperr.ValidationError, "device id is required")
	}
	id, err := s.identities.Authenticate(ctx, in.Username, in.Password, in.Role)
	if err != nil {
		return LoginResult{}, err
	}
	ref := id.Ref()
	if err := s.registry.Bind(ctx, ref, in.DeviceID); err != nil {
		return LoginResult{}, err
	}
	tokens, err := s.issuer.Issue(ref, in.DeviceID)
	if err != nil {
		return LoginResult{}, apperr.Internalf(err, "issue tokens")
	}
	log.Info().Int64("identity_id", ref.ID).Str("role", string(ref.Role)).Str("device_id", in.DeviceID).Msg("login")
	return LoginResult{Identity: id, Tokens: tokens}, nil
}

// Logout ends the session held by the caller's device. It never fails for
// a caller whose session is already gone.
func (s *Service) Logout(ctx context.Context, claims Claims) error {
	ref, err := claims.Ref()
	if err != nil {
		return nil
	}
	if err := s.registry.LogoutDevice(ctx, ref, claims.DeviceID); err != nil {
		return err
	}
	log.Info().Int64("identity_id", ref.ID).Str("role", string(ref.Role)).Str("device_id", claims.DeviceID).Msg("logout")
	return nil
}

// Refresh issues a new pair if the refresh token's device still holds the
// active session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.issuer.Parse(refreshToken, KindRefresh)
	if err != nil {
		return TokenPair{}, apperr.New(apperr.InvalidCredentials, "invalid refresh token")
	}
	ref, err := claims.Ref()
	if err != nil {
		return TokenPair{}, apperr.New(apperr.InvalidCredentials, "invalid refresh token")
	}
	if err := s.registry.VerifyDevice(ctx, ref, claims.DeviceID); err != nil {
		return TokenPair{}, err
	}
	if err := s.registry.Touch(ctx, ref, claims.DeviceID); err != nil {
		return TokenPair{}, err
	}
	tokens, err := s.issuer.Issue(ref, claims.DeviceID)
	if err != nil {
		return TokenPair{}, apperr.Internalf(err, "issue tokens")
	}
	return tokens, nil
}

// Me loads the identity behind claims.
func (s *Service) Me(ctx context.Context, claims Claims) (identity.Identity, error) {
	ref, err := claims.Ref()
	if err != nil {
		return identity.Identity{}, apperr.New(apperr.InvalidCredentials, "invalid token")
	}
	return s.identities.Get(ctx, ref)
}
