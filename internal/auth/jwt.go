package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"geoattend/internal/identity"
)

// Token kinds carried in Claims.Kind.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// TokenPair holds access and refresh tokens.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	AccessExp    time.Time `json:"access_expires_at"`
	RefreshExp   time.Time `json:"refresh_expires_at"`
}

// Claims represents JWT payload. Tokens are bound to the device that logged in.
type Claims struct {
	Role     string `json:"role"`
	DeviceID string `json:"device_id"`
	Kind     string `json:"kind"`
	jwt.RegisteredClaims
}

// Ref returns the identity the token was issued to.
func (c Claims) Ref() (identity.Ref, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return identity.Ref{}, errors.New("invalid subject")
	}
	role, err := identity.ParseRole(c.Role)
	if err != nil {
		return identity.Ref{}, err
	}
	return identity.Ref{ID: id, Role: role}, nil
}

// Issuer signs tokens with HS256.
type Issuer struct {
	Name       string
	Key        []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer creates a token issuer.
func NewIssuer(name, key string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{Name: name, Key: []byte(key), AccessTTL: accessTTL, RefreshTTL: refreshTTL, now: time.Now}
}

// Issue issues signed access and refresh tokens for ref on deviceID.
func (is *Issuer) Issue(ref identity.Ref, deviceID string) (TokenPair, error) {
	now := is.now()
	accessExp := now.Add(is.AccessTTL)
	refreshExp := now.Add(is.RefreshTTL)

	accessToken, err := is.sign(ref, deviceID, KindAccess, now, accessExp)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := is.sign(ref, deviceID, KindRefresh, now, refreshExp)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

func (is *Issuer) sign(ref identity.Ref, deviceID, kind string, now, exp time.Time) (string, error) {
	claims := Claims{
		Role:     string(ref.Role),
		DeviceID: deviceID,
		Kind:     kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    is.Name,
			Subject:   strconv.FormatInt(ref.ID, 10),
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(is.Key)
}

// Parse validates a token of the expected kind and returns claims.
func (is *Issuer) Parse(tokenStr, kind string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return is.Key, nil
	}, jwt.WithTimeFunc(is.now))
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if is.Name != "" && claims.Issuer != is.Name {
		return Claims{}, errors.New("issuer mismatch")
	}
	if claims.Kind != kind {
		return Claims{}, errors.New("wrong token kind")
	}
	if claims.DeviceID == "" {
		return Claims{}, errors.New("token not bound to a device")
	}
	return *claims, nil
}
