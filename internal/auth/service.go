package auth

import (
	"context"
	"errors"

	"github.com/angelomarques/chirp/internal/directory"
	"github.com/angelomarques/chirp/internal/profile"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("token invalid")

// Claims are issued by the identity provider; only the subject is read.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Session is the caller's identity as seen by the presentation layer.
// Profile is nil when the directory has no account or is unreachable.
type Session struct {
	UserID  string             `json:"user_id"`
	Profile *directory.Profile `json:"profile"`
}

type ProfileResolver interface {
	Resolve(ctx context.Context, ids []string) profile.Resolution
}

type Service struct {
	secret   []byte
	profiles ProfileResolver
}

func NewService(secret string, profiles ProfileResolver) *Service {
	return &Service{
		secret:   []byte(secret),
		profiles: profiles,
	}
}

func (s *Service) ValidateAccessToken(token string) (string, error) {
	claims, err := parseClaims(s.secret, token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// Session resolves the caller's own profile through the shared cache.
func (s *Service) Session(ctx context.Context, userID string) Session {
	sess := Session{UserID: userID}
	if s.profiles == nil {
		return sess
	}
	res := s.profiles.Resolve(ctx, []string{userID})
	if p, ok := res.Profiles[userID]; ok {
		sess.Profile = &p
	}
	return sess
}

func parseClaims(secret []byte, token string) (*Claims, error) {
	parsed, err := parseClaimsFn(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

var parseClaimsFn = jwt.ParseWithClaims
