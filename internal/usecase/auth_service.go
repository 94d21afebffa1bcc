package usecase

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthService signs and checks storefront session tokens. Issuing them to
// real users (login flows) happens elsewhere.
type AuthService struct {
	JWTSecret string
	TTL       time.Duration
}

func (s *AuthService) Issue(userID int64) (string, error) {
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	claims := jwt.MapClaims{
		"sub":     strconv.FormatInt(userID, 10),
		"user_id": userID,
		"exp":     time.Now().Add(ttl).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(s.JWTSecret))
}

func (s *AuthService) Verify(token string) (int64, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return []byte(s.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return 0, ErrUnauthorized("invalid token")
	}
	m, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrUnauthorized("invalid claims")
	}
	sub, _ := m["sub"].(string)
	uid, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || uid <= 0 {
		return 0, ErrUnauthorized("invalid subject")
	}
	return uid, nil
}
