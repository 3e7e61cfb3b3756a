package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

// Roles carried in session tokens.
const (
	RoleHost        = "host"
	RoleParticipant = "participant"
)

// Claims holds JWT claims scoping a token to one session.
// Participants carry a server-issued voter ID used to deduplicate votes.
type Claims struct {
	SessionID uuid.UUID `json:"session_id"`
	VoterID   uuid.UUID `json:"voter_id,omitempty"`
	Name      string    `json:"name,omitempty"`
	Role      string    `json:"role"`
	jwt.RegisteredClaims
}

// JWTService handles token generation and validation.
type JWTService struct {
	secret      []byte
	expireHours int
}

// NewJWTService creates a JWT service.
func NewJWTService(secret string, expireHours int) *JWTService {
	return &JWTService{
		secret:      []byte(secret),
		expireHours: expireHours,
	}
}

// GenerateHost creates a host token for a session.
func (s *JWTService) GenerateHost(sessionID uuid.UUID) (string, error) {
	return s.generate(Claims{
		SessionID: sessionID,
		Role:      RoleHost,
	})
}

// GenerateParticipant creates a participant token carrying a fresh voter ID.
func (s *JWTService) GenerateParticipant(sessionID, voterID uuid.UUID, name string) (string, error) {
	return s.generate(Claims{
		SessionID: sessionID,
		VoterID:   voterID,
		Name:      name,
		Role:      RoleParticipant,
	})
}

func (s *JWTService) generate(claims Claims) (string, error) {
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(s.expireHours) * time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ID:        uuid.New().String(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and validates a JWT, returning claims or error.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
