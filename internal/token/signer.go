package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/chalarca/jwtauth/internal/models"
)

// Signer builds and signs access tokens. The key is validated at startup by
// config.Validate; Signer assumes it is usable for HMAC-SHA-256.
type Signer struct {
	Key      []byte
	Issuer   string
	Audience string
	TTL      time.Duration

	// Now is overridable in tests, nil means time.Now.
	Now func() time.Time
}

func (s *Signer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Issue signs an access token for user. The claim set is the ordered union
// of the registered subject claims, the user's stored claims and one roles
// claim per role. Pure construction: nothing is persisted.
func (s *Signer) Issue(user *models.User, extraClaims []models.UserClaim, roles []string, clientIP string) (string, error) {
	var set ClaimSet
	set.Add("sub", user.Username)
	set.Add("jti", uuid.NewString())
	set.Add("email", user.Email)
	set.Add("uid", user.ID)
	set.Add("ip", clientIP)
	for _, c := range extraClaims {
		set.Add(c.Name, c.Value)
	}
	for _, r := range roles {
		set.Add("roles", r)
	}

	now := s.now()
	claims := AccessClaims{
		Issuer:    s.Issuer,
		Audience:  s.Audience,
		ExpiresAt: now.Add(s.TTL),
		IssuedAt:  now,
		Set:       set,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Key)
}
