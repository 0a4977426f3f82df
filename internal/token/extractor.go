package token

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every extraction failure: bad signature, malformed
// token, unexpected algorithm. Callers get no finer detail.
var ErrInvalidToken = errors.New("invalid access token")

// Principal is the identity recovered from a presented access token.
type Principal struct {
	Username string
	Claims   jwt.MapClaims
}

// ExtractExpiredPrincipal verifies the signature of a presented access token
// and decodes its claims while ignoring expiry, issuer and audience. It exists
// for the refresh exchange, which accepts expired-but-authentic tokens. The
// declared algorithm must still be HMAC-SHA-256 (compared case-insensitively):
// a token declaring "none" or an asymmetric algorithm is rejected outright.
func ExtractExpiredPrincipal(tokenStr string, key []byte) (*Principal, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	tok, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		alg, _ := t.Header["alg"].(string)
		if !strings.EqualFold(alg, jwt.SigningMethodHS256.Alg()) {
			return nil, fmt.Errorf("unexpected signing method %q", alg)
		}
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("signing method %q is not HMAC", alg)
		}
		return key, nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrInvalidToken
	}

	return &Principal{Username: sub, Claims: claims}, nil
}
