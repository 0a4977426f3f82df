package token

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claim is a single (name, value) assertion about the subject.
type Claim struct {
	Name  string
	Value string
}

// ClaimSet is an append-only, ordered collection of claims. Duplicate names
// are legal: the set is the union of configuration claims, user-stored claims
// and one roles claim per role, and none of those sources deduplicate.
type ClaimSet struct {
	pairs []Claim
}

func (s *ClaimSet) Add(name, value string) {
	s.pairs = append(s.pairs, Claim{Name: name, Value: value})
}

func (s *ClaimSet) Pairs() []Claim {
	return s.pairs
}

// First returns the first value recorded under name, or "".
func (s *ClaimSet) First(name string) string {
	for _, c := range s.pairs {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// Values returns every value recorded under name, in insertion order.
func (s *ClaimSet) Values(name string) []string {
	var out []string
	for _, c := range s.pairs {
		if c.Name == name {
			out = append(out, c.Value)
		}
	}
	return out
}

// AccessClaims is the payload of an access token: registered claims plus the
// ordered ClaimSet. It marshals to a standard compact-JWT payload; claims
// sharing a name collapse into a JSON array in insertion order, so duplicates
// survive the wire format.
type AccessClaims struct {
	Issuer    string
	Audience  string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Set       ClaimSet
}

func (c AccessClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(c.ExpiresAt), nil
}

func (c AccessClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(c.IssuedAt), nil
}

func (c AccessClaims) GetNotBefore() (*jwt.NumericDate, error) {
	return nil, nil
}

func (c AccessClaims) GetIssuer() (string, error) {
	return c.Issuer, nil
}

func (c AccessClaims) GetSubject() (string, error) {
	return c.Set.First("sub"), nil
}

func (c AccessClaims) GetAudience() (jwt.ClaimStrings, error) {
	return jwt.ClaimStrings{c.Audience}, nil
}

// MarshalJSON writes iss, aud, exp, iat and then the ClaimSet. Key order is
// first appearance; repeated names become arrays.
func (c AccessClaims) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, len(c.Set.pairs))
	grouped := make(map[string][]string, len(c.Set.pairs))
	for _, p := range c.Set.pairs {
		if _, seen := grouped[p.Name]; !seen {
			names = append(names, p.Name)
		}
		grouped[p.Name] = append(grouped[p.Name], p.Value)
	}

	var buf bytes.Buffer
	buf.WriteByte('{')

	writeField := func(name string, value any) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return err
		}
		v, err := json.Marshal(value)
		if err != nil {
			return err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
		return nil
	}

	if err := writeField("iss", c.Issuer); err != nil {
		return nil, err
	}
	if err := writeField("aud", c.Audience); err != nil {
		return nil, err
	}
	if err := writeField("exp", c.ExpiresAt.Unix()); err != nil {
		return nil, err
	}
	if err := writeField("iat", c.IssuedAt.Unix()); err != nil {
		return nil, err
	}
	for _, name := range names {
		values := grouped[name]
		if len(values) == 1 {
			if err := writeField(name, values[0]); err != nil {
				return nil, err
			}
			continue
		}
		if err := writeField(name, values); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
