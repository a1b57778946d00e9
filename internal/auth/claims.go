package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// claimsPolicy pins what an admin token must carry to be accepted. Zero-value
// fields disable their check, which tests rely on.
type claimsPolicy struct {
	issuer    string
	audience  string
	clockSkew time.Duration
	algorithm jwa.SignatureAlgorithm
}

// verify checks the signing algorithm and then the registered claims against
// the supplied clock. The algorithm is checked here, not at parse time, so a
// token signed with an unexpected algorithm fails loudly instead of slipping
// through a permissive parse.
func (p claimsPolicy) verify(tok jwt.Token, algorithm jwa.SignatureAlgorithm, now time.Time) error {
	if tok == nil {
		return errors.New("auth: token is nil")
	}
	if algorithm == "" {
		return errors.New("auth: token missing algorithm")
	}
	if p.algorithm != "" && algorithm != p.algorithm {
		return fmt.Errorf("auth: unexpected token algorithm %s", algorithm)
	}
	return jwt.Validate(tok, p.validateOptions(now)...)
}

func (p claimsPolicy) validateOptions(now time.Time) []jwt.ValidateOption {
	opts := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
	}
	if p.clockSkew > 0 {
		opts = append(opts, jwt.WithAcceptableSkew(p.clockSkew))
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}
	if p.audience != "" {
		opts = append(opts, jwt.WithAudience(p.audience))
	}
	return opts
}
