package auth

import (
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"
)

func buildAdminToken(t *testing.T, issuer string, notBefore, expiry time.Time) jwt.Token {
	t.Helper()
	token, err := jwt.NewBuilder().
		Issuer(issuer).
		Audience([]string{"gessync-admin"}).
		Subject("ops").
		IssuedAt(notBefore).
		NotBefore(notBefore).
		Expiration(expiry).
		Build()
	require.NoError(t, err)
	return token
}

func adminPolicy(skew time.Duration) claimsPolicy {
	return claimsPolicy{issuer: "gessync", audience: "gessync-admin", clockSkew: skew, algorithm: jwa.HS256}
}

func TestClaimsAcceptWellFormedToken(t *testing.T) {
	now := time.Now()
	token := buildAdminToken(t, "gessync", now, now.Add(time.Minute))
	require.NoError(t, adminPolicy(time.Second).verify(token, jwa.HS256, now))
}

func TestClaimsRejectWrongIssuer(t *testing.T) {
	now := time.Now()
	token := buildAdminToken(t, "someone-else", now, now.Add(time.Minute))
	require.Error(t, adminPolicy(0).verify(token, jwa.HS256, now))
}

func TestClaimsRejectExpiredToken(t *testing.T) {
	now := time.Now()
	token := buildAdminToken(t, "gessync", now.Add(-2*time.Hour), now.Add(-time.Minute))
	require.Error(t, adminPolicy(0).verify(token, jwa.HS256, now))
}

func TestClaimsRejectTokenNotYetValid(t *testing.T) {
	now := time.Now()
	token := buildAdminToken(t, "gessync", now.Add(5*time.Minute), now.Add(10*time.Minute))
	require.Error(t, adminPolicy(time.Second).verify(token, jwa.HS256, now))
}

func TestClaimsRejectAlgorithmMismatch(t *testing.T) {
	now := time.Now()
	token := buildAdminToken(t, "gessync", now, now.Add(time.Minute))
	require.Error(t, adminPolicy(0).verify(token, jwa.RS256, now))
}
