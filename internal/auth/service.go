package auth

import (
	"context"
	"errors"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/common"
)

// Service issues and verifies the HS256 bearer tokens used by the admin API.
type Service struct {
	Secret   []byte
	Issuer   string
	Audience string
	TokenTTL time.Duration
	policy   claimsPolicy
}

// NewService builds a Service whose claim checks mirror its signing parameters.
func NewService(secret []byte, issuer, audience string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{
		Secret:   secret,
		Issuer:   issuer,
		Audience: audience,
		TokenTTL: ttl,
		policy: claimsPolicy{
			issuer:    issuer,
			audience:  audience,
			clockSkew: 30 * time.Second,
			algorithm: jwa.HS256,
		},
	}
}

// IssueToken mints a signed token for the given subject.
func (s *Service) IssueToken(subject string) (string, error) {
	if len(s.Secret) == 0 {
		return "", errors.New("auth: signing secret not configured")
	}
	now := time.Now()
	builder := jwt.NewBuilder().
		Subject(subject).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(s.TokenTTL))
	if s.Issuer != "" {
		builder = builder.Issuer(s.Issuer)
	}
	if s.Audience != "" {
		builder = builder.Audience([]string{s.Audience})
	}
	tok, err := builder.Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, s.Secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

// ParseAccessToken verifies the signature and claims of a bearer token and
// returns the subject.
func (s *Service) ParseAccessToken(raw string) (string, error) {
	if len(s.Secret) == 0 {
		return "", errors.New("auth: signing secret not configured")
	}
	tok, err := jwt.Parse([]byte(raw), jwt.WithKey(jwa.HS256, s.Secret), jwt.WithValidate(false))
	if err != nil {
		return "", &common.AppError{Code: common.CodeUnauthorized, Message: "invalid token", HTTPStatus: 401, Err: err}
	}
	if err := s.policy.verify(tok, jwa.HS256, time.Now()); err != nil {
		return "", &common.AppError{Code: common.CodeUnauthorized, Message: "invalid token", HTTPStatus: 401, Err: err}
	}
	sub := tok.Subject()
	if sub == "" {
		return "", &common.AppError{Code: common.CodeUnauthorized, Message: "token missing subject", HTTPStatus: 401}
	}
	return sub, nil
}

type subjectKey struct{}

// WithSubject stores the authenticated subject on the context.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFrom returns the authenticated subject, if any.
func SubjectFrom(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(subjectKey{}).(string)
	return sub, ok && sub != ""
}
