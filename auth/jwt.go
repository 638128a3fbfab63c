package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ceyewan/meshd/clog"
	"github.com/ceyewan/meshd/xerrors"
)

// Claims 服务令牌载荷，Subject 为服务名
type Claims struct {
	jwt.RegisteredClaims

	Roles []string `json:"roles,omitempty"`
}

// jwtAuth 按服务签发和校验 HS256 令牌
type jwtAuth struct {
	cfg     *JWTConfig
	logger  clog.Logger
	counter verifyCounter
	now     func() time.Time
}

// NewJWT 创建 JWT Authenticator
func NewJWT(cfg *JWTConfig, opts ...Option) (TokenAuthenticator, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts)
	return &jwtAuth{
		cfg:     cfg,
		logger:  o.logger,
		counter: newVerifyCounter(o.meter),
		now:     time.Now,
	}, nil
}

func (a *jwtAuth) Issue(_ context.Context, service string, roles ...string) (string, error) {
	if service == "" {
		return "", xerrors.Wrap(ErrInvalidConfig, "service is required")
	}

	now := a.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   service,
			Issuer:    a.cfg.Issuer,
			Audience:  a.cfg.Audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.cfg.TokenTTL)),
		},
		Roles: roles,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.cfg.SecretKey))
	if err != nil {
		return "", xerrors.Wrap(err, "auth: sign token")
	}
	a.logger.Info("token issued",
		clog.String("service", service),
		clog.Time("expires_at", claims.ExpiresAt.Time))
	return token, nil
}

// Verify 校验令牌；Credentials.Service 非空时必须与 subject 一致
func (a *jwtAuth) Verify(ctx context.Context, cred Credentials) (*Identity, error) {
	id, err := a.verify(cred)
	a.counter.observe(ctx, methodJWT, err)
	if err != nil {
		a.logger.Debug("jwt rejected", clog.String("service", cred.Service), clog.Error(err))
		return nil, err
	}
	return id, nil
}

func (a *jwtAuth) verify(cred Credentials) (*Identity, error) {
	if cred.Token == "" {
		return nil, ErrMissingToken
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{a.cfg.SigningMethod}),
		jwt.WithTimeFunc(a.now),
	}
	if a.cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if len(a.cfg.Audience) > 0 {
		parserOpts = append(parserOpts, jwt.WithAudience(a.cfg.Audience[0]))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(cred.Token, claims, func(*jwt.Token) (any, error) {
		return []byte(a.cfg.SecretKey), nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, xerrors.Wrap(ErrInvalidToken, err.Error())
	}

	if cred.Service != "" && claims.Subject != cred.Service {
		return nil, ErrServiceMismatch
	}

	id := &Identity{
		Service: claims.Subject,
		Method:  methodJWT,
		Roles:   claims.Roles,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}
