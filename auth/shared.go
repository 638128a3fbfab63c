package auth

import (
	"context"
	"crypto/subtle"

	"github.com/ceyewan/meshd/clog"
)

// sharedSecret 进程级共享密钥校验
type sharedSecret struct {
	secret  []byte
	logger  clog.Logger
	counter verifyCounter
}

// NewSharedSecret 创建共享密钥 Authenticator
func NewSharedSecret(secret string, opts ...Option) (Authenticator, error) {
	if secret == "" {
		return nil, ErrInvalidConfig
	}
	o := applyOptions(opts)
	return &sharedSecret{
		secret:  []byte(secret),
		logger:  o.logger,
		counter: newVerifyCounter(o.meter),
	}, nil
}

func (s *sharedSecret) Verify(ctx context.Context, cred Credentials) (*Identity, error) {
	var err error
	switch {
	case cred.Token == "":
		err = ErrMissingToken
	case subtle.ConstantTimeCompare([]byte(cred.Token), s.secret) != 1:
		err = ErrInvalidCredentials
	}
	s.counter.observe(ctx, methodSharedSecret, err)
	if err != nil {
		s.logger.Debug("shared secret rejected", clog.String("service", cred.Service))
		return nil, err
	}
	return &Identity{Service: cred.Service, Method: methodSharedSecret}, nil
}
