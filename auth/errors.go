package auth

import "github.com/ceyewan/meshd/xerrors"

var (
	ErrInvalidCredentials = xerrors.Wrap(xerrors.ErrUnauthorized, "auth: invalid credentials")
	ErrMissingToken       = xerrors.Wrap(xerrors.ErrUnauthorized, "auth: missing token")
	ErrInvalidToken       = xerrors.Wrap(xerrors.ErrUnauthorized, "auth: invalid token")
	ErrExpiredToken       = xerrors.Wrap(xerrors.ErrUnauthorized, "auth: token expired")
	ErrServiceMismatch    = xerrors.Wrap(xerrors.ErrUnauthorized, "auth: token subject does not match service")
	ErrInvalidConfig      = xerrors.Wrap(xerrors.ErrInvalidInput, "auth: invalid config")
)

// IsUnauthorized 判断错误是否属于认证失败
func IsUnauthorized(err error) bool {
	return xerrors.Is(err, xerrors.ErrUnauthorized)
}
