// Package auth 校验接入 mesh 的 worker 身份。
//
// Authenticator 只关心一件事：给定握手凭证，返回身份或错误。路由逻辑只依赖该接口，
// 因此共享密钥可以被签名令牌替换而无需改动 mesh。
//
// 内置实现：
//   - SharedSecret：进程级共享密钥，常量时间比较（默认）
//   - JWT：按服务签发的 HS256 令牌，subject 必须等于握手声明的服务名
//   - Any：依次尝试多个实现，任一通过即可
//
// 基本使用：
//
//	a, _ := auth.New(&auth.Config{Mode: auth.ModeSharedSecret, Secret: secret})
//	id, err := a.Verify(ctx, auth.Credentials{Token: token, Service: "billing"})
package auth

import (
	"context"
	"time"

	"github.com/ceyewan/meshd/xerrors"
)

// Credentials 握手时提交的凭证
type Credentials struct {
	Token   string
	Service string
	Host    string
	Port    int
}

// Identity 校验通过后的身份
type Identity struct {
	// Service 经过确认的服务名
	Service string
	// Method 校验方式：shared_secret | jwt
	Method string
	// Roles 仅 JWT 携带
	Roles []string
	// ExpiresAt 令牌过期时间，共享密钥为零值
	ExpiresAt time.Time
}

// HasRole 判断身份是否带有指定角色
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Authenticator 身份校验接口
type Authenticator interface {
	Verify(ctx context.Context, cred Credentials) (*Identity, error)
}

// TokenAuthenticator 可以签发令牌的 Authenticator
type TokenAuthenticator interface {
	Authenticator

	// Issue 为服务签发令牌
	Issue(ctx context.Context, service string, roles ...string) (string, error)
}

const (
	ModeSharedSecret = "shared_secret"
	ModeJWT          = "jwt"
	ModeAny          = "any"

	methodSharedSecret = "shared_secret"
	methodJWT          = "jwt"
)

// New 按 Config.Mode 创建 Authenticator
//
// 共享密钥为空时会生成一个随机密钥并回写到 cfg.Secret，调用方负责分发。
func New(cfg *Config, opts ...Option) (Authenticator, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	switch cfg.Mode {
	case ModeSharedSecret:
		return NewSharedSecret(cfg.Secret, opts...)
	case ModeJWT:
		return NewJWT(&cfg.JWT, opts...)
	case ModeAny:
		shared, err := NewSharedSecret(cfg.Secret, opts...)
		if err != nil {
			return nil, err
		}
		jwtAuth, err := NewJWT(&cfg.JWT, opts...)
		if err != nil {
			return nil, err
		}
		return Any(shared, jwtAuth), nil
	default:
		return nil, xerrors.Wrapf(ErrInvalidConfig, "unknown mode %q", cfg.Mode)
	}
}

// anyOf 依次尝试，全部失败时返回最后一个错误
type anyOf []Authenticator

// Any 组合多个 Authenticator
func Any(auths ...Authenticator) Authenticator {
	return anyOf(auths)
}

func (a anyOf) Verify(ctx context.Context, cred Credentials) (*Identity, error) {
	err := error(ErrInvalidCredentials)
	for _, auth := range a {
		id, verr := auth.Verify(ctx, cred)
		if verr == nil {
			return id, nil
		}
		err = verr
	}
	return nil, err
}
