package auth

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ceyewan/meshd/xerrors"
)

// Config 认证配置
//
//	auth:
//	  mode: shared_secret   # shared_secret | jwt | any
//	  secret: ""            # 为空时启动时生成
//	  jwt:
//	    secret_key: "至少 32 字符"
//	    issuer: meshd
//	    token_ttl: 720h
type Config struct {
	Mode   string    `mapstructure:"mode"`
	Secret string    `mapstructure:"secret"`
	JWT    JWTConfig `mapstructure:"jwt"`
}

// JWTConfig 按服务签发令牌的配置
type JWTConfig struct {
	SecretKey     string        `mapstructure:"secret_key"`     // 签名密钥（至少 32 字符）
	SigningMethod string        `mapstructure:"signing_method"` // 目前只支持 HS256
	Issuer        string        `mapstructure:"issuer"`
	Audience      []string      `mapstructure:"audience"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"` // 默认 720h
}

func (c *Config) setDefaults() error {
	if c.Mode == "" {
		c.Mode = ModeSharedSecret
	}
	if c.Mode != ModeJWT && c.Secret == "" {
		secret, err := GenerateSecret()
		if err != nil {
			return err
		}
		c.Secret = secret
	}
	if c.Mode != ModeSharedSecret {
		c.JWT.setDefaults()
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Mode {
	case ModeSharedSecret:
		return nil
	case ModeJWT, ModeAny:
		return c.JWT.validate()
	default:
		return xerrors.Wrapf(ErrInvalidConfig, "unknown mode %q", c.Mode)
	}
}

func (c *JWTConfig) setDefaults() {
	if c.SigningMethod == "" {
		c.SigningMethod = jwt.SigningMethodHS256.Alg()
	}
	if c.Issuer == "" {
		c.Issuer = "meshd"
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = 720 * time.Hour
	}
}

func (c *JWTConfig) validate() error {
	if c.SecretKey == "" {
		return xerrors.Wrap(ErrInvalidConfig, "secret_key is required")
	}
	if len(c.SecretKey) < 32 {
		return xerrors.Wrap(ErrInvalidConfig, "secret_key must be at least 32 characters")
	}
	if c.SigningMethod != jwt.SigningMethodHS256.Alg() {
		return xerrors.Wrapf(ErrInvalidConfig, "unsupported signing_method: %s", c.SigningMethod)
	}
	if c.TokenTTL <= 0 {
		return xerrors.Wrap(ErrInvalidConfig, "token_ttl must be positive")
	}
	return nil
}

// GenerateSecret 生成 32 字节随机共享密钥，十六进制编码
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", xerrors.Wrap(err, "auth: generate secret")
	}
	return hex.EncodeToString(buf), nil
}
