package main

import (
	"context"

	"github.com/ceyewan/meshd/auth"
	"github.com/ceyewan/meshd/xerrors"
)

func mintToken(ctx context.Context, cfg *AppConfig, service string, roles []string) (string, error) {
	if cfg.Auth.Mode == auth.ModeSharedSecret {
		return "", xerrors.Wrap(xerrors.ErrInvalidInput, "auth.mode is shared_secret, tokens require jwt or any")
	}
	issuer, err := auth.NewJWT(&cfg.Auth.JWT)
	if err != nil {
		return "", xerrors.Wrap(err, "create jwt issuer")
	}
	return issuer.Issue(ctx, service, roles...)
}
