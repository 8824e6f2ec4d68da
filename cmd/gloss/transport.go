package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperengineering/gloss"
	"github.com/hyperengineering/gloss/internal/cloud"
	"github.com/hyperengineering/gloss/internal/cloud/pgstore"
	"github.com/hyperengineering/gloss/internal/cloud/postgrest"
)

// newTransport picks the row API or a direct Postgres connection. The
// returned func releases whatever the transport holds open.
func newTransport(ctx context.Context, cfg gloss.Config, logger *gloss.Logger) (cloud.Transport, func(), error) {
	if cfg.CloudDSN != "" {
		s, err := pgstore.Open(ctx, cfg.CloudDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect cloud store: %w", err)
		}
		return s, s.Close, nil
	}

	opts := []postgrest.Option{
		postgrest.WithTimeout(cfg.SyncTimeout),
		postgrest.WithLogger(logger.Component("postgrest")),
	}
	if cfg.AccessToken != "" {
		opts = append(opts, postgrest.WithAccessToken(cfg.AccessToken))
	}
	return postgrest.New(cfg.CloudURL, cfg.CloudAPIKey, opts...), func() {}, nil
}

func isField(err error, field string) bool {
	var ve *gloss.ValidationError
	return errors.As(err, &ve) && ve.Field == field
}
