package main

import (
	"context"
	"fmt"

	"github.com/blox-verify/internal/config"
	"github.com/blox-verify/internal/domain"
	"github.com/blox-verify/internal/infrastructure/dynamo"
	"github.com/blox-verify/internal/infrastructure/filestore"
	"github.com/blox-verify/internal/infrastructure/postgres"
)

type stores struct {
	verifications domain.VerificationStore
	submissions   domain.SubmissionStore
	close         func()
}

// openStores connects the backend named by STORE_BACKEND.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return nil, err
		}
		return &stores{
			verifications: postgres.NewVerificationStore(pool),
			submissions:   postgres.NewSubmissionStore(pool),
			close:         pool.Close,
		}, nil

	case config.BackendDynamo:
		client, err := dynamo.NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &stores{
			verifications: dynamo.NewVerificationRepo(client, cfg.DynamoTables.Verifications),
			submissions:   dynamo.NewSubmissionRepo(client, cfg.DynamoTables.Submissions),
			close:         func() {},
		}, nil

	case config.BackendFile:
		v, err := filestore.NewVerificationStore(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		s, err := filestore.NewSubmissionStore(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		return &stores{verifications: v, submissions: s, close: func() {}}, nil
	}
	return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
}
