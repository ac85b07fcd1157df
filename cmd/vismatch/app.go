package main

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/spf13/cobra"

	"github.com/lostboard/vismatch"
	"github.com/lostboard/vismatch/board"
	"github.com/lostboard/vismatch/config"
	"github.com/lostboard/vismatch/itemstore"
	"github.com/lostboard/vismatch/itemstore/dynamo"
	"github.com/lostboard/vismatch/itemstore/sqlstore"
)

// app bundles what the commands share.
type app struct {
	cfg     *config.Config
	matcher *vismatch.Matcher
	store   itemstore.Store
	board   *board.Service
}

func newApp(ctx context.Context, withStore bool, optFns ...vismatch.Option) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	m, err := vismatch.FromConfig(ctx, cfg, optFns...)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, matcher: m}
	if !withStore {
		return a, nil
	}

	a.store, err = openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.board = board.New(m, a.store)
	return a, nil
}

func (a *app) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (itemstore.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return itemstore.NewMemoryStore(), nil
	case "sqlite":
		return sqlstore.Open(ctx, sqlstore.SQLite, cfg.Store.DSN)
	case "postgres":
		return sqlstore.Open(ctx, sqlstore.Postgres, cfg.Store.DSN)
	case "dynamodb":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return dynamo.NewStore(dynamodb.NewFromConfig(awsCfg), cfg.Store.DynamoTable), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func withApp(withStore bool, run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), withStore)
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd, a, args)
	}
}
