// Package cmd provides the tfapi command tree.
// This file builds the shared runtime (AWS clients, registry store, state
// syncer, sweeper and service) that serve, cleanup and buckets use.
package cmd

import (
	"context"
	"fmt"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.uber.org/zap"

	tfaws "github.com/SpiceLabsHQ/tfapi/internal/aws"
	"github.com/SpiceLabsHQ/tfapi/internal/blobstore"
	"github.com/SpiceLabsHQ/tfapi/internal/config"
	"github.com/SpiceLabsHQ/tfapi/internal/identity"
	"github.com/SpiceLabsHQ/tfapi/internal/logging"
	"github.com/SpiceLabsHQ/tfapi/internal/metrics"
	"github.com/SpiceLabsHQ/tfapi/internal/provision"
	"github.com/SpiceLabsHQ/tfapi/internal/registry"
	"github.com/SpiceLabsHQ/tfapi/internal/statesync"
	"github.com/SpiceLabsHQ/tfapi/internal/sweep"
	"github.com/SpiceLabsHQ/tfapi/internal/terraform"
)

// awsClients holds the SDK clients a command needs. Tests inject fakes.
type awsClients struct {
	s3  tfaws.S3API
	sts identity.STSClient
}

// loadAWSClients loads the default SDK config for the configured region.
// Retries are disabled: one failed call is final for the request that made
// it. Every HTTP call is bounded by the configured AWS timeout.
func loadAWSClients(ctx context.Context, cfg *config.Config) (*awsClients, error) {
	opts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Region),
		awscfg.WithRetryMaxAttempts(1),
	}
	if cfg.AWSTimeout > 0 {
		opts = append(opts, awscfg.WithHTTPClient(awshttp.NewBuildableClient().WithTimeout(cfg.AWSTimeout)))
	}
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &awsClients{
		s3:  s3.NewFromConfig(awsCfg),
		sts: sts.NewFromConfig(awsCfg),
	}, nil
}

// app is the wired runtime.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	metrics  *metrics.Metrics
	blob     *blobstore.Client
	store    registry.Store
	registry *registry.Registry
	sweeper  *sweep.Sweeper
	service  *provision.Service
	auditor  logging.Auditor
}

// newApp wires every component from cfg and the given clients. The owner
// lookup is best effort: buckets are still created untagged by owner when
// STS is unavailable.
func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger, clients *awsClients) (*app, error) {
	m := metrics.New()
	blob := blobstore.New(clients.s3, cfg.Region, blobstore.WithLogger(log), blobstore.WithMetrics(m))

	store, err := openStore(cfg.RegistryPath)
	if err != nil {
		return nil, err
	}

	regOpts := []registry.Option{registry.WithLogger(log), registry.WithMetrics(m)}
	if clients.sts != nil {
		owner, err := identity.NewResolver(clients.sts).Resolve(ctx)
		if err != nil {
			log.Warn("caller identity unavailable, buckets will not carry owner tags", zap.Error(err))
		} else {
			regOpts = append(regOpts, registry.WithOwner(owner))
		}
	}
	reg := registry.New(blob, store, regOpts...)
	reg.Sync(ctx)

	auditor, err := logging.NewAuditLogger(cfg.AuditLog)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	sw := sweep.New(blob, reg,
		sweep.WithConcurrency(cfg.SweepConcurrency),
		sweep.WithLogger(log),
		sweep.WithMetrics(m),
	)

	runner := terraform.NewRunner(cfg.TerraformPath,
		terraform.WithBinary(cfg.TerraformBin),
		terraform.WithTimeout(cfg.TerraformTimeout),
		terraform.WithLogger(log),
		terraform.WithMetrics(m),
	)

	svc := provision.New(provision.Deps{
		Runner:             runner,
		Syncer:             statesync.New(blob, cfg.TerraformPath, "", log),
		Registry:           reg,
		Sweeper:            sw,
		Buckets:            blob,
		Detector:           terraform.NewChainDetector(log, terraform.NewOutputDetector(runner), terraform.ScrapeDetector{}),
		Auditor:            auditor,
		Log:                log,
		DefaultEnvironment: cfg.DefaultEnvironment,
		DestroySweep:       cfg.DestroySweep,
	})

	return &app{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		blob:     blob,
		store:    store,
		registry: reg,
		sweeper:  sw,
		service:  svc,
		auditor:  auditor,
	}, nil
}

// openStore opens the SQLite registry at path, or an in-memory registry
// when path is empty.
func openStore(path string) (registry.Store, error) {
	if path == "" {
		return registry.NewMemoryStore(), nil
	}
	store, err := registry.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("open registry %s: %w", path, err)
	}
	return store, nil
}

// Close releases the registry store and the audit log.
func (a *app) Close() {
	if err := a.auditor.Close(); err != nil {
		a.log.Warn("close audit log failed", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("close registry failed", zap.Error(err))
	}
}
