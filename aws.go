package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/go-logr/logr"
	"github.com/hogwarts-cloud/ecsstack/config"
	"github.com/hogwarts-cloud/ecsstack/internal/awsec2"
	"github.com/hogwarts-cloud/ecsstack/internal/cfn"
	"github.com/hogwarts-cloud/ecsstack/internal/composer"
	"github.com/hogwarts-cloud/ecsstack/internal/lookup"
)

func loadAWSConfig(ctx context.Context, cfg config.Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	if cfg.AWS.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	if cfg.AWS.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey, ""),
		))
	}

	if cfg.AWS.Endpoint != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.AWS.Endpoint))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return awsCfg, nil
}

func newCloudFormation(awsCfg aws.Config) *cfn.CFN {
	return cfn.NewFromConfig(awsCfg, cfn.DefaultWaitTimeout)
}

var newResolver = func(cfg config.Config, log logr.Logger) composer.Resolver {
	return &awsResolver{cfg: cfg, log: log}
}

// awsResolver loads AWS credentials only when a lookup is actually missing.
type awsResolver struct {
	cfg config.Config
	log logr.Logger
}

func (r *awsResolver) Resolve(ctx context.Context, lookups *lookup.Context) error {
	awsCfg, err := loadAWSConfig(ctx, r.cfg)
	if err != nil {
		return err
	}

	return lookup.NewResolver(awsec2.NewFromConfig(awsCfg), r.log).Resolve(ctx, lookups)
}
