// Package composer builds the whole deployment: network, cluster, service
// and gateway, each fed from the one before.
package composer

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/hogwarts-cloud/ecsstack/config"
	"github.com/hogwarts-cloud/ecsstack/internal/cluster"
	"github.com/hogwarts-cloud/ecsstack/internal/gateway"
	"github.com/hogwarts-cloud/ecsstack/internal/lookup"
	"github.com/hogwarts-cloud/ecsstack/internal/network"
	"github.com/hogwarts-cloud/ecsstack/internal/service"
	"github.com/hogwarts-cloud/ecsstack/internal/stack"
	"github.com/samber/lo"
)

const (
	NetworkID = "Network"
	ClusterID = "Cluster"
	ServiceID = "Service"
	GatewayID = "Gateway"
)

type Resolver interface {
	Resolve(ctx context.Context, lookups *lookup.Context) error
}

type Options struct {
	Lookups *lookup.Context
	// Resolver is asked for missing lookups. Without one, missing lookups
	// fail the synthesis.
	Resolver Resolver
	// Strict fails when a subnet group of the network selects no subnets.
	Strict bool
	Logger logr.Logger
}

type Result struct {
	Stack   *stack.Stack
	Network network.Network
	Cluster *cluster.Cluster
	Service *service.Service
	Gateway *gateway.Gateway
}

// Build declares every descriptor of the deployment into a new stack.
// Lookups the context cannot answer are recorded as missing.
func Build(cfg config.Config, lookups *lookup.Context, log logr.Logger) (*Result, error) {
	s := stack.New(cfg.StackName, stack.Props{
		Region:      cfg.Region,
		Description: fmt.Sprintf("%s: network, ECS cluster, load balanced Fargate service and API gateway", cfg.StackName),
		Lookups:     lookups,
		Logger:      log,
	})

	n, err := buildNetwork(s, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build network: %w", err)
	}

	c, err := cluster.New(s, ClusterID, cluster.Props{
		Network:           n,
		ClusterName:       cfg.Cluster.Name,
		ContainerInsights: cfg.Cluster.ContainerInsights,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build cluster: %w", err)
	}

	image, err := service.ParseImage(cfg.Service.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to parse image: %w", err)
	}

	svc, err := service.New(s, ServiceID, service.Props{
		Cluster:            c,
		Image:              image,
		PublicLoadBalancer: cfg.Service.PublicLoadBalancer,
		Port:               cfg.Service.Port,
		CPU:                cfg.Service.CPU,
		Memory:             cfg.Service.Memory,
		DesiredCount:       cfg.Service.DesiredCount,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build service: %w", err)
	}

	gw, err := gateway.New(s, GatewayID, gateway.Props{
		LoadBalancer: svc.LoadBalancer(),
		RestAPIName:  cfg.Gateway.RestAPIName,
		Description:  cfg.Gateway.Description,
		StageName:    cfg.Gateway.StageName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway: %w", err)
	}

	return &Result{Stack: s, Network: n, Cluster: c, Service: svc, Gateway: gw}, nil
}

func buildNetwork(s *stack.Stack, cfg config.Config) (network.Network, error) {
	if cfg.Network.VPCID != "" {
		lookedUp, err := network.FromVPCID(s, NetworkID, cfg.StackName, cfg.Network.VPCID)
		if err != nil {
			return nil, err
		}
		return lookedUp, nil
	}

	provisioned, err := network.New(s, NetworkID, network.Props{
		StackName:         cfg.StackName,
		CIDR:              cfg.Network.CIDR,
		AvailabilityZones: cfg.AvailabilityZones,
		MaxAZs:            cfg.Network.MaxAZs,
	})
	if err != nil {
		return nil, err
	}
	return provisioned, nil
}

// Synthesize builds the deployment, resolves missing lookups once through
// the resolver and builds again with the resolved values.
func Synthesize(ctx context.Context, cfg config.Config, opts Options) (*Result, error) {
	lookups := opts.Lookups
	if lookups == nil {
		lookups = lookup.NewContext()
	}

	result, err := Build(cfg, lookups, opts.Logger)
	if err != nil {
		return nil, err
	}

	if missing := lookups.Missing(); len(missing) > 0 {
		if opts.Resolver == nil {
			return nil, missingError(missing)
		}

		opts.Logger.Info("resolving missing context", "count", len(missing))

		if err := opts.Resolver.Resolve(ctx, lookups); err != nil {
			return nil, fmt.Errorf("failed to resolve context: %w", err)
		}

		lookups.ResetMissing()

		result, err = Build(cfg, lookups, opts.Logger)
		if err != nil {
			return nil, err
		}

		if missing := lookups.Missing(); len(missing) > 0 {
			return nil, missingError(missing)
		}
	}

	if opts.Strict {
		if err := network.Validate(result.Network); err != nil {
			return nil, fmt.Errorf("failed to validate network: %w", err)
		}
	}

	return result, nil
}

func missingError(missing []lookup.Query) error {
	keys := lo.Map(missing, func(query lookup.Query, _ int) string { return query.Key() })
	return fmt.Errorf("%w: %v", lookup.ErrMissingContext, keys)
}
