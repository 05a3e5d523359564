package lookup

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/hogwarts-cloud/ecsstack/internal/models"
	"golang.org/x/sync/errgroup"
)

const MaxConcurrentRequests = 3

type Provider interface {
	LookupVPC(ctx context.Context, vpcID string) (models.VPC, error)
	LookupSecurityGroup(ctx context.Context, vpcID, groupName string) (models.SecurityGroup, error)
}

type Resolver struct {
	provider Provider
	log      logr.Logger
}

// Resolve queries the provider for every missing value of the context.
func (r *Resolver) Resolve(ctx context.Context, lookups *Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(MaxConcurrentRequests)

	for _, query := range lookups.Missing() {
		query := query

		eg.Go(func() error { return r.resolve(ctx, lookups, query) })
	}

	return eg.Wait()
}

func (r *Resolver) resolve(ctx context.Context, lookups *Context, query Query) error {
	r.log.V(1).Info("resolving context", "key", query.Key())

	var (
		value any
		err   error
	)

	switch query.Provider {
	case VPCProvider:
		value, err = r.provider.LookupVPC(ctx, query.VPCID)
	case SecurityGroupProvider:
		value, err = r.provider.LookupSecurityGroup(ctx, query.VPCID, query.GroupName)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownProvider, query.Provider)
	}
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", query.Key(), err)
	}

	if err := lookups.Set(query, value); err != nil {
		return fmt.Errorf("failed to store %s: %w", query.Key(), err)
	}

	r.log.Info("resolved context", "key", query.Key())

	return nil
}

func NewResolver(provider Provider, log logr.Logger) *Resolver {
	return &Resolver{provider: provider, log: log}
}
