// Package network declares the virtual network every other descriptor is
// placed into. A network is either provisioned by the template or looked
// up from the provider. Both variants satisfy Network, so consumers do not
// care which one they got.
package network

import (
	"errors"
	"fmt"

	"github.com/hogwarts-cloud/ecsstack/internal/models"
	"github.com/hogwarts-cloud/ecsstack/internal/naming"
	"github.com/samber/lo"
)

var ErrEmptySubnetGroup = errors.New("subnet group selects no subnets")

type Network interface {
	StackName() string
	VPC() models.VPC
	TenantDatabaseSecurityGroup() models.SecurityGroup

	PublicTenantSubnets() []models.Subnet
	PrivateTenantSubnets() []models.Subnet
	PublicInfraSubnets() []models.Subnet
	PrivateInfraSubnets() []models.Subnet
}

// selector resolves subnet groups by name. A group name that matches no
// subnet selects nothing.
type selector struct {
	stackName string
	vpc       models.VPC
}

func (s *selector) StackName() string {
	return s.stackName
}

func (s *selector) VPC() models.VPC {
	return s.vpc
}

func (s *selector) PublicTenantSubnets() []models.Subnet {
	return s.selectByName(naming.SubnetGroupName(s.stackName, naming.TenantPublic))
}

func (s *selector) PrivateTenantSubnets() []models.Subnet {
	return s.selectByName(naming.SubnetGroupName(s.stackName, naming.TenantPrivate))
}

func (s *selector) PublicInfraSubnets() []models.Subnet {
	return s.selectByName(naming.SubnetGroupName(s.stackName, naming.InfraPublic))
}

func (s *selector) PrivateInfraSubnets() []models.Subnet {
	return s.selectByName(naming.SubnetGroupName(s.stackName, naming.InfraPrivate))
}

func (s *selector) selectByName(name string) []models.Subnet {
	return lo.Filter(s.vpc.Subnets, func(subnet models.Subnet, _ int) bool {
		return subnet.Group == name
	})
}

func SelectSubnets(n Network, group naming.SubnetGroup) []models.Subnet {
	switch group {
	case naming.InfraPublic:
		return n.PublicInfraSubnets()
	case naming.InfraPrivate:
		return n.PrivateInfraSubnets()
	case naming.TenantPublic:
		return n.PublicTenantSubnets()
	case naming.TenantPrivate:
		return n.PrivateTenantSubnets()
	}
	return nil
}

// RequireSubnets is SelectSubnets for callers that cannot work with an
// empty group.
func RequireSubnets(n Network, group naming.SubnetGroup) ([]models.Subnet, error) {
	subnets := SelectSubnets(n, group)
	if len(subnets) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptySubnetGroup, naming.SubnetGroupName(n.StackName(), group))
	}
	return subnets, nil
}

// Validate checks that every subnet group of the network selects subnets.
func Validate(n Network) error {
	var errs []error
	for _, group := range naming.SubnetGroups() {
		if _, err := RequireSubnets(n, group); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
