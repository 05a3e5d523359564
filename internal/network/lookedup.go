package network

import (
	"fmt"

	"github.com/hogwarts-cloud/ecsstack/internal/lookup"
	"github.com/hogwarts-cloud/ecsstack/internal/models"
	"github.com/hogwarts-cloud/ecsstack/internal/naming"
	"github.com/hogwarts-cloud/ecsstack/internal/stack"
)

const dummySecurityGroupID = "sg-12345678"

// LookedUp is a network that already exists at the provider. Values the
// lookup context does not know yet are replaced by placeholders and
// reported as missing; they never fail construction.
type LookedUp struct {
	selector
	securityGroup models.SecurityGroup
	resolved      bool
}

func (l *LookedUp) TenantDatabaseSecurityGroup() models.SecurityGroup {
	return l.securityGroup
}

// Resolved reports whether every value came from the lookup context.
func (l *LookedUp) Resolved() bool {
	return l.resolved
}

func FromVPCID(s *stack.Stack, id, stackName, vpcID string) (*LookedUp, error) {
	log := s.Logger().WithValues("id", id, "vpcId", vpcID)

	l := &LookedUp{
		selector: selector{stackName: stackName},
		resolved: true,
	}

	vpcQuery := lookup.Query{Provider: lookup.VPCProvider, Region: s.Region(), VPCID: vpcID}
	found, err := s.Lookups().Lookup(vpcQuery, &l.vpc)
	if err != nil {
		return nil, fmt.Errorf("failed to look up vpc: %w", err)
	}
	if !found {
		log.Info("vpc not in context, using placeholder", "key", vpcQuery.Key())
		l.vpc = dummyVPC()
		l.resolved = false
	}

	groupName := naming.TenantDatabaseSecurityGroup(stackName)
	sgQuery := lookup.Query{Provider: lookup.SecurityGroupProvider, Region: s.Region(), VPCID: vpcID, GroupName: groupName}
	found, err = s.Lookups().Lookup(sgQuery, &l.securityGroup)
	if err != nil {
		return nil, fmt.Errorf("failed to look up security group: %w", err)
	}
	if !found {
		log.Info("security group not in context, using placeholder", "key", sgQuery.Key())
		l.securityGroup = models.SecurityGroup{ID: dummySecurityGroupID, Name: groupName}
		l.resolved = false
	}

	return l, nil
}

func dummyVPC() models.VPC {
	subnet := func(id, zone, cidr, group string, typ models.SubnetType) models.Subnet {
		return models.Subnet{
			ID:               id,
			AvailabilityZone: zone,
			CIDR:             cidr,
			RouteTableID:     "rtb-" + id,
			Group:            group,
			Type:             typ,
		}
	}

	return models.VPC{
		ID:                "vpc-12345",
		CIDR:              "1.2.3.4/5",
		AvailabilityZones: []string{"dummy1a", "dummy1b"},
		Subnets: []models.Subnet{
			subnet("s-12345", "dummy1a", "1.2.3.4/5", "Public", models.SubnetTypePublic),
			subnet("s-67890", "dummy1b", "1.2.3.4/5", "Public", models.SubnetTypePublic),
			subnet("p-12345", "dummy1a", "1.2.3.4/5", "Private", models.SubnetTypePrivateWithEgress),
			subnet("p-67890", "dummy1b", "1.2.3.4/5", "Private", models.SubnetTypePrivateWithEgress),
		},
	}
}
