// Package naming derives the provider-side names shared between a
// provisioned network and any later lookup of it. A lookup only finds what
// provisioning created when both sides derive the same strings.
package naming

import (
	"fmt"

	"github.com/hogwarts-cloud/ecsstack/internal/models"
)

type SubnetGroup int

const (
	InfraPublic SubnetGroup = iota
	InfraPrivate
	TenantPublic
	TenantPrivate
)

const (
	UsageTagKey   = "ecsNetworkCluster/subnet-usage"
	UsageInfra    = "infrastructure"
	UsageTenant   = "tenant"
	SubnetNameTag = "ecsstack:subnet-name"
	SubnetTypeTag = "ecsstack:subnet-type"
	CDKSubnetName = "aws-cdk:subnet-name"
	CDKSubnetType = "aws-cdk:subnet-type"
)

// SubnetGroups returns every group in allocation order.
func SubnetGroups() []SubnetGroup {
	return []SubnetGroup{InfraPublic, InfraPrivate, TenantPublic, TenantPrivate}
}

func (g SubnetGroup) Suffix() string {
	switch g {
	case InfraPublic:
		return "InfraPublic"
	case InfraPrivate:
		return "InfraPrivate"
	case TenantPublic:
		return "TenantPublic"
	case TenantPrivate:
		return "TenantPrivate"
	}
	return ""
}

func (g SubnetGroup) String() string {
	return g.Suffix()
}

func (g SubnetGroup) Type() models.SubnetType {
	switch g {
	case InfraPublic, TenantPublic:
		return models.SubnetTypePublic
	default:
		return models.SubnetTypePrivateWithEgress
	}
}

// CIDRMask is the default prefix length of each subnet in the group.
func (g SubnetGroup) CIDRMask() int {
	switch g {
	case InfraPublic:
		return 21
	case InfraPrivate, TenantPublic:
		return 20
	default:
		return 19
	}
}

func (g SubnetGroup) Usage() string {
	switch g {
	case InfraPublic, InfraPrivate:
		return UsageInfra
	default:
		return UsageTenant
	}
}

func SubnetGroupName(stackName string, group SubnetGroup) string {
	return fmt.Sprintf("%s-%s", stackName, group.Suffix())
}

func VPCName(stackName string) string {
	return fmt.Sprintf("%s-vpc", stackName)
}

func TenantDatabaseSecurityGroup(stackName string) string {
	return fmt.Sprintf("%s-tenant-database", stackName)
}

func VPCLink(stackName string) string {
	return fmt.Sprintf("%s-vpc-link", stackName)
}

func TemplateFile(stackName, extension string) string {
	return fmt.Sprintf("%s.template.%s", stackName, extension)
}

func TemplateObjectKey(stackName string, digest string) string {
	return fmt.Sprintf("%s/%s.template", stackName, digest)
}
