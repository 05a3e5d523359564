// Package awsec2 resolves existing networks and security groups from EC2
// for the lookup context.
package awsec2

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/hogwarts-cloud/ecsstack/internal/models"
	"github.com/hogwarts-cloud/ecsstack/internal/naming"
	"github.com/samber/lo"
)

var (
	ErrVPCNotFound           = errors.New("vpc not found")
	ErrSecurityGroupNotFound = errors.New("security group not found")
	ErrAmbiguousLookup       = errors.New("lookup matched more than one resource")
)

type EC2API interface {
	DescribeVpcs(ctx context.Context, params *ec2.DescribeVpcsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error)
	DescribeSubnets(ctx context.Context, params *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error)
	DescribeRouteTables(ctx context.Context, params *ec2.DescribeRouteTablesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRouteTablesOutput, error)
	DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
}

type Provider struct {
	api EC2API
}

func (p *Provider) LookupVPC(ctx context.Context, vpcID string) (models.VPC, error) {
	out, err := p.api.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{VpcIds: []string{vpcID}})
	if err != nil {
		if isNotFound(err) {
			return models.VPC{}, fmt.Errorf("%w: %s", ErrVPCNotFound, vpcID)
		}
		return models.VPC{}, fmt.Errorf("failed to describe vpc: %w", err)
	}
	if len(out.Vpcs) == 0 {
		return models.VPC{}, fmt.Errorf("%w: %s", ErrVPCNotFound, vpcID)
	}

	routeTables, err := p.routeTables(ctx, vpcID)
	if err != nil {
		return models.VPC{}, err
	}

	subnets, err := p.subnets(ctx, vpcID, routeTables)
	if err != nil {
		return models.VPC{}, err
	}

	zones := lo.Uniq(lo.Map(subnets, func(subnet models.Subnet, _ int) string { return subnet.AvailabilityZone }))
	sort.Strings(zones)

	return models.VPC{
		ID:                aws.ToString(out.Vpcs[0].VpcId),
		CIDR:              aws.ToString(out.Vpcs[0].CidrBlock),
		AvailabilityZones: zones,
		Subnets:           subnets,
	}, nil
}

func (p *Provider) LookupSecurityGroup(ctx context.Context, vpcID, groupName string) (models.SecurityGroup, error) {
	out, err := p.api.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: []types.Filter{
			{Name: aws.String("vpc-id"), Values: []string{vpcID}},
			{Name: aws.String("group-name"), Values: []string{groupName}},
		},
	})
	if err != nil {
		return models.SecurityGroup{}, fmt.Errorf("failed to describe security groups: %w", err)
	}

	switch len(out.SecurityGroups) {
	case 0:
		return models.SecurityGroup{}, fmt.Errorf("%w: %s in %s", ErrSecurityGroupNotFound, groupName, vpcID)
	case 1:
	default:
		return models.SecurityGroup{}, fmt.Errorf("%w: %s in %s", ErrAmbiguousLookup, groupName, vpcID)
	}

	group := out.SecurityGroups[0]

	return models.SecurityGroup{
		ID:   aws.ToString(group.GroupId),
		Name: aws.ToString(group.GroupName),
	}, nil
}

type routeTable struct {
	id  string
	typ models.SubnetType
}

// routeTables maps subnet ids to their route table. The main route table
// is stored under the empty key.
func (p *Provider) routeTables(ctx context.Context, vpcID string) (map[string]routeTable, error) {
	tables := make(map[string]routeTable)

	paginator := ec2.NewDescribeRouteTablesPaginator(p.api, &ec2.DescribeRouteTablesInput{
		Filters: []types.Filter{{Name: aws.String("vpc-id"), Values: []string{vpcID}}},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe route tables: %w", err)
		}

		for _, table := range page.RouteTables {
			info := routeTable{id: aws.ToString(table.RouteTableId), typ: routeTableType(table.Routes)}

			for _, association := range table.Associations {
				switch {
				case aws.ToBool(association.Main):
					tables[""] = info
				case association.SubnetId != nil:
					tables[aws.ToString(association.SubnetId)] = info
				}
			}
		}
	}

	return tables, nil
}

// routeTableType classifies a subnet by its default routes: through an
// internet gateway it is public, through any other target it is private,
// and without one it is isolated.
func routeTableType(routes []types.Route) models.SubnetType {
	typ := models.SubnetTypeIsolated
	for _, route := range routes {
		switch {
		case strings.HasPrefix(aws.ToString(route.GatewayId), "igw-"):
			return models.SubnetTypePublic
		case route.NatGatewayId != nil, route.TransitGatewayId != nil, route.InstanceId != nil:
			typ = models.SubnetTypePrivateWithEgress
		}
	}
	return typ
}

func (p *Provider) subnets(ctx context.Context, vpcID string, routeTables map[string]routeTable) ([]models.Subnet, error) {
	var subnets []models.Subnet

	paginator := ec2.NewDescribeSubnetsPaginator(p.api, &ec2.DescribeSubnetsInput{
		Filters: []types.Filter{{Name: aws.String("vpc-id"), Values: []string{vpcID}}},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe subnets: %w", err)
		}

		for _, subnet := range page.Subnets {
			subnets = append(subnets, toSubnet(subnet, routeTables))
		}
	}

	sort.SliceStable(subnets, func(i, j int) bool {
		if subnets[i].Group != subnets[j].Group {
			return subnets[i].Group < subnets[j].Group
		}
		return subnets[i].AvailabilityZone < subnets[j].AvailabilityZone
	})

	return subnets, nil
}

func toSubnet(subnet types.Subnet, routeTables map[string]routeTable) models.Subnet {
	tags := lo.SliceToMap(subnet.Tags, func(tag types.Tag) (string, string) {
		return aws.ToString(tag.Key), aws.ToString(tag.Value)
	})

	id := aws.ToString(subnet.SubnetId)

	table, ok := routeTables[id]
	if !ok {
		table = routeTables[""]
	}

	group := firstNonEmpty(tags[naming.SubnetNameTag], tags[naming.CDKSubnetName])

	typ := models.SubnetType(firstNonEmpty(tags[naming.SubnetTypeTag], tags[naming.CDKSubnetType]))
	if typ == "" {
		typ = lo.Ternary(table.typ != "", table.typ, models.SubnetTypeIsolated)
	}

	return models.Subnet{
		ID:               id,
		AvailabilityZone: aws.ToString(subnet.AvailabilityZone),
		CIDR:             aws.ToString(subnet.CidrBlock),
		RouteTableID:     table.id,
		Group:            group,
		Type:             typ,
	}
}

func firstNonEmpty(values ...string) string {
	value, _ := lo.Find(values, func(v string) bool { return v != "" })
	return value
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "InvalidVpcID.NotFound"
	}
	return false
}

func New(api EC2API) *Provider {
	return &Provider{api: api}
}

func NewFromConfig(cfg aws.Config) *Provider {
	return New(ec2.NewFromConfig(cfg))
}
