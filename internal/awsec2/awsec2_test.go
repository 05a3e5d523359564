package awsec2

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/hogwarts-cloud/ecsstack/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEC2 struct {
	vpcs           []types.Vpc
	vpcErr         error
	subnetPages    [][]types.Subnet
	routeTables    []types.RouteTable
	securityGroups []types.SecurityGroup
	groupFilters   []types.Filter
}

func (f *fakeEC2) DescribeVpcs(_ context.Context, _ *ec2.DescribeVpcsInput, _ ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error) {
	if f.vpcErr != nil {
		return nil, f.vpcErr
	}
	return &ec2.DescribeVpcsOutput{Vpcs: f.vpcs}, nil
}

func (f *fakeEC2) DescribeSubnets(_ context.Context, in *ec2.DescribeSubnetsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error) {
	page := 0
	if in.NextToken != nil {
		page = 1
	}

	out := &ec2.DescribeSubnetsOutput{}
	if page < len(f.subnetPages) {
		out.Subnets = f.subnetPages[page]
	}
	if page == 0 && len(f.subnetPages) > 1 {
		out.NextToken = aws.String("next")
	}
	return out, nil
}

func (f *fakeEC2) DescribeRouteTables(_ context.Context, _ *ec2.DescribeRouteTablesInput, _ ...func(*ec2.Options)) (*ec2.DescribeRouteTablesOutput, error) {
	return &ec2.DescribeRouteTablesOutput{RouteTables: f.routeTables}, nil
}

func (f *fakeEC2) DescribeSecurityGroups(_ context.Context, in *ec2.DescribeSecurityGroupsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
	f.groupFilters = in.Filters
	return &ec2.DescribeSecurityGroupsOutput{SecurityGroups: f.securityGroups}, nil
}

func tag(key, value string) types.Tag {
	return types.Tag{Key: aws.String(key), Value: aws.String(value)}
}

func Test_LookupVPC(t *testing.T) {
	api := &fakeEC2{
		vpcs: []types.Vpc{{VpcId: aws.String("vpc-1"), CidrBlock: aws.String("10.0.0.0/16")}},
		subnetPages: [][]types.Subnet{
			{
				{
					SubnetId:         aws.String("subnet-b"),
					AvailabilityZone: aws.String("eu-west-1b"),
					CidrBlock:        aws.String("10.0.8.0/21"),
					Tags:             []types.Tag{tag("ecsstack:subnet-name", "demo-infra-public"), tag("ecsstack:subnet-type", "Public")},
				},
				{
					SubnetId:         aws.String("subnet-a"),
					AvailabilityZone: aws.String("eu-west-1a"),
					CidrBlock:        aws.String("10.0.0.0/21"),
					Tags:             []types.Tag{tag("ecsstack:subnet-name", "demo-infra-public"), tag("ecsstack:subnet-type", "Public")},
				},
			},
			{
				{
					SubnetId:         aws.String("subnet-c"),
					AvailabilityZone: aws.String("eu-west-1a"),
					CidrBlock:        aws.String("10.0.96.0/19"),
					Tags:             []types.Tag{tag("aws-cdk:subnet-name", "demo-tenant-private")},
				},
			},
		},
		routeTables: []types.RouteTable{
			{
				RouteTableId: aws.String("rtb-main"),
				Associations: []types.RouteTableAssociation{{Main: aws.Bool(true)}},
				Routes:       []types.Route{{DestinationCidrBlock: aws.String("0.0.0.0/0"), NatGatewayId: aws.String("nat-1")}},
			},
			{
				RouteTableId: aws.String("rtb-a"),
				Associations: []types.RouteTableAssociation{{SubnetId: aws.String("subnet-a")}},
			},
		},
	}

	vpc, err := New(api).LookupVPC(context.Background(), "vpc-1")
	require.NoError(t, err)

	assert.Equal(t, "vpc-1", vpc.ID)
	assert.Equal(t, "10.0.0.0/16", vpc.CIDR)
	assert.Equal(t, []string{"eu-west-1a", "eu-west-1b"}, vpc.AvailabilityZones)

	require.Len(t, vpc.Subnets, 3)
	assert.Equal(t, models.Subnet{
		ID:               "subnet-a",
		AvailabilityZone: "eu-west-1a",
		CIDR:             "10.0.0.0/21",
		RouteTableID:     "rtb-a",
		Group:            "demo-infra-public",
		Type:             models.SubnetTypePublic,
	}, vpc.Subnets[0])
	assert.Equal(t, "subnet-b", vpc.Subnets[1].ID)
	assert.Equal(t, "rtb-main", vpc.Subnets[1].RouteTableID)
	assert.Equal(t, "demo-tenant-private", vpc.Subnets[2].Group)
	assert.Equal(t, models.SubnetTypePrivateWithEgress, vpc.Subnets[2].Type)
}

func Test_LookupVPCSubnetTypeFromRoutes(t *testing.T) {
	testCases := []struct {
		name     string
		routes   []types.Route
		expected models.SubnetType
	}{
		{
			name:     "internet gateway",
			routes:   []types.Route{{GatewayId: aws.String("local")}, {GatewayId: aws.String("igw-1")}},
			expected: models.SubnetTypePublic,
		},
		{
			name:     "nat gateway",
			routes:   []types.Route{{GatewayId: aws.String("local")}, {NatGatewayId: aws.String("nat-1")}},
			expected: models.SubnetTypePrivateWithEgress,
		},
		{
			name:     "local only",
			routes:   []types.Route{{GatewayId: aws.String("local")}},
			expected: models.SubnetTypeIsolated,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			api := &fakeEC2{
				vpcs: []types.Vpc{{VpcId: aws.String("vpc-1"), CidrBlock: aws.String("10.0.0.0/16")}},
				subnetPages: [][]types.Subnet{{{
					SubnetId:         aws.String("subnet-a"),
					AvailabilityZone: aws.String("eu-west-1a"),
					Tags:             []types.Tag{tag("aws-cdk:subnet-name", "demo-tenant-private")},
				}}},
				routeTables: []types.RouteTable{{
					RouteTableId: aws.String("rtb-a"),
					Associations: []types.RouteTableAssociation{{SubnetId: aws.String("subnet-a")}},
					Routes:       testCase.routes,
				}},
			}

			vpc, err := New(api).LookupVPC(context.Background(), "vpc-1")
			require.NoError(t, err)

			require.Len(t, vpc.Subnets, 1)
			assert.Equal(t, testCase.expected, vpc.Subnets[0].Type)
			assert.Equal(t, "rtb-a", vpc.Subnets[0].RouteTableID)
		})
	}
}

func Test_LookupVPCNotFound(t *testing.T) {
	tests := []struct {
		name string
		api  *fakeEC2
	}{
		{
			name: "empty result",
			api:  &fakeEC2{},
		},
		{
			name: "api error",
			api: &fakeEC2{vpcErr: &smithy.GenericAPIError{
				Code:    "InvalidVpcID.NotFound",
				Message: "The vpc ID 'vpc-1' does not exist",
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.api).LookupVPC(context.Background(), "vpc-1")
			assert.ErrorIs(t, err, ErrVPCNotFound)
		})
	}
}

func Test_LookupSecurityGroup(t *testing.T) {
	api := &fakeEC2{
		securityGroups: []types.SecurityGroup{{GroupId: aws.String("sg-1"), GroupName: aws.String("demo-tenant-database")}},
	}

	group, err := New(api).LookupSecurityGroup(context.Background(), "vpc-1", "demo-tenant-database")
	require.NoError(t, err)

	assert.Equal(t, models.SecurityGroup{ID: "sg-1", Name: "demo-tenant-database"}, group)
	require.Len(t, api.groupFilters, 2)
	assert.Equal(t, []string{"vpc-1"}, api.groupFilters[0].Values)
	assert.Equal(t, []string{"demo-tenant-database"}, api.groupFilters[1].Values)
}

func Test_LookupSecurityGroupErrors(t *testing.T) {
	tests := []struct {
		name   string
		groups []types.SecurityGroup
		err    error
	}{
		{
			name: "not found",
			err:  ErrSecurityGroupNotFound,
		},
		{
			name: "ambiguous",
			groups: []types.SecurityGroup{
				{GroupId: aws.String("sg-1")},
				{GroupId: aws.String("sg-2")},
			},
			err: ErrAmbiguousLookup,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(&fakeEC2{securityGroups: tt.groups}).LookupSecurityGroup(context.Background(), "vpc-1", "demo")
			assert.ErrorIs(t, err, tt.err)
		})
	}
}
