package lookup

import (
	"path/filepath"
	"testing"

	"github.com/hogwarts-cloud/ecsstack/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var vpcQuery = Query{Provider: VPCProvider, Region: "us-east-1", VPCID: "vpc-0abc"}

func testVPC() models.VPC {
	return models.VPC{
		ID:                "vpc-0abc",
		CIDR:              "10.0.0.0/16",
		AvailabilityZones: []string{"us-east-1a"},
		Subnets: []models.Subnet{
			{
				ID:               "subnet-1",
				AvailabilityZone: "us-east-1a",
				CIDR:             "10.0.0.0/21",
				RouteTableID:     "rtb-1",
				Group:            "demo-InfraPublic",
				Type:             models.SubnetTypePublic,
			},
		},
	}
}

func Test_QueryKey(t *testing.T) {
	testCases := []struct {
		query    Query
		expected string
	}{
		{
			query:    vpcQuery,
			expected: "vpc-provider:vpcId=vpc-0abc:region=us-east-1",
		},
		{
			query:    Query{Provider: SecurityGroupProvider, Region: "eu-west-1", VPCID: "vpc-1", GroupName: "demo-tenant-database"},
			expected: "security-group-provider:groupName=demo-tenant-database:vpcId=vpc-1:region=eu-west-1",
		},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, tc.query.Key())
	}
}

func Test_LookupRecordsMissing(t *testing.T) {
	lookups := NewContext()

	var vpc models.VPC
	found, err := lookups.Lookup(vpcQuery, &vpc)
	require.NoError(t, err)

	assert.False(t, found)
	assert.Equal(t, []Query{vpcQuery}, lookups.Missing())

	require.NoError(t, lookups.Set(vpcQuery, testVPC()))
	assert.Empty(t, lookups.Missing())

	found, err = lookups.Lookup(vpcQuery, &vpc)
	require.NoError(t, err)

	assert.True(t, found)
	assert.Equal(t, testVPC(), vpc)
}

func Test_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "context.yaml")

	lookups := NewContext()
	require.NoError(t, lookups.Set(vpcQuery, testVPC()))
	require.NoError(t, lookups.Save(path))

	loaded := NewContext()
	require.NoError(t, loaded.Load(path))

	var vpc models.VPC
	found, err := loaded.Lookup(vpcQuery, &vpc)
	require.NoError(t, err)

	assert.True(t, found)
	assert.Equal(t, testVPC(), vpc)
	assert.Equal(t, []string{vpcQuery.Key()}, loaded.Keys())
}

func Test_LoadMissingFile(t *testing.T) {
	lookups := NewContext()

	err := lookups.Load(filepath.Join(t.TempDir(), "absent.yaml"))

	assert.NoError(t, err)
	assert.Empty(t, lookups.Keys())
}

func Test_Delete(t *testing.T) {
	lookups := NewContext()
	require.NoError(t, lookups.Set(vpcQuery, testVPC()))

	assert.True(t, lookups.Delete(vpcQuery.Key()))
	assert.False(t, lookups.Delete(vpcQuery.Key()))
	assert.Empty(t, lookups.Keys())
}
