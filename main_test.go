package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/hogwarts-cloud/ecsstack/config"
	"github.com/hogwarts-cloud/ecsstack/internal/composer"
	"github.com/hogwarts-cloud/ecsstack/internal/lookup"
	"github.com/hogwarts-cloud/ecsstack/internal/models"
	"github.com/hogwarts-cloud/ecsstack/internal/naming"
	"github.com/hogwarts-cloud/ecsstack/internal/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultStackName = "ecsNetworkClusterStackName"

type fakeResolver struct {
	groups []string
	calls  int
}

func (r *fakeResolver) Resolve(ctx context.Context, lookups *lookup.Context) error {
	r.calls++

	for _, query := range lookups.Missing() {
		var value any
		switch query.Provider {
		case lookup.VPCProvider:
			vpc := models.VPC{ID: query.VPCID, CIDR: "10.1.0.0/16", AvailabilityZones: []string{"us-east-1a"}}
			for i, group := range r.groups {
				vpc.Subnets = append(vpc.Subnets, models.Subnet{
					ID:               "subnet-" + string(rune('a'+i)),
					AvailabilityZone: "us-east-1a",
					Group:            group,
					Type:             models.SubnetTypePrivateWithEgress,
				})
			}
			value = vpc
		case lookup.SecurityGroupProvider:
			value = models.SecurityGroup{ID: "sg-1", Name: query.GroupName}
		}

		if err := lookups.Set(query, value); err != nil {
			return err
		}
	}

	return nil
}

func stackGroups(stackName string) []string {
	groups := make([]string, 0, len(naming.SubnetGroups()))
	for _, group := range naming.SubnetGroups() {
		groups = append(groups, naming.SubnetGroupName(stackName, group))
	}
	return groups
}

func useResolver(t *testing.T, resolver *fakeResolver) {
	t.Helper()

	previous := newResolver
	newResolver = func(config.Config, logr.Logger) composer.Resolver { return resolver }
	t.Cleanup(func() { newResolver = previous })
}

func writeStackConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ConfigName+".yaml"), []byte(content), 0644))
}

func execute(args ...string) (string, error) {
	path = "."
	verbose = false
	outDir = ""
	strict = false
	offline = false

	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(io.Discard)
	root.SetArgs(args)

	err := root.Execute()

	return out.String(), err
}

func Test_SynthOffline(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")

	stdout, err := execute("synth", "--offline", "--path", dir, "--out", out)
	require.NoError(t, err)

	file := filepath.Join(out, naming.TemplateFile(defaultStackName, "json"))
	assert.Equal(t, file+"\n", stdout)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "AWS::ApiGateway::RestApi")

	assert.FileExists(t, filepath.Join(dir, config.ContextFile))
}

func Test_Commands(t *testing.T) {
	testCases := []struct {
		name   string
		config string
		groups []string
		args   func(dir string) []string
		err    error
	}{
		{
			name: "validate provisioned network",
			args: func(dir string) []string { return []string{"validate", "--offline", "--path", dir} },
		},
		{
			name:   "validate looked up network without context",
			config: "network:\n  vpcId: vpc-0abc\n",
			args:   func(dir string) []string { return []string{"validate", "--offline", "--path", dir} },
			err:    lookup.ErrMissingContext,
		},
		{
			name:   "validate looked up network with mismatched names",
			config: "network:\n  vpcId: vpc-0abc\n",
			groups: []string{"Public", "Private"},
			args:   func(dir string) []string { return []string{"validate", "--path", dir} },
			err:    network.ErrEmptySubnetGroup,
		},
		{
			name:   "validate looked up network",
			config: "network:\n  vpcId: vpc-0abc\n",
			groups: stackGroups(defaultStackName),
			args:   func(dir string) []string { return []string{"validate", "--path", dir} },
		},
		{
			name: "clear unknown context key",
			args: func(dir string) []string {
				return []string{"context", "clear", "--path", dir, "vpc-provider:vpcId=vpc-0abc:region=us-east-1"}
			},
			err: lookup.ErrMissingContext,
		},
		{
			name:   "synth looked up network offline",
			config: "network:\n  vpcId: vpc-0abc\n",
			args: func(dir string) []string {
				return []string{"synth", "--offline", "--path", dir, "--out", filepath.Join(dir, "out")}
			},
			err: lookup.ErrMissingContext,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			if tc.config != "" {
				writeStackConfig(t, dir, tc.config)
			}
			useResolver(t, &fakeResolver{groups: tc.groups})

			_, err := execute(tc.args(dir)...)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func Test_ContextResolveListClear(t *testing.T) {
	dir := t.TempDir()
	writeStackConfig(t, dir, "network:\n  vpcId: vpc-0abc\n")

	resolver := &fakeResolver{groups: stackGroups(defaultStackName)}
	useResolver(t, resolver)

	vpcKey := lookup.Query{Provider: lookup.VPCProvider, Region: "us-east-1", VPCID: "vpc-0abc"}.Key()

	stdout, err := execute("context", "resolve", "--path", dir)
	require.NoError(t, err)
	assert.Contains(t, stdout, vpcKey)
	assert.Equal(t, 1, resolver.calls)

	stdout, err = execute("context", "resolve", "--path", dir)
	require.NoError(t, err)
	assert.Empty(t, stdout)
	assert.Equal(t, 1, resolver.calls)

	_, err = execute("synth", "--offline", "--path", dir, "--out", filepath.Join(dir, "out"))
	require.NoError(t, err)

	stdout, err = execute("context", "list", "--path", dir)
	require.NoError(t, err)
	assert.Contains(t, stdout, vpcKey)

	_, err = execute("context", "clear", "--path", dir, vpcKey)
	require.NoError(t, err)

	stdout, err = execute("context", "list", "--path", dir)
	require.NoError(t, err)
	assert.NotContains(t, stdout, vpcKey)
	assert.Contains(t, stdout, "security-group-provider")
}
