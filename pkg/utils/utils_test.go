package utils

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCIDR(t *testing.T, cidr string) net.IPNet {
	t.Helper()
	_, network, err := net.ParseCIDR(cidr)
	require.NoError(t, err)
	return *network
}

func Test_SubnetAllocator(t *testing.T) {
	testCases := []struct {
		name     string
		network  string
		masks    []int
		expected []string
		wantErr  bool
		err      error
	}{
		{
			name:     "default network layout",
			network:  "10.0.0.0/16",
			masks:    []int{21, 21, 20, 20, 20, 20, 19, 19},
			expected: []string{"10.0.0.0/21", "10.0.8.0/21", "10.0.16.0/20", "10.0.32.0/20", "10.0.48.0/20", "10.0.64.0/20", "10.0.96.0/19", "10.0.128.0/19"},
		},
		{
			name:     "unaligned network address is masked",
			network:  "192.168.1.77/24",
			masks:    []int{26, 25},
			expected: []string{"192.168.1.0/26", "192.168.1.128/25"},
		},
		{
			name:    "address space exhausted",
			network: "10.0.0.0/24",
			masks:   []int{25, 25, 25},
			wantErr: true,
			err:     ErrAddressSpaceExhausted,
		},
		{
			name:    "mask shorter than network",
			network: "10.0.0.0/24",
			masks:   []int{16},
			wantErr: true,
			err:     ErrInvalidMask,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			allocator, err := NewSubnetAllocator(mustCIDR(t, tc.network))
			require.NoError(t, err)

			var actual []string
			for _, mask := range tc.masks {
				subnet, err := allocator.Allocate(mask)
				if err != nil {
					if tc.wantErr {
						assert.ErrorIs(t, err, tc.err)
						return
					}
					require.NoError(t, err)
				}
				actual = append(actual, subnet.String())
			}

			assert.False(t, tc.wantErr, "expected an error")
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func Test_AllocateN(t *testing.T) {
	allocator, err := NewSubnetAllocator(mustCIDR(t, "172.16.0.0/20"))
	require.NoError(t, err)

	subnets, err := allocator.AllocateN(24, 3)
	require.NoError(t, err)

	actual := make([]string, 0, len(subnets))
	for _, subnet := range subnets {
		actual = append(actual, subnet.String())
	}
	assert.Equal(t, []string{"172.16.0.0/24", "172.16.1.0/24", "172.16.2.0/24"}, actual)
}

func Test_NewSubnetAllocatorRejectsIPv6(t *testing.T) {
	_, err := NewSubnetAllocator(mustCIDR(t, "2001:db8::/32"))
	assert.ErrorIs(t, err, ErrOnlyIPv4)
}

func Test_alignUp(t *testing.T) {
	testCases := []struct {
		value    uint64
		size     uint64
		expected uint64
	}{
		{value: 0, size: 256, expected: 0},
		{value: 1, size: 256, expected: 256},
		{value: 512, size: 256, expected: 512},
		{value: 20480, size: 8192, expected: 24576},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, alignUp(tc.value, tc.size))
	}
}
