package utils

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
)

var (
	ErrAddressSpaceExhausted = errors.New("address space exhausted")
	ErrInvalidMask           = errors.New("invalid mask")
	ErrOnlyIPv4              = errors.New("only ipv4 networks are supported")
)

// SubnetAllocator hands out consecutive subnets of a network. Every subnet
// starts at the first address after the previous one that is aligned to its
// own prefix length.
type SubnetAllocator struct {
	network net.IPNet
	next    uint64
	end     uint64
}

func NewSubnetAllocator(network net.IPNet) (*SubnetAllocator, error) {
	ip := network.IP.Mask(network.Mask).To4()
	if ip == nil {
		return nil, ErrOnlyIPv4
	}

	ones, bits := network.Mask.Size()
	if bits != 32 {
		return nil, ErrOnlyIPv4
	}

	start := uint64(ipToUint32(ip))

	return &SubnetAllocator{
		network: net.IPNet{IP: ip, Mask: network.Mask},
		next:    start,
		end:     start + (uint64(1) << (32 - ones)),
	}, nil
}

func (a *SubnetAllocator) Allocate(mask int) (net.IPNet, error) {
	ones, _ := a.network.Mask.Size()
	if mask < ones || mask > 32 {
		return net.IPNet{}, fmt.Errorf("%w: /%d inside %s", ErrInvalidMask, mask, a.network.String())
	}

	size := uint64(1) << (32 - mask)
	start := alignUp(a.next, size)

	if start+size > a.end {
		return net.IPNet{}, fmt.Errorf("%w: no room for /%d in %s", ErrAddressSpaceExhausted, mask, a.network.String())
	}

	a.next = start + size

	return net.IPNet{IP: uint32ToIP(uint32(start)), Mask: net.CIDRMask(mask, 32)}, nil
}

// AllocateN allocates count subnets of the same prefix length.
func (a *SubnetAllocator) AllocateN(mask, count int) ([]net.IPNet, error) {
	subnets := make([]net.IPNet, 0, count)
	for i := 0; i < count; i++ {
		subnet, err := a.Allocate(mask)
		if err != nil {
			return nil, err
		}
		subnets = append(subnets, subnet)
	}
	return subnets, nil
}

func alignUp(value, size uint64) uint64 {
	if rem := value % size; rem != 0 {
		return value + size - rem
	}
	return value
}

func ipToUint32(ip net.IP) uint32 {
	return binary.BigEndian.Uint32(ip.To4())
}

func uint32ToIP(value uint32) net.IP {
	ip := make(net.IP, net.IPv4len)
	binary.BigEndian.PutUint32(ip, value)
	return ip
}
