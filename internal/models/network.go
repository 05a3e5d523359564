package models

type SubnetType string

const (
	SubnetTypePublic            SubnetType = "Public"
	SubnetTypePrivateWithEgress SubnetType = "Private"
	SubnetTypeIsolated          SubnetType = "Isolated"
)

// VPC is a handle to a virtual network, either declared in the template
// or resolved from the provider. ID and CIDR hold template tokens for a
// declared VPC and literal values for a resolved one.
type VPC struct {
	LogicalID         string   `yaml:"-"`
	ID                string   `yaml:"vpcId"`
	CIDR              string   `yaml:"cidr"`
	AvailabilityZones []string `yaml:"availabilityZones"`
	Subnets           []Subnet `yaml:"subnets"`
}

type Subnet struct {
	LogicalID        string     `yaml:"-"`
	ID               string     `yaml:"subnetId"`
	AvailabilityZone string     `yaml:"availabilityZone"`
	CIDR             string     `yaml:"cidr"`
	RouteTableID     string     `yaml:"routeTableId"`
	Group            string     `yaml:"group"`
	Type             SubnetType `yaml:"type"`
}

type SecurityGroup struct {
	LogicalID string `yaml:"-"`
	ID        string `yaml:"securityGroupId"`
	Name      string `yaml:"name"`
}

func SubnetIDs(subnets []Subnet) []string {
	ids := make([]string, 0, len(subnets))
	for _, subnet := range subnets {
		ids = append(ids, subnet.ID)
	}
	return ids
}
