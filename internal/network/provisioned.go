package network

import (
	"fmt"
	"net"
	"strconv"

	"github.com/awslabs/goformation/v7/cloudformation"
	"github.com/awslabs/goformation/v7/cloudformation/ec2"
	"github.com/awslabs/goformation/v7/cloudformation/tags"
	"github.com/hogwarts-cloud/ecsstack/internal/models"
	"github.com/hogwarts-cloud/ecsstack/internal/naming"
	"github.com/hogwarts-cloud/ecsstack/internal/stack"
	"github.com/hogwarts-cloud/ecsstack/pkg/utils"
	"github.com/samber/lo"
)

const (
	DefaultMaxAZs   = 2
	anyIPv4         = "0.0.0.0/0"
	databaseSGUsage = "SG for all tenant databases to allow connectivity from Beam infrastructure and Kubernetes"
)

type GatewayEndpoint struct {
	Name    string
	Service string
}

// GatewayEndpoints are attached to every route table of a provisioned network.
var GatewayEndpoints = []GatewayEndpoint{
	{Name: "s3", Service: "s3"},
	{Name: "dynamoDB", Service: "dynamodb"},
}

type Props struct {
	StackName         string
	CIDR              net.IPNet
	AvailabilityZones []string
	MaxAZs            int
	// CIDRMasks overrides the default prefix length of a subnet group.
	CIDRMasks map[naming.SubnetGroup]int
}

type Provisioned struct {
	selector
	id            string
	securityGroup models.SecurityGroup
	natGateways   []string
	endpoints     map[string]string
}

func (p *Provisioned) TenantDatabaseSecurityGroup() models.SecurityGroup {
	return p.securityGroup
}

// NATGateways returns the logical ids of the NAT gateways, one per zone.
func (p *Provisioned) NATGateways() []string {
	return p.natGateways
}

// GatewayEndpoint returns the logical id of the named gateway endpoint.
func (p *Provisioned) GatewayEndpoint(name string) (string, bool) {
	logicalID, ok := p.endpoints[name]
	return logicalID, ok
}

func New(s *stack.Stack, id string, props Props) (*Provisioned, error) {
	zones := props.AvailabilityZones
	maxAZs := lo.Ternary(props.MaxAZs > 0, props.MaxAZs, DefaultMaxAZs)
	if len(zones) > maxAZs {
		zones = zones[:maxAZs]
	}

	p := &Provisioned{
		selector:  selector{stackName: props.StackName},
		id:        id,
		endpoints: make(map[string]string),
	}

	vpcID := stack.LogicalID(id, "Vpc")
	if err := s.AddResource(vpcID, &ec2.VPC{
		CidrBlock:          cloudformation.String(props.CIDR.String()),
		EnableDnsHostnames: cloudformation.Bool(true),
		EnableDnsSupport:   cloudformation.Bool(true),
		InstanceTenancy:    cloudformation.String("default"),
		Tags:               []tags.Tag{{Key: "Name", Value: naming.VPCName(props.StackName)}},
	}); err != nil {
		return nil, fmt.Errorf("failed to add vpc: %w", err)
	}

	p.vpc = models.VPC{
		LogicalID:         vpcID,
		ID:                cloudformation.Ref(vpcID),
		CIDR:              cloudformation.GetAtt(vpcID, "CidrBlock"),
		AvailabilityZones: zones,
	}

	igwID := stack.LogicalID(id, "VpcIGW")
	attachmentID := stack.LogicalID(id, "VpcGWAttachment")
	if err := s.AddResource(igwID, &ec2.InternetGateway{
		Tags: []tags.Tag{{Key: "Name", Value: naming.VPCName(props.StackName)}},
	}); err != nil {
		return nil, fmt.Errorf("failed to add internet gateway: %w", err)
	}
	if err := s.AddResource(attachmentID, &ec2.VPCGatewayAttachment{
		VpcId:             cloudformation.Ref(vpcID),
		InternetGatewayId: cloudformation.String(cloudformation.Ref(igwID)),
	}); err != nil {
		return nil, fmt.Errorf("failed to add gateway attachment: %w", err)
	}

	allocator, err := utils.NewSubnetAllocator(props.CIDR)
	if err != nil {
		return nil, fmt.Errorf("failed to create subnet allocator: %w", err)
	}

	for _, group := range naming.SubnetGroups() {
		mask := group.CIDRMask()
		if override, ok := props.CIDRMasks[group]; ok {
			mask = override
		}

		cidrs, err := allocator.AllocateN(mask, len(zones))
		if err != nil {
			return nil, fmt.Errorf("failed to allocate %s subnets: %w", group, err)
		}

		for i, zone := range zones {
			subnet, err := p.addSubnet(s, group, i, zone, cidrs[i], igwID, attachmentID)
			if err != nil {
				return nil, err
			}
			p.vpc.Subnets = append(p.vpc.Subnets, subnet)
		}
	}

	if err := p.addNATGateways(s); err != nil {
		return nil, err
	}

	if err := p.addGatewayEndpoints(s); err != nil {
		return nil, err
	}

	if err := p.addTenantDatabaseSecurityGroup(s); err != nil {
		return nil, err
	}

	if err := p.tagSubnets(s); err != nil {
		return nil, err
	}

	if err := s.AddOutput(stack.LogicalID(id, "VpcId"), cloudformation.Ref(vpcID), "VPC id of the network"); err != nil {
		return nil, fmt.Errorf("failed to add vpc output: %w", err)
	}

	s.Logger().V(1).Info("provisioned network", "id", id, "zones", zones, "subnets", len(p.vpc.Subnets))

	return p, nil
}

func (p *Provisioned) addSubnet(s *stack.Stack, group naming.SubnetGroup, index int, zone string, cidr net.IPNet, igwID, attachmentID string) (models.Subnet, error) {
	name := naming.SubnetGroupName(p.stackName, group)
	subnetID := stack.LogicalID(p.id, "Vpc", group.Suffix(), "Subnet", strconv.Itoa(index+1))
	routeTableID := subnetID + "RouteTable"

	if err := s.AddResource(subnetID, &ec2.Subnet{
		VpcId:               p.vpc.ID,
		AvailabilityZone:    cloudformation.String(zone),
		CidrBlock:           cloudformation.String(cidr.String()),
		MapPublicIpOnLaunch: cloudformation.Bool(group.Type() == models.SubnetTypePublic),
		Tags: []tags.Tag{
			{Key: "Name", Value: fmt.Sprintf("%s/%s/Vpc/%sSubnet%d", p.stackName, p.id, group.Suffix(), index+1)},
			{Key: naming.SubnetNameTag, Value: name},
			{Key: naming.SubnetTypeTag, Value: string(group.Type())},
		},
	}); err != nil {
		return models.Subnet{}, fmt.Errorf("failed to add subnet: %w", err)
	}

	if err := s.AddResource(routeTableID, &ec2.RouteTable{
		VpcId: p.vpc.ID,
		Tags:  []tags.Tag{{Key: "Name", Value: fmt.Sprintf("%s/%s/Vpc/%sSubnet%d", p.stackName, p.id, group.Suffix(), index+1)}},
	}); err != nil {
		return models.Subnet{}, fmt.Errorf("failed to add route table: %w", err)
	}

	if err := s.AddResource(subnetID+"RouteTableAssociation", &ec2.SubnetRouteTableAssociation{
		RouteTableId: cloudformation.Ref(routeTableID),
		SubnetId:     cloudformation.Ref(subnetID),
	}); err != nil {
		return models.Subnet{}, fmt.Errorf("failed to add route table association: %w", err)
	}

	if group.Type() == models.SubnetTypePublic {
		route := &ec2.Route{
			RouteTableId:         cloudformation.Ref(routeTableID),
			DestinationCidrBlock: cloudformation.String(anyIPv4),
			GatewayId:            cloudformation.String(cloudformation.Ref(igwID)),
		}
		route.AWSCloudFormationDependsOn = []string{attachmentID}

		if err := s.AddResource(subnetID+"DefaultRoute", route); err != nil {
			return models.Subnet{}, fmt.Errorf("failed to add default route: %w", err)
		}
	}

	return models.Subnet{
		LogicalID:        subnetID,
		ID:               cloudformation.Ref(subnetID),
		AvailabilityZone: zone,
		CIDR:             cidr.String(),
		RouteTableID:     cloudformation.Ref(routeTableID),
		Group:            name,
		Type:             group.Type(),
	}, nil
}

// addNATGateways places one NAT gateway in every public infrastructure
// subnet and routes the private subnets of the same zone through it.
func (p *Provisioned) addNATGateways(s *stack.Stack) error {
	natByZone := make(map[string]string)

	for _, subnet := range p.PublicInfraSubnets() {
		eipID := subnet.LogicalID + "EIP"
		natID := subnet.LogicalID + "NATGateway"

		if err := s.AddResource(eipID, &ec2.EIP{
			Domain: cloudformation.String("vpc"),
		}); err != nil {
			return fmt.Errorf("failed to add elastic ip: %w", err)
		}

		nat := &ec2.NatGateway{
			SubnetId:     subnet.ID,
			AllocationId: cloudformation.String(cloudformation.GetAtt(eipID, "AllocationId")),
			Tags:         []tags.Tag{{Key: "Name", Value: fmt.Sprintf("%s/%s/Vpc/NAT-%s", p.stackName, p.id, subnet.AvailabilityZone)}},
		}
		nat.AWSCloudFormationDependsOn = []string{subnet.LogicalID + "DefaultRoute", subnet.LogicalID + "RouteTableAssociation"}

		if err := s.AddResource(natID, nat); err != nil {
			return fmt.Errorf("failed to add nat gateway: %w", err)
		}

		natByZone[subnet.AvailabilityZone] = natID
		p.natGateways = append(p.natGateways, natID)
	}

	if len(p.natGateways) == 0 {
		return nil
	}

	for _, subnet := range p.vpc.Subnets {
		if subnet.Type != models.SubnetTypePrivateWithEgress {
			continue
		}

		natID, ok := natByZone[subnet.AvailabilityZone]
		if !ok {
			natID = p.natGateways[0]
		}

		if err := s.AddResource(subnet.LogicalID+"DefaultRoute", &ec2.Route{
			RouteTableId:         subnet.RouteTableID,
			DestinationCidrBlock: cloudformation.String(anyIPv4),
			NatGatewayId:         cloudformation.String(cloudformation.Ref(natID)),
		}); err != nil {
			return fmt.Errorf("failed to add nat route: %w", err)
		}
	}

	return nil
}

func (p *Provisioned) addGatewayEndpoints(s *stack.Stack) error {
	routeTables := lo.Uniq(lo.Map(p.vpc.Subnets, func(subnet models.Subnet, _ int) string {
		return subnet.RouteTableID
	}))

	for _, endpoint := range GatewayEndpoints {
		endpointID := stack.LogicalID(p.id, "Vpc", endpoint.Name)

		if err := s.AddResource(endpointID, &ec2.VPCEndpoint{
			ServiceName:     cloudformation.Sub(fmt.Sprintf("com.amazonaws.${AWS::Region}.%s", endpoint.Service)),
			VpcId:           p.vpc.ID,
			VpcEndpointType: cloudformation.String("Gateway"),
			RouteTableIds:   routeTables,
		}); err != nil {
			return fmt.Errorf("failed to add %s endpoint: %w", endpoint.Name, err)
		}

		p.endpoints[endpoint.Name] = endpointID
	}

	return nil
}

func (p *Provisioned) addTenantDatabaseSecurityGroup(s *stack.Stack) error {
	name := naming.TenantDatabaseSecurityGroup(p.stackName)
	sgID := stack.LogicalID(p.id, "TenantDatabaseSecGroup")

	// A group without egress rules allows all outbound traffic, so an
	// unreachable rule stands in for "none".
	if err := s.AddResource(sgID, &ec2.SecurityGroup{
		GroupName:        cloudformation.String(name),
		GroupDescription: databaseSGUsage,
		VpcId:            cloudformation.String(p.vpc.ID),
		SecurityGroupEgress: []ec2.SecurityGroup_Egress{
			{
				CidrIp:      cloudformation.String("255.255.255.255/32"),
				Description: cloudformation.String("Disallow all traffic"),
				IpProtocol:  "icmp",
				FromPort:    cloudformation.Int(252),
				ToPort:      cloudformation.Int(86),
			},
		},
	}); err != nil {
		return fmt.Errorf("failed to add tenant database security group: %w", err)
	}

	p.securityGroup = models.SecurityGroup{
		LogicalID: sgID,
		ID:        cloudformation.GetAtt(sgID, "GroupId"),
		Name:      name,
	}

	return nil
}

func (p *Provisioned) tagSubnets(s *stack.Stack) error {
	for _, group := range naming.SubnetGroups() {
		for _, subnet := range SelectSubnets(p, group) {
			resource, ok := s.Resource(subnet.LogicalID)
			if !ok {
				return fmt.Errorf("failed to tag subnet %s: not declared", subnet.LogicalID)
			}

			declared, ok := resource.(*ec2.Subnet)
			if !ok {
				return fmt.Errorf("failed to tag subnet %s: unexpected type %s", subnet.LogicalID, resource.AWSCloudFormationType())
			}

			declared.Tags = append(declared.Tags, tags.Tag{Key: naming.UsageTagKey, Value: group.Usage()})
		}
	}

	return nil
}
