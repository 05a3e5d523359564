// Package service declares a Fargate service fronted by a network load
// balancer.
package service

import (
	"fmt"

	"github.com/awslabs/goformation/v7/cloudformation"
	"github.com/awslabs/goformation/v7/cloudformation/ec2"
	"github.com/awslabs/goformation/v7/cloudformation/ecs"
	"github.com/awslabs/goformation/v7/cloudformation/elasticloadbalancingv2"
	"github.com/awslabs/goformation/v7/cloudformation/iam"
	"github.com/awslabs/goformation/v7/cloudformation/logs"
	"github.com/hogwarts-cloud/ecsstack/internal/cluster"
	"github.com/hogwarts-cloud/ecsstack/internal/models"
	"github.com/hogwarts-cloud/ecsstack/internal/network"
	"github.com/hogwarts-cloud/ecsstack/internal/stack"
	"github.com/samber/lo"
)

const (
	ContainerName       = "web"
	DefaultPort         = 80
	DefaultCPU          = 256
	DefaultMemory       = 512
	DefaultDesiredCount = 1
	executionPolicyARN  = "arn:${AWS::Partition}:iam::aws:policy/service-role/AmazonECSTaskExecutionRolePolicy"
)

type Props struct {
	Cluster            *cluster.Cluster
	Image              models.Image
	PublicLoadBalancer bool
	Port               int
	CPU                int
	Memory             int
	DesiredCount       int
}

type Service struct {
	logicalID    string
	loadBalancer models.LoadBalancer
}

func (s *Service) LogicalID() string {
	return s.logicalID
}

func (s *Service) LoadBalancer() models.LoadBalancer {
	return s.loadBalancer
}

func New(s *stack.Stack, id string, props Props) (*Service, error) {
	if props.Cluster == nil {
		return nil, fmt.Errorf("service %s: cluster is required", id)
	}

	props.Port = lo.Ternary(props.Port > 0, props.Port, DefaultPort)
	props.CPU = lo.Ternary(props.CPU > 0, props.CPU, DefaultCPU)
	props.Memory = lo.Ternary(props.Memory > 0, props.Memory, DefaultMemory)
	props.DesiredCount = lo.Ternary(props.DesiredCount > 0, props.DesiredCount, DefaultDesiredCount)

	b := &builder{stack: s, id: id, props: props, network: props.Cluster.Network()}

	steps := []func() error{
		b.addLoadBalancer,
		b.addTaskDefinition,
		b.addService,
		b.addOutputs,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	s.Logger().V(1).Info("declared service", "id", id, "image", imageURI(props.Image), "public", props.PublicLoadBalancer)

	return &Service{
		logicalID:    b.serviceID,
		loadBalancer: b.loadBalancer,
	}, nil
}

type builder struct {
	stack   *stack.Stack
	id      string
	props   Props
	network network.Network

	loadBalancer     models.LoadBalancer
	targetGroupID    string
	listenerID       string
	taskDefinitionID string
	serviceID        string
}

func (b *builder) logicalID(parts ...string) string {
	return stack.LogicalID(append([]string{b.id}, parts...)...)
}

func (b *builder) addLoadBalancer() error {
	subnets := lo.Ternary(b.props.PublicLoadBalancer, b.network.PublicInfraSubnets(), b.network.PrivateInfraSubnets())

	lbID := b.logicalID("LB")
	if err := b.stack.AddResource(lbID, &elasticloadbalancingv2.LoadBalancer{
		Type:    cloudformation.String("network"),
		Scheme:  cloudformation.String(lo.Ternary(b.props.PublicLoadBalancer, "internet-facing", "internal")),
		Subnets: models.SubnetIDs(subnets),
	}); err != nil {
		return fmt.Errorf("failed to add load balancer: %w", err)
	}

	b.targetGroupID = b.logicalID("LBPublicListenerECSGroup")
	if err := b.stack.AddResource(b.targetGroupID, &elasticloadbalancingv2.TargetGroup{
		Port:       cloudformation.Int(b.props.Port),
		Protocol:   cloudformation.String("TCP"),
		TargetType: cloudformation.String("ip"),
		VpcId:      cloudformation.String(b.network.VPC().ID),
	}); err != nil {
		return fmt.Errorf("failed to add target group: %w", err)
	}

	b.listenerID = b.logicalID("LBPublicListener")
	if err := b.stack.AddResource(b.listenerID, &elasticloadbalancingv2.Listener{
		LoadBalancerArn: cloudformation.Ref(lbID),
		Port:            cloudformation.Int(b.props.Port),
		Protocol:        cloudformation.String("TCP"),
		DefaultActions: []elasticloadbalancingv2.Listener_Action{
			{
				Type:           "forward",
				TargetGroupArn: cloudformation.String(cloudformation.Ref(b.targetGroupID)),
			},
		},
	}); err != nil {
		return fmt.Errorf("failed to add listener: %w", err)
	}

	b.loadBalancer = models.LoadBalancer{
		LogicalID: lbID,
		ARN:       cloudformation.Ref(lbID),
		DNSName:   models.Attr{LogicalID: lbID, Name: "DNSName"},
		Public:    b.props.PublicLoadBalancer,
	}

	return nil
}

func (b *builder) addTaskDefinition() error {
	roleID := b.logicalID("TaskDefExecutionRole")
	if err := b.stack.AddResource(roleID, &iam.Role{
		AssumeRolePolicyDocument: map[string]any{
			"Version": "2012-10-17",
			"Statement": []map[string]any{
				{
					"Effect":    "Allow",
					"Principal": map[string]any{"Service": "ecs-tasks.amazonaws.com"},
					"Action":    "sts:AssumeRole",
				},
			},
		},
		ManagedPolicyArns: []string{cloudformation.Sub(executionPolicyARN)},
	}); err != nil {
		return fmt.Errorf("failed to add execution role: %w", err)
	}

	logGroupID := b.logicalID("TaskDefWebLogGroup")
	if err := b.stack.AddResource(logGroupID, &logs.LogGroup{}); err != nil {
		return fmt.Errorf("failed to add log group: %w", err)
	}

	b.taskDefinitionID = b.logicalID("TaskDef")
	if err := b.stack.AddResource(b.taskDefinitionID, &ecs.TaskDefinition{
		Cpu:                     cloudformation.String(fmt.Sprintf("%d", b.props.CPU)),
		Memory:                  cloudformation.String(fmt.Sprintf("%d", b.props.Memory)),
		NetworkMode:             cloudformation.String("awsvpc"),
		RequiresCompatibilities: []string{"FARGATE"},
		ExecutionRoleArn:        cloudformation.String(cloudformation.GetAtt(roleID, "Arn")),
		ContainerDefinitions: []ecs.TaskDefinition_ContainerDefinition{
			{
				Name:      ContainerName,
				Image:     imageURI(b.props.Image),
				Essential: cloudformation.Bool(true),
				PortMappings: []ecs.TaskDefinition_PortMapping{
					{
						ContainerPort: cloudformation.Int(b.props.Port),
						Protocol:      cloudformation.String("tcp"),
					},
				},
				LogConfiguration: &ecs.TaskDefinition_LogConfiguration{
					LogDriver: "awslogs",
					Options: map[string]string{
						"awslogs-group":         cloudformation.Ref(logGroupID),
						"awslogs-stream-prefix": b.id,
						"awslogs-region":        cloudformation.Ref("AWS::Region"),
					},
				},
			},
		},
	}); err != nil {
		return fmt.Errorf("failed to add task definition: %w", err)
	}

	return nil
}

func (b *builder) addService() error {
	sgID := b.logicalID("ServiceSecurityGroup")
	if err := b.stack.AddResource(sgID, &ec2.SecurityGroup{
		GroupDescription: fmt.Sprintf("%s/%s/Service/SecurityGroup", b.stack.Name(), b.id),
		VpcId:            cloudformation.String(b.network.VPC().ID),
		SecurityGroupIngress: []ec2.SecurityGroup_Ingress{
			{
				CidrIp:      cloudformation.String(b.network.VPC().CIDR),
				Description: cloudformation.String(fmt.Sprintf("from VPC:%d", b.props.Port)),
				IpProtocol:  "tcp",
				FromPort:    cloudformation.Int(b.props.Port),
				ToPort:      cloudformation.Int(b.props.Port),
			},
		},
		SecurityGroupEgress: []ec2.SecurityGroup_Egress{
			{
				CidrIp:      cloudformation.String("0.0.0.0/0"),
				Description: cloudformation.String("Allow all outbound traffic by default"),
				IpProtocol:  "-1",
			},
		},
	}); err != nil {
		return fmt.Errorf("failed to add service security group: %w", err)
	}

	subnets := b.network.PrivateTenantSubnets()

	b.serviceID = b.logicalID("Service")
	service := &ecs.Service{
		Cluster:                       cloudformation.String(b.props.Cluster.Ref()),
		TaskDefinition:                cloudformation.String(cloudformation.Ref(b.taskDefinitionID)),
		LaunchType:                    cloudformation.String("FARGATE"),
		DesiredCount:                  cloudformation.Int(b.props.DesiredCount),
		HealthCheckGracePeriodSeconds: cloudformation.Int(60),
		LoadBalancers: []ecs.Service_LoadBalancer{
			{
				ContainerName:  cloudformation.String(ContainerName),
				ContainerPort:  cloudformation.Int(b.props.Port),
				TargetGroupArn: cloudformation.String(cloudformation.Ref(b.targetGroupID)),
			},
		},
		NetworkConfiguration: &ecs.Service_NetworkConfiguration{
			AwsvpcConfiguration: &ecs.Service_AwsVpcConfiguration{
				AssignPublicIp: cloudformation.String("DISABLED"),
				SecurityGroups: []string{cloudformation.GetAtt(sgID, "GroupId")},
				Subnets:        models.SubnetIDs(subnets),
			},
		},
	}
	service.AWSCloudFormationDependsOn = []string{b.listenerID, b.targetGroupID}

	if err := b.stack.AddResource(b.serviceID, service); err != nil {
		return fmt.Errorf("failed to add ecs service: %w", err)
	}

	return nil
}

func (b *builder) addOutputs() error {
	if err := b.stack.AddOutput(b.logicalID("LoadBalancerDNS"), b.loadBalancer.DNSName.GetAtt(), "DNS name of the service load balancer"); err != nil {
		return fmt.Errorf("failed to add load balancer output: %w", err)
	}

	serviceURL := cloudformation.Sub(fmt.Sprintf("http://%s", b.loadBalancer.DNSName.Interpolate()))
	if err := b.stack.AddOutput(b.logicalID("ServiceURL"), serviceURL, "URL of the service"); err != nil {
		return fmt.Errorf("failed to add service url output: %w", err)
	}

	return nil
}
