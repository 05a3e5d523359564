package cluster

import (
	"fmt"

	"github.com/awslabs/goformation/v7/cloudformation"
	"github.com/awslabs/goformation/v7/cloudformation/ecs"
	"github.com/hogwarts-cloud/ecsstack/internal/network"
	"github.com/hogwarts-cloud/ecsstack/internal/stack"
	"github.com/samber/lo"
)

type Props struct {
	Network           network.Network
	ClusterName       string
	ContainerInsights bool
}

type Cluster struct {
	logicalID string
	network   network.Network
}

func (c *Cluster) LogicalID() string {
	return c.logicalID
}

func (c *Cluster) Network() network.Network {
	return c.network
}

func (c *Cluster) Ref() string {
	return cloudformation.Ref(c.logicalID)
}

func (c *Cluster) ARN() string {
	return cloudformation.GetAtt(c.logicalID, "Arn")
}

func New(s *stack.Stack, id string, props Props) (*Cluster, error) {
	if props.Network == nil {
		return nil, fmt.Errorf("cluster %s: network is required", id)
	}

	resource := &ecs.Cluster{
		ClusterSettings: []ecs.Cluster_ClusterSettings{
			{
				Name:  cloudformation.String("containerInsights"),
				Value: cloudformation.String(lo.Ternary(props.ContainerInsights, "enabled", "disabled")),
			},
		},
	}
	if props.ClusterName != "" {
		resource.ClusterName = cloudformation.String(props.ClusterName)
	}

	logicalID := stack.LogicalID(id)
	if err := s.AddResource(logicalID, resource); err != nil {
		return nil, fmt.Errorf("failed to add cluster: %w", err)
	}

	c := &Cluster{logicalID: logicalID, network: props.Network}

	if err := s.AddOutput(stack.LogicalID(id, "Arn"), c.ARN(), "ARN of the ECS cluster"); err != nil {
		return nil, fmt.Errorf("failed to add cluster output: %w", err)
	}

	s.Logger().V(1).Info("declared cluster", "id", id, "vpc", props.Network.VPC().LogicalID)

	return c, nil
}
