// Package gateway declares the REST API front door. It proxies every method
// on the root path to a network load balancer through a VPC link.
package gateway

import (
	"fmt"

	"github.com/awslabs/goformation/v7/cloudformation"
	"github.com/awslabs/goformation/v7/cloudformation/apigateway"
	"github.com/hogwarts-cloud/ecsstack/internal/models"
	"github.com/hogwarts-cloud/ecsstack/internal/naming"
	"github.com/hogwarts-cloud/ecsstack/internal/stack"
)

const (
	AnyMethod          = "ANY"
	RootPath           = "/"
	HTTPProxy          = "HTTP_PROXY"
	VPCLinkConnection  = "VPC_LINK"
	DefaultStageName   = "prod"
	DefaultRestAPIName = "Test-ECS-Service"
	DefaultDescription = "This service serves Test ECS container."
)

type Props struct {
	LoadBalancer models.LoadBalancer
	RestAPIName  string
	Description  string
	StageName    string
}

type Gateway struct {
	restAPIID string
	stageName string
	routes    []models.Route
}

func (g *Gateway) Routes() []models.Route {
	return g.routes
}

// URL is the invoke URL of the deployed stage.
func (g *Gateway) URL() string {
	return cloudformation.Sub(fmt.Sprintf("https://${%s}.execute-api.${AWS::Region}.${AWS::URLSuffix}/%s/", g.restAPIID, g.stageName))
}

func New(s *stack.Stack, id string, props Props) (*Gateway, error) {
	if props.LoadBalancer.LogicalID == "" {
		return nil, fmt.Errorf("gateway %s: load balancer is required", id)
	}
	if props.RestAPIName == "" {
		props.RestAPIName = DefaultRestAPIName
	}
	if props.Description == "" {
		props.Description = DefaultDescription
	}
	if props.StageName == "" {
		props.StageName = DefaultStageName
	}

	g := &Gateway{
		restAPIID: stack.LogicalID(id, "Api"),
		stageName: props.StageName,
	}

	if err := s.AddResource(g.restAPIID, &apigateway.RestApi{
		Name:        cloudformation.String(props.RestAPIName),
		Description: cloudformation.String(props.Description),
	}); err != nil {
		return nil, fmt.Errorf("failed to add rest api: %w", err)
	}

	vpcLinkID := stack.LogicalID(id, "VpcLink")
	if err := s.AddResource(vpcLinkID, &apigateway.VpcLink{
		Name:       naming.VPCLink(s.Name()),
		TargetArns: []string{props.LoadBalancer.ARN},
	}); err != nil {
		return nil, fmt.Errorf("failed to add vpc link: %w", err)
	}

	route := models.Route{
		Method:         AnyMethod,
		Path:           RootPath,
		IntegrationURI: cloudformation.Sub(fmt.Sprintf("http://%s", props.LoadBalancer.DNSName.Interpolate())),
		ConnectionType: VPCLinkConnection,
		ConnectionID:   cloudformation.Ref(vpcLinkID),
	}

	methodID := stack.LogicalID(id, "Api", "Root", route.Method)
	if err := s.AddResource(methodID, &apigateway.Method{
		RestApiId:         cloudformation.Ref(g.restAPIID),
		ResourceId:        cloudformation.GetAtt(g.restAPIID, "RootResourceId"),
		HttpMethod:        route.Method,
		AuthorizationType: cloudformation.String("NONE"),
		Integration: &apigateway.Method_Integration{
			Type:                  HTTPProxy,
			IntegrationHttpMethod: cloudformation.String(route.Method),
			Uri:                   cloudformation.String(route.IntegrationURI),
			ConnectionType:        cloudformation.String(route.ConnectionType),
			ConnectionId:          cloudformation.String(route.ConnectionID),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to add root method: %w", err)
	}
	g.routes = append(g.routes, route)

	deploymentID := stack.LogicalID(id, "ApiDeployment")
	deployment := &apigateway.Deployment{
		RestApiId:   cloudformation.Ref(g.restAPIID),
		Description: cloudformation.String("Automatically created by the RestApi construct"),
	}
	deployment.AWSCloudFormationDependsOn = []string{methodID}

	if err := s.AddResource(deploymentID, deployment); err != nil {
		return nil, fmt.Errorf("failed to add deployment: %w", err)
	}

	if err := s.AddResource(stack.LogicalID(id, "ApiDeploymentStage", props.StageName), &apigateway.Stage{
		RestApiId:    cloudformation.Ref(g.restAPIID),
		DeploymentId: cloudformation.String(cloudformation.Ref(deploymentID)),
		StageName:    cloudformation.String(props.StageName),
	}); err != nil {
		return nil, fmt.Errorf("failed to add stage: %w", err)
	}

	if err := s.AddOutput(stack.LogicalID(id, "ApiEndpoint"), g.URL(), "Invoke URL of the API"); err != nil {
		return nil, fmt.Errorf("failed to add endpoint output: %w", err)
	}

	s.Logger().V(1).Info("declared gateway", "id", id, "loadBalancer", props.LoadBalancer.LogicalID)

	return g, nil
}
