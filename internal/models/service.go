package models

import (
	"fmt"

	"github.com/awslabs/goformation/v7/cloudformation"
)

// Attr names one attribute of a resource declared in the template.
type Attr struct {
	LogicalID string
	Name      string
}

func (a Attr) GetAtt() string {
	return cloudformation.GetAtt(a.LogicalID, a.Name)
}

// Interpolate returns the attribute in Fn::Sub placeholder form.
func (a Attr) Interpolate() string {
	return fmt.Sprintf("${%s.%s}", a.LogicalID, a.Name)
}

type Image struct {
	Repository string
	Tag        string
}

func (i Image) String() string {
	return fmt.Sprintf("%s:%s", i.Repository, i.Tag)
}

type LoadBalancer struct {
	LogicalID string
	ARN       string
	DNSName   Attr
	Public    bool
}

type Route struct {
	Method         string
	Path           string
	IntegrationURI string
	ConnectionType string
	ConnectionID   string
}
