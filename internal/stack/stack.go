// Package stack holds the template every descriptor of a deployment is
// declared into, together with the lookup context used to resolve existing
// provider resources.
package stack

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/awslabs/goformation/v7/cloudformation"
	"github.com/go-logr/logr"
	"github.com/hogwarts-cloud/ecsstack/internal/lookup"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

var (
	ErrDuplicateLogicalID = errors.New("duplicate logical id")
	ErrInvalidLogicalID   = errors.New("invalid logical id")
	ErrUnknownFormat      = errors.New("unknown template format")
)

var nonAlphanumeric = regexp.MustCompile(`[^A-Za-z0-9]`)

type Props struct {
	Region      string
	Description string
	Lookups     *lookup.Context
	Logger      logr.Logger
}

type Stack struct {
	name     string
	region   string
	template *cloudformation.Template
	lookups  *lookup.Context
	log      logr.Logger
}

func (s *Stack) Name() string {
	return s.name
}

func (s *Stack) Region() string {
	return s.region
}

func (s *Stack) Lookups() *lookup.Context {
	return s.lookups
}

func (s *Stack) Logger() logr.Logger {
	return s.log
}

func (s *Stack) AddResource(logicalID string, resource cloudformation.Resource) error {
	if logicalID == "" || nonAlphanumeric.MatchString(logicalID) {
		return fmt.Errorf("%w: %q", ErrInvalidLogicalID, logicalID)
	}

	if _, ok := s.template.Resources[logicalID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateLogicalID, logicalID)
	}

	s.template.Resources[logicalID] = resource
	s.log.V(2).Info("declared resource", "logicalID", logicalID, "type", resource.AWSCloudFormationType())

	return nil
}

func (s *Stack) Resource(logicalID string) (cloudformation.Resource, bool) {
	resource, ok := s.template.Resources[logicalID]
	return resource, ok
}

func (s *Stack) AddOutput(logicalID string, value any, description string) error {
	if _, ok := s.template.Outputs[logicalID]; ok {
		return fmt.Errorf("%w: output %s", ErrDuplicateLogicalID, logicalID)
	}

	output := cloudformation.Output{Value: value}
	if description != "" {
		output.Description = cloudformation.String(description)
	}
	s.template.Outputs[logicalID] = output

	return nil
}

func (s *Stack) Synth(format Format) ([]byte, error) {
	var (
		data []byte
		err  error
	)

	switch format {
	case FormatJSON:
		data, err = s.template.JSON()
	case FormatYAML:
		data, err = s.template.YAML()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}

	return data, nil
}

// LogicalID joins the parts into a template logical id, dropping every
// character the template format does not allow.
func LogicalID(parts ...string) string {
	return nonAlphanumeric.ReplaceAllString(strings.Join(parts, ""), "")
}

func New(name string, props Props) *Stack {
	template := cloudformation.NewTemplate()
	template.Description = props.Description

	lookups := props.Lookups
	if lookups == nil {
		lookups = lookup.NewContext()
	}

	return &Stack{
		name:     name,
		region:   props.Region,
		template: template,
		lookups:  lookups,
		log:      props.Logger.WithValues("stack", name),
	}
}
