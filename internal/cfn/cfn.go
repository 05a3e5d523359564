package cfn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/hogwarts-cloud/ecsstack/internal/models"
	"github.com/samber/lo"
)

const (
	DefaultWaitTimeout = 30 * time.Minute
	validationError    = "ValidationError"
)

var (
	ErrNoTemplate = errors.New("template source has neither body nor url")
)

var capabilities = []types.Capability{
	types.CapabilityCapabilityIam,
	types.CapabilityCapabilityNamedIam,
}

type CloudFormationAPI interface {
	DescribeStacks(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
	CreateStack(ctx context.Context, params *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error)
	UpdateStack(ctx context.Context, params *cloudformation.UpdateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error)
	DeleteStack(ctx context.Context, params *cloudformation.DeleteStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error)
}

type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Config struct {
	CloudFormation CloudFormationAPI
	S3             S3API
	Region         string
	WaitTimeout    time.Duration
}

type CFN struct {
	cloudFormation CloudFormationAPI
	s3             S3API
	region         string
	waitTimeout    time.Duration
}

func (c *CFN) GetStackStatus(ctx context.Context, stackName string) (models.StackStatus, error) {
	out, err := c.cloudFormation.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(stackName),
	})
	if err != nil {
		if isStackNotFound(err) {
			return models.StackStatus{Name: stackName}, nil
		}
		return models.StackStatus{}, fmt.Errorf("failed to describe stack: %w", err)
	}

	if len(out.Stacks) == 0 {
		return models.StackStatus{Name: stackName}, nil
	}

	stack := out.Stacks[0]

	return models.StackStatus{
		Name:    stackName,
		Status:  string(stack.StackStatus),
		Exists:  stack.StackStatus != types.StackStatusDeleteComplete,
		Outputs: outputs(stack.Outputs),
	}, nil
}

func (c *CFN) CreateStack(ctx context.Context, stackName string, source models.TemplateSource) error {
	input := &cloudformation.CreateStackInput{
		StackName:    aws.String(stackName),
		Capabilities: capabilities,
	}

	if err := applySource(source, &input.TemplateBody, &input.TemplateURL); err != nil {
		return err
	}

	if _, err := c.cloudFormation.CreateStack(ctx, input); err != nil {
		return fmt.Errorf("failed to create stack: %w", err)
	}

	waiter := cloudformation.NewStackCreateCompleteWaiter(c.cloudFormation)
	if err := waiter.Wait(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(stackName)}, c.waitTimeout); err != nil {
		return fmt.Errorf("failed to wait for stack creation: %w", err)
	}

	return nil
}

// UpdateStack reports false when the stack already matches the template.
func (c *CFN) UpdateStack(ctx context.Context, stackName string, source models.TemplateSource) (bool, error) {
	input := &cloudformation.UpdateStackInput{
		StackName:    aws.String(stackName),
		Capabilities: capabilities,
	}

	if err := applySource(source, &input.TemplateBody, &input.TemplateURL); err != nil {
		return false, err
	}

	if _, err := c.cloudFormation.UpdateStack(ctx, input); err != nil {
		if isNoUpdates(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to update stack: %w", err)
	}

	waiter := cloudformation.NewStackUpdateCompleteWaiter(c.cloudFormation)
	if err := waiter.Wait(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(stackName)}, c.waitTimeout); err != nil {
		return false, fmt.Errorf("failed to wait for stack update: %w", err)
	}

	return true, nil
}

func (c *CFN) DeleteStack(ctx context.Context, stackName string) error {
	if _, err := c.cloudFormation.DeleteStack(ctx, &cloudformation.DeleteStackInput{
		StackName: aws.String(stackName),
	}); err != nil {
		return fmt.Errorf("failed to delete stack: %w", err)
	}

	waiter := cloudformation.NewStackDeleteCompleteWaiter(c.cloudFormation)
	if err := waiter.Wait(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(stackName)}, c.waitTimeout); err != nil {
		return fmt.Errorf("failed to wait for stack deletion: %w", err)
	}

	return nil
}

func (c *CFN) UploadTemplate(ctx context.Context, bucket, key string, body []byte) (string, error) {
	if _, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	}); err != nil {
		return "", fmt.Errorf("failed to upload template to bucket %s: %w", bucket, err)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, c.region, key), nil
}

func New(config Config) *CFN {
	return &CFN{
		cloudFormation: config.CloudFormation,
		s3:             config.S3,
		region:         config.Region,
		waitTimeout:    lo.Ternary(config.WaitTimeout > 0, config.WaitTimeout, DefaultWaitTimeout),
	}
}

func NewFromConfig(cfg aws.Config, waitTimeout time.Duration) *CFN {
	return New(Config{
		CloudFormation: cloudformation.NewFromConfig(cfg),
		S3:             s3.NewFromConfig(cfg),
		Region:         cfg.Region,
		WaitTimeout:    waitTimeout,
	})
}

func applySource(source models.TemplateSource, body, url **string) error {
	switch {
	case source.URL != "":
		*url = aws.String(source.URL)
	case source.Body != "":
		*body = aws.String(source.Body)
	default:
		return ErrNoTemplate
	}
	return nil
}

func outputs(stackOutputs []types.Output) map[string]string {
	if len(stackOutputs) == 0 {
		return nil
	}

	return lo.SliceToMap(stackOutputs, func(output types.Output) (string, string) {
		return aws.ToString(output.OutputKey), aws.ToString(output.OutputValue)
	})
}

func isStackNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == validationError && strings.Contains(apiErr.ErrorMessage(), "does not exist")
	}
	return false
}

func isNoUpdates(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == validationError && strings.Contains(apiErr.ErrorMessage(), "No updates are to be performed")
	}
	return false
}
