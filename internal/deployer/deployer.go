package deployer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/hogwarts-cloud/ecsstack/internal/models"
	"github.com/hogwarts-cloud/ecsstack/internal/naming"
)

// MaxInlineTemplateSize is the largest template body CloudFormation accepts
// without an S3 location.
const MaxInlineTemplateSize = 51200

const rollbackComplete = "ROLLBACK_COMPLETE"

var (
	ErrTemplateTooLarge = errors.New("template exceeds inline size limit and no assets bucket is configured")
)

type CloudFormationProvider interface {
	GetStackStatus(ctx context.Context, stackName string) (models.StackStatus, error)
	CreateStack(ctx context.Context, stackName string, source models.TemplateSource) error
	UpdateStack(ctx context.Context, stackName string, source models.TemplateSource) (bool, error)
	DeleteStack(ctx context.Context, stackName string) error
	UploadTemplate(ctx context.Context, bucket, key string, body []byte) (string, error)
}

type Config struct {
	CloudFormation CloudFormationProvider
	Bucket         string
	Logger         logr.Logger
}

type Deployer struct {
	cloudFormation CloudFormationProvider
	bucket         string
	log            logr.Logger
}

func (d *Deployer) Deploy(ctx context.Context, template models.StackTemplate) (models.DeployResult, error) {
	status, err := d.cloudFormation.GetStackStatus(ctx, template.Name)
	if err != nil {
		return models.DeployResult{}, fmt.Errorf("failed to get stack status: %w", err)
	}

	// A stack that failed its first creation cannot be updated.
	if status.Exists && status.Status == rollbackComplete {
		d.log.Info("deleting stack left in rollback state", "stack", template.Name)
		if err := d.cloudFormation.DeleteStack(ctx, template.Name); err != nil {
			return models.DeployResult{}, fmt.Errorf("failed to delete rolled back stack: %w", err)
		}
		status.Exists = false
	}

	source, err := d.templateSource(ctx, template)
	if err != nil {
		return models.DeployResult{}, err
	}

	action := models.CreatedAction
	if status.Exists {
		d.log.V(1).Info("updating stack", "stack", template.Name, "status", status.Status)

		changed, err := d.cloudFormation.UpdateStack(ctx, template.Name, source)
		if err != nil {
			return models.DeployResult{}, fmt.Errorf("failed to update stack: %w", err)
		}
		if !changed {
			action = models.UnchangedAction
		} else {
			action = models.UpdatedAction
		}
	} else {
		d.log.V(1).Info("creating stack", "stack", template.Name)

		if err := d.cloudFormation.CreateStack(ctx, template.Name, source); err != nil {
			return models.DeployResult{}, fmt.Errorf("failed to create stack: %w", err)
		}
	}

	final, err := d.cloudFormation.GetStackStatus(ctx, template.Name)
	if err != nil {
		return models.DeployResult{}, fmt.Errorf("failed to get stack outputs: %w", err)
	}

	d.log.Info("stack deployed", "stack", template.Name, "action", action.String())

	return models.DeployResult{
		StackName: template.Name,
		Action:    action.String(),
		Outputs:   final.Outputs,
	}, nil
}

func (d *Deployer) Destroy(ctx context.Context, stackName string) (models.DeployResult, error) {
	status, err := d.cloudFormation.GetStackStatus(ctx, stackName)
	if err != nil {
		return models.DeployResult{}, fmt.Errorf("failed to get stack status: %w", err)
	}

	if !status.Exists {
		d.log.Info("stack does not exist", "stack", stackName)
		return models.DeployResult{StackName: stackName, Action: models.UnchangedAction.String()}, nil
	}

	if err := d.cloudFormation.DeleteStack(ctx, stackName); err != nil {
		return models.DeployResult{}, fmt.Errorf("failed to delete stack: %w", err)
	}

	d.log.Info("stack deleted", "stack", stackName)

	return models.DeployResult{StackName: stackName, Action: models.DeletedAction.String()}, nil
}

func (d *Deployer) templateSource(ctx context.Context, template models.StackTemplate) (models.TemplateSource, error) {
	if d.bucket == "" {
		if len(template.Body) > MaxInlineTemplateSize {
			return models.TemplateSource{}, fmt.Errorf("%w: %d bytes", ErrTemplateTooLarge, len(template.Body))
		}
		return models.TemplateSource{Body: string(template.Body)}, nil
	}

	digest := sha256.Sum256(template.Body)
	key := naming.TemplateObjectKey(template.Name, hex.EncodeToString(digest[:]))

	url, err := d.cloudFormation.UploadTemplate(ctx, d.bucket, key, template.Body)
	if err != nil {
		return models.TemplateSource{}, fmt.Errorf("failed to upload template: %w", err)
	}

	return models.TemplateSource{URL: url}, nil
}

func New(config Config) *Deployer {
	return &Deployer{
		cloudFormation: config.CloudFormation,
		bucket:         config.Bucket,
		log:            config.Logger,
	}
}
