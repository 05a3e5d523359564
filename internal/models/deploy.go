package models

type StackTemplate struct {
	Name   string
	Region string
	Body   []byte
}

type DeployAction int

const (
	CreatedAction DeployAction = iota
	UpdatedAction
	UnchangedAction
	DeletedAction
)

func (a DeployAction) String() string {
	switch a {
	case CreatedAction:
		return "created"
	case UpdatedAction:
		return "updated"
	case UnchangedAction:
		return "unchanged"
	case DeletedAction:
		return "deleted"
	}
	return ""
}

type StackStatus struct {
	Name    string
	Status  string
	Exists  bool
	Outputs map[string]string
}

type DeployResult struct {
	StackName string            `yaml:"stackName"`
	Action    string            `yaml:"action"`
	Outputs   map[string]string `yaml:"outputs,omitempty"`
}

// TemplateSource references a template either inline or by its uploaded URL.
type TemplateSource struct {
	Body string
	URL  string
}
