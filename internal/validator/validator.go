package validator

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/hogwarts-cloud/ecsstack/config"
	"github.com/hogwarts-cloud/ecsstack/internal/service"
	"github.com/hogwarts-cloud/ecsstack/internal/stack"
	"github.com/samber/lo"
)

const maxStackNameLength = 128

var (
	ErrEmptyStackName        = errors.New("empty stack name")
	ErrInvalidStackName      = errors.New("invalid stack name")
	ErrEmptyRegion           = errors.New("empty region")
	ErrNoAvailabilityZones   = errors.New("no availability zones")
	ErrDuplicateZone         = errors.New("duplicate availability zone")
	ErrZoneOutsideRegion     = errors.New("availability zone outside region")
	ErrInvalidMaxAZs         = errors.New("invalid max availability zones")
	ErrInvalidCIDR           = errors.New("invalid vpc cidr")
	ErrInvalidPort           = errors.New("invalid container port")
	ErrInvalidTaskSize       = errors.New("invalid fargate task size")
	ErrInvalidDesiredCount   = errors.New("invalid desired count")
	ErrInvalidStageName      = errors.New("invalid stage name")
	ErrInvalidOutputFormat   = errors.New("invalid output format")
	ErrPartialAWSCredentials = errors.New("access key id and secret access key must be set together")
)

var (
	stackNameRegexp = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]*$`)
	stageNameRegexp = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

// Validate returns every problem found in the configuration.
func Validate(cfg config.Config) error {
	return errors.Join(
		validateStack(cfg),
		validateNetwork(cfg),
		validateService(cfg.Service),
		validateGateway(cfg.Gateway),
		validateOutput(cfg.Output),
		validateAWS(cfg.AWS),
	)
}

func validateStack(cfg config.Config) error {
	switch {
	case cfg.StackName == "":
		return ErrEmptyStackName
	case len(cfg.StackName) > maxStackNameLength || !stackNameRegexp.MatchString(cfg.StackName):
		return fmt.Errorf("%w: %q", ErrInvalidStackName, cfg.StackName)
	case cfg.Region == "":
		return ErrEmptyRegion
	}
	return nil
}

func validateNetwork(cfg config.Config) error {
	// An existing network brings its own zones and address range.
	if cfg.Network.VPCID != "" {
		return nil
	}

	if len(cfg.AvailabilityZones) == 0 {
		return ErrNoAvailabilityZones
	}

	if duplicates := lo.FindDuplicates(cfg.AvailabilityZones); len(duplicates) > 0 {
		return fmt.Errorf("%w: %v", ErrDuplicateZone, duplicates)
	}

	for _, zone := range cfg.AvailabilityZones {
		if len(zone) <= len(cfg.Region) || zone[:len(cfg.Region)] != cfg.Region {
			return fmt.Errorf("%w: %s not in %s", ErrZoneOutsideRegion, zone, cfg.Region)
		}
	}

	if cfg.Network.MaxAZs < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxAZs, cfg.Network.MaxAZs)
	}

	if cfg.Network.CIDR.IP.To4() == nil {
		return fmt.Errorf("%w: %s", ErrInvalidCIDR, cfg.Network.CIDR.String())
	}

	if ones, _ := cfg.Network.CIDR.Mask.Size(); ones < 16 || ones > 28 {
		return fmt.Errorf("%w: prefix /%d outside /16../28", ErrInvalidCIDR, ones)
	}

	return nil
}

func validateService(cfg config.Service) error {
	if _, err := service.ParseImage(cfg.Image); err != nil {
		return err
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, cfg.Port)
	}

	if !validTaskSize(cfg.CPU, cfg.Memory) {
		return fmt.Errorf("%w: cpu %d memory %d", ErrInvalidTaskSize, cfg.CPU, cfg.Memory)
	}

	if cfg.DesiredCount < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidDesiredCount, cfg.DesiredCount)
	}

	return nil
}

// validTaskSize reports whether Fargate supports the cpu/memory pair.
func validTaskSize(cpu, memory int) bool {
	switch cpu {
	case 256:
		return lo.Contains([]int{512, 1024, 2048}, memory)
	case 512:
		return memory >= 1024 && memory <= 4096 && memory%1024 == 0
	case 1024:
		return memory >= 2048 && memory <= 8192 && memory%1024 == 0
	case 2048:
		return memory >= 4096 && memory <= 16384 && memory%1024 == 0
	case 4096:
		return memory >= 8192 && memory <= 30720 && memory%1024 == 0
	}
	return false
}

func validateGateway(cfg config.Gateway) error {
	if !stageNameRegexp.MatchString(cfg.StageName) {
		return fmt.Errorf("%w: %q", ErrInvalidStageName, cfg.StageName)
	}
	return nil
}

func validateOutput(cfg config.Output) error {
	switch stack.Format(cfg.Format) {
	case stack.FormatJSON, stack.FormatYAML:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidOutputFormat, cfg.Format)
}

func validateAWS(cfg config.AWS) error {
	if (cfg.AccessKeyID == "") != (cfg.SecretAccessKey == "") {
		return ErrPartialAWSCredentials
	}
	return nil
}
