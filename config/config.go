package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	ConfigName  = "stack"
	EnvPrefix   = "ECSSTACK"
	ContextFile = "ecsstack.context.yaml"
)

type Config struct {
	StackName         string
	Region            string
	AvailabilityZones []string
	Network           Network
	Cluster           Cluster
	Service           Service
	Gateway           Gateway
	Assets            Assets
	Output            Output
	AWS               AWS
}

type Network struct {
	CIDR   net.IPNet
	MaxAZs int
	// VPCID selects an existing network instead of provisioning one.
	VPCID string
}

type Cluster struct {
	Name              string
	ContainerInsights bool
}

type Service struct {
	Image              string
	PublicLoadBalancer bool
	Port               int
	CPU                int
	Memory             int
	DesiredCount       int
}

type Gateway struct {
	RestAPIName string
	Description string
	StageName   string
}

type Assets struct {
	Bucket string
}

type Output struct {
	Dir    string
	Format string
	Strict bool
}

type AWS struct {
	Profile         string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("stackName", "ecsNetworkClusterStackName")
	v.SetDefault("region", "us-east-1")
	v.SetDefault("availabilityZones", []string{"us-east-1a", "us-east-1b"})
	v.SetDefault("network.cidr", "10.0.0.0/16")
	v.SetDefault("network.maxAzs", 2)
	v.SetDefault("network.vpcId", "")
	v.SetDefault("cluster.name", "")
	v.SetDefault("cluster.containerInsights", false)
	v.SetDefault("service.image", "amazon/amazon-ecs-sample")
	v.SetDefault("service.publicLoadBalancer", true)
	v.SetDefault("service.port", 80)
	v.SetDefault("service.cpu", 256)
	v.SetDefault("service.memory", 512)
	v.SetDefault("service.desiredCount", 1)
	v.SetDefault("gateway.restApiName", "Test-ECS-Service")
	v.SetDefault("gateway.description", "This service serves Test ECS container.")
	v.SetDefault("gateway.stageName", "prod")
	v.SetDefault("assets.bucket", "")
	v.SetDefault("output.dir", "ecsstack.out")
	v.SetDefault("output.format", "json")
	v.SetDefault("output.strict", false)
	v.SetDefault("aws.profile", "")
	v.SetDefault("aws.endpoint", "")
	v.SetDefault("aws.accessKeyId", "")
	v.SetDefault("aws.secretAccessKey", "")
}

// Load reads stack.yaml from path when present and layers ECSSTACK_*
// environment variables over it. Without a file the built-in defaults
// describe the reference deployment.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(ConfigName)
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg := Config{}

	if err := v.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToIPNetHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		))); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}
