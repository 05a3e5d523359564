package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/hogwarts-cloud/ecsstack/config"
	"github.com/hogwarts-cloud/ecsstack/internal/composer"
	"github.com/hogwarts-cloud/ecsstack/internal/deployer"
	"github.com/hogwarts-cloud/ecsstack/internal/lookup"
	"github.com/hogwarts-cloud/ecsstack/internal/models"
	"github.com/hogwarts-cloud/ecsstack/internal/naming"
	"github.com/hogwarts-cloud/ecsstack/internal/stack"
	"github.com/hogwarts-cloud/ecsstack/internal/validator"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	path    string
	verbose bool
	outDir  string
	strict  bool
	offline bool
)

var root = &cobra.Command{
	Use:   "ecsstack",
	Short: "Synthesize and deploy an ECS service behind an API gateway",
}

var synth = &cobra.Command{
	Use:   "synth",
	Short: "Synthesize the CloudFormation template into the output directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		template, err := synthesize(cmd, cfg)
		if err != nil {
			return err
		}

		file, err := writeTemplate(cfg, template)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), file)

		return nil
	},
}

var validate = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and the subnet groups it selects",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logger := newLogger()

		lookups, err := loadLookups()
		if err != nil {
			return err
		}

		opts := composer.Options{
			Lookups: lookups,
			Strict:  true,
			Logger:  logger,
		}
		if !offline {
			opts.Resolver = newResolver(cfg, logger)
		}

		if _, err := composer.Synthesize(cmd.Context(), cfg, opts); err != nil {
			return fmt.Errorf("failed to validate stack: %w", err)
		}

		if err := lookups.Save(contextFile()); err != nil {
			return fmt.Errorf("failed to save context: %w", err)
		}

		return nil
	},
}

var deploy = &cobra.Command{
	Use:   "deploy",
	Short: "Synthesize the template and deploy it with CloudFormation",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		template, err := synthesize(cmd, cfg)
		if err != nil {
			return err
		}

		if _, err := writeTemplate(cfg, template); err != nil {
			return err
		}

		awsCfg, err := loadAWSConfig(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		deployer := deployer.New(deployer.Config{
			CloudFormation: newCloudFormation(awsCfg),
			Bucket:         cfg.Assets.Bucket,
			Logger:         newLogger(),
		})

		result, err := deployer.Deploy(cmd.Context(), template)
		if err != nil {
			return fmt.Errorf("failed to deploy stack: %w", err)
		}

		return printResult(cmd, result)
	},
}

var destroy = &cobra.Command{
	Use:   "destroy",
	Short: "Delete the deployed CloudFormation stack",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		awsCfg, err := loadAWSConfig(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		deployer := deployer.New(deployer.Config{
			CloudFormation: newCloudFormation(awsCfg),
			Logger:         newLogger(),
		})

		result, err := deployer.Destroy(cmd.Context(), cfg.StackName)
		if err != nil {
			return fmt.Errorf("failed to destroy stack: %w", err)
		}

		return printResult(cmd, result)
	},
}

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Manage cached lookup values",
}

var contextResolve = &cobra.Command{
	Use:   "resolve",
	Short: "Query AWS for the lookup values the stack is missing and cache them",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logger := newLogger()

		lookups, err := loadLookups()
		if err != nil {
			return err
		}

		if _, err := composer.Build(cfg, lookups, logger); err != nil {
			return fmt.Errorf("failed to build stack: %w", err)
		}

		missing := lookups.Missing()
		if len(missing) == 0 {
			logger.Info("context is complete")
			return nil
		}

		if err := newResolver(cfg, logger).Resolve(cmd.Context(), lookups); err != nil {
			return fmt.Errorf("failed to resolve context: %w", err)
		}

		if err := lookups.Save(contextFile()); err != nil {
			return fmt.Errorf("failed to save context: %w", err)
		}

		for _, query := range missing {
			fmt.Fprintln(cmd.OutOrStdout(), query.Key())
		}

		return nil
	},
}

var contextList = &cobra.Command{
	Use:   "list",
	Short: "List cached lookup values",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		lookups, err := loadLookups()
		if err != nil {
			return err
		}

		data, err := lookups.Marshal()
		if err != nil {
			return fmt.Errorf("failed to marshal context: %w", err)
		}

		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var contextClear = &cobra.Command{
	Use:   "clear [key...]",
	Short: "Remove cached lookup values, all of them when no key is given",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		lookups, err := loadLookups()
		if err != nil {
			return err
		}

		keys := args
		if len(keys) == 0 {
			keys = lookups.Keys()
		}

		for _, key := range keys {
			if !lookups.Delete(key) {
				return fmt.Errorf("failed to clear context: %w: %s", lookup.ErrMissingContext, key)
			}
		}

		if err := lookups.Save(contextFile()); err != nil {
			return fmt.Errorf("failed to save context: %w", err)
		}

		return nil
	},
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	if outDir != "" {
		cfg.Output.Dir = outDir
	}
	cfg.Output.Strict = cfg.Output.Strict || strict

	if err := validator.Validate(cfg); err != nil {
		return config.Config{}, fmt.Errorf("failed to validate config: %w", err)
	}

	return cfg, nil
}

// synthesize renders the template, resolving and caching missing lookups
// unless running offline.
func synthesize(cmd *cobra.Command, cfg config.Config) (models.StackTemplate, error) {
	logger := newLogger()

	lookups, err := loadLookups()
	if err != nil {
		return models.StackTemplate{}, err
	}

	opts := composer.Options{
		Lookups: lookups,
		Strict:  cfg.Output.Strict,
		Logger:  logger,
	}
	if !offline {
		opts.Resolver = newResolver(cfg, logger)
	}

	result, err := composer.Synthesize(cmd.Context(), cfg, opts)
	if err != nil {
		return models.StackTemplate{}, fmt.Errorf("failed to synthesize stack: %w", err)
	}

	if err := lookups.Save(contextFile()); err != nil {
		return models.StackTemplate{}, fmt.Errorf("failed to save context: %w", err)
	}

	body, err := result.Stack.Synth(stack.Format(cfg.Output.Format))
	if err != nil {
		return models.StackTemplate{}, fmt.Errorf("failed to render template: %w", err)
	}

	return models.StackTemplate{Name: cfg.StackName, Region: cfg.Region, Body: body}, nil
}

func writeTemplate(cfg config.Config, template models.StackTemplate) (string, error) {
	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	file := filepath.Join(cfg.Output.Dir, naming.TemplateFile(template.Name, cfg.Output.Format))
	if err := os.WriteFile(file, template.Body, 0o644); err != nil {
		return "", fmt.Errorf("failed to write template: %w", err)
	}

	return file, nil
}

func printResult(cmd *cobra.Command, result models.DeployResult) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func loadLookups() (*lookup.Context, error) {
	lookups := lookup.NewContext()
	if err := lookups.Load(contextFile()); err != nil {
		return nil, fmt.Errorf("failed to load context: %w", err)
	}
	return lookups, nil
}

func contextFile() string {
	return filepath.Join(path, config.ContextFile)
}

func newLogger() logr.Logger {
	if verbose {
		stdr.SetVerbosity(1)
	}
	return stdr.New(log.New(os.Stderr, "", log.LstdFlags))
}

func init() {
	root.PersistentFlags().StringVar(&path, "path", ".", "Path to the directory with stack.yaml and the context file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	for _, cmd := range []*cobra.Command{synth, deploy} {
		cmd.Flags().StringVar(&outDir, "out", "", "Output directory for the synthesized template")
		cmd.Flags().BoolVar(&strict, "strict", false, "Fail when a subnet group selects no subnets")
	}

	for _, cmd := range []*cobra.Command{synth, deploy, validate} {
		cmd.Flags().BoolVar(&offline, "offline", false, "Do not query AWS for missing context")
	}

	contextCmd.AddCommand(contextList, contextClear, contextResolve)
	root.AddCommand(synth, validate, deploy, destroy, contextCmd)
}

func main() {
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
