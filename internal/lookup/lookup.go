// Package lookup keeps the values resolved from the provider while a
// template is built. A value that is not known yet is reported as missing
// and the caller continues with a placeholder, so building never blocks on
// the provider. Resolved values are cached on disk between runs.
package lookup

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

const (
	VPCProvider           = "vpc-provider"
	SecurityGroupProvider = "security-group-provider"
)

var (
	ErrMissingContext  = errors.New("missing context")
	ErrUnknownProvider = errors.New("unknown context provider")
)

type Query struct {
	Provider  string `yaml:"provider"`
	Region    string `yaml:"region"`
	VPCID     string `yaml:"vpcId,omitempty"`
	GroupName string `yaml:"groupName,omitempty"`
}

// Key identifies the query in the context file.
func (q Query) Key() string {
	parts := []string{q.Provider}
	if q.GroupName != "" {
		parts = append(parts, "groupName="+q.GroupName)
	}
	if q.VPCID != "" {
		parts = append(parts, "vpcId="+q.VPCID)
	}
	parts = append(parts, "region="+q.Region)
	return strings.Join(parts, ":")
}

type Context struct {
	mu      sync.Mutex
	values  map[string]any
	missing map[string]Query
}

func NewContext() *Context {
	return &Context{
		values:  make(map[string]any),
		missing: make(map[string]Query),
	}
}

// Lookup decodes the cached value for the query into out. When nothing is
// cached the query is recorded as missing and false is returned.
func (c *Context) Lookup(query Query, out any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := query.Key()

	value, ok := c.values[key]
	if !ok {
		c.missing[key] = query
		return false, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "yaml",
		Result:  out,
	})
	if err != nil {
		return false, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(value); err != nil {
		return false, fmt.Errorf("failed to decode context value %q: %w", key, err)
	}

	return true, nil
}

func (c *Context) Set(query Query, value any) error {
	normalized, err := normalize(value)
	if err != nil {
		return fmt.Errorf("failed to normalize context value: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := query.Key()
	c.values[key] = normalized
	delete(c.missing, key)

	return nil
}

// Missing returns the queries recorded since the last reset, sorted by key.
func (c *Context) Missing() []Query {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.missing))
	for key := range c.missing {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	queries := make([]Query, 0, len(keys))
	for _, key := range keys {
		queries = append(queries, c.missing[key])
	}

	return queries
}

func (c *Context) ResetMissing() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.missing = make(map[string]Query)
}

func (c *Context) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.values))
	for key := range c.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys
}

func (c *Context) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.values[key]
	delete(c.values, key)

	return ok
}

func (c *Context) Marshal() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return yaml.Marshal(c.values)
}

// Load merges the context file into the context. A missing file is not an error.
func (c *Context) Load(path string) error {
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	values := make(map[string]any)
	if err := yaml.Unmarshal(content, &values); err != nil {
		return fmt.Errorf("failed to unmarshal context: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, value := range values {
		c.values[key] = value
	}

	return nil
}

func (c *Context) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// normalize stores values in the same shape they have after a round trip
// through the context file.
func normalize(value any) (any, error) {
	data, err := yaml.Marshal(value)
	if err != nil {
		return nil, err
	}

	var normalized any
	if err := yaml.Unmarshal(data, &normalized); err != nil {
		return nil, err
	}

	return normalized, nil
}
