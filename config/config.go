// Package config loads the service configuration: one explicit struct
// resolved once at startup from an optional YAML file, overridden by
// environment variables, validated before any component is constructed.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults applied when neither the file nor the environment provides a
// value.
const (
	DefaultAddr     = ":8003"
	DefaultMongoURI = "mongodb://localhost:27017"
	DefaultDatabase = "PartyPlanning"
)

// Config is the full service configuration.
type Config struct {
	HTTP           HTTP                     `yaml:"http"`
	Mongo          Mongo                    `yaml:"mongo"`
	OpenAI         OpenAI                   `yaml:"openAI"`
	PluginServices map[string]PluginService `yaml:"pluginServices"`
	// Instruction overrides the built-in system prompt when non-empty.
	Instruction string `yaml:"instruction"`
}

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Mongo struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// OpenAI mirrors the shared deployment settings: DeploymentType selects
// between AzureOpenAI, OpenAI and Other (any OpenAI-compatible endpoint).
type OpenAI struct {
	DeploymentType string `yaml:"deploymentType"`
	APIKey         string `yaml:"apiKey"`
	ModelID        string `yaml:"modelId"`
	DeploymentName string `yaml:"deploymentName"`
	Endpoint       string `yaml:"endpoint"`
	OrgID          string `yaml:"orgId"`
}

// PluginService locates one plugin: the OpenAPI document describing it and
// the candidate endpoints it may be served at.
type PluginService struct {
	Endpoints []string `yaml:"endpoints"`
	Document  string   `yaml:"document"`
}

// Load reads the configuration file at path (optional, empty skips the
// file), applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{
		HTTP:  HTTP{Addr: DefaultAddr},
		Mongo: Mongo{URI: DefaultMongoURI, Database: DefaultDatabase},
		OpenAI: OpenAI{
			DeploymentType: "OpenAI",
		},
		PluginServices: map[string]PluginService{
			"light_plugin": {
				Endpoints: []string{"http://localhost:5002"},
				Document:  "pluginresources/OpenApiPlugins/LightPlugin.swagger.json",
			},
		},
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	override(&cfg.HTTP.Addr, "HTTP_ADDR")
	override(&cfg.Mongo.URI, "MONGO_URI")
	override(&cfg.Mongo.Database, "MONGO_DATABASE")
	override(&cfg.OpenAI.DeploymentType, "OPENAI_DEPLOYMENT_TYPE")
	override(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	override(&cfg.OpenAI.ModelID, "OPENAI_MODEL_ID")
	override(&cfg.OpenAI.DeploymentName, "OPENAI_DEPLOYMENT_NAME")
	override(&cfg.OpenAI.Endpoint, "OPENAI_ENDPOINT")
	override(&cfg.OpenAI.OrgID, "OPENAI_ORG_ID")
}

func override(target *string, name string) {
	if value := os.Getenv(name); value != "" {
		*target = value
	}
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.Mongo.URI == "" {
		return fmt.Errorf("mongo.uri is required")
	}
	if c.Mongo.Database == "" {
		return fmt.Errorf("mongo.database is required")
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openAI.apiKey is required")
	}
	switch c.OpenAI.DeploymentType {
	case "AzureOpenAI":
		if c.OpenAI.Endpoint == "" {
			return fmt.Errorf("openAI.endpoint is required for AzureOpenAI deployments")
		}
		if c.OpenAI.DeploymentName == "" && c.OpenAI.ModelID == "" {
			return fmt.Errorf("openAI.deploymentName or openAI.modelId is required for AzureOpenAI deployments")
		}
	case "OpenAI":
		if c.OpenAI.ModelID == "" {
			return fmt.Errorf("openAI.modelId is required")
		}
	case "Other":
		if c.OpenAI.Endpoint == "" {
			return fmt.Errorf("openAI.endpoint is required for Other deployments")
		}
		if c.OpenAI.ModelID == "" {
			return fmt.Errorf("openAI.modelId is required")
		}
	default:
		return fmt.Errorf("unknown openAI.deploymentType %q", c.OpenAI.DeploymentType)
	}
	if len(c.PluginServices) == 0 {
		return fmt.Errorf("at least one plugin service is required")
	}
	for name, svc := range c.PluginServices {
		if len(svc.Endpoints) == 0 {
			return fmt.Errorf("plugin service %s: at least one endpoint is required", name)
		}
		if svc.Document == "" {
			return fmt.Errorf("plugin service %s: document path is required", name)
		}
	}
	return nil
}
