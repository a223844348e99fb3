// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gardener/tgw-inspection/pkg/aws/constants"
)

// ErrNoConfigVersion error is returned when the configuration does not specify
// config format version.
var ErrNoConfigVersion = errors.New("config format version not specified")

// ErrUnsupportedVersion is an error, which is returned when the config file
// uses an incompatible version format.
var ErrUnsupportedVersion = errors.New("unsupported config format version")

// ErrInvalidConfig is an error, which is returned when the configuration
// contains invalid settings.
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigFormatVersion represents the supported config format version.
const ConfigFormatVersion = "v1alpha1"

// Config represents the configuration of the reconcilers.
type Config struct {
	// Version is the version of the config file.
	Version string `yaml:"version"`

	// Debug configures debug mode, if set to true.
	Debug bool `yaml:"debug"`

	// Logging provides the logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// AWS provides the AWS client configuration.
	AWS AWSConfig `yaml:"aws"`

	// Attachment provides the settings of the TGW attachment reconciler.
	Attachment AttachmentConfig `yaml:"attachment"`

	// Routes provides the settings of the firewall routes handler.
	Routes RoutesConfig `yaml:"routes"`

	// Metrics provides the metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig provides the logging specific configuration settings.
type LoggingConfig struct {
	// Level specifies the log level. Supported values are debug, info,
	// warn and error.
	Level string `yaml:"level"`

	// Format specifies the log format. Supported values are text and json.
	Format string `yaml:"format"`

	// AddSource adds the source code position to log events, if set.
	AddSource bool `yaml:"add_source"`

	// Attributes specifies static attributes added to each log event.
	Attributes map[string]string `yaml:"attributes"`
}

// AWSConfig provides AWS specific configuration settings.
type AWSConfig struct {
	// Region is the AWS region to use.
	Region string `yaml:"region"`

	// DefaultRegion is the region to fall back to, if no region could be
	// resolved from the environment or shared config.
	DefaultRegion string `yaml:"default_region"`

	// AppID is an optional application id added to the User-Agent.
	AppID string `yaml:"app_id"`

	// MaxAttempts is the max number of attempts of the SDK retryer.
	MaxAttempts int `yaml:"max_attempts"`

	// MaxBackoff is the max backoff delay of the SDK retryer.
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// AssumeRole configures an optional IAM role to assume.
	AssumeRole AssumeRoleConfig `yaml:"assume_role"`
}

// AssumeRoleConfig provides the settings for assuming an IAM role.
type AssumeRoleConfig struct {
	// RoleARN is the ARN of the role to assume. No role is assumed, when
	// empty.
	RoleARN string `yaml:"role_arn"`

	// SessionName is the name of the role session.
	SessionName string `yaml:"session_name"`

	// Duration is the expiry duration of the temporary credentials.
	Duration time.Duration `yaml:"duration"`

	// WebIdentityTokenFile is the path to an OIDC identity token. When
	// set, the role is assumed with the token instead of the ambient
	// credentials.
	WebIdentityTokenFile string `yaml:"web_identity_token_file"`
}

// AttachmentConfig provides the settings of the TGW attachment reconciler.
type AttachmentConfig struct {
	// EventName is the expected CloudTrail event name.
	EventName string `yaml:"event_name"`

	// TagKey is the key of the tag, which carries the attachment role.
	TagKey string `yaml:"tag_key"`

	// Exports specifies the names of the CloudFormation exports, which
	// provide the TGW route table ids.
	Exports ExportsConfig `yaml:"exports"`

	// Backoff configures the wait for a pending disassociation.
	Backoff BackoffConfig `yaml:"backoff"`
}

// ExportsConfig specifies the names of the route table exports.
type ExportsConfig struct {
	// Workload is the name of the export for the workload route table.
	Workload string `yaml:"workload"`

	// Inspection is the name of the export for the inspection route table.
	Inspection string `yaml:"inspection"`
}

// BackoffConfig provides the settings of an exponential backoff.
type BackoffConfig struct {
	// Initial is the delay before the first retry.
	Initial time.Duration `yaml:"initial"`

	// Factor is the multiplier applied to the delay after each step.
	Factor float64 `yaml:"factor"`

	// Jitter is the max fraction of random delay added to each step.
	Jitter float64 `yaml:"jitter"`

	// Steps is the max number of checks performed.
	Steps int `yaml:"steps"`

	// Cap is the upper limit of a single delay.
	Cap time.Duration `yaml:"cap"`
}

// RoutesConfig provides the settings of the firewall routes handler.
type RoutesConfig struct {
	// ResponseTimeout is the timeout for delivering the custom resource
	// response.
	ResponseTimeout time.Duration `yaml:"response_timeout"`
}

// MetricsConfig provides the metrics specific configuration settings.
type MetricsConfig struct {
	// PushgatewayURL is the URL of a Prometheus Pushgateway. Metrics are
	// not pushed, when empty.
	PushgatewayURL string `yaml:"pushgateway_url"`

	// Job is the job name used when pushing metrics.
	Job string `yaml:"job"`
}

// Default returns the default configuration, which is used when no config
// file has been specified.
func Default() *Config {
	return &Config{
		Version: ConfigFormatVersion,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		AWS: AWSConfig{
			MaxAttempts: 5,
			MaxBackoff:  20 * time.Second,
		},
		Attachment: AttachmentConfig{
			EventName: constants.EventNameCreateVpcAttachment,
			TagKey:    constants.RouteTableTagKey,
			Exports: ExportsConfig{
				Workload:   constants.WorkloadRouteTableExport,
				Inspection: constants.InspectionRouteTableExport,
			},
			Backoff: BackoffConfig{
				Initial: 2 * time.Second,
				Factor:  1.5,
				Jitter:  0.1,
				Steps:   8,
				Cap:     15 * time.Second,
			},
		},
		Routes: RoutesConfig{
			ResponseTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Job: "tgw-inspection",
		},
	}
}

// Validate validates the configuration settings.
func (c *Config) Validate() error {
	if c.Attachment.EventName == "" {
		return fmt.Errorf("%w: no attachment event name", ErrInvalidConfig)
	}

	if c.Attachment.Exports.Workload == "" || c.Attachment.Exports.Inspection == "" {
		return fmt.Errorf("%w: route table export names must be set", ErrInvalidConfig)
	}

	backoff := c.Attachment.Backoff
	if backoff.Steps < 1 {
		return fmt.Errorf("%w: backoff steps must be positive", ErrInvalidConfig)
	}

	if backoff.Initial <= 0 {
		return fmt.Errorf("%w: backoff initial delay must be positive", ErrInvalidConfig)
	}

	if backoff.Factor < 1 {
		return fmt.Errorf("%w: backoff factor must be >= 1", ErrInvalidConfig)
	}

	if c.AWS.AssumeRole.WebIdentityTokenFile != "" && c.AWS.AssumeRole.RoleARN == "" {
		return fmt.Errorf("%w: web identity token file requires a role arn", ErrInvalidConfig)
	}

	if c.AWS.MaxAttempts < 1 {
		return fmt.Errorf("%w: aws max attempts must be positive", ErrInvalidConfig)
	}

	return nil
}

// Parse parses the config from the given path. Settings not present in the
// file retain their default values.
func Parse(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return ParseBytes(data)
}

// ParseBytes parses the config from the given YAML document.
func ParseBytes(data []byte) (*Config, error) {
	conf := Default()
	conf.Version = ""
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, err
	}

	if conf.Version == "" {
		return nil, ErrNoConfigVersion
	}

	if conf.Version != ConfigFormatVersion {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVersion, conf.Version)
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}

	return conf, nil
}
