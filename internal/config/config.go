// Package config loads the YAML configuration of the command line client.
package config

import (
	"bytes"
	"io"
	"os"
	"time"

	"minihttp/application/http"
	"minihttp/application/http/client"
	"minihttp/application/util/rule"
	"minihttp/internal/logging"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Timeout     TimeoutConfig `yaml:"timeout"`
	UserAgent   string        `yaml:"user_agent"`
	Headers     Headers       `yaml:"headers"`
	MaxBodySize uint64        `yaml:"max_body_size"`

	UseReceivedReasonPhrase bool `yaml:"use_received_reason_phrase"`

	Log logging.Config `yaml:"log"`
}

type TimeoutConfig struct {
	Connect time.Duration `yaml:"connect"`
	Read    time.Duration `yaml:"read"`
	Write   time.Duration `yaml:"write"`
}

// Headers is a YAML mapping whose order is kept.
type Headers []http.Field

func (h *Headers) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return errors.Errorf("line %d: headers must be a mapping", node.Line)
	}

	fields := make(Headers, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name, value := node.Content[i], node.Content[i+1]
		if value.Kind != yaml.ScalarNode {
			return errors.Errorf("line %d: header %q must have a scalar value", value.Line, name.Value)
		}
		fields = append(fields, http.Field{Name: name.Value, Value: value.Value})
	}

	*h = fields
	return nil
}

func (h Headers) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range h {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: f.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Value: f.Value},
		)
	}
	return node, nil
}

func Default() Config {
	opts := client.DefaultOptions
	return Config{
		Timeout: TimeoutConfig{
			Connect: opts.Timeout.Connect,
			Read:    opts.Timeout.Read,
			Write:   opts.Timeout.Write,
		},
		UserAgent:               opts.UserAgent,
		MaxBodySize:             opts.Decode.MaxBodySize,
		UseReceivedReasonPhrase: opts.UseReceivedReasonPhrase,
		Log:                     logging.DefaultConfig,
	}
}

// Load reads path on top of [Default]. Unknown keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "reading config file")
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, errors.Wrapf(err, "parsing %s", path)
	}
	return cfg, nil
}

func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Timeout.Connect < 0 || c.Timeout.Read < 0 || c.Timeout.Write < 0 {
		return errors.New("timeouts must not be negative")
	}
	for _, f := range c.Headers {
		if _, err := http.ParseField([]byte(f.Name + ": " + f.Value)); err != nil {
			return errors.Wrapf(err, "header %q", f.Name)
		}
		if rule.HasLineBreak(f.Value) {
			return errors.Errorf("header %q contains a line break", f.Name)
		}
	}
	return nil
}

// Marshal renders the config as YAML, e.g. to write out the defaults.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c Config) ClientOptions() client.Options {
	opts := client.DefaultOptions

	opts.Timeout = client.TimeoutOptions{
		Connect: c.Timeout.Connect,
		Read:    c.Timeout.Read,
		Write:   c.Timeout.Write,
	}
	if c.UserAgent != "" {
		opts.UserAgent = c.UserAgent
	}
	opts.DefaultHeaders = append([]http.Field(nil), c.Headers...)
	opts.Decode.MaxBodySize = c.MaxBodySize
	opts.UseReceivedReasonPhrase = c.UseReceivedReasonPhrase

	return opts
}
