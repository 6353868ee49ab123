// Package config loads the retry policy file shared by the server and the
// sync command.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wolfeidau/salesboard/internal/retry"
)

// Policies holds one retry policy per pipeline.
type Policies struct {
	Leaderboard retry.Policy `yaml:"leaderboard" json:"leaderboard"`
	Sync        retry.Policy `yaml:"sync" json:"sync"`
}

// Defaults returns the default policy for every pipeline.
func Defaults() Policies {
	return Policies{
		Leaderboard: retry.DefaultPolicy(),
		Sync:        retry.DefaultPolicy(),
	}
}

// Validate checks every pipeline policy.
func (p Policies) Validate() error {
	if err := p.Leaderboard.Validate(); err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}
	if err := p.Sync.Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return nil
}

// LoadPolicies reads a YAML (or .json) policy file. Fields missing from the
// file keep their defaults. An empty path returns the defaults.
func LoadPolicies(path string) (Policies, error) {
	policies := Defaults()
	if path == "" {
		return policies, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return policies, fmt.Errorf("failed to read policy file: %w", err)
	}

	if strings.HasSuffix(strings.ToLower(path), ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&policies); err != nil {
			return policies, fmt.Errorf("failed to parse JSON policy file: %w", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&policies); err != nil && !errors.Is(err, io.EOF) {
			return policies, fmt.Errorf("failed to parse YAML policy file: %w", err)
		}
	}

	if err := policies.Validate(); err != nil {
		return policies, fmt.Errorf("invalid policy file %s: %w", path, err)
	}

	return policies, nil
}
