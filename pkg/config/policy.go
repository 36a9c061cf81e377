package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy holds operator-tunable review policy: which MIME types the
// locker accepts and which certification checks are required.
type Policy struct {
	AllowedMIMETypes []string `yaml:"allowed_mime_types"`
	RequiredChecks   []string `yaml:"required_checks"`
}

// DefaultPolicy mirrors the shipped policy document.
func DefaultPolicy() Policy {
	return Policy{
		AllowedMIMETypes: []string{
			"text/plain",
			"text/csv",
			"application/json",
			"application/pdf",
			"application/zip",
			"application/x-tar",
			"image/png",
			"image/jpeg",
		},
		RequiredChecks: []string{
			"build_metadata",
			"dependency_scan",
			"permissions_manifest",
			"smoke_test",
			"rollback_readiness",
		},
	}
}

// LoadPolicy reads a yaml policy file. An empty path or a missing file
// yields the default policy rather than an error.
func LoadPolicy(path string) (Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPolicy(), nil
		}
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("parse policy file: %w", err)
	}
	if len(p.AllowedMIMETypes) == 0 {
		p.AllowedMIMETypes = DefaultPolicy().AllowedMIMETypes
	}
	if len(p.RequiredChecks) == 0 {
		p.RequiredChecks = DefaultPolicy().RequiredChecks
	}
	return p, nil
}

// RequiredCheck reports whether the named certification check is required
// by this policy.
func (p Policy) RequiredCheck(name string) bool {
	for _, c := range p.RequiredChecks {
		if c == name {
			return true
		}
	}
	return false
}

// ValidateChecks rejects a policy whose required_checks name checks that
// do not exist. known is the canonical check name list.
func (p Policy) ValidateChecks(known []string) error {
	for _, name := range p.RequiredChecks {
		found := false
		for _, k := range known {
			if k == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("policy requires unknown check %q", name)
		}
	}
	return nil
}

// MIMEAllowed reports whether the locker accepts the given MIME type.
func (p Policy) MIMEAllowed(mime string) bool {
	for _, m := range p.AllowedMIMETypes {
		if m == mime {
			return true
		}
	}
	return false
}
