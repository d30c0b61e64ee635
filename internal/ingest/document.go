package ingest

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seedYAML []byte

var (
	// ErrEmptyDocument is returned for blank input or a null document.
	ErrEmptyDocument = errors.New("YAML content is empty or invalid")

	// ErrInvalidDocument wraps YAML syntax and shape errors.
	ErrInvalidDocument = errors.New("failed to parse YAML")
)

// Document is the declarative inventory description an operator uploads.
type Document struct {
	Metadata     Metadata                  `yaml:"metadata"`
	Zones        map[string]ZoneSpec       `yaml:"zones"`
	Capabilities map[string]CapabilitySpec `yaml:"capabilities"`
}

// Metadata names and versions a document.
type Metadata struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
}

// ZoneSpec describes one zone and the servers it owns.
type ZoneSpec struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Servers     []ServerSpec `yaml:"servers"`
}

// ServerSpec describes one server. A nil address list means the key was
// absent from the document; an empty list is an explicit "none".
type ServerSpec struct {
	Name string   `yaml:"name"`
	OS   string   `yaml:"os"`
	IPv4 []string `yaml:"ipv4"`
	IPv6 []string `yaml:"ipv6"`
}

// CapabilitySpec describes a capability and the zone keys serving it.
type CapabilitySpec struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Zones       []string `yaml:"zones"`
}

// Parse decodes a YAML document. It does not validate it.
func Parse(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyDocument
	}
	var doc *Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if doc == nil {
		return nil, ErrEmptyDocument
	}
	return doc, nil
}

// Load reads and parses the document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Seed returns the built-in inventory served until an operator uploads one.
func Seed() (*Document, error) {
	return Parse(seedYAML)
}

// SeedYAML returns the raw bytes of the built-in inventory.
func SeedYAML() []byte {
	return bytes.Clone(seedYAML)
}
