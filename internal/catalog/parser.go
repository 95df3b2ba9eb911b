// Package catalog maps storefront shipping-method labels to carrier services.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed carriers.yaml
var defaultCatalog []byte

type CarrierCatalog struct {
	Services []CarrierService `yaml:"services"`

	index map[string]int
}

type CarrierService struct {
	Label   string   `yaml:"label"`
	Carrier string   `yaml:"carrier"`
	Code    string   `yaml:"code"`
	Aliases []string `yaml:"aliases"`
}

type Parser struct {
	validator *Validator
}

func NewParser() *Parser {
	return &Parser{validator: NewValidator()}
}

func (p *Parser) Parse(content []byte) (*CarrierCatalog, error) {
	var catalog CarrierCatalog
	if err := yaml.Unmarshal(content, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := p.validator.Validate(&catalog); err != nil {
		return nil, err
	}
	catalog.buildIndex()
	return &catalog, nil
}

func (p *Parser) ParseFromString(content string) (*CarrierCatalog, error) {
	return p.Parse([]byte(content))
}

// Load reads the catalog at path, or the bundled catalog when path is empty.
func Load(path string) (*CarrierCatalog, error) {
	parser := NewParser()
	if strings.TrimSpace(path) == "" {
		return parser.Parse(defaultCatalog)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read carrier catalog %s: %w", path, err)
	}
	return parser.Parse(content)
}

// Lookup matches a shipping-method label or one of its aliases, ignoring case
// and surrounding whitespace.
func (c *CarrierCatalog) Lookup(methodLabel string) (CarrierService, bool) {
	if c == nil {
		return CarrierService{}, false
	}
	if c.index == nil {
		c.buildIndex()
	}
	i, ok := c.index[normalizeLabel(methodLabel)]
	if !ok {
		return CarrierService{}, false
	}
	return c.Services[i], true
}

func (c *CarrierCatalog) buildIndex() {
	c.index = make(map[string]int, len(c.Services))
	for i, service := range c.Services {
		c.index[normalizeLabel(service.Label)] = i
		for _, alias := range service.Aliases {
			c.index[normalizeLabel(alias)] = i
		}
	}
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(label), " "))
}
