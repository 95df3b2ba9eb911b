package catalog

import (
	"fmt"
	"regexp"
	"strings"
)

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

var serviceCodeRegex = regexp.MustCompile(`^[a-z0-9_]+$`)

// IsValidServiceCode reports whether code looks like a label API service code.
func IsValidServiceCode(code string) bool {
	return serviceCodeRegex.MatchString(code)
}

func (v *Validator) Validate(catalog *CarrierCatalog) error {
	if catalog == nil || len(catalog.Services) == 0 {
		return fmt.Errorf("at least one carrier service is required")
	}

	seen := make(map[string]string)
	for i, service := range catalog.Services {
		if err := v.validateService(&service); err != nil {
			return fmt.Errorf("service %d validation failed: %w", i, err)
		}

		keys := append([]string{service.Label}, service.Aliases...)
		for _, key := range keys {
			normalized := normalizeLabel(key)
			if owner, ok := seen[normalized]; ok {
				return fmt.Errorf("duplicate method label %q (already used by %s)", key, owner)
			}
			seen[normalized] = service.Label
		}
	}

	return nil
}

func (v *Validator) validateService(service *CarrierService) error {
	if strings.TrimSpace(service.Label) == "" {
		return fmt.Errorf("service label is required")
	}
	if strings.TrimSpace(service.Carrier) == "" {
		return fmt.Errorf("service carrier is required")
	}
	if !IsValidServiceCode(service.Code) {
		return fmt.Errorf("service code %q must be lowercase letters, digits or underscores", service.Code)
	}
	for _, alias := range service.Aliases {
		if strings.TrimSpace(alias) == "" {
			return fmt.Errorf("service %s has an empty alias", service.Label)
		}
	}
	return nil
}
