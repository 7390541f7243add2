package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"medorder/internal/access/models"
	dErrors "medorder/pkg/domain-errors"
)

// Load reads a policy file. The file is a YAML mapping of pattern to role
// list; declared order is significant for prefix matching:
//
//	/products/manage: [seller, admin]
//	/orders/pending: [admin]
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("policy file %s: %w", path, err)
	}
	return p, nil
}

// Parse builds a policy from YAML. The node API is used because decoding into
// a Go map would lose declaration order.
func Parse(data []byte) (*Policy, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid policy YAML")
	}
	if len(doc.Content) == 0 {
		return New(nil)
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("policy must be a mapping, line %d", root.Line))
	}

	entries := make([]Entry, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		var names []string
		if err := value.Decode(&names); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("roles for %q, line %d", key.Value, value.Line))
		}
		roles, err := models.ParseRoleSet(names)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("roles for %q, line %d", key.Value, value.Line))
		}
		entries = append(entries, Entry{Pattern: key.Value, Roles: roles})
	}
	return New(entries)
}
