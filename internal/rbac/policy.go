package rbac

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PolicyFile is a static role policy loaded from YAML:
//
//	roles:
//	  - name: project_manager
//	    permissions: [procurement-orders/view, procurement-orders/approve]
type PolicyFile struct {
	Roles []Role `yaml:"roles"`

	index map[string][]string
}

// LoadPolicyFile reads a YAML policy from disk.
func LoadPolicyFile(path string) (*PolicyFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rbac: open policy: %w", err)
	}
	defer f.Close()
	return ParsePolicy(f)
}

// ParsePolicy decodes a YAML policy. Role names and permissions are matched
// case-insensitively.
func ParsePolicy(r io.Reader) (*PolicyFile, error) {
	var policy PolicyFile
	if err := yaml.NewDecoder(r).Decode(&policy); err != nil {
		return nil, fmt.Errorf("rbac: decode policy: %w", err)
	}
	policy.index = make(map[string][]string, len(policy.Roles))
	for _, role := range policy.Roles {
		name := normalizeRole(role.Name)
		if name == "" {
			return nil, fmt.Errorf("rbac: policy role without name")
		}
		if _, dup := policy.index[name]; dup {
			return nil, fmt.Errorf("rbac: duplicate policy role %q", role.Name)
		}
		policy.index[name] = normalizePermissions(role.Permissions)
	}
	return &policy, nil
}

// RolePermissions implements PermissionSource. Unknown roles hold nothing.
func (p *PolicyFile) RolePermissions(_ context.Context, role string) ([]string, error) {
	if p == nil {
		return nil, nil
	}
	return p.index[normalizeRole(role)], nil
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
