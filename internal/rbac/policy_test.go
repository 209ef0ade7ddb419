package rbac

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testPolicy = `
roles:
  - name: Project_Manager
    description: approves and cancels orders
    permissions:
      - procurement-orders/view
      - procurement-orders/approve
      - Procurement-Orders/Cancel
      - procurement-orders/view
  - name: site_supervisor
    permissions: [procurement-orders/view, procurement-orders/receive]
`

func TestParsePolicy(t *testing.T) {
	policy, err := ParsePolicy(strings.NewReader(testPolicy))
	require.NoError(t, err)

	perms, err := policy.RolePermissions(context.Background(), " project_manager ")
	require.NoError(t, err)
	require.Equal(t, []string{"procurement-orders/view", "procurement-orders/approve", "procurement-orders/cancel"}, perms)

	perms, err = policy.RolePermissions(context.Background(), "accountant")
	require.NoError(t, err)
	require.Empty(t, perms)
}

func TestParsePolicyRejectsBadRoles(t *testing.T) {
	_, err := ParsePolicy(strings.NewReader("roles:\n  - name: a\n  - name: A\n"))
	require.ErrorContains(t, err, "duplicate")

	_, err = ParsePolicy(strings.NewReader("roles:\n  - permissions: [x]\n"))
	require.ErrorContains(t, err, "without name")

	_, err = ParsePolicy(strings.NewReader("roles: {"))
	require.Error(t, err)
}

func TestLoadPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testPolicy), 0o600))
	policy, err := LoadPolicyFile(path)
	require.NoError(t, err)
	require.Len(t, policy.Roles, 2)

	_, err = LoadPolicyFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestServiceCan(t *testing.T) {
	policy, err := ParsePolicy(strings.NewReader(testPolicy))
	require.NoError(t, err)
	svc := NewService(policy)
	ctx := context.Background()

	ok, err := svc.Can(ctx, "project_manager", "procurement-orders/cancel")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.Can(ctx, "site_supervisor", "procurement-orders/cancel")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.Can(ctx, "", "procurement-orders/view")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = NewService(nil).Can(ctx, "project_manager", "procurement-orders/view")
	require.Error(t, err)
}
