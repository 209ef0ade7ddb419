package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertGroup struct {
	Name  string      `yaml:"name"`
	Rules []alertRule `yaml:"rules"`
}

type alertSpec struct {
	Groups []alertGroup `yaml:"groups"`
}

func TestProcurementAlertRules(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "deploy", "prometheus", "alerts", "procurement.yml"))
	require.NoError(t, err)

	var rules alertSpec
	require.NoError(t, yaml.Unmarshal(data, &rules))
	require.Len(t, rules.Groups, 1)
	require.Equal(t, "procurement", rules.Groups[0].Name)

	severities := map[string]string{
		"HighErrorRate":    "critical",
		"HighLatency":      "warning",
		"ReceiptConflicts": "warning",
	}
	exported := []string{
		"sitetrack_http_requests_total",
		"sitetrack_http_request_duration_seconds",
		"sitetrack_order_operations_total",
		"sitetrack_order_transitions_total",
	}

	group := rules.Groups[0]
	require.Len(t, group.Rules, len(severities))
	for _, rule := range group.Rules {
		want, ok := severities[rule.Alert]
		require.Truef(t, ok, "unexpected rule %q", rule.Alert)
		require.Equal(t, want, rule.Labels["severity"], rule.Alert)
		require.NotEmpty(t, rule.Annotations["summary"], rule.Alert)
		require.NotEmpty(t, rule.Annotations["description"], rule.Alert)
		require.NotEmpty(t, rule.For, rule.Alert)

		known := false
		for _, name := range exported {
			if strings.Contains(rule.Expr, name) {
				known = true
				break
			}
		}
		require.Truef(t, known, "rule %s references no exported series", rule.Alert)
	}
}
