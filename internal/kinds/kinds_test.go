package kinds

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromToken(t *testing.T) {
	tests := []struct {
		token string
		want  Kind
	}{
		{"po", Pods},
		{"pods", Pods},
		{"cj", CronJobs},
		{"cron-jobs", CronJobs},
		{"ds", DaemonSets},
		{"deploy", Deployments},
		{"dp", Deployments},
		{"rs", ReplicaSets},
		{"rc", ReplicationControllers},
		{"replicationcontrollers", ReplicationControllers},
		{"sts", StatefulSets},
		{"svc", Services},
		{"ing", Ingresses},
		{"ingclass", IngressClasses},
		{"ic", IngressClasses},
		{"cm", ConfigMaps},
		{"pvc", PersistentVolumeClaims},
		{"persistent-volume-claims", PersistentVolumeClaims},
		{"sc", StorageClasses},
		{"pv", PersistentVolumes},
		{"sa", ServiceAccounts},
		{"rb", RoleBindings},
		{"crb", ClusterRoleBindings},
		{"cluster-role-bindings", ClusterRoleBindings},
		{"clusterroles", ClusterRoles},
		{"np", NetworkPolicies},
		{"ns", Namespaces},
		{"no", Nodes},
		{"ev", Events},
		{"crd", CRDs},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, ok := FromToken(tt.token)
			require.True(t, ok, "token %q should resolve", tt.token)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromTokenCaseInsensitive(t *testing.T) {
	for _, token := range []string{"PO", "Deploy", "SVC", "Ns"} {
		_, ok := FromToken(token)
		assert.True(t, ok, "token %q should resolve case-insensitively", token)
	}
}

func TestFromTokenUnknown(t *testing.T) {
	_, ok := FromToken("definitely-not-a-kind")
	assert.False(t, ok)
}

// Every alias resolves to exactly one kind, and every kind's primary alias
// round-trips back to it.
func TestAliasRoundTrip(t *testing.T) {
	for _, k := range All {
		if k == CRDInstances {
			continue // instances are reached by drilling into a CRD
		}
		primary := PrimaryAlias(k)
		require.NotEmpty(t, primary, "kind %s needs at least one alias", k)

		resolved, ok := FromToken(primary)
		require.True(t, ok)
		assert.Equal(t, k, resolved, "primary alias %q must round-trip", primary)

		for _, alias := range Aliases(k) {
			resolved, ok := FromToken(strings.ToUpper(alias))
			require.True(t, ok, "alias %q", alias)
			assert.Equal(t, k, resolved)
		}
	}
}

func TestCapabilityTable(t *testing.T) {
	assert.True(t, Caps(Pods).SupportsLogs)
	assert.True(t, Caps(Pods).SupportsExec)
	assert.True(t, Caps(Deployments).SupportsScale)
	assert.True(t, Caps(Deployments).SupportsRestart)
	assert.True(t, Caps(StatefulSets).SupportsScale)
	assert.False(t, Caps(Services).SupportsScale)
	assert.False(t, Caps(ConfigMaps).SupportsLogs)

	// Cluster-scoped kinds ignore namespace selection.
	for _, k := range []Kind{Nodes, Namespaces, PersistentVolumes, StorageClasses,
		ClusterRoles, ClusterRoleBindings, IngressClasses, CRDs} {
		assert.False(t, k.Namespaced(), "%s is cluster-scoped", k)
	}
	for _, k := range []Kind{Pods, Deployments, Services, Secrets, Events} {
		assert.True(t, k.Namespaced(), "%s is namespaced", k)
	}

	// The CRD catalog is the one polled kind.
	assert.False(t, Caps(CRDs).Watchable)
	assert.True(t, Caps(Pods).Watchable)
}

func TestCapsHaveGVR(t *testing.T) {
	for _, k := range All {
		if k == CRDInstances {
			continue // resolved per-CRD at drill time
		}
		assert.NotEmpty(t, Caps(k).GVR.Resource, "kind %s needs a GVR", k)
	}
}
