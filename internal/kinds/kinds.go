// Package kinds defines the set of cluster resource kinds orca can display,
// their aliases, and the per-kind capability table used by the store, the
// watch multiplexer, and the command dispatcher.
package kinds

import (
	"strings"

	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Kind identifies a supported resource kind.
type Kind string

const (
	Pods                   Kind = "pods"
	CronJobs               Kind = "cronjobs"
	DaemonSets             Kind = "daemonsets"
	Deployments            Kind = "deployments"
	ReplicaSets            Kind = "replicasets"
	ReplicationControllers Kind = "replicationcontrollers"
	StatefulSets           Kind = "statefulsets"
	Jobs                   Kind = "jobs"
	Services               Kind = "services"
	Ingresses              Kind = "ingresses"
	IngressClasses         Kind = "ingressclasses"
	ConfigMaps             Kind = "configmaps"
	PersistentVolumeClaims Kind = "persistentvolumeclaims"
	Secrets                Kind = "secrets"
	StorageClasses         Kind = "storageclasses"
	PersistentVolumes      Kind = "persistentvolumes"
	ServiceAccounts        Kind = "serviceaccounts"
	Roles                  Kind = "roles"
	RoleBindings           Kind = "rolebindings"
	ClusterRoles           Kind = "clusterroles"
	ClusterRoleBindings    Kind = "clusterrolebindings"
	NetworkPolicies        Kind = "networkpolicies"
	Nodes                  Kind = "nodes"
	Events                 Kind = "events"
	Namespaces             Kind = "namespaces"
	CRDs                   Kind = "customresourcedefinitions"
	CRDInstances           Kind = "crdinstances"
)

// All lists every kind in tab order.
var All = []Kind{
	Pods, CronJobs, DaemonSets, Deployments, ReplicaSets,
	ReplicationControllers, StatefulSets, Jobs, Services, Ingresses,
	IngressClasses, ConfigMaps, PersistentVolumeClaims, Secrets,
	StorageClasses, PersistentVolumes, ServiceAccounts, Roles, RoleBindings,
	ClusterRoles, ClusterRoleBindings, NetworkPolicies, Nodes, Events,
	Namespaces, CRDs, CRDInstances,
}

// Capabilities describes what operations and transports a kind supports.
type Capabilities struct {
	Title           string
	Namespaced      bool
	Watchable       bool // false means the multiplexer uses polling fallback
	SupportsScale   bool
	SupportsRestart bool
	SupportsLogs    bool
	SupportsExec    bool
	GVR             schema.GroupVersionResource
	Columns         []string
}

var capabilities = map[Kind]Capabilities{
	Pods: {
		Title: "Pods", Namespaced: true, Watchable: true,
		SupportsLogs: true, SupportsExec: true,
		GVR:     schema.GroupVersionResource{Version: "v1", Resource: "pods"},
		Columns: []string{"Ready", "Status", "Restarts", "Node", "IP"},
	},
	CronJobs: {
		Title: "CronJobs", Namespaced: true, Watchable: true,
		GVR:     schema.GroupVersionResource{Group: "batch", Version: "v1", Resource: "cronjobs"},
		Columns: []string{"Schedule", "Suspend", "Active", "Last Schedule"},
	},
	DaemonSets: {
		Title: "DaemonSets", Namespaced: true, Watchable: true, SupportsRestart: true,
		GVR:     schema.GroupVersionResource{Group: "apps", Version: "v1", Resource: "daemonsets"},
		Columns: []string{"Desired", "Current", "Ready", "Up-to-date"},
	},
	Deployments: {
		Title: "Deployments", Namespaced: true, Watchable: true,
		SupportsScale: true, SupportsRestart: true,
		GVR:     schema.GroupVersionResource{Group: "apps", Version: "v1", Resource: "deployments"},
		Columns: []string{"Ready", "Up-to-date", "Available"},
	},
	ReplicaSets: {
		Title: "ReplicaSets", Namespaced: true, Watchable: true, SupportsScale: true,
		GVR:     schema.GroupVersionResource{Group: "apps", Version: "v1", Resource: "replicasets"},
		Columns: []string{"Desired", "Current", "Ready"},
	},
	ReplicationControllers: {
		Title: "ReplicationControllers", Namespaced: true, Watchable: true, SupportsScale: true,
		GVR:     schema.GroupVersionResource{Version: "v1", Resource: "replicationcontrollers"},
		Columns: []string{"Desired", "Current", "Ready"},
	},
	StatefulSets: {
		Title: "StatefulSets", Namespaced: true, Watchable: true,
		SupportsScale: true, SupportsRestart: true,
		GVR:     schema.GroupVersionResource{Group: "apps", Version: "v1", Resource: "statefulsets"},
		Columns: []string{"Ready"},
	},
	Jobs: {
		Title: "Jobs", Namespaced: true, Watchable: true,
		GVR:     schema.GroupVersionResource{Group: "batch", Version: "v1", Resource: "jobs"},
		Columns: []string{"Completions", "Duration"},
	},
	Services: {
		Title: "Services", Namespaced: true, Watchable: true,
		GVR:     schema.GroupVersionResource{Version: "v1", Resource: "services"},
		Columns: []string{"Type", "Cluster-IP", "External-IP", "Ports"},
	},
	Ingresses: {
		Title: "Ingresses", Namespaced: true, Watchable: true,
		GVR:     schema.GroupVersionResource{Group: "networking.k8s.io", Version: "v1", Resource: "ingresses"},
		Columns: []string{"Class", "Hosts", "Address", "Ports"},
	},
	IngressClasses: {
		Title: "IngressClasses", Watchable: true,
		GVR:     schema.GroupVersionResource{Group: "networking.k8s.io", Version: "v1", Resource: "ingressclasses"},
		Columns: []string{"Controller"},
	},
	ConfigMaps: {
		Title: "ConfigMaps", Namespaced: true, Watchable: true,
		GVR:     schema.GroupVersionResource{Version: "v1", Resource: "configmaps"},
		Columns: []string{"Data"},
	},
	PersistentVolumeClaims: {
		Title: "PVC", Namespaced: true, Watchable: true,
		GVR:     schema.GroupVersionResource{Version: "v1", Resource: "persistentvolumeclaims"},
		Columns: []string{"Status", "Volume", "Capacity", "Access"},
	},
	Secrets: {
		Title: "Secrets", Namespaced: true, Watchable: true,
		GVR:     schema.GroupVersionResource{Version: "v1", Resource: "secrets"},
		Columns: []string{"Type", "Data"},
	},
	StorageClasses: {
		Title: "StorageClasses", Watchable: true,
		GVR:     schema.GroupVersionResource{Group: "storage.k8s.io", Version: "v1", Resource: "storageclasses"},
		Columns: []string{"Provisioner", "Reclaim"},
	},
	PersistentVolumes: {
		Title: "PersistentVolumes", Watchable: true,
		GVR:     schema.GroupVersionResource{Version: "v1", Resource: "persistentvolumes"},
		Columns: []string{"Capacity", "Access", "Status", "Claim"},
	},
	ServiceAccounts: {
		Title: "ServiceAccounts", Namespaced: true, Watchable: true,
		GVR:     schema.GroupVersionResource{Version: "v1", Resource: "serviceaccounts"},
		Columns: []string{"Secrets"},
	},
	Roles: {
		Title: "Roles", Namespaced: true, Watchable: true,
		GVR:     schema.GroupVersionResource{Group: "rbac.authorization.k8s.io", Version: "v1", Resource: "roles"},
		Columns: []string{},
	},
	RoleBindings: {
		Title: "RoleBindings", Namespaced: true, Watchable: true,
		GVR:     schema.GroupVersionResource{Group: "rbac.authorization.k8s.io", Version: "v1", Resource: "rolebindings"},
		Columns: []string{"Role"},
	},
	ClusterRoles: {
		Title: "ClusterRoles", Watchable: true,
		GVR:     schema.GroupVersionResource{Group: "rbac.authorization.k8s.io", Version: "v1", Resource: "clusterroles"},
		Columns: []string{},
	},
	ClusterRoleBindings: {
		Title: "ClusterRoleBindings", Watchable: true,
		GVR:     schema.GroupVersionResource{Group: "rbac.authorization.k8s.io", Version: "v1", Resource: "clusterrolebindings"},
		Columns: []string{"Role"},
	},
	NetworkPolicies: {
		Title: "NetworkPolicies", Namespaced: true, Watchable: true,
		GVR:     schema.GroupVersionResource{Group: "networking.k8s.io", Version: "v1", Resource: "networkpolicies"},
		Columns: []string{"Pod-Selector"},
	},
	Nodes: {
		Title: "Nodes", Watchable: true,
		GVR:     schema.GroupVersionResource{Version: "v1", Resource: "nodes"},
		Columns: []string{"Status", "Roles", "Version"},
	},
	Events: {
		Title: "Events", Namespaced: true, Watchable: true,
		GVR:     schema.GroupVersionResource{Version: "v1", Resource: "events"},
		Columns: []string{"Type", "Reason", "Object", "Message"},
	},
	Namespaces: {
		Title: "Namespaces", Watchable: true,
		GVR:     schema.GroupVersionResource{Version: "v1", Resource: "namespaces"},
		Columns: []string{"Status"},
	},
	CRDs: {
		// The CRD discovery catalog is list-only; the multiplexer polls it.
		Title: "CRD", Watchable: false,
		GVR:     schema.GroupVersionResource{Group: "apiextensions.k8s.io", Version: "v1", Resource: "customresourcedefinitions"},
		Columns: []string{"Group", "Version", "Kind", "Scope"},
	},
	CRDInstances: {
		Title: "CRDInstance", Namespaced: true, Watchable: true,
		Columns: []string{},
	},
}

// Caps returns the capability table entry for a kind.
func Caps(k Kind) Capabilities {
	return capabilities[k]
}

// Title returns the display title for a kind.
func (k Kind) Title() string {
	return capabilities[k].Title
}

// Namespaced reports whether the kind is namespace-scoped. Cluster-scoped
// kinds ignore namespace selection.
func (k Kind) Namespaced() bool {
	return capabilities[k].Namespaced
}

// aliases maps every accepted token to its kind. Lookup is case-insensitive
// and tokens are unique across kinds.
var aliases = map[string]Kind{}

func registerAliases(k Kind, tokens ...string) {
	for _, t := range tokens {
		aliases[t] = k
	}
}

func init() {
	registerAliases(Pods, "po", "pod", "pods")
	registerAliases(CronJobs, "cj", "cronjob", "cronjobs", "cron-job", "cron-jobs")
	registerAliases(DaemonSets, "ds", "daemonset", "daemonsets", "daemon-set", "daemon-sets")
	registerAliases(Deployments, "deploy", "deployment", "deployments", "dp")
	registerAliases(ReplicaSets, "rs", "replicaset", "replicasets", "replica-set", "replica-sets")
	registerAliases(ReplicationControllers, "rc", "replicationcontroller", "replicationcontrollers",
		"replication-controller", "replication-controllers")
	registerAliases(StatefulSets, "sts", "statefulset", "statefulsets")
	registerAliases(Jobs, "job", "jobs")
	registerAliases(Services, "svc", "service", "services")
	registerAliases(Ingresses, "ing", "ingress", "ingresses")
	registerAliases(IngressClasses, "ic", "ingclass", "ingressclass", "ingressclasses",
		"ingress-class", "ingress-classes")
	registerAliases(ConfigMaps, "cm", "configmap", "configmaps", "config-map", "config-maps")
	registerAliases(PersistentVolumeClaims, "pvc", "persistentvolumeclaim", "persistentvolumeclaims",
		"persistent-volume-claim", "persistent-volume-claims")
	registerAliases(Secrets, "secret", "secrets")
	registerAliases(StorageClasses, "sc", "storageclass", "storageclasses", "storage-class", "storage-classes")
	registerAliases(PersistentVolumes, "pv", "persistentvolume", "persistentvolumes",
		"persistent-volume", "persistent-volumes")
	registerAliases(ServiceAccounts, "sa", "serviceaccount", "serviceaccounts",
		"service-account", "service-accounts")
	registerAliases(Roles, "role", "roles")
	registerAliases(RoleBindings, "rb", "rolebinding", "rolebindings", "role-binding", "role-bindings")
	registerAliases(ClusterRoles, "clusterrole", "clusterroles", "cluster-role", "cluster-roles")
	registerAliases(ClusterRoleBindings, "crb", "clusterrolebinding", "clusterrolebindings",
		"cluster-role-binding", "cluster-role-bindings")
	registerAliases(NetworkPolicies, "np", "netpol", "networkpolicy", "networkpolicies",
		"network-policy", "network-policies")
	registerAliases(Nodes, "no", "node", "nodes")
	registerAliases(Events, "ev", "event", "events")
	registerAliases(Namespaces, "ns", "namespace", "namespaces")
	registerAliases(CRDs, "crd", "crds", "customresourcedefinition", "customresourcedefinitions")
}

// FromToken resolves an alias to its kind. Matching is case-insensitive.
func FromToken(token string) (Kind, bool) {
	k, ok := aliases[strings.ToLower(strings.TrimSpace(token))]
	return k, ok
}

// PrimaryAlias returns the shortest registered alias for a kind, used as the
// canonical short form in help and status text.
func PrimaryAlias(k Kind) string {
	best := ""
	for token, kind := range aliases {
		if kind != k {
			continue
		}
		if best == "" || len(token) < len(best) || (len(token) == len(best) && token < best) {
			best = token
		}
	}
	return best
}

// Aliases returns every registered token for a kind, unordered.
func Aliases(k Kind) []string {
	out := []string{}
	for token, kind := range aliases {
		if kind == k {
			out = append(out, token)
		}
	}
	return out
}

// AllTokens returns the full alias vocabulary, used by autocomplete.
func AllTokens() []string {
	out := make([]string, 0, len(aliases))
	for token := range aliases {
		out = append(out, token)
	}
	return out
}
