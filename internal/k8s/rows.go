package k8s

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/ASoldo/orca/internal/kinds"
	"github.com/ASoldo/orca/internal/store"
)

// RowFromObject decodes one unstructured object into a displayable row. The
// column set follows the capability table for the kind; kinds without a
// dedicated decoder fall back to name and age only.
func RowFromObject(kind kinds.Kind, obj *unstructured.Unstructured) store.Row {
	row := store.Row{
		UID:       string(obj.GetUID()),
		Kind:      kind,
		Namespace: obj.GetNamespace(),
		Name:      obj.GetName(),
		Age:       time.Since(obj.GetCreationTimestamp().Time),
	}

	switch kind {
	case kinds.Pods:
		row.Columns, row.StatusHint = podColumns(obj)
	case kinds.Deployments:
		row.Columns, row.StatusHint = deploymentColumns(obj)
	case kinds.DaemonSets:
		row.Columns = daemonSetColumns(obj)
	case kinds.ReplicaSets, kinds.ReplicationControllers:
		row.Columns = replicaColumns(obj)
	case kinds.StatefulSets:
		row.Columns = statefulSetColumns(obj)
	case kinds.Jobs:
		row.Columns = jobColumns(obj)
	case kinds.CronJobs:
		row.Columns = cronJobColumns(obj)
	case kinds.Services:
		row.Columns = serviceColumns(obj)
	case kinds.Ingresses:
		row.Columns = ingressColumns(obj)
	case kinds.IngressClasses:
		row.Columns = []string{nestedString(obj, "spec", "controller")}
	case kinds.ConfigMaps:
		row.Columns = []string{fmt.Sprintf("%d", nestedMapLen(obj, "data"))}
	case kinds.Secrets:
		row.Columns = []string{nestedString(obj, "type"), fmt.Sprintf("%d", nestedMapLen(obj, "data"))}
	case kinds.PersistentVolumeClaims:
		row.Columns, row.StatusHint = pvcColumns(obj)
	case kinds.PersistentVolumes:
		row.Columns, row.StatusHint = pvColumns(obj)
	case kinds.StorageClasses:
		row.Columns = []string{nestedString(obj, "provisioner"), nestedString(obj, "reclaimPolicy")}
	case kinds.ServiceAccounts:
		row.Columns = []string{fmt.Sprintf("%d", nestedSliceLen(obj, "secrets"))}
	case kinds.RoleBindings, kinds.ClusterRoleBindings:
		row.Columns = []string{nestedString(obj, "roleRef", "name")}
	case kinds.NetworkPolicies:
		row.Columns = []string{labelSelectorString(obj, "spec", "podSelector", "matchLabels")}
	case kinds.Nodes:
		row.Columns, row.StatusHint = nodeColumns(obj)
	case kinds.Events:
		row.Columns, row.StatusHint = eventColumns(obj)
	case kinds.Namespaces:
		status := nestedString(obj, "status", "phase")
		row.Columns = []string{status}
		row.StatusHint = status
	}
	return row
}

// RowFromCRD renders a catalog row for a discovered CRD.
func RowFromCRD(crd CRDInfo) store.Row {
	return store.Row{
		UID:  crd.Name,
		Kind: kinds.CRDs,
		Name: crd.Name,
		Columns: []string{
			crd.Group, crd.Version, crd.Kind, crdScopeLabel(crd.Namespaced),
		},
		Extra: map[string]string{
			"group":   crd.Group,
			"version": crd.Version,
			"plural":  crd.Plural,
		},
	}
}

func crdScopeLabel(namespaced bool) string {
	if namespaced {
		return "Namespaced"
	}
	return "Cluster"
}

func crdInfoFromObject(obj *unstructured.Unstructured) CRDInfo {
	info := CRDInfo{
		Name:       obj.GetName(),
		Group:      nestedString(obj, "spec", "group"),
		Kind:       nestedString(obj, "spec", "names", "kind"),
		Plural:     nestedString(obj, "spec", "names", "plural"),
		Namespaced: nestedString(obj, "spec", "scope") == "Namespaced",
	}
	if versions, ok, _ := unstructured.NestedSlice(obj.Object, "spec", "versions"); ok {
		for _, v := range versions {
			entry, ok := v.(map[string]any)
			if !ok {
				continue
			}
			if served, _ := entry["served"].(bool); served {
				info.Version, _ = entry["name"].(string)
				if storage, _ := entry["storage"].(bool); storage {
					break
				}
			}
		}
	}
	return info
}

func podColumns(obj *unstructured.Unstructured) ([]string, string) {
	phase := nestedString(obj, "status", "phase")
	statuses, _, _ := unstructured.NestedSlice(obj.Object, "status", "containerStatuses")
	ready, restarts := 0, int64(0)
	for _, s := range statuses {
		entry, ok := s.(map[string]any)
		if !ok {
			continue
		}
		if r, _ := entry["ready"].(bool); r {
			ready++
		}
		if rc, ok := entry["restartCount"].(int64); ok {
			restarts += rc
		}
		// A waiting reason (CrashLoopBackOff, ImagePullBackOff) is a better
		// status hint than the phase.
		if waiting, ok, _ := unstructured.NestedString(entry, "state", "waiting", "reason"); ok && waiting != "" {
			phase = waiting
		}
	}
	cols := []string{
		fmt.Sprintf("%d/%d", ready, len(statuses)),
		phase,
		fmt.Sprintf("%d", restarts),
		nestedString(obj, "spec", "nodeName"),
		nestedString(obj, "status", "podIP"),
	}
	return cols, phase
}

func deploymentColumns(obj *unstructured.Unstructured) ([]string, string) {
	desired := nestedInt(obj, "spec", "replicas")
	ready := nestedInt(obj, "status", "readyReplicas")
	upToDate := nestedInt(obj, "status", "updatedReplicas")
	available := nestedInt(obj, "status", "availableReplicas")
	hint := "Ready"
	if ready < desired {
		hint = "Progressing"
	}
	return []string{
		fmt.Sprintf("%d/%d", ready, desired),
		fmt.Sprintf("%d", upToDate),
		fmt.Sprintf("%d", available),
	}, hint
}

func daemonSetColumns(obj *unstructured.Unstructured) []string {
	return []string{
		fmt.Sprintf("%d", nestedInt(obj, "status", "desiredNumberScheduled")),
		fmt.Sprintf("%d", nestedInt(obj, "status", "currentNumberScheduled")),
		fmt.Sprintf("%d", nestedInt(obj, "status", "numberReady")),
		fmt.Sprintf("%d", nestedInt(obj, "status", "updatedNumberScheduled")),
	}
}

func replicaColumns(obj *unstructured.Unstructured) []string {
	return []string{
		fmt.Sprintf("%d", nestedInt(obj, "spec", "replicas")),
		fmt.Sprintf("%d", nestedInt(obj, "status", "replicas")),
		fmt.Sprintf("%d", nestedInt(obj, "status", "readyReplicas")),
	}
}

func statefulSetColumns(obj *unstructured.Unstructured) []string {
	return []string{
		fmt.Sprintf("%d/%d",
			nestedInt(obj, "status", "readyReplicas"),
			nestedInt(obj, "spec", "replicas")),
	}
}

func jobColumns(obj *unstructured.Unstructured) []string {
	completions := nestedInt(obj, "spec", "completions")
	succeeded := nestedInt(obj, "status", "succeeded")
	duration := ""
	if start, ok, _ := unstructured.NestedString(obj.Object, "status", "startTime"); ok {
		if end, ok, _ := unstructured.NestedString(obj.Object, "status", "completionTime"); ok {
			duration = timestampDelta(start, end)
		}
	}
	return []string{fmt.Sprintf("%d/%d", succeeded, completions), duration}
}

func cronJobColumns(obj *unstructured.Unstructured) []string {
	suspend := "False"
	if b, ok, _ := unstructured.NestedBool(obj.Object, "spec", "suspend"); ok && b {
		suspend = "True"
	}
	last := ""
	if ts, ok, _ := unstructured.NestedString(obj.Object, "status", "lastScheduleTime"); ok {
		last = relativeTimestamp(ts)
	}
	return []string{
		nestedString(obj, "spec", "schedule"),
		suspend,
		fmt.Sprintf("%d", nestedSliceLen(obj, "status", "active")),
		last,
	}
}

func serviceColumns(obj *unstructured.Unstructured) []string {
	external := "<none>"
	if ingress, ok, _ := unstructured.NestedSlice(obj.Object, "status", "loadBalancer", "ingress"); ok && len(ingress) > 0 {
		parts := []string{}
		for _, entry := range ingress {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			if ip, _ := m["ip"].(string); ip != "" {
				parts = append(parts, ip)
			} else if host, _ := m["hostname"].(string); host != "" {
				parts = append(parts, host)
			}
		}
		if len(parts) > 0 {
			external = strings.Join(parts, ",")
		}
	}
	ports := []string{}
	if specPorts, ok, _ := unstructured.NestedSlice(obj.Object, "spec", "ports"); ok {
		for _, entry := range specPorts {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			port, _ := m["port"].(int64)
			proto, _ := m["protocol"].(string)
			ports = append(ports, fmt.Sprintf("%d/%s", port, proto))
		}
	}
	return []string{
		nestedString(obj, "spec", "type"),
		nestedString(obj, "spec", "clusterIP"),
		external,
		strings.Join(ports, ","),
	}
}

func ingressColumns(obj *unstructured.Unstructured) []string {
	hosts := []string{}
	if rules, ok, _ := unstructured.NestedSlice(obj.Object, "spec", "rules"); ok {
		for _, entry := range rules {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			if host, _ := m["host"].(string); host != "" {
				hosts = append(hosts, host)
			}
		}
	}
	address := ""
	if ingress, ok, _ := unstructured.NestedSlice(obj.Object, "status", "loadBalancer", "ingress"); ok && len(ingress) > 0 {
		if m, ok := ingress[0].(map[string]any); ok {
			address, _ = m["ip"].(string)
			if address == "" {
				address, _ = m["hostname"].(string)
			}
		}
	}
	return []string{
		nestedString(obj, "spec", "ingressClassName"),
		strings.Join(hosts, ","),
		address,
		"80, 443",
	}
}

func pvcColumns(obj *unstructured.Unstructured) ([]string, string) {
	phase := nestedString(obj, "status", "phase")
	capacity := nestedString(obj, "status", "capacity", "storage")
	modes, _, _ := unstructured.NestedStringSlice(obj.Object, "spec", "accessModes")
	return []string{
		phase,
		nestedString(obj, "spec", "volumeName"),
		capacity,
		strings.Join(modes, ","),
	}, phase
}

func pvColumns(obj *unstructured.Unstructured) ([]string, string) {
	phase := nestedString(obj, "status", "phase")
	modes, _, _ := unstructured.NestedStringSlice(obj.Object, "spec", "accessModes")
	claim := ""
	if ns, ok, _ := unstructured.NestedString(obj.Object, "spec", "claimRef", "namespace"); ok {
		claim = ns + "/" + nestedString(obj, "spec", "claimRef", "name")
	}
	return []string{
		nestedString(obj, "spec", "capacity", "storage"),
		strings.Join(modes, ","),
		phase,
		claim,
	}, phase
}

func nodeColumns(obj *unstructured.Unstructured) ([]string, string) {
	status := "NotReady"
	if conditions, ok, _ := unstructured.NestedSlice(obj.Object, "status", "conditions"); ok {
		for _, entry := range conditions {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			if t, _ := m["type"].(string); t == "Ready" {
				if s, _ := m["status"].(string); s == "True" {
					status = "Ready"
				}
			}
		}
	}
	if b, ok, _ := unstructured.NestedBool(obj.Object, "spec", "unschedulable"); ok && b {
		status += ",SchedulingDisabled"
	}
	roles := []string{}
	for label := range obj.GetLabels() {
		if role, ok := strings.CutPrefix(label, "node-role.kubernetes.io/"); ok {
			roles = append(roles, role)
		}
	}
	sort.Strings(roles)
	return []string{
		status,
		strings.Join(roles, ","),
		nestedString(obj, "status", "nodeInfo", "kubeletVersion"),
	}, status
}

func eventColumns(obj *unstructured.Unstructured) ([]string, string) {
	evType := nestedString(obj, "type")
	object := nestedString(obj, "involvedObject", "kind") + "/" + nestedString(obj, "involvedObject", "name")
	return []string{
		evType,
		nestedString(obj, "reason"),
		object,
		nestedString(obj, "message"),
	}, evType
}

func nestedString(obj *unstructured.Unstructured, fields ...string) string {
	s, _, _ := unstructured.NestedString(obj.Object, fields...)
	return s
}

func nestedInt(obj *unstructured.Unstructured, fields ...string) int64 {
	n, _, _ := unstructured.NestedInt64(obj.Object, fields...)
	return n
}

func nestedMapLen(obj *unstructured.Unstructured, fields ...string) int {
	m, _, _ := unstructured.NestedMap(obj.Object, fields...)
	return len(m)
}

func nestedSliceLen(obj *unstructured.Unstructured, fields ...string) int {
	s, _, _ := unstructured.NestedSlice(obj.Object, fields...)
	return len(s)
}

func labelSelectorString(obj *unstructured.Unstructured, fields ...string) string {
	m, ok, _ := unstructured.NestedStringMap(obj.Object, fields...)
	if !ok || len(m) == 0 {
		return "<none>"
	}
	parts := make([]string, 0, len(m))
	for k, v := range m {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func timestampDelta(start, end string) string {
	s, err1 := time.Parse(time.RFC3339, start)
	e, err2 := time.Parse(time.RFC3339, end)
	if err1 != nil || err2 != nil {
		return ""
	}
	return e.Sub(s).Round(time.Second).String()
}

func relativeTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}
