// Package k8s is the cluster collaborator: listing, watching and mutating
// resources through client-go, plus kubeconfig catalog enumeration. The
// runtime core consumes only the Client interface; tests substitute fakes.
package k8s

import (
	"context"
	"io"

	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/ASoldo/orca/internal/kinds"
	"github.com/ASoldo/orca/internal/store"
)

// Ref identifies one cluster resource for get/mutate operations.
type Ref struct {
	Kind      kinds.Kind
	Namespace string
	Name      string
	// GVR overrides the capability table's resource, used for CRD instances.
	GVR schema.GroupVersionResource
}

func (r Ref) String() string {
	if r.Namespace == "" {
		return r.Name
	}
	return r.Namespace + "/" + r.Name
}

// Resource resolves the GroupVersionResource for the ref.
func (r Ref) Resource() schema.GroupVersionResource {
	if r.GVR.Resource != "" {
		return r.GVR
	}
	return kinds.Caps(r.Kind).GVR
}

// CRDInfo describes one discovered custom resource definition.
type CRDInfo struct {
	Name       string
	Group      string
	Version    string
	Kind       string
	Plural     string
	Namespaced bool
}

// GVR returns the instance resource for the CRD.
func (c CRDInfo) GVR() schema.GroupVersionResource {
	return schema.GroupVersionResource{Group: c.Group, Version: c.Version, Resource: c.Plural}
}

// ContextEntry is one kubeconfig context row.
type ContextEntry struct {
	Name    string
	Cluster string
	User    string
	Current bool
}

// LogOptions narrows a log stream request.
type LogOptions struct {
	Container string
	Follow    bool
	TailLines int64
	Previous  bool
}

// PortForwardRequest describes one forwarding session.
type PortForwardRequest struct {
	Namespace  string
	PodName    string
	LocalPort  int
	RemotePort int
	// Ready closes once the local listener is bound.
	Ready chan struct{}
	// Stop terminates the forwarder when closed.
	Stop chan struct{}
	// Out and ErrOut capture forwarder output for the PF registry.
	Out    io.Writer
	ErrOut io.Writer
}

// Client is the narrow interface the runtime core holds on the cluster.
type Client interface {
	// List returns the rows for (kind, scope) plus the list resource version
	// watches resume from.
	List(ctx context.Context, kind kinds.Kind, scope store.Scope, gvr schema.GroupVersionResource) ([]store.Row, string, error)
	// Watch opens a delta stream from a resource version.
	Watch(ctx context.Context, kind kinds.Kind, scope store.Scope, gvr schema.GroupVersionResource, fromVersion string) (watch.Interface, error)
	// Get fetches the full document as YAML for details and edit.
	Get(ctx context.Context, ref Ref) ([]byte, error)
	// Apply replaces the resource with the edited YAML document.
	Apply(ctx context.Context, ref Ref, document []byte) error
	Delete(ctx context.Context, ref Ref) error
	Scale(ctx context.Context, ref Ref, replicas int) error
	// RestartRollout patches the pod template restart annotation.
	RestartRollout(ctx context.Context, ref Ref) error
	Logs(ctx context.Context, namespace, pod string, opts LogOptions) (io.ReadCloser, error)
	// PodContainers lists container names for the container picker.
	PodContainers(ctx context.Context, namespace, pod string) ([]string, error)
	// PodForService resolves a service's backing pod for port-forwarding.
	PodForService(ctx context.Context, namespace, service string) (string, error)
	PortForward(req PortForwardRequest) error
	Contexts() ([]ContextEntry, error)
	CurrentContext() string
	DiscoverCRDs(ctx context.Context) ([]CRDInfo, error)
}
