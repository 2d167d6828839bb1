package k8s

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	_ "k8s.io/client-go/plugin/pkg/client/auth" // auth providers (oidc, gcp, ...)
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/portforward"
	"k8s.io/client-go/transport/spdy"
	sigsyaml "sigs.k8s.io/yaml"

	"github.com/ASoldo/orca/internal/kinds"
	"github.com/ASoldo/orca/internal/store"
)

// requestTimeout bounds list/get/mutate calls. Watch streams are exempt.
const requestTimeout = 30 * time.Second

// ClusterClient implements Client with client-go's dynamic client.
type ClusterClient struct {
	restConfig  *rest.Config
	clientset   *kubernetes.Clientset
	dynamic     dynamic.Interface
	kubeconfig  string
	contextName string
}

// NewClusterClient builds a client from kubeconfig (or in-cluster when the
// path resolves to nothing and the env provides service account creds).
func NewClusterClient(kubeconfig, contextName string) (*ClusterClient, error) {
	if kubeconfig == "" {
		kubeconfig = os.Getenv("KUBECONFIG")
	}
	if kubeconfig == "" {
		if home, err := os.UserHomeDir(); err == nil {
			kubeconfig = filepath.Join(home, ".kube", "config")
		}
	}

	loadingRules := &clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfig}
	overrides := &clientcmd.ConfigOverrides{}
	if contextName != "" {
		overrides.CurrentContext = contextName
	}

	restConfig, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		loadingRules, overrides,
	).ClientConfig()
	if err != nil {
		if inCluster, icErr := rest.InClusterConfig(); icErr == nil {
			restConfig = inCluster
		} else {
			return nil, fmt.Errorf("error building kubeconfig: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("error creating clientset: %w", err)
	}
	dynamicClient, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("error creating dynamic client: %w", err)
	}

	return &ClusterClient{
		restConfig:  restConfig,
		clientset:   clientset,
		dynamic:     dynamicClient,
		kubeconfig:  kubeconfig,
		contextName: contextName,
	}, nil
}

func (c *ClusterClient) resource(kind kinds.Kind, scope store.Scope, gvr schema.GroupVersionResource) dynamic.ResourceInterface {
	if gvr.Resource == "" {
		gvr = kinds.Caps(kind).GVR
	}
	if kind.Namespaced() && !scope.AllNamespaces && scope.Namespace != "" {
		return c.dynamic.Resource(gvr).Namespace(scope.Namespace)
	}
	return c.dynamic.Resource(gvr)
}

func (c *ClusterClient) refResource(ref Ref) dynamic.ResourceInterface {
	gvr := ref.Resource()
	if ref.Namespace != "" {
		return c.dynamic.Resource(gvr).Namespace(ref.Namespace)
	}
	return c.dynamic.Resource(gvr)
}

// List implements Client.
func (c *ClusterClient) List(ctx context.Context, kind kinds.Kind, scope store.Scope, gvr schema.GroupVersionResource) ([]store.Row, string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if kind == kinds.CRDs {
		return c.listCRDRows(ctx)
	}

	list, err := c.resource(kind, scope, gvr).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("failed to list %s: %w", kind, err)
	}
	rows := make([]store.Row, 0, len(list.Items))
	for i := range list.Items {
		rows = append(rows, RowFromObject(kind, &list.Items[i]))
	}
	return rows, list.GetResourceVersion(), nil
}

// Watch implements Client.
func (c *ClusterClient) Watch(ctx context.Context, kind kinds.Kind, scope store.Scope, gvr schema.GroupVersionResource, fromVersion string) (watch.Interface, error) {
	opts := metav1.ListOptions{
		ResourceVersion:     fromVersion,
		AllowWatchBookmarks: true,
	}
	w, err := c.resource(kind, scope, gvr).Watch(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", kind, err)
	}
	return w, nil
}

// Get implements Client. The document comes back as YAML for the details
// overlay and the edit round-trip.
func (c *ClusterClient) Get(ctx context.Context, ref Ref) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	obj, err := c.refResource(ref).Get(ctx, ref.Name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", ref.Kind, ref, err)
	}
	// Managed fields only add noise to the YAML view.
	unstructured.RemoveNestedField(obj.Object, "metadata", "managedFields")
	doc, err := sigsyaml.Marshal(obj.Object)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s %s: %w", ref.Kind, ref, err)
	}
	return doc, nil
}

// Apply implements Client by replacing the object with the edited document.
func (c *ClusterClient) Apply(ctx context.Context, ref Ref, document []byte) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var obj map[string]any
	if err := sigsyaml.Unmarshal(document, &obj); err != nil {
		return fmt.Errorf("edited document is not valid YAML: %w", err)
	}
	u := &unstructured.Unstructured{Object: obj}
	if _, err := c.refResource(ref).Update(ctx, u, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to apply %s %s: %w", ref.Kind, ref, err)
	}
	return nil
}

// Delete implements Client.
func (c *ClusterClient) Delete(ctx context.Context, ref Ref) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if err := c.refResource(ref).Delete(ctx, ref.Name, metav1.DeleteOptions{}); err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", ref.Kind, ref, err)
	}
	return nil
}

// Scale implements Client through the scale subresource.
func (c *ClusterClient) Scale(ctx context.Context, ref Ref, replicas int) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	patch := fmt.Sprintf(`{"spec":{"replicas":%d}}`, replicas)
	_, err := c.refResource(ref).Patch(ctx, ref.Name, types.MergePatchType, []byte(patch), metav1.PatchOptions{}, "scale")
	if err != nil {
		return fmt.Errorf("failed to scale %s %s to %d: %w", ref.Kind, ref, replicas, err)
	}
	return nil
}

// RestartRollout implements Client with the kubectl rollout-restart
// annotation patch.
func (c *ClusterClient) RestartRollout(ctx context.Context, ref Ref) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	stamp := time.Now().Format(time.RFC3339)
	patch := fmt.Sprintf(
		`{"spec":{"template":{"metadata":{"annotations":{"kubectl.kubernetes.io/restartedAt":%q}}}}}`,
		stamp)
	_, err := c.refResource(ref).Patch(ctx, ref.Name, types.StrategicMergePatchType, []byte(patch), metav1.PatchOptions{})
	if err != nil {
		return fmt.Errorf("failed to restart %s %s: %w", ref.Kind, ref, err)
	}
	return nil
}

// Logs implements Client.
func (c *ClusterClient) Logs(ctx context.Context, namespace, pod string, opts LogOptions) (io.ReadCloser, error) {
	podOpts := &corev1.PodLogOptions{
		Container: opts.Container,
		Follow:    opts.Follow,
		Previous:  opts.Previous,
	}
	if opts.TailLines > 0 {
		podOpts.TailLines = &opts.TailLines
	}
	stream, err := c.clientset.CoreV1().Pods(namespace).GetLogs(pod, podOpts).Stream(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to stream logs for %s/%s: %w", namespace, pod, err)
	}
	return stream, nil
}

// PodContainers implements Client.
func (c *ClusterClient) PodContainers(ctx context.Context, namespace, pod string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	p, err := c.clientset.CoreV1().Pods(namespace).Get(ctx, pod, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get pod %s/%s: %w", namespace, pod, err)
	}
	names := make([]string, 0, len(p.Spec.Containers))
	for _, container := range p.Spec.Containers {
		names = append(names, container.Name)
	}
	return names, nil
}

// PodForService implements Client by matching the service selector against
// running pods, the way envctl resolves forwarding targets.
func (c *ClusterClient) PodForService(ctx context.Context, namespace, service string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	svc, err := c.clientset.CoreV1().Services(namespace).Get(ctx, service, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get service %s/%s: %w", namespace, service, err)
	}
	if len(svc.Spec.Selector) == 0 {
		return "", fmt.Errorf("service %s/%s has no selector", namespace, service)
	}
	selector := metav1.FormatLabelSelector(&metav1.LabelSelector{MatchLabels: svc.Spec.Selector})
	pods, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return "", fmt.Errorf("failed to list pods for service %s/%s: %w", namespace, service, err)
	}
	for _, pod := range pods.Items {
		if pod.Status.Phase == corev1.PodRunning {
			return pod.Name, nil
		}
	}
	return "", fmt.Errorf("no running pod backs service %s/%s", namespace, service)
}

// PortForward implements Client with the SPDY forwarder. It blocks until the
// forwarder exits, so callers run it in a task goroutine.
func (c *ClusterClient) PortForward(req PortForwardRequest) error {
	reqURL := c.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(req.Namespace).
		Name(req.PodName).
		SubResource("portforward").
		URL()

	transport, upgrader, err := spdy.RoundTripperFor(c.restConfig)
	if err != nil {
		return fmt.Errorf("failed to build SPDY transport: %w", err)
	}
	dialer := spdy.NewDialer(upgrader, &http.Client{Transport: transport}, http.MethodPost, reqURL)

	ports := []string{fmt.Sprintf("%d:%d", req.LocalPort, req.RemotePort)}
	forwarder, err := portforward.NewOnAddresses(
		dialer, []string{"127.0.0.1"}, ports, req.Stop, req.Ready, req.Out, req.ErrOut)
	if err != nil {
		return fmt.Errorf("failed to create port forwarder: %w", err)
	}
	return forwarder.ForwardPorts()
}

// Contexts implements Client from the raw kubeconfig.
func (c *ClusterClient) Contexts() ([]ContextEntry, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if c.kubeconfig != "" {
		rules.ExplicitPath = c.kubeconfig
	}
	raw, err := rules.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}
	current := raw.CurrentContext
	if c.contextName != "" {
		current = c.contextName
	}
	out := make([]ContextEntry, 0, len(raw.Contexts))
	for name, ctx := range raw.Contexts {
		out = append(out, ContextEntry{
			Name:    name,
			Cluster: ctx.Cluster,
			User:    ctx.AuthInfo,
			Current: name == current,
		})
	}
	return out, nil
}

// CurrentContext implements Client.
func (c *ClusterClient) CurrentContext() string {
	if c.contextName != "" {
		return c.contextName
	}
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if c.kubeconfig != "" {
		rules.ExplicitPath = c.kubeconfig
	}
	if raw, err := rules.Load(); err == nil {
		return raw.CurrentContext
	}
	return ""
}

// DiscoverCRDs implements Client by listing the CRD catalog.
func (c *ClusterClient) DiscoverCRDs(ctx context.Context) ([]CRDInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	list, err := c.dynamic.Resource(kinds.Caps(kinds.CRDs).GVR).List(ctx, metav1.ListOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to discover CRDs: %w", err)
	}
	out := make([]CRDInfo, 0, len(list.Items))
	for i := range list.Items {
		out = append(out, crdInfoFromObject(&list.Items[i]))
	}
	return out, nil
}

func (c *ClusterClient) listCRDRows(ctx context.Context) ([]store.Row, string, error) {
	crds, err := c.DiscoverCRDs(ctx)
	if err != nil {
		return nil, "", err
	}
	rows := make([]store.Row, 0, len(crds))
	for _, crd := range crds {
		rows = append(rows, RowFromCRD(crd))
	}
	return rows, "", nil
}
