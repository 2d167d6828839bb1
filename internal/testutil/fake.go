// Package testutil provides the fake cluster collaborator the package tests
// drive instead of a live control plane.
package testutil

import (
	"bytes"
	"context"
	"io"
	"sync"

	"k8s.io/apimachinery/pkg/runtime/schema"
	apiwatch "k8s.io/apimachinery/pkg/watch"

	"github.com/ASoldo/orca/internal/k8s"
	"github.com/ASoldo/orca/internal/kinds"
	"github.com/ASoldo/orca/internal/store"
)

// FakeClient implements k8s.Client from in-memory fixtures and records every
// mutation for assertions.
type FakeClient struct {
	mu sync.Mutex

	RowsByKind map[kinds.Kind][]store.Row
	Documents  map[string][]byte
	Containers map[string][]string
	CRDs       []k8s.CRDInfo
	Context    string
	ListErr    error

	watchers []*apiwatch.FakeWatcher

	Deleted   []k8s.Ref
	Restarted []k8s.Ref
	Scaled    map[string]int
	Applied   []k8s.Ref
	PFStarted int
}

// NewFakeClient creates an empty fake.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		RowsByKind: map[kinds.Kind][]store.Row{},
		Documents:  map[string][]byte{},
		Containers: map[string][]string{},
		Scaled:     map[string]int{},
		Context:    "fake-context",
	}
}

// SetRows replaces the fixture rows for a kind.
func (f *FakeClient) SetRows(kind kinds.Kind, rows []store.Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RowsByKind[kind] = rows
}

// List implements k8s.Client, honoring the scope restriction.
func (f *FakeClient) List(ctx context.Context, kind kinds.Kind, scope store.Scope, gvr schema.GroupVersionResource) ([]store.Row, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, "", f.ListErr
	}
	out := []store.Row{}
	for _, r := range f.RowsByKind[kind] {
		if kind.Namespaced() && !scope.AllNamespaces && scope.Namespace != "" && r.Namespace != scope.Namespace {
			continue
		}
		out = append(out, r)
	}
	return out, "1", nil
}

// Watch implements k8s.Client with a fake watcher the test feeds directly.
func (f *FakeClient) Watch(ctx context.Context, kind kinds.Kind, scope store.Scope, gvr schema.GroupVersionResource, fromVersion string) (apiwatch.Interface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := apiwatch.NewFakeWithChanSize(64, false)
	f.watchers = append(f.watchers, w)
	return w, nil
}

// Watchers returns the fake watch streams handed out so far.
func (f *FakeClient) Watchers() []*apiwatch.FakeWatcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*apiwatch.FakeWatcher(nil), f.watchers...)
}

func (f *FakeClient) Get(ctx context.Context, ref k8s.Ref) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc, ok := f.Documents[ref.String()]; ok {
		return doc, nil
	}
	return []byte("kind: " + string(ref.Kind) + "\nmetadata:\n  name: " + ref.Name + "\n"), nil
}

func (f *FakeClient) Apply(ctx context.Context, ref k8s.Ref, document []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Applied = append(f.Applied, ref)
	return nil
}

func (f *FakeClient) Delete(ctx context.Context, ref k8s.Ref) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deleted = append(f.Deleted, ref)
	return nil
}

func (f *FakeClient) Scale(ctx context.Context, ref k8s.Ref, replicas int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Scaled[ref.String()] = replicas
	return nil
}

func (f *FakeClient) RestartRollout(ctx context.Context, ref k8s.Ref) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Restarted = append(f.Restarted, ref)
	return nil
}

func (f *FakeClient) Logs(ctx context.Context, namespace, pod string, opts k8s.LogOptions) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewBufferString("line one\nline two\n")), nil
}

func (f *FakeClient) PodContainers(ctx context.Context, namespace, pod string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if names, ok := f.Containers[namespace+"/"+pod]; ok {
		return names, nil
	}
	return []string{"main"}, nil
}

func (f *FakeClient) PodForService(ctx context.Context, namespace, service string) (string, error) {
	return service + "-pod", nil
}

func (f *FakeClient) PortForward(req k8s.PortForwardRequest) error {
	f.mu.Lock()
	f.PFStarted++
	f.mu.Unlock()
	close(req.Ready)
	<-req.Stop
	return nil
}

func (f *FakeClient) Contexts() ([]k8s.ContextEntry, error) {
	return []k8s.ContextEntry{
		{Name: f.Context, Cluster: "fake-cluster", User: "fake-user", Current: true},
	}, nil
}

func (f *FakeClient) CurrentContext() string { return f.Context }

func (f *FakeClient) DiscoverCRDs(ctx context.Context) ([]k8s.CRDInfo, error) {
	return f.CRDs, nil
}

// PodRow builds a minimal pod row fixture.
func PodRow(uid, namespace, name, status string) store.Row {
	return store.Row{
		UID:        uid,
		Kind:       kinds.Pods,
		Namespace:  namespace,
		Name:       name,
		Columns:    []string{"1/1", status, "0", "node-a", "10.0.0.1"},
		StatusHint: status,
	}
}

// Row builds a row fixture for any kind.
func Row(kind kinds.Kind, uid, namespace, name string, columns ...string) store.Row {
	return store.Row{
		UID:       uid,
		Kind:      kind,
		Namespace: namespace,
		Name:      name,
		Columns:   columns,
	}
}

var _ k8s.Client = (*FakeClient)(nil)
