// Package kubernetes provides a remote.Acquirer that runs every plot in a
// fresh sandbox pod, managed through agent-sandbox SandboxClaim resources.
package kubernetes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	sandboxv1alpha1 "sigs.k8s.io/agent-sandbox/api/v1alpha1"
	extensionsv1alpha1 "sigs.k8s.io/agent-sandbox/extensions/api/v1alpha1"

	"github.com/nexmath/nexmath/pkg/debug"
	"github.com/nexmath/nexmath/pkg/plot/remote"
)

// SandboxPort is the port the sandbox server listens on inside the pod.
const SandboxPort = 8080

// DefaultClaimTimeout bounds the wait for a claimed sandbox to become ready.
const DefaultClaimTimeout = 60 * time.Second

var _ remote.Acquirer = (*ClaimAcquirer)(nil)

// ClaimAcquirer creates a SandboxClaim per Acquire, waits for the matching
// Sandbox to report Ready, and deletes the claim on release.
type ClaimAcquirer struct {
	client    client.Client
	template  string
	namespace string
	timeout   time.Duration
	interval  time.Duration
}

// NewClaimAcquirer creates a ClaimAcquirer for the given SandboxTemplate.
// A zero timeout means DefaultClaimTimeout.
func NewClaimAcquirer(c client.Client, template, namespace string, timeout time.Duration) *ClaimAcquirer {
	if timeout <= 0 {
		timeout = DefaultClaimTimeout
	}
	return &ClaimAcquirer{
		client:    c,
		template:  template,
		namespace: namespace,
		timeout:   timeout,
		interval:  500 * time.Millisecond,
	}
}

// NewScheme returns a runtime.Scheme with the agent-sandbox types registered.
func NewScheme() (*runtime.Scheme, error) {
	scheme := runtime.NewScheme()
	if err := sandboxv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("register sandbox types: %w", err)
	}
	if err := extensionsv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("register extensions types: %w", err)
	}
	return scheme, nil
}

// Acquire claims a sandbox and returns its URL
// (http://<serviceFQDN>:8080) with a release function that deletes the
// claim.
func (a *ClaimAcquirer) Acquire(ctx context.Context) (string, func(), error) {
	name := claimName()

	claim := &extensionsv1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: a.namespace,
			Labels:    map[string]string{"app.kubernetes.io/managed-by": "nexmath"},
		},
		Spec: extensionsv1alpha1.SandboxClaimSpec{
			TemplateRef: extensionsv1alpha1.SandboxTemplateRef{Name: a.template},
		},
	}
	if err := a.client.Create(ctx, claim); err != nil {
		return "", nil, fmt.Errorf("create SandboxClaim %q: %w", name, err)
	}
	debug.Log("sandbox", "created SandboxClaim", "name", name, "namespace", a.namespace, "template", a.template)

	fqdn, err := a.waitForReady(ctx, name)
	if err != nil {
		a.deleteClaim(context.Background(), name)
		return "", nil, err
	}

	url := fmt.Sprintf("http://%s:%d", fqdn, SandboxPort)
	debug.Log("sandbox", "sandbox acquired", "name", name, "url", url)
	return url, func() { a.deleteClaim(context.Background(), name) }, nil
}

// waitForReady polls the Sandbox named like the claim until it is Ready
// and has a service FQDN.
func (a *ClaimAcquirer) waitForReady(ctx context.Context, name string) (string, error) {
	deadline := time.NewTimer(a.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	key := types.NamespacedName{Name: name, Namespace: a.namespace}
	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("waiting for Sandbox %q: %w", name, ctx.Err())
		case <-deadline.C:
			return "", fmt.Errorf("timeout waiting for Sandbox %q to become ready (waited %s)", name, a.timeout)
		case <-ticker.C:
			sandbox := &sandboxv1alpha1.Sandbox{}
			if err := a.client.Get(ctx, key, sandbox); err != nil {
				// The controller has not created it yet.
				continue
			}
			if isReady(sandbox) && sandbox.Status.ServiceFQDN != "" {
				return sandbox.Status.ServiceFQDN, nil
			}
		}
	}
}

func isReady(sandbox *sandboxv1alpha1.Sandbox) bool {
	for _, c := range sandbox.Status.Conditions {
		if c.Type == string(sandboxv1alpha1.SandboxConditionReady) && c.Status == metav1.ConditionTrue {
			return true
		}
	}
	return false
}

// deleteClaim logs instead of failing; it runs on cleanup paths.
func (a *ClaimAcquirer) deleteClaim(ctx context.Context, name string) {
	claim := &extensionsv1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: a.namespace},
	}
	if err := a.client.Delete(ctx, claim); err != nil {
		slog.Warn("failed to delete SandboxClaim", "name", name, "namespace", a.namespace, "error", err)
		return
	}
	debug.Log("sandbox", "deleted SandboxClaim", "name", name, "namespace", a.namespace)
}

// claimName is replaced in tests for deterministic names.
var claimName = func() string {
	return fmt.Sprintf("nexmath-plot-%d", time.Now().UnixNano())
}
