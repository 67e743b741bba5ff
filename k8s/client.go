// Package k8s exposes read-only views of pods and deployments for the orchestration
// tools.
package k8s

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// maxLogBytes caps how much of a log stream is returned to the model.
const maxLogBytes = 64 << 10

// NewClientset builds a clientset from the in-cluster config, falling back to
// kubeconfig (or $HOME/.kube/config when empty).
func NewClientset(kubeconfig string) (kubernetes.Interface, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		if kubeconfig == "" {
			home, _ := os.UserHomeDir()
			kubeconfig = filepath.Join(home, ".kube", "config")
		}
		if config, err = clientcmd.BuildConfigFromFlags("", kubeconfig); err != nil {
			return nil, fmt.Errorf("failed to create Kubernetes config: %w", err)
		}
	}
	cs, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}
	return cs, nil
}

// Client reads workloads, defaulting to one namespace.
type Client struct {
	cs        kubernetes.Interface
	namespace string
}

func NewClient(cs kubernetes.Interface, defaultNamespace string) *Client {
	if defaultNamespace == "" {
		defaultNamespace = "default"
	}
	return &Client{cs: cs, namespace: defaultNamespace}
}

func (c *Client) ns(namespace string) string {
	if namespace == "" {
		return c.namespace
	}
	return namespace
}

// readCapped reads at most maxLogBytes, keeping the tail.
func readCapped(r io.Reader) (string, bool, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", false, err
	}
	b := buf.Bytes()
	if len(b) <= maxLogBytes {
		return string(b), false, nil
	}
	return string(b[len(b)-maxLogBytes:]), true, nil
}
