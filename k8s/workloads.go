package k8s

import (
	"context"
	"fmt"
	"net/http"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"chat-tools-backend/types"
)

// PodSummary is the condensed view of a pod.
type PodSummary struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Phase     string `json:"phase"`
	Ready     string `json:"ready"`
	Restarts  int32  `json:"restarts"`
	Node      string `json:"node,omitempty"`
	Age       string `json:"age"`
}

// DeploymentSummary is the condensed view of a deployment.
type DeploymentSummary struct {
	Name      string   `json:"name"`
	Namespace string   `json:"namespace"`
	Ready     string   `json:"ready"`
	Updated   int32    `json:"updated"`
	Available int32    `json:"available"`
	Images    []string `json:"images"`
}

// PodLogs is a (possibly truncated) log tail.
type PodLogs struct {
	Pod       string `json:"pod"`
	Container string `json:"container,omitempty"`
	Logs      string `json:"logs"`
	Truncated bool   `json:"truncated,omitempty"`
}

func age(t metav1.Time) string {
	if t.IsZero() {
		return ""
	}
	return time.Since(t.Time).Round(time.Second).String()
}

// mapError turns API server errors into the shared error types.
func mapError(err error, what string) error {
	if errors.IsNotFound(err) {
		return &types.APIError{Provider: "kubernetes", StatusCode: http.StatusNotFound, Message: what + " not found"}
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

// ListPods lists pods matching the label selector.
func (c *Client) ListPods(ctx context.Context, namespace, selector string) ([]PodSummary, error) {
	ns := c.ns(namespace)
	pods, err := c.cs.CoreV1().Pods(ns).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, mapError(err, "pods in "+ns)
	}
	out := make([]PodSummary, 0, len(pods.Items))
	for _, p := range pods.Items {
		var ready int
		var restarts int32
		for _, cs := range p.Status.ContainerStatuses {
			if cs.Ready {
				ready++
			}
			restarts += cs.RestartCount
		}
		out = append(out, PodSummary{
			Name:      p.Name,
			Namespace: p.Namespace,
			Phase:     string(p.Status.Phase),
			Ready:     fmt.Sprintf("%d/%d", ready, len(p.Spec.Containers)),
			Restarts:  restarts,
			Node:      p.Spec.NodeName,
			Age:       age(p.CreationTimestamp),
		})
	}
	return out, nil
}

// ListDeployments lists deployments matching the label selector.
func (c *Client) ListDeployments(ctx context.Context, namespace, selector string) ([]DeploymentSummary, error) {
	ns := c.ns(namespace)
	deps, err := c.cs.AppsV1().Deployments(ns).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, mapError(err, "deployments in "+ns)
	}
	out := make([]DeploymentSummary, 0, len(deps.Items))
	for _, d := range deps.Items {
		var desired int32 = 1
		if d.Spec.Replicas != nil {
			desired = *d.Spec.Replicas
		}
		images := make([]string, 0, len(d.Spec.Template.Spec.Containers))
		for _, ctr := range d.Spec.Template.Spec.Containers {
			images = append(images, ctr.Image)
		}
		out = append(out, DeploymentSummary{
			Name:      d.Name,
			Namespace: d.Namespace,
			Ready:     fmt.Sprintf("%d/%d", d.Status.ReadyReplicas, desired),
			Updated:   d.Status.UpdatedReplicas,
			Available: d.Status.AvailableReplicas,
			Images:    images,
		})
	}
	return out, nil
}

// GetPodLogs returns the last tailLines lines (default 200) of a container's log.
func (c *Client) GetPodLogs(ctx context.Context, namespace, pod, container string, tailLines int64) (*PodLogs, error) {
	if pod == "" {
		return nil, &types.ValidationError{Field: "pod", Message: "is required"}
	}
	if tailLines <= 0 {
		tailLines = 200
	}
	ns := c.ns(namespace)
	if _, err := c.cs.CoreV1().Pods(ns).Get(ctx, pod, metav1.GetOptions{}); err != nil {
		return nil, mapError(err, "pod "+ns+"/"+pod)
	}

	opts := &corev1.PodLogOptions{Container: container, TailLines: &tailLines}
	stream, err := c.cs.CoreV1().Pods(ns).GetLogs(pod, opts).Stream(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to stream logs of %s/%s: %w", ns, pod, err)
	}
	defer stream.Close()

	logs, truncated, err := readCapped(stream)
	if err != nil {
		return nil, fmt.Errorf("failed to read logs of %s/%s: %w", ns, pod, err)
	}
	return &PodLogs{Pod: pod, Container: container, Logs: logs, Truncated: truncated}, nil
}
