package k8stools

import (
	"fmt"
	"sort"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
)

// Listing is the result shape shared by every tool. Message explains an
// empty result.
type Listing[T any] struct {
	Items   []T    `json:"items"`
	Count   int    `json:"count"`
	Message string `json:"message,omitempty"`
}

func listing[T any](items []T, emptyMessage string) Listing[T] {
	if len(items) == 0 {
		return Listing[T]{Items: []T{}, Message: emptyMessage}
	}
	return Listing[T]{Items: items, Count: len(items)}
}

// Pod summarizes a pod the way kubectl get pods does.
type Pod struct {
	Name       string            `json:"name"`
	Namespace  string            `json:"namespace"`
	Phase      string            `json:"phase"`
	Ready      string            `json:"ready"`
	Restarts   int32             `json:"restarts"`
	Age        string            `json:"age"`
	IP         string            `json:"ip,omitempty"`
	Node       string            `json:"node,omitempty"`
	Labels     map[string]string `json:"labels,omitempty"`
	Conditions []string          `json:"conditions,omitempty"`
}

// ServicePort is one port of a service.
type ServicePort struct {
	Name       string `json:"name,omitempty"`
	Protocol   string `json:"protocol"`
	Port       int32  `json:"port"`
	TargetPort string `json:"target_port"`
	NodePort   int32  `json:"node_port,omitempty"`
}

// Service summarizes a service.
type Service struct {
	Name        string            `json:"name"`
	Namespace   string            `json:"namespace"`
	Type        string            `json:"type"`
	ClusterIP   string            `json:"cluster_ip"`
	ExternalIPs []string          `json:"external_ips,omitempty"`
	Ports       []ServicePort     `json:"ports"`
	Selector    map[string]string `json:"selector,omitempty"`
	Age         string            `json:"age"`
}

// Backend is one address behind an endpoints object.
type Backend struct {
	IP    string `json:"ip"`
	Pod   string `json:"pod,omitempty"`
	Node  string `json:"node,omitempty"`
	Ready bool   `json:"ready"`
}

// Endpoints lists the backends registered for a service.
type Endpoints struct {
	Name      string    `json:"name"`
	Namespace string    `json:"namespace"`
	Backends  []Backend `json:"backends"`
	Ports     []string  `json:"ports"`
}

// Event is a cluster event, newest first in listings.
type Event struct {
	Type     string `json:"type"`
	Reason   string `json:"reason"`
	Message  string `json:"message"`
	Object   string `json:"object"`
	Source   string `json:"source,omitempty"`
	LastSeen string `json:"last_seen,omitempty"`
	Count    int32  `json:"count"`
}

// Node summarizes a node.
type Node struct {
	Name           string            `json:"name"`
	Status         string            `json:"status"`
	Roles          []string          `json:"roles"`
	Age            string            `json:"age"`
	KubeletVersion string            `json:"kubelet_version"`
	InternalIP     string            `json:"internal_ip,omitempty"`
	ExternalIP     string            `json:"external_ip,omitempty"`
	Labels         map[string]string `json:"labels,omitempty"`
}

// age renders the time since created as a single unit, like kubectl.
func age(created, now time.Time) string {
	d := now.Sub(created)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func readiness(statuses []corev1.ContainerStatus) (string, int32) {
	var ready int
	var restarts int32
	for _, s := range statuses {
		if s.Ready {
			ready++
		}
		restarts += s.RestartCount
	}
	return fmt.Sprintf("%d/%d", ready, len(statuses)), restarts
}

func podConditions(conditions []corev1.PodCondition) []string {
	out := make([]string, 0, len(conditions))
	for _, c := range conditions {
		out = append(out, fmt.Sprintf("%s=%s", c.Type, c.Status))
	}
	return out
}

func roles(labels map[string]string) []string {
	const prefix = "node-role.kubernetes.io/"
	var out []string
	for k := range labels {
		if r, ok := strings.CutPrefix(k, prefix); ok {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return []string{"<none>"}
	}
	sort.Strings(out)
	return out
}

func nodeStatus(n corev1.Node) string {
	status := "Unknown"
	for _, c := range n.Status.Conditions {
		if c.Type != corev1.NodeReady {
			continue
		}
		status = "NotReady"
		if c.Status == corev1.ConditionTrue {
			status = "Ready"
		}
		break
	}
	if n.Spec.Unschedulable {
		status += ",SchedulingDisabled"
	}
	return status
}

func externalAddresses(svc corev1.Service) []string {
	addrs := append([]string(nil), svc.Spec.ExternalIPs...)
	for _, ing := range svc.Status.LoadBalancer.Ingress {
		switch {
		case ing.IP != "":
			addrs = append(addrs, ing.IP)
		case ing.Hostname != "":
			addrs = append(addrs, ing.Hostname)
		}
	}
	return addrs
}

// lastSeen is the most meaningful timestamp of an event.
func lastSeen(e corev1.Event) time.Time {
	switch {
	case !e.LastTimestamp.IsZero():
		return e.LastTimestamp.Time
	case !e.EventTime.IsZero():
		return e.EventTime.Time
	default:
		return e.CreationTimestamp.Time
	}
}
