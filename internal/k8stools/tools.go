package k8stools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"kubeagent/internal/inventory"
)

// Toolset lists cluster resources through a Client. Context arguments that
// name a cluster of the inventory are resolved to its kubeconfig context.
type Toolset struct {
	client    *Client
	inventory *inventory.Inventory
	now       func() time.Time
}

// New returns a toolset over c. inv may be nil.
func New(c *Client, inv *inventory.Inventory) *Toolset {
	return &Toolset{client: c, inventory: inv, now: time.Now}
}

func (ts *Toolset) clientset(kubeContext string) (kubernetes.Interface, error) {
	return ts.client.clientset(ts.inventory.ContextFor(kubeContext))
}

// PodsArgs are the arguments of get_pods.
type PodsArgs struct {
	Context   string `json:"context,omitempty" jsonschema:"Cluster id or kubeconfig context to use. If empty, uses the current context."`
	Namespace string `json:"namespace" jsonschema:"Namespace to list pods from. Use 'all' for all namespaces."`
	Labels    string `json:"labels,omitempty" jsonschema:"Optional label selector, e.g. 'app=nginx'."`
}

// ServicesArgs are the arguments of get_services.
type ServicesArgs struct {
	Context   string `json:"context,omitempty" jsonschema:"Cluster id or kubeconfig context to use. If empty, uses the current context."`
	Namespace string `json:"namespace" jsonschema:"Namespace to list services from."`
	Name      string `json:"name,omitempty" jsonschema:"Optional service name."`
	Type      string `json:"type,omitempty" jsonschema:"Optional service type: ClusterIP, NodePort or LoadBalancer."`
}

// EndpointsArgs are the arguments of get_endpoints.
type EndpointsArgs struct {
	Context   string `json:"context,omitempty" jsonschema:"Cluster id or kubeconfig context to use. If empty, uses the current context."`
	Namespace string `json:"namespace" jsonschema:"Namespace of the endpoints."`
	Name      string `json:"name,omitempty" jsonschema:"Optional endpoints name, usually the service name."`
}

// EventsArgs are the arguments of get_events.
type EventsArgs struct {
	Context   string `json:"context,omitempty" jsonschema:"Cluster id or kubeconfig context to use. If empty, uses the current context."`
	Namespace string `json:"namespace" jsonschema:"Namespace to list events from. Use 'all' for all namespaces."`
	Object    string `json:"object,omitempty" jsonschema:"Optional substring of the involved object's name."`
	Type      string `json:"type,omitempty" jsonschema:"Optional event type: Normal or Warning."`
}

// NodesArgs are the arguments of get_nodes.
type NodesArgs struct {
	Context    string `json:"context,omitempty" jsonschema:"Cluster id or kubeconfig context to use. If empty, uses the current context."`
	ShowLabels bool   `json:"show_labels,omitempty" jsonschema:"Include node labels in the output."`
}

// Tools returns the toolset as ADK function tools.
func (ts *Toolset) Tools() ([]tool.Tool, error) {
	makers := []func() (tool.Tool, error){
		func() (tool.Tool, error) {
			return newTool("get_pods", "List pods in a namespace with optional label filtering. Shows phase, readiness, restarts, age and node.", ts.Pods)
		},
		func() (tool.Tool, error) {
			return newTool("get_services", "List services with type, cluster IP, external addresses and ports.", ts.Services)
		},
		func() (tool.Tool, error) {
			return newTool("get_endpoints", "List the pod addresses registered behind services. Empty endpoints mean a selector mismatch or no ready pods.", ts.Endpoints)
		},
		func() (tool.Tool, error) {
			return newTool("get_events", "List events, newest first. Useful for finding warnings and recent changes.", ts.Events)
		},
		func() (tool.Tool, error) {
			return newTool("get_nodes", "List cluster nodes with status, roles, kubelet version and addresses.", ts.Nodes)
		},
	}

	tools := make([]tool.Tool, 0, len(makers))
	for _, mk := range makers {
		t, err := mk()
		if err != nil {
			return nil, fmt.Errorf("failed to create kubernetes tools: %w", err)
		}
		tools = append(tools, t)
	}
	return tools, nil
}

func newTool[A, R any](name, description string, fn func(context.Context, A) (R, error)) (tool.Tool, error) {
	return functiontool.New(functiontool.Config{Name: name, Description: description},
		func(ctx tool.Context, args A) (R, error) { return fn(ctx, args) })
}

func allNamespaces(ns string) string {
	if ns == "all" {
		return metav1.NamespaceAll
	}
	return ns
}

// Pods implements get_pods.
func (ts *Toolset) Pods(ctx context.Context, args PodsArgs) (Listing[Pod], error) {
	cs, err := ts.clientset(args.Context)
	if err != nil {
		return Listing[Pod]{}, err
	}
	list, err := cs.CoreV1().Pods(allNamespaces(args.Namespace)).List(ctx, metav1.ListOptions{LabelSelector: args.Labels})
	if err != nil {
		return Listing[Pod]{}, diagnose(err)
	}

	now := ts.now()
	pods := make([]Pod, 0, len(list.Items))
	for _, p := range list.Items {
		ready, restarts := readiness(p.Status.ContainerStatuses)
		pods = append(pods, Pod{
			Name:       p.Name,
			Namespace:  p.Namespace,
			Phase:      string(p.Status.Phase),
			Ready:      ready,
			Restarts:   restarts,
			Age:        age(p.CreationTimestamp.Time, now),
			IP:         p.Status.PodIP,
			Node:       p.Spec.NodeName,
			Labels:     p.Labels,
			Conditions: podConditions(p.Status.Conditions),
		})
	}
	return listing(pods, "No pods found matching the criteria."), nil
}

// Services implements get_services.
func (ts *Toolset) Services(ctx context.Context, args ServicesArgs) (Listing[Service], error) {
	cs, err := ts.clientset(args.Context)
	if err != nil {
		return Listing[Service]{}, err
	}
	list, err := cs.CoreV1().Services(allNamespaces(args.Namespace)).List(ctx, metav1.ListOptions{})
	if err != nil {
		return Listing[Service]{}, diagnose(err)
	}

	now := ts.now()
	var services []Service
	for _, svc := range list.Items {
		if args.Name != "" && svc.Name != args.Name {
			continue
		}
		if args.Type != "" && !strings.EqualFold(string(svc.Spec.Type), args.Type) {
			continue
		}
		ports := make([]ServicePort, 0, len(svc.Spec.Ports))
		for _, p := range svc.Spec.Ports {
			ports = append(ports, ServicePort{
				Name:       p.Name,
				Protocol:   string(p.Protocol),
				Port:       p.Port,
				TargetPort: p.TargetPort.String(),
				NodePort:   p.NodePort,
			})
		}
		services = append(services, Service{
			Name:        svc.Name,
			Namespace:   svc.Namespace,
			Type:        string(svc.Spec.Type),
			ClusterIP:   svc.Spec.ClusterIP,
			ExternalIPs: externalAddresses(svc),
			Ports:       ports,
			Selector:    svc.Spec.Selector,
			Age:         age(svc.CreationTimestamp.Time, now),
		})
	}
	return listing(services, "No services found matching the criteria."), nil
}

// Endpoints implements get_endpoints.
func (ts *Toolset) Endpoints(ctx context.Context, args EndpointsArgs) (Listing[Endpoints], error) {
	cs, err := ts.clientset(args.Context)
	if err != nil {
		return Listing[Endpoints]{}, err
	}
	list, err := cs.CoreV1().Endpoints(allNamespaces(args.Namespace)).List(ctx, metav1.ListOptions{})
	if err != nil {
		return Listing[Endpoints]{}, diagnose(err)
	}

	var out []Endpoints
	for _, ep := range list.Items {
		if args.Name != "" && ep.Name != args.Name {
			continue
		}
		e := Endpoints{Name: ep.Name, Namespace: ep.Namespace, Backends: []Backend{}, Ports: []string{}}
		for _, subset := range ep.Subsets {
			for i, addrs := range [][]corev1.EndpointAddress{subset.Addresses, subset.NotReadyAddresses} {
				for _, a := range addrs {
					b := Backend{IP: a.IP, Ready: i == 0}
					if a.NodeName != nil {
						b.Node = *a.NodeName
					}
					if a.TargetRef != nil && a.TargetRef.Kind == "Pod" {
						b.Pod = a.TargetRef.Name
					}
					e.Backends = append(e.Backends, b)
				}
			}
			for _, p := range subset.Ports {
				e.Ports = append(e.Ports, fmt.Sprintf("%d/%s", p.Port, p.Protocol))
			}
		}
		out = append(out, e)
	}
	return listing(out, "No endpoints found. This may mean no pods match the service selector."), nil
}

// Events implements get_events.
func (ts *Toolset) Events(ctx context.Context, args EventsArgs) (Listing[Event], error) {
	cs, err := ts.clientset(args.Context)
	if err != nil {
		return Listing[Event]{}, err
	}
	list, err := cs.CoreV1().Events(allNamespaces(args.Namespace)).List(ctx, metav1.ListOptions{})
	if err != nil {
		return Listing[Event]{}, diagnose(err)
	}

	items := list.Items
	sort.SliceStable(items, func(i, j int) bool { return lastSeen(items[j]).Before(lastSeen(items[i])) })

	var events []Event
	for _, e := range items {
		if args.Type != "" && !strings.EqualFold(e.Type, args.Type) {
			continue
		}
		if args.Object != "" && !strings.Contains(e.InvolvedObject.Name, args.Object) {
			continue
		}
		ev := Event{
			Type:    e.Type,
			Reason:  e.Reason,
			Message: e.Message,
			Object:  e.InvolvedObject.Kind + "/" + e.InvolvedObject.Name,
			Source:  e.Source.Component,
			Count:   e.Count,
		}
		if t := lastSeen(e); !t.IsZero() {
			ev.LastSeen = t.UTC().Format(time.RFC3339)
		}
		events = append(events, ev)
	}
	return listing(events, "No events found matching the criteria."), nil
}

// Nodes implements get_nodes.
func (ts *Toolset) Nodes(ctx context.Context, args NodesArgs) (Listing[Node], error) {
	cs, err := ts.clientset(args.Context)
	if err != nil {
		return Listing[Node]{}, err
	}
	list, err := cs.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return Listing[Node]{}, diagnose(err)
	}

	now := ts.now()
	nodes := make([]Node, 0, len(list.Items))
	for _, n := range list.Items {
		node := Node{
			Name:           n.Name,
			Status:         nodeStatus(n),
			Roles:          roles(n.Labels),
			Age:            age(n.CreationTimestamp.Time, now),
			KubeletVersion: n.Status.NodeInfo.KubeletVersion,
		}
		for _, addr := range n.Status.Addresses {
			switch addr.Type {
			case corev1.NodeInternalIP:
				node.InternalIP = addr.Address
			case corev1.NodeExternalIP:
				node.ExternalIP = addr.Address
			}
		}
		if args.ShowLabels {
			node.Labels = n.Labels
		}
		nodes = append(nodes, node)
	}
	return listing(nodes, "No nodes found."), nil
}
