// Package inventory describes the clusters the agent knows by name.
package inventory

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Cluster is one managed Kubernetes cluster.
type Cluster struct {
	Name        string   `yaml:"name"`
	Context     string   `yaml:"context"`
	Description string   `yaml:"description,omitempty"`
	Namespaces  []string `yaml:"namespaces,omitempty"`
}

// Inventory maps cluster ids to clusters. A nil *Inventory is empty.
type Inventory struct {
	Clusters map[string]Cluster `yaml:"clusters"`
}

// Load reads an inventory YAML file.
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory file: %w", err)
	}

	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("failed to parse inventory file %s: %w", path, err)
	}
	for id, c := range inv.Clusters {
		if c.Context == "" {
			return nil, fmt.Errorf("cluster %q has no kubeconfig context", id)
		}
	}
	return &inv, nil
}

// ContextFor returns the kubeconfig context of the cluster with the given
// id. Anything else, including the empty string, is returned unchanged so
// it can be used as a context name directly.
func (inv *Inventory) ContextFor(name string) string {
	if inv == nil {
		return name
	}
	if c, ok := inv.Clusters[name]; ok {
		return c.Context
	}
	return name
}

func (inv *Inventory) ids() []string {
	ids := make([]string, 0, len(inv.Clusters))
	for id := range inv.Clusters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Summary renders the inventory for the agent's instruction.
func (inv *Inventory) Summary() string {
	if inv == nil || len(inv.Clusters) == 0 {
		return "No clusters configured."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Known clusters: %d. Pass the cluster id as the context argument of a tool.\n", len(inv.Clusters))
	for _, id := range inv.ids() {
		c := inv.Clusters[id]
		name := c.Name
		if name == "" {
			name = id
		}
		fmt.Fprintf(&sb, "  - %s (%s): context %s", id, name, c.Context)
		if c.Description != "" {
			fmt.Fprintf(&sb, "; %s", c.Description)
		}
		if len(c.Namespaces) > 0 {
			fmt.Fprintf(&sb, "; namespaces: %s", strings.Join(c.Namespaces, ", "))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
