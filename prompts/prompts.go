// Package prompts embeds the instruction files used by the agent and the
// query translator.
package prompts

import _ "embed"

// K8s is the system instruction of the Kubernetes agent.
//
//go:embed k8s.txt
var K8s string

// Kusto is the system prompt of the natural-language to KQL translator.
//
//go:embed kusto.txt
var Kusto string
