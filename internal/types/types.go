// Package types provides domain models shared across RuleKeeper components.
//
// Zero-dependency design: types.go, rules.go and errors.go use only the
// standard library. ID utilities in ids.go import uuid but are isolated for
// selective inclusion.
package types

// NodeID identifies a managed node record.
// String alias enables type safety while maintaining JSON string serialization.
type NodeID string

// PortID identifies a port record attached to a node.
type PortID string

// RuleID represents a UUIDv7 rule identifier.
// String alias enables type safety while maintaining JSON string serialization.
type RuleID string

// Node is the primary inspected resource record. The rule engine serializes it
// to a JSON tree once per evaluation pass; rules address it via the node://
// field scheme.
type Node struct {
	UUID       NodeID         `json:"uuid"`
	Name       string         `json:"name,omitempty"`
	Driver     string         `json:"driver,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// Port is a sub-resource (network interface) associated with a node. Rules
// address ports via the port:// field scheme; each port is queried in turn.
type Port struct {
	UUID  PortID         `json:"uuid"`
	MAC   string         `json:"mac"`
	Extra map[string]any `json:"extra,omitempty"`
}
