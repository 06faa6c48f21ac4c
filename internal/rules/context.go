// Package rules implements the RuleKeeper matching and dispatch engine:
// field resolution over an evaluation snapshot, condition evaluation with
// configurable multiplicity, rule building and validation, and action
// dispatch against matched targets.
package rules

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/solatis/rulekeeper/internal/types"
)

// NodeClient is the inventory collaborator action operators mutate state
// through. The engine treats calls as opaque synchronous operations; it does
// not retry or roll back.
type NodeClient interface {
	// SetNodeAttribute writes value at path on the node record.
	SetNodeAttribute(ctx context.Context, id types.NodeID, path string, value any) error
	// SetPortAttribute writes value at path on a port record.
	SetPortAttribute(ctx context.Context, id types.PortID, path string, value any) error
	// ExtendNodeAttribute appends value to the list at path on the node
	// record. With unique set, a value already present is not appended.
	ExtendNodeAttribute(ctx context.Context, id types.NodeID, path string, value any, unique bool) error
}

// EvalContext is the snapshot one evaluation pass runs against: the node, its
// ports, and the freeform inspection data. Immutable for the duration of the
// pass; the source documents the field resolver queries are serialized once
// at construction.
type EvalContext struct {
	Node   *types.Node
	Ports  []types.Port
	Data   map[string]any
	Client NodeClient

	nodeDoc  []byte
	portDocs [][]byte
	dataDoc  []byte
}

// NewEvalContext builds an evaluation snapshot, serializing each data source
// to the JSON tree the field resolver queries. A nil node or data tree
// resolves as an empty document.
func NewEvalContext(node *types.Node, ports []types.Port, data map[string]any, client NodeClient) (*EvalContext, error) {
	ec := &EvalContext{
		Node:   node,
		Ports:  ports,
		Data:   data,
		Client: client,
	}

	var err error
	if node != nil {
		ec.nodeDoc, err = json.Marshal(node)
	} else {
		ec.nodeDoc = []byte("{}")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to serialize node: %w", err)
	}

	ec.portDocs = make([][]byte, len(ports))
	for i := range ports {
		ec.portDocs[i], err = json.Marshal(ports[i])
		if err != nil {
			return nil, fmt.Errorf("failed to serialize port %s: %w", ports[i].UUID, err)
		}
	}

	if data != nil {
		ec.dataDoc, err = json.Marshal(data)
	} else {
		ec.dataDoc = []byte("{}")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to serialize inspection data: %w", err)
	}

	return ec, nil
}
