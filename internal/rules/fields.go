// internal/rules/fields.go
package rules

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/solatis/rulekeeper/internal/types"
)

/*
 * Field address resolution.
 *
 * A field address is scheme + "://" + path. The scheme selects one of the
 * named data sources inside the EvalContext; the path is a gjson query over
 * the selected source's JSON tree. When no separator is present the default
 * scheme "data" applies.
 *
 * Schemes:
 *   - data: freeform inspection data (single document)
 *   - node: the node record serialized as a tree (single document)
 *   - port: the list of port records; the path runs against each port
 *     document in turn and resolved values carry the port index
 *
 * Path dialect: gjson syntax. Dot-separated keys, integer array indices,
 * "#" for each-element traversal (producing multiple values), "*" and "?"
 * key wildcards. A "#" query yields one value per matched element, in
 * document order.
 *
 * Zero matches is a valid, non-error outcome. Resolution is a pure function
 * of (context, address).
 */

const (
	defaultScheme   = "data"
	schemeSeparator = "://"
)

// Value is one resolved field value. Port is the index of the port record the
// value came from, or -1 when the source is not port-scoped.
type Value struct {
	Data any
	Port int
}

// splitField separates a field address into scheme and path on the first
// occurrence of the separator, applying the default scheme when absent.
func splitField(field string) (scheme, path string) {
	idx := strings.Index(field, schemeSeparator)
	if idx < 0 {
		return defaultScheme, field
	}
	return field[:idx], field[idx+len(schemeSeparator):]
}

// fieldScheme returns only the scheme of a field address.
func fieldScheme(field string) string {
	scheme, _ := splitField(field)
	return scheme
}

// validatePath rejects path expressions that cannot be parsed. gjson treats
// most strings as valid queries, so only structurally broken expressions are
// caught here: empty paths, empty segments, and unbalanced brackets.
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", types.ErrBadFieldPath)
	}
	if strings.HasPrefix(path, ".") || strings.HasSuffix(path, ".") || strings.Contains(path, "..") {
		return fmt.Errorf("%w: empty segment in %q", types.ErrBadFieldPath, path)
	}
	depth := 0
	for _, c := range path {
		switch c {
		case '[':
			depth++
		case ']':
			depth--
		}
		if depth < 0 {
			break
		}
	}
	if depth != 0 {
		return fmt.Errorf("%w: unbalanced brackets in %q", types.ErrBadFieldPath, path)
	}
	return nil
}

// ResolveField evaluates a field address against the snapshot and returns
// every matched leaf value in query order. An empty result is not an error.
// Returns ErrUnknownScheme for an unregistered scheme and ErrBadFieldPath for
// an unparseable path.
func ResolveField(ec *EvalContext, field string) ([]Value, error) {
	scheme, path := splitField(field)
	if err := validatePath(path); err != nil {
		return nil, err
	}

	switch scheme {
	case "data":
		return queryDoc(ec.dataDoc, path, -1), nil
	case "node":
		return queryDoc(ec.nodeDoc, path, -1), nil
	case "port":
		var out []Value
		for i := range ec.portDocs {
			out = append(out, queryDoc(ec.portDocs[i], path, i)...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q (valid schemes: data, node, port)", types.ErrUnknownScheme, scheme)
	}
}

// queryDoc runs one gjson query against a single document. A "#" traversal
// that produced an array is flattened into one value per element; any other
// result is a single value.
func queryDoc(doc []byte, path string, port int) []Value {
	res := gjson.GetBytes(doc, path)
	if !res.Exists() {
		return nil
	}
	if res.IsArray() && strings.Contains(path, "#") {
		elems := res.Array()
		out := make([]Value, 0, len(elems))
		for _, e := range elems {
			out = append(out, Value{Data: e.Value(), Port: port})
		}
		return out
	}
	return []Value{{Data: res.Value(), Port: port}}
}
