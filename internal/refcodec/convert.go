package refcodec

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/pipedag/pipedag-engine/internal/domain"
)

// FromAny lifts a plain Go value (as commonly produced by user task code:
// nil, string, bool, json.Number, int, int32, int64, float32, float64,
// []interface{}, []Node, map[string]interface{}, map[string]Node,
// domain.TableRef, or an already-built Node) into the Node tree. Anything
// else, including the other integer kinds, is kept as an KindOpaque leaf — it can still be walked by Fold, it
// just can't be Encode'd to the wire form.
func FromAny(v interface{}) Node {
	switch t := v.(type) {
	case nil:
		return Null()
	case Node:
		return t
	case domain.TableRef:
		return Ref(t)
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case json.Number:
		return NumberLiteral(t)
	case int:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case float32:
		return Float(float64(t))
	case float64:
		return Float(t)
	case []interface{}:
		seq := make([]Node, len(t))
		for i, item := range t {
			seq[i] = FromAny(item)
		}
		return Node{Kind: KindSeq, Seq: seq}
	case []Node:
		return Node{Kind: KindSeq, Seq: t}
	case map[string]interface{}:
		m := make(map[string]Node, len(t))
		for k, item := range t {
			m[k] = FromAny(item)
		}
		return MapOf(m)
	case map[string]Node:
		return MapOf(t)
	default:
		return OpaqueValue(v)
	}
}

// ToAny lowers a Node tree back into plain Go values: map[string]interface{},
// []interface{}, string, bool, nil, int64/float64 for numbers (parsed from
// the exact decoded literal, preserving the integer/float distinction),
// and domain.TableRef for table references. KindOpaque nodes return their
// wrapped value unchanged.
func ToAny(n Node) interface{} {
	switch n.Kind {
	case KindNull:
		return nil
	case KindString:
		return n.Str
	case KindBool:
		return n.Bool
	case KindNumber:
		return numberToAny(n.Number)
	case KindSeq:
		out := make([]interface{}, len(n.Seq))
		for i, item := range n.Seq {
			out[i] = ToAny(item)
		}
		return out
	case KindMap:
		out := make(map[string]interface{}, len(n.Map))
		for k, item := range n.Map {
			out[k] = ToAny(item)
		}
		return out
	case KindTableRef:
		return n.Ref
	case KindOpaque:
		return n.Opaque
	default:
		return nil
	}
}

func numberToAny(n json.Number) interface{} {
	s := string(n)
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
	}
	f, _ := n.Float64()
	return f
}

// Fold walks a Node tree in deterministic pre-order — the node itself,
// then its children in order (sequence index order, sorted map keys) —
// calling visit on every node and rebuilding the tree from whatever visit
// returns. This is a fold producing a new tree, never an in-place edit.
func Fold(n Node, visit func(Node) (Node, error)) (Node, error) {
	visited, err := visit(n)
	if err != nil {
		return Node{}, err
	}
	switch visited.Kind {
	case KindSeq:
		newSeq := make([]Node, len(visited.Seq))
		for i, child := range visited.Seq {
			nc, err := Fold(child, visit)
			if err != nil {
				return Node{}, err
			}
			newSeq[i] = nc
		}
		visited.Seq = newSeq
		return visited, nil
	case KindMap:
		keys := sortedKeys(visited.Map)
		newMap := make(map[string]Node, len(visited.Map))
		for _, k := range keys {
			nc, err := Fold(visited.Map[k], visit)
			if err != nil {
				return Node{}, err
			}
			newMap[k] = nc
		}
		visited.Map = newMap
		return visited, nil
	default:
		return visited, nil
	}
}

func sortedKeys(m map[string]Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
