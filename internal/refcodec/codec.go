package refcodec

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	"github.com/pipedag/pipedag-engine/internal/domain"
	"github.com/pipedag/pipedag-engine/internal/pkg/pipedagerr"
)

// StageResolver resolves stage names encountered while decoding a table
// reference. internal/stageregistry.Registry implements this; passing it
// explicitly, rather than reaching for a process-global store, keeps the
// codec reusable and testable in isolation.
type StageResolver interface {
	HasStage(name string) bool
}

// Encode renders a Node tree as canonical JSON: UTF-8, sorted mapping
// keys, compact separators, no NaN/Infinity. Table references become an
// object carrying TypeTagKey; KindOpaque nodes are rejected since they
// cannot be represented on the wire.
func Encode(n Node) (string, error) {
	if err := validateFinite(n); err != nil {
		return "", err
	}
	wire, err := toWire(n)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(wire); err != nil {
		return "", pipedagerr.EncodingError("%v", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func validateFinite(n Node) error {
	switch n.Kind {
	case KindNumber:
		f, err := n.Number.Float64()
		if err != nil {
			return pipedagerr.EncodingError("invalid number literal %q", string(n.Number))
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return pipedagerr.EncodingError("NaN and Infinity are not permitted in encoded output")
		}
		return nil
	case KindOpaque:
		return pipedagerr.EncodingError("cannot encode opaque value of type %T", n.Opaque)
	case KindSeq:
		for _, child := range n.Seq {
			if err := validateFinite(child); err != nil {
				return err
			}
		}
		return nil
	case KindMap:
		for _, child := range n.Map {
			if err := validateFinite(child); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}

func toWire(n Node) (interface{}, error) {
	switch n.Kind {
	case KindNull:
		return nil, nil
	case KindString:
		return n.Str, nil
	case KindBool:
		return n.Bool, nil
	case KindNumber:
		return n.Number, nil
	case KindSeq:
		out := make([]interface{}, len(n.Seq))
		for i, child := range n.Seq {
			w, err := toWire(child)
			if err != nil {
				return nil, err
			}
			out[i] = w
		}
		return out, nil
	case KindMap:
		out := make(map[string]interface{}, len(n.Map))
		for k, child := range n.Map {
			w, err := toWire(child)
			if err != nil {
				return nil, err
			}
			out[k] = w
		}
		return out, nil
	case KindTableRef:
		return map[string]interface{}{
			TypeTagKey:  typeTagTable,
			"stage":     n.Ref.Stage,
			"name":      n.Ref.Name,
			"cache_key": n.Ref.CacheKey,
		}, nil
	default:
		return nil, pipedagerr.EncodingError("unsupported node kind %d", n.Kind)
	}
}

// Decode inverts Encode. Unknown TYPE_TAG values fail with DecodeError;
// the reserved "blob" tag fails with NotSupported; a decoded table
// reference naming an unregistered stage fails with UnknownStage.
// resolver may be nil, in which case stage names are accepted
// unconditionally (useful for tests that don't exercise stage lookups).
func Decode(raw string, resolver StageResolver) (Node, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return Node{}, pipedagerr.DecodeError("%v", err)
	}
	return fromWire(v, resolver)
}

func fromWire(v interface{}, resolver StageResolver) (Node, error) {
	switch t := v.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return NumberLiteral(t), nil
	case []interface{}:
		seq := make([]Node, len(t))
		for i, item := range t {
			child, err := fromWire(item, resolver)
			if err != nil {
				return Node{}, err
			}
			seq[i] = child
		}
		return Node{Kind: KindSeq, Seq: seq}, nil
	case map[string]interface{}:
		return objectFromWire(t, resolver)
	default:
		return Node{}, pipedagerr.DecodeError("unsupported json value of type %T", v)
	}
}

func objectFromWire(t map[string]interface{}, resolver StageResolver) (Node, error) {
	tag, tagged := t[TypeTagKey]
	if !tagged {
		m := make(map[string]Node, len(t))
		for k, item := range t {
			child, err := fromWire(item, resolver)
			if err != nil {
				return Node{}, err
			}
			m[k] = child
		}
		return MapOf(m), nil
	}

	tagStr, ok := tag.(string)
	if !ok {
		return Node{}, pipedagerr.DecodeError("%s must be a string", TypeTagKey)
	}

	switch tagStr {
	case typeTagTable:
		stage, _ := t["stage"].(string)
		name, _ := t["name"].(string)
		cacheKey, _ := t["cache_key"].(string)
		if resolver != nil && !resolver.HasStage(stage) {
			return Node{}, pipedagerr.UnknownStage("%q", stage)
		}
		return Ref(domain.TableRef{Stage: stage, Name: name, CacheKey: cacheKey}), nil
	case typeTagBlob:
		return Node{}, pipedagerr.NotSupported("blob references are not yet implemented")
	default:
		return Node{}, pipedagerr.DecodeError("unknown %s value %q", TypeTagKey, tagStr)
	}
}
