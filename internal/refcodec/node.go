// Package refcodec implements the reference codec: encoding and decoding
// of task output trees that embed table references, plus a generic
// tagged-variant tree representation used for walking both input and
// output trees. Walking is a fold producing a new tree rather than an
// in-place mutation, so a caller holding the original tree never
// observes a partial rewrite.
package refcodec

import (
	"encoding/json"
	"strconv"

	"github.com/pipedag/pipedag-engine/internal/domain"
)

// TypeTagKey is the reserved sentinel key used to mark an encoded table
// reference inside an otherwise-plain JSON object.
const TypeTagKey = "_pipedag_type_"

const (
	typeTagTable = "table"
	typeTagBlob  = "blob"
)

type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindSeq
	KindMap
	KindTableRef
	// KindOpaque carries an arbitrary Go value that is neither a JSON
	// scalar nor a table reference — e.g. a table payload already
	// resolved by the table store during dematerialisation. Opaque
	// nodes can be walked but never encoded to the wire form.
	KindOpaque
)

// Node is the tagged-variant tree used throughout this package and by
// internal/materializer: Node = Scalar | Seq(Node*) | Map(name → Node) |
// TableRef | Opaque.
type Node struct {
	Kind   Kind
	Str    string
	Number json.Number
	Bool   bool
	Seq    []Node
	Map    map[string]Node
	Ref    domain.TableRef
	Opaque interface{}
}

func Null() Node                   { return Node{Kind: KindNull} }
func String(s string) Node         { return Node{Kind: KindString, Str: s} }
func Bool(b bool) Node             { return Node{Kind: KindBool, Bool: b} }
func Int(i int64) Node             { return Node{Kind: KindNumber, Number: json.Number(strconv.FormatInt(i, 10))} }
func Float(f float64) Node         { return Node{Kind: KindNumber, Number: json.Number(strconv.FormatFloat(f, 'g', -1, 64))} }
func NumberLiteral(n json.Number) Node { return Node{Kind: KindNumber, Number: n} }
func Seq(items ...Node) Node       { return Node{Kind: KindSeq, Seq: items} }
func MapOf(m map[string]Node) Node { return Node{Kind: KindMap, Map: m} }
func Ref(ref domain.TableRef) Node { return Node{Kind: KindTableRef, Ref: ref} }
func OpaqueValue(v interface{}) Node { return Node{Kind: KindOpaque, Opaque: v} }
