package refcodec

import (
	"math"
	"testing"

	"github.com/pipedag/pipedag-engine/internal/domain"
	"github.com/pipedag/pipedag-engine/internal/pkg/pipedagerr"
)

type fakeResolver struct{ known map[string]bool }

func (f fakeResolver) HasStage(name string) bool { return f.known[name] }

// Scenario 5: Output {"k": [TableRef(stage="S", name="t_0000_abc",
// cache_key="abc")]} encodes to canonical JSON
// {"k":[{"_pipedag_type_":"table","cache_key":"abc","name":"t_0000_abc","stage":"S"}]}
func TestEncode_Scenario5(t *testing.T) {
	ref := domain.TableRef{Stage: "S", Name: "t_0000_abc", CacheKey: "abc"}
	n := MapOf(map[string]Node{"k": Seq(Ref(ref))})

	got, err := Encode(n)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"k":[{"_pipedag_type_":"table","cache_key":"abc","name":"t_0000_abc","stage":"S"}]}`
	if got != want {
		t.Fatalf("encode = %q, want %q", got, want)
	}
}

func TestDecodeEncode_RoundTrip(t *testing.T) {
	resolver := fakeResolver{known: map[string]bool{"S": true}}
	n := MapOf(map[string]Node{
		"k": Seq(
			Ref(domain.TableRef{Stage: "S", Name: "t_0000_abc", CacheKey: "abc"}),
			String("hello"),
			Int(3),
			Float(2.5),
			Bool(true),
			Null(),
		),
	})
	encoded, err := Encode(n)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := Decode(encoded, resolver)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	reEncoded, err := Encode(decoded)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if reEncoded != encoded {
		t.Fatalf("encode(decode(j)) != j: got %q, want %q", reEncoded, encoded)
	}
}

func TestDecode_UnknownStage(t *testing.T) {
	raw := `{"_pipedag_type_":"table","stage":"missing","name":"n","cache_key":"c"}`
	_, err := Decode(raw, fakeResolver{known: map[string]bool{}})
	if !pipedagerr.Is(err, pipedagerr.ErrUnknownStage) {
		t.Fatalf("expected UnknownStage, got %v", err)
	}
}

func TestDecode_BlobNotSupported(t *testing.T) {
	raw := `{"_pipedag_type_":"blob"}`
	_, err := Decode(raw, nil)
	if !pipedagerr.Is(err, pipedagerr.ErrNotSupported) {
		t.Fatalf("expected NotSupported, got %v", err)
	}
}

func TestDecode_UnknownTypeTag(t *testing.T) {
	raw := `{"_pipedag_type_":"mystery"}`
	_, err := Decode(raw, nil)
	if !pipedagerr.Is(err, pipedagerr.ErrDecode) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestDecode_UnmarkedObjectPassesThrough(t *testing.T) {
	raw := `{"a":1,"b":"x"}`
	n, err := Decode(raw, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n.Kind != KindMap {
		t.Fatalf("expected KindMap, got %v", n.Kind)
	}
	if len(n.Map) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(n.Map))
	}
}

func TestEncode_RejectsNaNAndInf(t *testing.T) {
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := Encode(Float(f))
		if !pipedagerr.Is(err, pipedagerr.ErrEncoding) {
			t.Fatalf("expected EncodingError for %v, got %v", f, err)
		}
	}
}

func TestEncode_SortsMapKeys(t *testing.T) {
	n := MapOf(map[string]Node{"z": Int(1), "a": Int(2), "m": Int(3)})
	got, err := Encode(n)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"a":2,"m":3,"z":1}`
	if got != want {
		t.Fatalf("encode = %q, want %q", got, want)
	}
}

func TestFromAnyToAny_RoundTrip(t *testing.T) {
	ref := domain.TableRef{Stage: "S", Name: "n", CacheKey: "c"}
	value := map[string]interface{}{
		"tables": []interface{}{ref},
		"count":  int64(3),
		"label":  "x",
	}
	n := FromAny(value)
	back := ToAny(n)

	backMap, ok := back.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map[string]interface{}, got %T", back)
	}
	tables, ok := backMap["tables"].([]interface{})
	if !ok || len(tables) != 1 {
		t.Fatalf("expected one table in round-tripped tree, got %#v", backMap["tables"])
	}
	if tables[0].(domain.TableRef) != ref {
		t.Fatalf("table ref not preserved: got %#v", tables[0])
	}
	if backMap["count"].(int64) != 3 {
		t.Fatalf("count not preserved: got %#v", backMap["count"])
	}
}
