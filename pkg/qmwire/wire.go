// Package qmwire is the JSON wire format for values that cross a
// process boundary: constant literals carried in a compiled query
// payload, and the canonical encoding used to content-hash a Source or
// Expression tree for CTE-reuse checkpointing. Every record is tagged
// with a schema version so a payload produced by an older or newer
// build fails loudly instead of silently misreading fields.
package qmwire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fj1981/modelsql/pkg/qmerr"
	"github.com/fj1981/modelsql/pkg/qmexpr"
	"github.com/fj1981/modelsql/pkg/qmmodel"
)

// FormatVersion is bumped whenever a wire record's field shape changes
// in a way that breaks older readers.
const FormatVersion = 1

// typeKey values distinguish literal kinds that plain JSON can't
// represent unambiguously (a date and a datetime both look like a
// string on the wire).
const (
	typeKeyDate         = "py.date"
	typeKeyDateTime     = "py.datetime"
	typeKeyTimedelta    = "py.timedelta"
	typeKeyTimeInterval = "py.timeinterval"
)

// literalEnvelope is the on-wire shape of a single Literal. Kind is
// one of the bare JSON kinds ("null", "bool", "int", "float", "str",
// "list") or one of the typeKey constants above; Version guards
// against reading a payload this build doesn't understand.
type literalEnvelope struct {
	Version int               `json:"_version"`
	Kind    string            `json:"$type"`
	Value   json.RawMessage   `json:"value,omitempty"`
	List    []literalEnvelope `json:"list,omitempty"`
}

// timeIntervalWire is the JSON shape of a TimeInterval literal's value.
type timeIntervalWire struct {
	Unit qmexpr.IntervalUnit `json:"unit"`
	Num  int                 `json:"num"`
}

// EncodeLiteral renders a Literal to its versioned wire envelope.
func EncodeLiteral(l qmexpr.Literal) (literalEnvelope, error) {
	env := literalEnvelope{Version: FormatVersion}
	switch l.Kind {
	case qmexpr.LitNull:
		env.Kind = "null"
	case qmexpr.LitBool:
		env.Kind = "bool"
		env.Value, _ = json.Marshal(l.Bool)
	case qmexpr.LitInt:
		env.Kind = "int"
		env.Value, _ = json.Marshal(l.Int)
	case qmexpr.LitFloat:
		env.Kind = "float"
		env.Value, _ = json.Marshal(l.Float)
	case qmexpr.LitStr:
		env.Kind = "str"
		env.Value, _ = json.Marshal(l.Str)
	case qmexpr.LitList:
		env.Kind = "list"
		for _, item := range l.List {
			itemEnv, err := EncodeLiteral(item)
			if err != nil {
				return literalEnvelope{}, err
			}
			env.List = append(env.List, itemEnv)
		}
	case qmexpr.LitDate:
		env.Kind = typeKeyDate
		env.Value, _ = json.Marshal(l.Date.Format("2006-01-02"))
	case qmexpr.LitDateTime:
		env.Kind = typeKeyDateTime
		env.Value, _ = json.Marshal(l.DateTime.Format(time.RFC3339Nano))
	case qmexpr.LitTimedelta:
		env.Kind = typeKeyTimedelta
		env.Value, _ = json.Marshal(l.Timedelta)
	case qmexpr.LitTimeInterval:
		env.Kind = typeKeyTimeInterval
		env.Value, _ = json.Marshal(timeIntervalWire{Unit: l.TimeInterval.Unit, Num: l.TimeInterval.Num})
	default:
		return literalEnvelope{}, fmt.Errorf("qmwire: unknown literal kind %d", l.Kind)
	}
	return env, nil
}

// DecodeLiteral reverses EncodeLiteral, rejecting a payload whose
// Version doesn't match this build's FormatVersion.
func DecodeLiteral(env literalEnvelope) (qmexpr.Literal, error) {
	if env.Version != FormatVersion {
		return qmexpr.Literal{}, qmerr.NewWireFormatVersionError(FormatVersion, env.Version)
	}
	switch env.Kind {
	case "null":
		return qmexpr.NullLiteral(), nil
	case "bool":
		var v bool
		if err := json.Unmarshal(env.Value, &v); err != nil {
			return qmexpr.Literal{}, err
		}
		return qmexpr.BoolLiteral(v), nil
	case "int":
		var v int64
		if err := json.Unmarshal(env.Value, &v); err != nil {
			return qmexpr.Literal{}, err
		}
		return qmexpr.IntLiteral(v), nil
	case "float":
		var v float64
		if err := json.Unmarshal(env.Value, &v); err != nil {
			return qmexpr.Literal{}, err
		}
		return qmexpr.FloatLiteral(v), nil
	case "str":
		var v string
		if err := json.Unmarshal(env.Value, &v); err != nil {
			return qmexpr.Literal{}, err
		}
		return qmexpr.StrLiteral(v), nil
	case "list":
		items := make([]qmexpr.Literal, 0, len(env.List))
		for _, itemEnv := range env.List {
			item, err := DecodeLiteral(itemEnv)
			if err != nil {
				return qmexpr.Literal{}, err
			}
			items = append(items, item)
		}
		return qmexpr.ListLiteral(items...), nil
	case typeKeyDate:
		var v string
		if err := json.Unmarshal(env.Value, &v); err != nil {
			return qmexpr.Literal{}, err
		}
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return qmexpr.Literal{}, err
		}
		return qmexpr.DateLiteral(t), nil
	case typeKeyDateTime:
		var v string
		if err := json.Unmarshal(env.Value, &v); err != nil {
			return qmexpr.Literal{}, err
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return qmexpr.Literal{}, err
		}
		return qmexpr.DateTimeLiteral(t), nil
	case typeKeyTimedelta:
		var v int64
		if err := json.Unmarshal(env.Value, &v); err != nil {
			return qmexpr.Literal{}, err
		}
		return qmexpr.TimedeltaLiteral(v), nil
	case typeKeyTimeInterval:
		var v timeIntervalWire
		if err := json.Unmarshal(env.Value, &v); err != nil {
			return qmexpr.Literal{}, err
		}
		return qmexpr.TimeIntervalLiteral(v.Unit, v.Num), nil
	default:
		return qmexpr.Literal{}, fmt.Errorf("qmwire: unknown literal $type %q", env.Kind)
	}
}

// secretHandle is the wire placeholder written in place of a credential
// value (a connection password, an API token) that must never round
// trip through a logged or cached payload. Encode a secret with
// NewSecretHandle; the payload holds only the handle, and no decoder for
// it exists here (DecodeLiteral rejects its $type), so a payload
// containing one can't leak the original value back out.
type secretHandle struct {
	Version int    `json:"_version"`
	Kind    string `json:"$type"`
	Handle  string `json:"handle"`
}

// NewSecretHandle wraps an opaque lookup key (a vault path, a secret
// manager ARN) as the wire value standing in for a credential.
func NewSecretHandle(handle string) ([]byte, error) {
	return json.Marshal(secretHandle{Version: FormatVersion, Kind: "secret.handle", Handle: handle})
}

// kindEnvelope gives every node a `$kind` discriminator before it's
// marshaled, so two distinct node types that happen to share a field
// shape (rare, but e.g. a single-field leaf) never hash the same.
type kindEnvelope struct {
	Kind string      `json:"$kind"`
	Data interface{} `json:"data"`
}

// CanonicalSourceBytes renders node to the deterministic byte form fed
// into qmctx.StableHash for CTE-reuse checkpointing. json.Marshal
// already orders struct fields by declaration order and map keys
// lexicographically, which is exactly the stability this needs; the
// $kind wrapper disambiguates nodes whose own fields would otherwise
// collide.
func CanonicalSourceBytes(node qmmodel.SourceNode) ([]byte, error) {
	if node == nil {
		return json.Marshal(kindEnvelope{Kind: "nil"})
	}
	return json.Marshal(kindEnvelope{Kind: node.Kind(), Data: node})
}

// CanonicalExpressionBytes is CanonicalSourceBytes' counterpart for
// Expression trees, used when an expression (rather than a whole
// source) needs its own content-hash identity.
func CanonicalExpressionBytes(expr qmmodel.Expression) ([]byte, error) {
	if expr == nil {
		return json.Marshal(kindEnvelope{Kind: "nil"})
	}
	return json.Marshal(kindEnvelope{Kind: expr.Kind(), Data: expr})
}
