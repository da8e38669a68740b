package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TokenReader is the minimal surface DecodeValue needs from a streaming JSON
// tokenizer: the next token, and whether the current array/object has more
// elements. *rjson.Parser satisfies this structurally, so this package never
// imports rjson (which would cycle back through ingest).
type TokenReader interface {
	Token() (json.Token, error)
	More() bool
}

// DecodeValue resolves one already-read token into a flat value: a string,
// bool, json.Number, []string (for ARRAY), or nil (for JSON null). start-of-
// object always fails with ErrNestedNotSupported; an array containing a
// nested array or object also fails, since ARRAY is always array-of-STRING
// in this core (§3, §4.A).
func DecodeValue(r TokenReader, tok json.Token) (any, error) {
	switch v := tok.(type) {
	case nil:
		return nil, nil
	case string:
		return v, nil
	case bool:
		return v, nil
	case json.Number:
		return v, nil
	case json.Delim:
		switch v {
		case '{':
			return nil, ErrNestedNotSupported
		case '[':
			elems := make([]string, 0, 4)
			for r.More() {
				elTok, err := r.Token()
				if err != nil {
					return nil, err
				}
				if _, ok := elTok.(json.Delim); ok {
					return nil, ErrNestedNotSupported
				}
				elems = append(elems, tokenToString(elTok))
			}
			// consume the closing ']'
			if _, err := r.Token(); err != nil {
				return nil, err
			}
			return elems, nil
		default:
			return nil, fmt.Errorf("schemaflow: unexpected token %v", tok)
		}
	default:
		return nil, fmt.Errorf("schemaflow: unexpected token type %T", tok)
	}
}

func tokenToString(tok json.Token) string {
	switch v := tok.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// InferType derives a FieldType from an already-decoded value, mirroring
// fieldTypeFromJsonValue (§4.A): strings are STRING, bools are BOOLEAN,
// numbers split on a fractional/exponent marker into LONG or DOUBLE, and
// []string is ARRAY. nil carries no type information.
func InferType(value any) (FieldType, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return FieldTypeString, true
	case bool:
		return FieldTypeBoolean, true
	case json.Number:
		if isFractional(v) {
			return FieldTypeDouble, true
		}
		return FieldTypeLong, true
	case []string:
		return FieldTypeArray, true
	default:
		return "", false
	}
}

func isFractional(n json.Number) bool {
	return strings.ContainsAny(string(n), ".eE")
}

// CoerceInferred converts a value into the Go representation matching a
// FieldType that was itself just inferred from that same value (cold path,
// or a brand-new field discovered mid-event). Unlike MatchValue, it does not
// apply the historical string-only BOOLEAN quirk, since there is no
// pre-existing declared column to be lenient against — the type was derived
// from this exact value.
func CoerceInferred(value any, t FieldType) (any, bool) {
	switch t {
	case FieldTypeString:
		s, ok := value.(string)
		return s, ok
	case FieldTypeBoolean:
		b, ok := value.(bool)
		return b, ok
	case FieldTypeLong:
		n, ok := value.(json.Number)
		if !ok {
			return nil, false
		}
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		// numeric widening: a number that does not fit an int64 (an
		// overflowing integral token, or a fractional one) is kept as a
		// float64 rather than dropped outright.
		if f, err := n.Float64(); err == nil {
			return f, true
		}
		return nil, false
	case FieldTypeDouble:
		n, ok := value.(json.Number)
		if !ok {
			return nil, false
		}
		f, err := n.Float64()
		if err != nil {
			return nil, false
		}
		return f, true
	case FieldTypeArray:
		arr, ok := value.([]string)
		return arr, ok
	default:
		return nil, false
	}
}

// MatchValue decodes an already-resolved value into the Go representation of
// an existing, declared field type, implementing the fast-path scalar
// decoding table of §4.G. A token whose shape does not match the declared
// column is reported as unmatched so the caller can silently drop it.
//
// BOOLEAN is deliberately decoded only from a string token ("true"/"false",
// case-insensitive) — the historical quirk flagged in §9's open questions,
// mirrored here because it is independently grounded in the teacher's own
// coerceValue behavior rather than invented; see DESIGN.md.
func MatchValue(value any, declared FieldType) (any, bool) {
	switch declared {
	case FieldTypeString:
		s, ok := value.(string)
		return s, ok
	case FieldTypeLong:
		n, ok := value.(json.Number)
		if !ok || isFractional(n) {
			return nil, false
		}
		i, err := n.Int64()
		if err != nil {
			return nil, false
		}
		return i, true
	case FieldTypeDouble:
		n, ok := value.(json.Number)
		if !ok {
			return nil, false
		}
		f, err := n.Float64()
		if err != nil {
			return nil, false
		}
		return f, true
	case FieldTypeBoolean:
		s, ok := value.(string)
		if !ok {
			return nil, false
		}
		switch strings.ToLower(s) {
		case "true":
			return true, true
		case "false":
			return false, true
		default:
			return nil, false
		}
	case FieldTypeArray:
		arr, ok := value.([]string)
		return arr, ok
	default:
		return nil, false
	}
}
