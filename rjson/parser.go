// Package rjson implements the rewindable JSON tokenizer described in §4.F:
// ordinary forward iteration plus a single savepoint, used when `properties`
// arrives before the `project`/`collection` headers that determine how it
// must be decoded.
//
// The savepoint is implemented by buffering the subtree into a byte slice the
// first time it is encountered rather than tracking a raw byte offset into
// the original stream — the alternative §9 explicitly sanctions as equally
// valid ("the contract is positional fidelity, not mechanism"). This module
// has no streaming JSON library of its own in its dependency stack, so it is
// built directly on encoding/json, the same way the teacher builds every
// (de)serialization path in core/schema/definition.go.
package rjson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrNoSavepoint is returned by Load when no savepoint has been recorded.
var ErrNoSavepoint = errors.New("rjson: no savepoint recorded")

// Parser is a streaming JSON tokenizer with a single rewindable savepoint.
type Parser struct {
	dec    *json.Decoder
	saved  json.RawMessage
	hasSav bool
}

// NewParser wraps r for token-by-token consumption. Numbers are read as
// json.Number so the caller can distinguish integral from fractional tokens
// without losing precision (§4.A's LONG vs DOUBLE split).
func NewParser(r io.Reader) *Parser {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return &Parser{dec: dec}
}

// Token returns the next JSON token from the active decoder.
func (p *Parser) Token() (json.Token, error) {
	return p.dec.Token()
}

// More reports whether the current array or object has more elements.
func (p *Parser) More() bool {
	return p.dec.More()
}

// SkipValue discards exactly one JSON value positioned at the cursor —
// scalar, array, or object — without saving it. Used for top-level fields
// the deserializer does not recognize (§6: "Extra top-level fields are
// ignored").
func (p *Parser) SkipValue() error {
	tok, err := p.dec.Token()
	if err != nil {
		return err
	}
	return p.skipRest(tok)
}

func (p *Parser) skipRest(tok json.Token) error {
	delim, ok := tok.(json.Delim)
	if !ok {
		return nil // scalar: already fully consumed by the Token() call
	}
	if delim != '{' && delim != '[' {
		return nil
	}
	for p.dec.More() {
		if delim == '{' {
			if _, err := p.dec.Token(); err != nil { // key
				return err
			}
		}
		valTok, err := p.dec.Token()
		if err != nil {
			return err
		}
		if err := p.skipRest(valTok); err != nil {
			return err
		}
	}
	_, err := p.dec.Token() // closing delimiter
	return err
}

// Save records the current value (object, array, or scalar) as the single
// savepoint, buffering it into memory and advancing the cursor past it in
// the same step — this is the point at which the deserializer would
// otherwise call skipChildren() over the properties subtree (§4.F).
// Calling Save a second time replaces the previous savepoint; the
// deserializer's own state machine never does this (§9: "only one savepoint
// is needed").
func (p *Parser) Save() error {
	var raw json.RawMessage
	if err := p.dec.Decode(&raw); err != nil {
		return err
	}
	p.saved = raw
	p.hasSav = true
	return nil
}

// IsSaved reports whether a savepoint has been recorded.
func (p *Parser) IsSaved() bool {
	return p.hasSav
}

// Load repositions the parser onto the savepoint, re-tokenizing the buffered
// subtree from its start. Per §4.F, the parser state afterward is "inside an
// object, expecting first field": Load consumes the subtree's own opening
// brace so that a subsequent More()/Token() call reads its first key,
// exactly as it would for an object encountered directly in the main stream.
func (p *Parser) Load() error {
	if !p.hasSav {
		return ErrNoSavepoint
	}
	dec := json.NewDecoder(bytes.NewReader(p.saved))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("rjson: savepoint does not start an object")
	}
	p.dec = dec
	return nil
}
