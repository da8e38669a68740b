package rjson

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParserBasicTokenStream(t *testing.T) {
	p := NewParser(strings.NewReader(`{"a":1,"b":"x"}`))
	tok, err := p.Token()
	require.NoError(t, err)
	assert.Equal(t, json.Delim('{'), tok)

	var keys []string
	for p.More() {
		kTok, err := p.Token()
		require.NoError(t, err)
		keys = append(keys, kTok.(string))
		if _, err := p.Token(); err != nil { // value
			t.Fatal(err)
		}
	}
	_, err = p.Token() // closing '}'
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestParserSkipValueNested(t *testing.T) {
	p := NewParser(strings.NewReader(`{"ignored":{"deep":[1,2,3]},"keep":"v"}`))
	if _, err := p.Token(); err != nil { // '{'
		t.Fatal(err)
	}

	kTok, err := p.Token()
	require.NoError(t, err)
	assert.Equal(t, "ignored", kTok)
	require.NoError(t, p.SkipValue())

	kTok, err = p.Token()
	require.NoError(t, err)
	assert.Equal(t, "keep", kTok)
	vTok, err := p.Token()
	require.NoError(t, err)
	assert.Equal(t, "v", vTok)
}

func TestParserSaveLoadRewindsToFreshObjectContext(t *testing.T) {
	p := NewParser(strings.NewReader(`{"properties":{"a":true},"project":"p","collection":"c1"}`))
	if _, err := p.Token(); err != nil { // '{'
		t.Fatal(err)
	}

	keyTok, err := p.Token()
	require.NoError(t, err)
	require.Equal(t, "properties", keyTok)

	require.False(t, p.IsSaved())
	require.NoError(t, p.Save())
	require.True(t, p.IsSaved())

	// continue reading the rest of the top-level object
	keyTok, err = p.Token()
	require.NoError(t, err)
	assert.Equal(t, "project", keyTok)
	valTok, err := p.Token()
	require.NoError(t, err)
	assert.Equal(t, "p", valTok)

	keyTok, err = p.Token()
	require.NoError(t, err)
	assert.Equal(t, "collection", keyTok)
	valTok, err = p.Token()
	require.NoError(t, err)
	assert.Equal(t, "c1", valTok)

	require.NoError(t, p.Load())
	// now positioned as if just inside the properties object
	require.True(t, p.More())
	keyTok, err = p.Token()
	require.NoError(t, err)
	assert.Equal(t, "a", keyTok)
	valTok, err = p.Token()
	require.NoError(t, err)
	assert.Equal(t, true, valTok)
	assert.False(t, p.More())
}

func TestLoadWithoutSaveFails(t *testing.T) {
	p := NewParser(strings.NewReader(`{}`))
	err := p.Load()
	assert.ErrorIs(t, err, ErrNoSavepoint)
}
