// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONObjectDirectParse(t *testing.T) {
	obj, err := extractJSONObject(`{"vendor": "Acme", "amount": 12.5}`)
	require.NoError(t, err)
	assert.Equal(t, "Acme", obj["vendor"])
}

func TestExtractJSONObjectFallsBackToBraceRegion(t *testing.T) {
	raw := "Sure, here you go:\n{\"vendor\": \"Acme\"}\nHope that helps!"
	obj, err := extractJSONObject(raw)
	require.NoError(t, err)
	assert.Equal(t, "Acme", obj["vendor"])
}

func TestExtractJSONObjectEmptyInput(t *testing.T) {
	_, err := extractJSONObject("   ")
	assert.Error(t, err)
}

func TestExtractJSONObjectNoJSONPresent(t *testing.T) {
	_, err := extractJSONObject("no json here at all")
	assert.Error(t, err)
}

func TestStringFieldTrimsAndRejectsNonString(t *testing.T) {
	obj := map[string]interface{}{"a": "  hi  ", "b": 5.0, "c": ""}
	require.NotNil(t, stringField(obj, "a"))
	assert.Equal(t, "hi", *stringField(obj, "a"))
	assert.Nil(t, stringField(obj, "b"))
	assert.Nil(t, stringField(obj, "c"))
	assert.Nil(t, stringField(obj, "missing"))
}

func TestBoolField(t *testing.T) {
	obj := map[string]interface{}{"a": true, "b": "true"}
	require.NotNil(t, boolField(obj, "a"))
	assert.True(t, *boolField(obj, "a"))
	assert.Nil(t, boolField(obj, "b"))
}

func TestFloatField(t *testing.T) {
	obj := map[string]interface{}{"a": 3.5, "b": "3.5"}
	require.NotNil(t, floatField(obj, "a"))
	assert.Equal(t, 3.5, *floatField(obj, "a"))
	assert.Nil(t, floatField(obj, "b"))
}

func TestRawFieldAsTextHandlesStringsAndNumbers(t *testing.T) {
	obj := map[string]interface{}{"a": "12.50", "b": 12.5}
	assert.Equal(t, "12.50", *rawFieldAsText(obj, "a"))
	assert.Equal(t, "12.5", *rawFieldAsText(obj, "b"))
	assert.Nil(t, rawFieldAsText(obj, "missing"))
}
