package testutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJSONAsserter_ExtraKeysIgnoredByDefault(t *testing.T) {
	rec := &recordingT{}
	ok := NewJSONAsserter(rec).Assert(`{"kind":"light","value":12.5,"ts":"x"}`, `{"kind":"light","value":12.5}`)
	assert.True(t, ok, rec.errors)

	rec = &recordingT{}
	ok = NewJSONAsserter(rec, WithIgnoreExtraKeys(false)).Assert(`{"kind":"light","ts":"x"}`, `{"kind":"light"}`)
	assert.False(t, ok)
	assert.Len(t, rec.errors, 1)
}

func TestJSONAsserter_Presence(t *testing.T) {
	rec := &recordingT{}
	assert.True(t, NewJSONAsserter(rec).Assert(`{"timestamp":"2026-01-01T00:00:00Z"}`, `{"timestamp":"<<PRESENCE>>"}`))

	rec = &recordingT{}
	assert.False(t, NewJSONAsserter(rec).Assert(`{}`, `{"timestamp":"<<PRESENCE>>"}`))
}

func TestJSONAsserter_IgnoredFieldsAndOrder(t *testing.T) {
	actual := `[{"kind":"b","ts":2},{"kind":"a","ts":1}]`
	expected := `[{"kind":"a","ts":9},{"kind":"b","ts":9}]`

	rec := &recordingT{}
	ok := NewJSONAsserter(rec, WithIgnoredFields("ts"), WithIgnoreArrayOrder(true)).Assert(actual, expected)
	assert.True(t, ok, rec.errors)

	rec = &recordingT{}
	assert.False(t, NewJSONAsserter(rec, WithIgnoredFields("ts")).Assert(actual, expected))
}

func TestJSONAsserter_Lines(t *testing.T) {
	out := "{\"kind\":\"light\",\"value\":1}\n\n{\"kind\":\"light\",\"value\":2}\n"

	rec := &recordingT{}
	assert.True(t, NewJSONAsserter(rec).AssertLines(out, `{"value":1}`, `{"value":2}`), rec.errors)

	rec = &recordingT{}
	assert.False(t, NewJSONAsserter(rec).AssertLines(out, `{"value":1}`))
}

func TestJSONAsserter_InvalidJSON(t *testing.T) {
	d := NewJSONAsserter(t).Diff(`{`, `{}`)
	assert.Contains(t, d, "invalid actual JSON")
}
