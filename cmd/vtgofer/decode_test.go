package main

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vtgofer/internal/codec"
	"vtgofer/internal/fields"
	"vtgofer/internal/vt"
)

func TestDecodeBuffer(t *testing.T) {
	vendors := []string{"Alpha", "Beta"}
	layout, err := vt.NewLayout(fields.NewMemoryRegistry(), vendors)
	require.NoError(t, err)

	result := codec.MustEncode(
		codec.Pair{Field: layout.Hits, Value: "2"},
		codec.Pair{Field: layout.Links, Value: "http://x/abc123"},
		codec.Pair{Field: layout.Vendors[0].Field, Value: "Trojan.X"},
		codec.Pair{Field: 200, Value: "?"},
	)
	encoded := base64.StdEncoding.EncodeToString(result.Buffer)

	var out bytes.Buffer
	require.NoError(t, decodeBuffer(&out, vendors, encoded, -1))
	assert.Equal(t, "virustotal.hits\t2\n"+
		"virustotal.links\thttp://x/abc123\n"+
		"virustotal.alpha\tTrojan.X\n"+
		"field#200\t?\n", out.String())

	out.Reset()
	require.NoError(t, decodeBuffer(&out, vendors, encoded, 1))
	assert.Equal(t, "virustotal.hits\t2\n", out.String())
}

func TestDecodeBuffer_Errors(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, decodeBuffer(&out, nil, "%%%", -1))

	truncated := base64.StdEncoding.EncodeToString([]byte{0, 5, 'a'})
	assert.ErrorIs(t, decodeBuffer(&out, nil, truncated, -1), codec.ErrTruncated)
}

func TestCountRecords(t *testing.T) {
	assert.Equal(t, 0, countRecords(nil))
	assert.Equal(t, 2, countRecords([]byte{1, 2, 'a', 0, 2, 1, 0}))
}
