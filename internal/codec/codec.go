// Package codec packs (field, value) pairs into the compact record stored
// alongside each enriched key.
//
// Each pair is laid out as:
//
//	+---------+---------+----------------------+------+
//	| FieldID | L       | value (L-1 bytes)    | 0x00 |
//	+---------+---------+----------------------+------+
//
// where L is the UTF-8 byte length of the value plus one. A record is
// therefore always 2+L bytes long. The buffer carries no count; the number
// of pairs travels next to it in Result.
package codec

import (
	"errors"
	"fmt"
)

// MaxFieldID is the largest field identifier that fits the one-byte header
const MaxFieldID = 255

// MaxValueLen is the largest value, in bytes, that can be encoded
const MaxValueLen = 254

var (
	ErrFieldIDRange = errors.New("field id out of range")
	ErrValueTooLong = errors.New("value too long")
	ErrTruncated    = errors.New("truncated buffer")
)

// FieldID identifies one enrichment attribute
type FieldID int

// Pair is a single field/value entry
type Pair struct {
	Field FieldID
	Value string
}

// Result is an encoded set of pairs
type Result struct {
	Count  int
	Buffer []byte
}

// EmptyResult returns the canonical result for a key with nothing to report
func EmptyResult() *Result {
	return &Result{Count: 0, Buffer: []byte{}}
}

// IsEmpty returns true if the result holds no pairs
func (r *Result) IsEmpty() bool {
	return r == nil || r.Count == 0
}

// Encode packs pairs in the order given
func Encode(pairs ...Pair) (*Result, error) {
	size := 0
	for _, p := range pairs {
		if p.Field < 0 || p.Field > MaxFieldID {
			return nil, fmt.Errorf("%w: %d", ErrFieldIDRange, p.Field)
		}
		if len(p.Value) > MaxValueLen {
			return nil, fmt.Errorf("%w: field %d has %d bytes, max %d", ErrValueTooLong, p.Field, len(p.Value), MaxValueLen)
		}
		size += 3 + len(p.Value)
	}

	buf := make([]byte, 0, size)
	for _, p := range pairs {
		buf = append(buf, byte(p.Field), byte(len(p.Value)+1))
		buf = append(buf, p.Value...)
		buf = append(buf, 0)
	}

	return &Result{Count: len(pairs), Buffer: buf}, nil
}

// MustEncode is like Encode but panics on error
func MustEncode(pairs ...Pair) *Result {
	r, err := Encode(pairs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Decode unpacks count pairs from buf
func Decode(buf []byte, count int) ([]Pair, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: negative count %d", ErrTruncated, count)
	}

	pairs := make([]Pair, 0, count)
	offset := 0
	for i := 0; i < count; i++ {
		if offset+2 > len(buf) {
			return nil, fmt.Errorf("%w: record %d header at offset %d", ErrTruncated, i, offset)
		}
		field := FieldID(buf[offset])
		length := int(buf[offset+1])
		if length == 0 {
			return nil, fmt.Errorf("%w: record %d has zero length", ErrTruncated, i)
		}
		end := offset + 2 + length
		if end > len(buf) {
			return nil, fmt.Errorf("%w: record %d needs %d bytes, have %d", ErrTruncated, i, end, len(buf))
		}
		pairs = append(pairs, Pair{
			Field: field,
			Value: string(buf[offset+2 : offset+2+length-1]),
		})
		offset = end
	}

	return pairs, nil
}

// Decode unpacks the pairs held by the result
func (r *Result) Decode() ([]Pair, error) {
	if r == nil {
		return nil, nil
	}
	return Decode(r.Buffer, r.Count)
}
