package vt

import (
	"fmt"
	"strconv"
	"strings"

	"vtgofer/internal/codec"
	"vtgofer/internal/fields"
)

// Vendor is a configured scan vendor and the field its verdict is stored in
type Vendor struct {
	Name  string
	Field codec.FieldID
}

// Layout maps report attributes onto registered field identifiers
type Layout struct {
	Hits    codec.FieldID
	Links   codec.FieldID
	Vendors []Vendor
}

// NewLayout registers one field per vendor, then the hits and links fields
func NewLayout(reg fields.Registry, vendors []string) (*Layout, error) {
	l := &Layout{Vendors: make([]Vendor, 0, len(vendors))}

	for _, name := range vendors {
		lc := strings.ToLower(name)
		id, err := reg.AddField(fields.Spec{
			Field:    "virustotal." + lc,
			DB:       "virustotal." + lc + "-term",
			Kind:     fields.KindLoTermField,
			Friendly: name,
			Help:     "VirusTotal " + name + " Status",
			Count:    true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to register vendor field %s: %w", name, err)
		}
		l.Vendors = append(l.Vendors, Vendor{Name: name, Field: id})
	}

	var err error
	l.Hits, err = reg.AddField(fields.Spec{
		Field:    "virustotal.hits",
		DB:       "virustotal.hits",
		Kind:     fields.KindInteger,
		Friendly: "Hits",
		Help:     "VirusTotal Hits",
		Count:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register hits field: %w", err)
	}

	l.Links, err = reg.AddField(fields.Spec{
		Field:    "virustotal.links",
		DB:       "virustotal.links-term",
		Kind:     fields.KindTermField,
		Friendly: "Link",
		Help:     "VirusTotal Link",
		Count:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register links field: %w", err)
	}

	return l, nil
}

// Pairs builds the field list for a found report: hits, link, then every
// configured vendor that flagged the file, in configured order
func (l *Layout) Pairs(r *Report) []codec.Pair {
	pairs := make([]codec.Pair, 0, 2+len(l.Vendors))
	pairs = append(pairs,
		codec.Pair{Field: l.Hits, Value: strconv.Itoa(r.Positives)},
		codec.Pair{Field: l.Links, Value: r.Permalink},
	)

	for _, v := range l.Vendors {
		scan, ok := r.Scans[v.Name]
		if !ok || !scan.Detected {
			continue
		}
		pairs = append(pairs, codec.Pair{Field: v.Field, Value: scan.Result})
	}

	return pairs
}

// Encode turns a report into its encoded result
func (l *Layout) Encode(r *Report) (*codec.Result, error) {
	if r.IsNotFound() {
		return codec.EmptyResult(), nil
	}
	return codec.Encode(l.Pairs(r)...)
}

// Expand decodes result back into a report for key. Fields the layout does
// not know are skipped.
func (l *Layout) Expand(key string, result *codec.Result) (*Report, error) {
	if result.IsEmpty() {
		return &Report{
			ResponseCode: ResponseNotFound,
			Resource:     key,
			VerboseMsg:   NotFoundMessage,
		}, nil
	}

	pairs, err := result.Decode()
	if err != nil {
		return nil, err
	}

	r := &Report{
		ResponseCode: 1,
		Resource:     key,
		Scans:        make(map[string]Scan),
	}

	for _, p := range pairs {
		switch p.Field {
		case l.Hits:
			n, err := strconv.Atoi(p.Value)
			if err != nil {
				return nil, fmt.Errorf("invalid hits value %q: %w", p.Value, err)
			}
			r.Positives = n
		case l.Links:
			r.Permalink = p.Value
		default:
			if name, ok := l.vendorName(p.Field); ok {
				r.Scans[name] = Scan{Detected: true, Result: p.Value}
			}
		}
	}

	return r, nil
}

func (l *Layout) vendorName(id codec.FieldID) (string, bool) {
	for _, v := range l.Vendors {
		if v.Field == id {
			return v.Name, true
		}
	}
	return "", false
}
