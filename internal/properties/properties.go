// Package properties reads Hadoop-style property documents:
//
//	<configuration>
//	  <property><name>dfs.replication</name><value>3</value></property>
//	</configuration>
//
// and derives the endpoint values a service is expected to publish.
package properties

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/go-cmp/cmp"
)

// ParseError is returned when a document is not a well-formed property list.
type ParseError struct {
	// Line is the 1-based line of the syntax error, or 0 when unknown.
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed property document at line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("malformed property document: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type document struct {
	XMLName    xml.Name
	Properties []property `xml:"property"`
}

type property struct {
	Name  *string `xml:"name"`
	Value string  `xml:"value"`
}

// Parse returns every name/value pair in doc. A later duplicate overrides an
// earlier one. Properties without a name are a ParseError.
func Parse(doc []byte) (map[string]string, error) {
	var d document
	dec := xml.NewDecoder(bytes.NewReader(doc))
	if err := dec.Decode(&d); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Err: errors.New("empty document")}
		}
		var syn *xml.SyntaxError
		if errors.As(err, &syn) {
			return nil, &ParseError{Line: syn.Line, Err: errors.New(syn.Msg)}
		}
		return nil, &ParseError{Err: err}
	}
	// Trailing garbage after the root element.
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ParseError{Err: err}
		}
		switch t := tok.(type) {
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return nil, &ParseError{Err: errors.New("content after root element")}
			}
		case xml.Comment, xml.ProcInst, xml.Directive:
		default:
			return nil, &ParseError{Err: errors.New("more than one root element")}
		}
	}

	out := make(map[string]string, len(d.Properties))
	for i, p := range d.Properties {
		if p.Name == nil {
			return nil, &ParseError{Err: fmt.Errorf("property %d has no name", i)}
		}
		out[strings.TrimSpace(*p.Name)] = p.Value
	}
	return out, nil
}

// Extract returns the entries of doc whose names are in keys. Keys absent
// from the document are absent from the result.
func Extract(doc []byte, keys []string) (map[string]string, error) {
	all, err := Parse(doc)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := all[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// Check extracts the keys of expected from doc and compares. It returns an
// empty string when every expected value matches, otherwise a diff
// (-expected +found).
func Check(doc []byte, expected map[string]string) (string, error) {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	found, err := Extract(doc, keys)
	if err != nil {
		return "", err
	}
	return cmp.Diff(expected, found), nil
}
