package xmir

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Meta heads with special meaning.
const (
	HeadProbe   = "probe"
	HeadPackage = "package"
)

var (
	// ErrNotFound is returned when a document cannot be located or read.
	ErrNotFound = errors.New("xmir document not found")

	// ErrMalformed is returned when a document is not well-formed XML.
	ErrMalformed = errors.New("malformed xmir document")
)

// Meta is one <meta> entry: its head and the text of every tail.
type Meta struct {
	Head  string
	Tails []string
}

// Document is the metadata view of an XMIR program.
type Document struct {
	Name  string // name attribute of the root <program>
	Metas []Meta
}

// Extractor returns the probe references declared by the document at path.
type Extractor interface {
	Probes(path string) ([]string, error)
}

// FileExtractor reads XMIR documents from the local filesystem.
type FileExtractor struct{}

// Probes implements Extractor.
func (FileExtractor) Probes(path string) ([]string, error) {
	return Probes(path)
}

// Probes opens the XMIR file at path and returns its probe references.
func Probes(path string) ([]string, error) {
	doc, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return doc.Probes(), nil
}

// ParseFile opens and parses the XMIR file at path.
func ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	defer f.Close()

	doc, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// ParseProbes parses r and returns its probe references.
func ParseProbes(r io.Reader) ([]string, error) {
	doc, err := Parse(r)
	if err != nil {
		return nil, err
	}
	return doc.Probes(), nil
}

// Parse decodes an XMIR document from r. Only <metas>/<meta> elements and the
// root program name are retained.
func Parse(r io.Reader) (*Document, error) {
	src := &readTracker{r: r}
	decoder := xml.NewDecoder(src)
	doc := &Document{}

	var (
		stack []string
		meta  *Meta
		// depth of the open <meta>, and of the open <head>/<tail> inside it
		metaDepth int
		textDepth int
		text      strings.Builder
		textKind  string
		hasHead   bool
	)

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			if src.err != nil {
				return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
			}
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			parent := ""
			if len(stack) > 0 {
				parent = stack[len(stack)-1]
			}
			stack = append(stack, t.Name.Local)
			depth := len(stack)

			switch {
			case depth == 1:
				doc.Name = attr(t.Attr, "name")
			case meta == nil && t.Name.Local == "meta" && parent == "metas":
				meta = &Meta{}
				metaDepth = depth
				hasHead = false
			case meta != nil && depth == metaDepth+1 && (t.Name.Local == "head" || t.Name.Local == "tail"):
				textKind = t.Name.Local
				textDepth = depth
				text.Reset()
			}

		case xml.CharData:
			if textKind != "" && len(stack) == textDepth {
				text.Write(t)
			}

		case xml.EndElement:
			depth := len(stack)
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			switch {
			case textKind != "" && depth == textDepth:
				value := strings.TrimSpace(text.String())
				if textKind == "head" {
					if !hasHead {
						meta.Head = value
						hasHead = true
					}
				} else {
					meta.Tails = append(meta.Tails, value)
				}
				textKind = ""
			case meta != nil && depth == metaDepth:
				doc.Metas = append(doc.Metas, *meta)
				meta = nil
			}
		}
	}

	if len(stack) != 0 {
		return nil, fmt.Errorf("%w: unexpected end of document", ErrMalformed)
	}
	return doc, nil
}

// Probes returns the distinct, non-blank tails of all "probe" metas, sorted.
func (d *Document) Probes() []string {
	return d.Tails(HeadProbe)
}

// Tails returns the distinct, non-blank tails of all metas with the given
// head, in lexicographic order.
func (d *Document) Tails(head string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, m := range d.Metas {
		if m.Head != head {
			continue
		}
		for _, tail := range m.Tails {
			if tail == "" || seen[tail] {
				continue
			}
			seen[tail] = true
			result = append(result, tail)
		}
	}
	sort.Strings(result)
	return result
}

// Package returns the value of the first "package" meta, or "".
func (d *Document) Package() string {
	for _, m := range d.Metas {
		if m.Head == HeadPackage && len(m.Tails) > 0 {
			return m.Tails[0]
		}
	}
	return ""
}

// ObjectName returns the fully qualified object name of the program,
// e.g. "org.example.app".
func (d *Document) ObjectName() string {
	if pkg := d.Package(); pkg != "" && d.Name != "" {
		return pkg + "." + d.Name
	}
	return d.Name
}

// readTracker remembers the first read failure of r, so decoder errors can be
// told apart from I/O errors.
type readTracker struct {
	r   io.Reader
	err error
}

func (t *readTracker) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF && t.err == nil {
		t.err = err
	}
	return n, err
}

func attr(attrs []xml.Attr, name string) string {
	for _, a := range attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
