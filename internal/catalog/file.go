package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"
)

// File is a Store loaded from and flushed to a YAML file. Changes stay in
// memory until Flush.
type File struct {
	*Memory
	path string
}

var _ Store = (*File)(nil)

// Open loads the catalog at path. A missing file is an empty catalog.
func Open(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &File{Memory: NewMemory(), path: path}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}

	records, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("loading catalog %s: %w", path, err)
	}
	return &File{Memory: NewMemory(records...), path: path}, nil
}

// Path returns the file the catalog is flushed to.
func (f *File) Path() string {
	return f.path
}

// Flush writes all records to the catalog file. The write goes to a
// temporary file first and is renamed into place.
func (f *File) Flush() error {
	data, err := Encode(f.rows())
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating catalog directory: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing catalog: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("finalizing catalog: %w", err)
	}
	return nil
}

// Decode validates catalog YAML and converts its rows into records.
func Decode(data []byte) ([]Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	result, err := Validate(data)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		msgs := make([]string, len(result.Issues))
		for i, issue := range result.Issues {
			msgs[i] = issue.String()
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidCatalog, strings.Join(msgs, "; "))
	}

	var rows []map[string]string
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing catalog rows: %w", err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		r, err := FromAttributes(row)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// Encode renders rows as YAML with the id attribute first in every row.
func Encode(rows []map[string]string) ([]byte, error) {
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for k := range row {
			if k != AttrID {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		keys = append([]string{AttrID}, keys...)

		m := &yaml.Node{Kind: yaml.MappingNode}
		for _, k := range keys {
			m.Content = append(m.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: k},
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: row[k]},
			)
		}
		seq.Content = append(seq.Content, m)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(seq); err != nil {
		return nil, fmt.Errorf("encoding catalog: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding catalog: %w", err)
	}
	return buf.Bytes(), nil
}
