package objectionary

import "context"

// Static is an in-memory Objectionary keyed by object name. Names mapped to
// an empty string are reported as absent.
type Static map[string]string

// Get implements Objectionary.
func (s Static) Get(_ context.Context, name string) (Object, bool, error) {
	content, ok := s[name]
	if !ok || content == "" {
		return Object{}, false, nil
	}
	return Object{Name: name, Content: []byte(content)}, true, nil
}
