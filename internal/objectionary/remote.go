package objectionary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/objectionary/eoprobe/internal/ctxlog"
)

const userAgent = "eoprobe"

// Object is the source of an EO object.
type Object struct {
	Name    string
	Content []byte
}

// Objectionary finds objects by name. A missing object, or a name that cannot
// address one, is reported with found == false and a nil error.
type Objectionary interface {
	Get(ctx context.Context, name string) (obj Object, found bool, err error)
}

// Remote reads objects over HTTP from <base>/<hash>/objects/<path>.
type Remote struct {
	base       string
	hash       string
	httpClient *http.Client
}

// Option configures a Remote.
type Option func(*Remote)

// WithHTTPClient sets a custom HTTP client (useful for testing).
func WithHTTPClient(c *http.Client) Option {
	return func(r *Remote) {
		r.httpClient = c
	}
}

// NewRemote creates a Remote reading objects at hash below base.
func NewRemote(base, hash string, opts ...Option) *Remote {
	r := &Remote{
		base:       strings.TrimRight(base, "/"),
		hash:       hash,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// URL returns the address of the object called name.
func (r *Remote) URL(name string) (string, error) {
	p, err := Path(name)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/objects/%s", r.base, r.hash, p), nil
}

// Get implements Objectionary.
func (r *Remote) Get(ctx context.Context, name string) (Object, bool, error) {
	url, err := r.URL(name)
	if errors.Is(err, ErrInvalidName) {
		// No object can live at such a name.
		ctxlog.FromContext(ctx).Debug("skipping unaddressable object name", "object", name, "error", err)
		return Object{}, false, nil
	}
	if err != nil {
		return Object{}, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Object{}, false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Object{}, false, fmt.Errorf("fetching %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Object{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return Object{}, false, fmt.Errorf("fetching %s: status %d", name, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Object{}, false, fmt.Errorf("reading %s: %w", name, err)
	}
	if len(body) == 0 {
		return Object{}, false, nil
	}
	return Object{Name: name, Content: body}, true, nil
}
