package objectionary

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
)

// ErrUnknownTag is returned when a tag is missing from the tags list.
var ErrUnknownTag = errors.New("unknown tag")

var shaPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// CommitHash pins a tag to a concrete commit.
type CommitHash interface {
	Resolve(ctx context.Context) (string, error)
}

// LiteralHash is a commit hash that needs no resolution.
type LiteralHash string

// Resolve implements CommitHash.
func (h LiteralHash) Resolve(context.Context) (string, error) {
	return string(h), nil
}

// RemoteHash looks a tag up in the Objectionary tags list. Each line of the
// list holds "<sha> <tag>".
type RemoteHash struct {
	Tag    string
	URL    string
	Client *http.Client
}

// Resolve implements CommitHash.
func (h RemoteHash) Resolve(ctx context.Context) (string, error) {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching tags: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching tags from %s: status %d", h.URL, resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		if fields[1] == h.Tag {
			return fields[0], nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading tags: %w", err)
	}
	return "", fmt.Errorf("%w %q in %s", ErrUnknownTag, h.Tag, h.URL)
}

// CachedHash resolves its origin at most once; the result, error included,
// is reused for the rest of the run.
type CachedHash struct {
	origin CommitHash
	once   sync.Once
	hash   string
	err    error
}

// NewCachedHash wraps origin.
func NewCachedHash(origin CommitHash) *CachedHash {
	return &CachedHash{origin: origin}
}

// Resolve implements CommitHash.
func (h *CachedHash) Resolve(ctx context.Context) (string, error) {
	h.once.Do(func() {
		h.hash, h.err = h.origin.Resolve(ctx)
	})
	return h.hash, h.err
}

// ForTag returns the CommitHash for tag: a literal when the tag already is a
// full commit sha, otherwise a cached lookup in the tags list at url.
func ForTag(tag, url string, client *http.Client) CommitHash {
	if shaPattern.MatchString(tag) {
		return LiteralHash(tag)
	}
	return NewCachedHash(RemoteHash{Tag: tag, URL: url, Client: client})
}
