// Package cloud implements the remote source against the reMarkable sync
// API (v3/v4): a fingerprint endpoint for cheap change detection, content-
// addressed index files for metadata, and blob downloads for content.
package cloud

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/wavyrai/rm-mcp/internal/domain"
	"github.com/wavyrai/rm-mcp/internal/ports"
)

const (
	defaultAuthHost = "https://webapp-prod.cloud.remarkable.engineering"
	defaultSyncHost = "https://internal.cloud.remarkable.com"

	// poolSize bounds persistent connections per host. Exhaustion blocks
	// callers instead of opening unbounded new connections.
	poolSize = 10

	requestTimeout = 60 * time.Second
	backoffBase    = 500 * time.Millisecond
)

// Options tune a Client beyond its credential.
type Options struct {
	// AuthHost and SyncHost override the production endpoints (tests).
	AuthHost string
	SyncHost string

	// Attempts caps tries for transiently failing requests.
	Attempts int

	// Workers bounds the parallel per-item metadata fetch.
	Workers int

	Logger *slog.Logger
}

// Client talks to the cloud over a single pooled transport. It refreshes the
// bearer credential transparently on the first 401 and retries transient
// failures with jittered exponential backoff.
type Client struct {
	authHost string
	syncHost string
	attempts int
	workers  int
	http     *http.Client
	log      *slog.Logger

	mu          sync.Mutex // guards the tokens
	deviceToken string
	userToken   string
}

var _ ports.RemoteSource = (*Client)(nil)

// New builds a client from a credential string: either a raw device token
// (JWT) or a JSON blob with devicetoken and optional usertoken fields.
func New(token string, opts Options) (*Client, error) {
	device, user, err := parseToken(token)
	if err != nil {
		return nil, err
	}
	if opts.AuthHost == "" {
		opts.AuthHost = defaultAuthHost
	}
	if opts.SyncHost == "" {
		opts.SyncHost = defaultSyncHost
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.Workers <= 0 {
		opts.Workers = 5
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		authHost:    opts.AuthHost,
		syncHost:    opts.SyncHost,
		attempts:    opts.Attempts,
		workers:     opts.Workers,
		deviceToken: device,
		userToken:   user,
		log:         opts.Logger,
		http: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        poolSize,
				MaxIdleConnsPerHost: poolSize,
				MaxConnsPerHost:     poolSize,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

func parseToken(token string) (device, user string, err error) {
	token = strings.TrimSpace(token)
	if strings.HasPrefix(token, "{") {
		var blob struct {
			DeviceToken string `json:"devicetoken"`
			UserToken   string `json:"usertoken"`
		}
		if err := json.Unmarshal([]byte(token), &blob); err != nil {
			return "", "", fmt.Errorf("invalid token JSON: %w", err)
		}
		if blob.DeviceToken == "" {
			return "", "", fmt.Errorf("token JSON has no devicetoken")
		}
		return blob.DeviceToken, blob.UserToken, nil
	}
	// Raw JWT device token; base64("{"...) always starts with eyJ.
	if strings.HasPrefix(token, "eyJ") {
		return token, "", nil
	}
	return "", "", fmt.Errorf("invalid token format (want JSON or JWT)")
}

// FetchFingerprint fetches the root state token. One request, no listing.
func (c *Client) FetchFingerprint(ctx context.Context) (domain.StateFingerprint, error) {
	body, err := c.get(ctx, c.syncHost+"/sync/v4/root")
	if err != nil {
		return "", err
	}
	state, err := decodeRootState(body)
	if err != nil {
		return "", err
	}
	return domain.StateFingerprint(state.Hash), nil
}

func decodeRootState(body []byte) (rootState, error) {
	var state rootState
	if len(bytes.TrimSpace(body)) == 0 {
		return state, fmt.Errorf("empty response from root endpoint")
	}
	if err := json.Unmarshal(body, &state); err != nil {
		return state, fmt.Errorf("invalid root state JSON: %w", err)
	}
	if state.Hash == "" {
		return state, fmt.Errorf("root state response has no hash")
	}
	return state, nil
}

// FetchTree downloads the root index and assembles the metadata tree,
// fetching per-item metadata in parallel across a bounded worker group.
// Items whose metadata cannot be fetched are skipped and the tree is marked
// partial rather than failing the whole sync.
func (c *Client) FetchTree(ctx context.Context) (*domain.MetadataTree, error) {
	body, err := c.get(ctx, c.syncHost+"/sync/v4/root")
	if err != nil {
		return nil, err
	}
	state, err := decodeRootState(body)
	if err != nil {
		return nil, err
	}

	rootIndex, err := c.get(ctx, c.syncHost+"/sync/v3/files/"+state.Hash)
	if err != nil {
		return nil, fmt.Errorf("fetching root index %s: %w", state.Hash, err)
	}
	entries, skipped := parseIndex(rootIndex)
	if skipped > 0 {
		c.log.Warn("skipped malformed index lines", "count", skipped)
	}

	var (
		mu      sync.Mutex
		items   []domain.DocumentMeta
		partial bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, entry := range entries {
		g.Go(func() error {
			meta, err := c.fetchItemMeta(gctx, entry)
			if err != nil {
				// Per-item failures already exhausted the
				// transport retry budget; losing one subtree
				// must not abort its siblings.
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.log.Warn("skipping item after failed metadata fetch",
					"id", entry.ID, "version", entry.Hash, "err", err)
				mu.Lock()
				partial = true
				mu.Unlock()
				return nil
			}
			if meta == nil {
				return nil // deleted item
			}
			mu.Lock()
			items = append(items, *meta)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tree := domain.BuildTree(items, domain.StateFingerprint(state.Hash))
	tree.Partial = partial
	if tree.Dropped > 0 {
		c.log.Warn("dropped inconsistent nodes during tree build",
			"count", tree.Dropped, "err", domain.ErrTreeInconsistent)
	}
	return tree, nil
}

// fetchItemMeta resolves one root-index entry to document metadata by
// reading the item's own blob index and its embedded .metadata file.
// Returns (nil, nil) for deleted items.
func (c *Client) fetchItemMeta(ctx context.Context, entry indexEntry) (*domain.DocumentMeta, error) {
	blobIndex, err := c.get(ctx, c.syncHost+"/sync/v3/files/"+entry.Hash)
	if err != nil {
		return nil, fmt.Errorf("blob index: %w", err)
	}
	blobs, _ := parseIndex(blobIndex)

	var meta itemMetadata
	found := false
	for _, blob := range blobs {
		if !strings.HasSuffix(blob.ID, ".metadata") {
			continue
		}
		raw, err := c.get(ctx, c.syncHost+"/sync/v3/files/"+blob.Hash)
		if err != nil {
			return nil, fmt.Errorf("metadata blob: %w", err)
		}
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("metadata JSON: %w", err)
		}
		found = true
		break
	}
	if !found {
		return nil, fmt.Errorf("no metadata file in blob index")
	}
	if meta.Deleted {
		return nil, nil
	}

	name := meta.VisibleName
	if name == "" {
		name = entry.ID
	}
	kind := domain.KindDocument
	if meta.Type == "CollectionType" {
		kind = domain.KindFolder
	}
	dm := domain.DocumentMeta{
		ID:       entry.ID,
		ParentID: meta.Parent,
		Kind:     kind,
		Name:     name,
		Version:  entry.Hash,
		Pinned:   meta.Pinned,
		Size:     entry.Size,
	}
	if kind == domain.KindDocument {
		dm.FileType = domain.InferFileType(name)
	}
	if ms, err := strconv.ParseInt(meta.LastModified, 10, 64); err == nil {
		dm.ModifiedAt = time.UnixMilli(ms).UTC()
	}
	return &dm, nil
}

// FetchContent downloads every blob of a document version and packages them
// as a zip, mirroring the on-device bundle layout. The version is the
// document's blob-index hash; if the remote advanced past it the index file
// is gone and the result is domain.ErrNotFound.
func (c *Client) FetchContent(ctx context.Context, docID, version string) ([]byte, error) {
	blobIndex, err := c.get(ctx, c.syncHost+"/sync/v3/files/"+version)
	if err != nil {
		return nil, err
	}
	blobs, _ := parseIndex(blobIndex)
	if len(blobs) == 0 {
		return nil, fmt.Errorf("document %s version %s has no blobs: %w",
			docID, version, domain.ErrNotFound)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	written := 0
	for _, blob := range blobs {
		data, err := c.get(ctx, c.syncHost+"/sync/v3/files/"+blob.Hash)
		if err != nil {
			c.log.Warn("skipping undownloadable blob",
				"doc", docID, "file", blob.ID, "err", err)
			continue
		}
		w, err := zw.Create(blob.ID)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		written++
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	if written == 0 {
		return nil, fmt.Errorf("no blobs downloadable for %s: %w", docID, domain.ErrSourceUnavailable)
	}
	return buf.Bytes(), nil
}

// get performs an authenticated GET with the retry policy: transient
// failures (network errors and 5xx) back off exponentially with jitter
// up to the attempt cap, then surface domain.ErrSourceUnavailable.
// 4xx other than 401 fail immediately.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoff(attempt)); err != nil {
				return nil, err
			}
		}
		body, retryable, err := c.tryGet(ctx, url)
		if err == nil {
			return body, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
		c.log.Debug("transient request failure", "url", url, "attempt", attempt+1, "err", err)
	}
	return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, lastErr)
}

// tryGet is one authenticated attempt, including at most one transparent
// token refresh on 401.
func (c *Client) tryGet(ctx context.Context, url string) (body []byte, retryable bool, err error) {
	token, err := c.ensureUserToken(ctx)
	if err != nil {
		return nil, false, err
	}

	body, status, err := c.doGet(ctx, url, token)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	if status == http.StatusUnauthorized {
		refreshed, err := c.refreshUserToken(ctx, token)
		if err != nil {
			return nil, false, err
		}
		body, status, err = c.doGet(ctx, url, refreshed)
		if err != nil {
			return nil, ctx.Err() == nil, err
		}
		if status == http.StatusUnauthorized {
			return nil, false, domain.ErrAuthExpired
		}
	}

	switch {
	case status == http.StatusOK:
		return body, false, nil
	case status == http.StatusNotFound:
		return nil, false, fmt.Errorf("%s: %w", url, domain.ErrNotFound)
	case status >= 500:
		return nil, true, fmt.Errorf("server returned %d", status)
	default:
		return nil, false, fmt.Errorf("server returned %d", status)
	}
}

func (c *Client) doGet(ctx context.Context, url, token string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

// ensureUserToken returns the current user token, renewing it from the
// device token when none is held yet.
func (c *Client) ensureUserToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.userToken
	c.mu.Unlock()
	if token != "" {
		return token, nil
	}
	return c.refreshUserToken(ctx, "")
}

// refreshUserToken exchanges the device token for a fresh user token.
// stale is the token the caller saw fail; if another goroutine already
// renewed it the fresh token is returned without a second exchange.
func (c *Client) refreshUserToken(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userToken != "" && c.userToken != stale {
		return c.userToken, nil
	}
	if c.deviceToken == "" {
		return "", fmt.Errorf("no device token held: %w", domain.ErrAuthExpired)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.authHost+"/token/json/2/user/new", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.deviceToken)
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token renewal: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("token renewal: %w", err)
	}
	if resp.StatusCode != http.StatusOK || len(bytes.TrimSpace(body)) == 0 {
		return "", fmt.Errorf("token renewal returned %d: %w",
			resp.StatusCode, domain.ErrAuthExpired)
	}
	c.userToken = strings.TrimSpace(string(body))
	c.log.Debug("user token renewed")
	return c.userToken, nil
}

func backoff(attempt int) time.Duration {
	d := backoffBase << (attempt - 1)
	// Full jitter keeps concurrent retriers from thundering in lockstep.
	return d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
