// Package hub provides a client for the model hub's public REST API:
// listing GGUF-tagged repositories, fetching per-repo metadata, and
// resolving file trees, all behind the resilience and rate-limiting layers.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/tidwall/gjson"

	"github.com/R3E-Network/gguf-harvester/infrastructure/logging"
	"github.com/R3E-Network/gguf-harvester/infrastructure/ratelimit"
	"github.com/R3E-Network/gguf-harvester/infrastructure/resilience"
)

// Config holds client configuration.
type Config struct {
	BaseURL string
	Token   string // optional bearer token; anonymous access is supported
	Timeout time.Duration
}

// Client talks to the model hub's REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	fetcher    *ratelimit.Fetcher
	breakers   *resilience.Registry
	log        *logging.Logger
}

// NewClient creates a new hub client. When cfg.Token is empty the client
// uses the anonymous rate-limit profile (§4.A).
func NewClient(cfg Config, log *logging.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("hub: base URL required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("hub: invalid base URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	fetcherCfg := ratelimit.DefaultFetcherConfig()
	if cfg.Token == "" {
		fetcherCfg = ratelimit.AnonymousFetcherConfig()
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		fetcher:    ratelimit.NewFetcher(fetcherCfg),
		breakers:   resilience.NewRegistry(resilience.DefaultConfig()),
		log:        log,
	}, nil
}

// RepoSummary is the trimmed-down listing entry returned by ListModels.
type RepoSummary struct {
	ID        string   `json:"id"`
	Downloads int64    `json:"downloads"`
	Tags      []string `json:"tags"`
	UpdatedAt string   `json:"lastModified"`
	CreatedAt string   `json:"createdAt"`
}

// RepoFile is one entry in a repository's file tree.
type RepoFile struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	Type string `json:"type"` // "file" or "directory"
}

// ModelInfo is the full per-repository metadata payload.
type ModelInfo struct {
	ID           string     `json:"id"`
	Downloads    int64      `json:"downloads"`
	Tags         []string   `json:"tags"`
	LastModified string     `json:"lastModified"`
	CreatedAt    string     `json:"createdAt"`
	Files        []RepoFile `json:"siblings"`
}

// ListModels returns repositories tagged "gguf", paginated via limit/offset.
func (c *Client) ListModels(ctx context.Context, limit, offset int) ([]RepoSummary, error) {
	q := url.Values{}
	q.Set("filter", "gguf")
	q.Set("limit", strconv.Itoa(offset+limit))
	q.Set("full", "false")
	body, err := c.doOperation(ctx, "hub.list_models", "GET", "/api/models", q)
	if err != nil {
		return nil, err
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("hub: decode list_models response: %w", err)
	}
	if offset >= len(raw) {
		return nil, nil
	}
	end := offset + limit
	if end > len(raw) {
		end = len(raw)
	}

	out := make([]RepoSummary, 0, end-offset)
	for _, r := range raw[offset:end] {
		out = append(out, RepoSummary{
			ID:        gjson.GetBytes(r, "id").String(),
			Downloads: gjson.GetBytes(r, "downloads").Int(),
			Tags:      stringsFromJSON(gjson.GetBytes(r, "tags")),
			UpdatedAt: gjson.GetBytes(r, "lastModified").String(),
			CreatedAt: gjson.GetBytes(r, "createdAt").String(),
		})
	}
	return out, nil
}

// SearchModels returns repositories matching a free-text query, used by the
// quantization-tag, architecture-family and organization-crawl discovery
// strategies.
func (c *Client) SearchModels(ctx context.Context, query string, limit int) ([]RepoSummary, error) {
	q := url.Values{}
	q.Set("search", query)
	q.Set("limit", strconv.Itoa(limit))
	body, err := c.doOperation(ctx, "hub.search_models", "GET", "/api/models", q)
	if err != nil {
		return nil, err
	}

	results := gjson.ParseBytes(body).Array()
	out := make([]RepoSummary, 0, len(results))
	for _, r := range results {
		out = append(out, RepoSummary{
			ID:        r.Get("id").String(),
			Downloads: r.Get("downloads").Int(),
			Tags:      stringsFromJSON(r.Get("tags")),
			UpdatedAt: r.Get("lastModified").String(),
			CreatedAt: r.Get("createdAt").String(),
		})
	}
	return out, nil
}

// stringsFromJSON converts a gjson array result to a string slice, used for
// the "tags" field wherever RepoSummary is assembled from raw JSON.
func stringsFromJSON(r gjson.Result) []string {
	arr := r.Array()
	if len(arr) == 0 {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		out = append(out, v.String())
	}
	return out
}

// ModelInfoFor fetches full metadata for a single repository ID.
func (c *Client) ModelInfoFor(ctx context.Context, id string) (*ModelInfo, error) {
	body, err := c.doOperation(ctx, "hub.model_info", "GET", "/api/models/"+id, nil)
	if err != nil {
		return nil, err
	}

	var info ModelInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("hub: decode model_info response for %s: %w", id, err)
	}
	return &info, nil
}

// ListRepoFiles returns the flattened file tree for a repository.
func (c *Client) ListRepoFiles(ctx context.Context, id string) ([]RepoFile, error) {
	body, err := c.doOperation(ctx, "hub.list_repo_files", "GET", "/api/models/"+id+"/tree/main", nil)
	if err != nil {
		return nil, err
	}

	var files []RepoFile
	if err := json.Unmarshal(body, &files); err != nil {
		return nil, fmt.Errorf("hub: decode list_repo_files response for %s: %w", id, err)
	}
	return files, nil
}

// PathInfo is one entry returned by GetPathsInfo.
type PathInfo struct {
	Path         string
	SizeBytes    int64
	LastModified string
}

// GetPathsInfo resolves size/last-modified metadata for a specific set of
// paths within a repository. The hub's paths-info payload nests these
// fields inconsistently across API versions, so extraction goes through
// PaesslerAG/jsonpath rather than a strict struct, tolerating either a flat
// or a nested ("lfs.size") shape.
func (c *Client) GetPathsInfo(ctx context.Context, id string, paths []string) ([]PathInfo, error) {
	q := url.Values{}
	for _, p := range paths {
		q.Add("paths", p)
	}
	body, err := c.doOperation(ctx, "hub.get_paths_info", "POST", "/api/models/"+id+"/paths-info", q)
	if err != nil {
		return nil, err
	}

	var raw interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("hub: decode get_paths_info response for %s: %w", id, err)
	}

	entries, _ := jsonpath.Get("$[*]", raw)
	items, ok := entries.([]interface{})
	if !ok {
		return nil, nil
	}

	out := make([]PathInfo, 0, len(items))
	for _, item := range items {
		path, _ := jsonpath.Get("$.path", item)
		size, sizeErr := jsonpath.Get("$.size", item)
		if sizeErr != nil {
			size, _ = jsonpath.Get("$.lfs.size", item)
		}
		lastMod, _ := jsonpath.Get("$.lastModified", item)

		info := PathInfo{}
		if s, ok := path.(string); ok {
			info.Path = s
		}
		if n, ok := size.(float64); ok {
			info.SizeBytes = int64(n)
		}
		if lm, ok := lastMod.(string); ok {
			info.LastModified = lm
		}
		out = append(out, info)
	}
	return out, nil
}

// CountModels returns the total number of repositories tagged "gguf",
// used by the completeness subsystem to compute coverage ratio.
func (c *Client) CountModels(ctx context.Context) (int64, error) {
	q := url.Values{}
	q.Set("filter", "gguf")
	q.Set("limit", "1")
	resp, err := c.doOperationRaw(ctx, "hub.count_models", "GET", "/api/models", q)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	total := resp.Header.Get("X-Total-Count")
	if total == "" {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return 0, fmt.Errorf("hub: read count_models response: %w", err)
		}
		return int64(len(gjson.ParseBytes(body).Array())), nil
	}
	n, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("hub: parse X-Total-Count: %w", err)
	}
	return n, nil
}

// doOperation performs a rate-limited, circuit-broken request and returns
// the raw response body on success.
func (c *Client) doOperation(ctx context.Context, opKey, method, path string, query url.Values) ([]byte, error) {
	resp, err := c.doOperationRaw(ctx, opKey, method, path, query)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *Client) doOperationRaw(ctx context.Context, opKey, method, path string, query url.Values) (*http.Response, error) {
	release, err := c.fetcher.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("hub: acquire rate slot for %s: %w", opKey, err)
	}

	breaker := c.breakers.Get(opKey)
	var resp *http.Response
	start := time.Now()
	execErr := breaker.Execute(ctx, func() error {
		u := c.baseURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, method, u, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		r, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return doErr
		}
		if r.StatusCode >= 400 {
			status := r.StatusCode
			r.Body.Close()
			return &statusError{code: status}
		}
		resp = r
		return nil
	})

	duration := time.Since(start)
	statusCode := 0
	if se, ok := execErr.(*statusError); ok {
		statusCode = se.code
	}
	rateLimited := ratelimit.IsRateLimited(execErr, statusCode)
	release(execErr == nil, rateLimited)

	if c.log != nil {
		c.log.LogHubCall(ctx, path, method, duration, execErr)
	}
	if execErr != nil {
		return nil, fmt.Errorf("hub: %s %s: %w", method, path, execErr)
	}
	return resp, nil
}

// statusError wraps a non-2xx HTTP status code so classify.go can apply
// status-driven rules without needing the response body.
type statusError struct{ code int }

func (e *statusError) Error() string { return fmt.Sprintf("http status %d", e.code) }
