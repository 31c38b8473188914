// Package release resolves the latest GitHub release of a project and picks
// the asset built for the host platform.
package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/ZebulonRouseFrantzich/fetchrun/internal/httpclient"
)

// Info is one published release. It is produced once per invocation and
// never modified afterwards.
type Info struct {
	// Version is the tag without a leading "v".
	Version string
	Tag     string
	Assets  []Asset
}

// Asset is a downloadable file attached to a release.
type Asset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
	Size        int64  `json:"size"`
}

// Names returns the asset names in release order.
func (i *Info) Names() []string {
	names := make([]string, len(i.Assets))
	for idx, a := range i.Assets {
		names[idx] = a.Name
	}
	return names
}

// ParseError reports a release document that could not be understood.
type ParseError struct {
	Detail string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse release metadata: %s: %v", e.Detail, e.Err)
	}
	return "parse release metadata: " + e.Detail
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type githubRelease struct {
	TagName string  `json:"tag_name"`
	Assets  []Asset `json:"assets"`
}

// Resolver fetches release metadata from the GitHub REST API.
type Resolver struct {
	client  *httpclient.Client
	apiBase string
	repo    string
}

// NewResolver returns a resolver for repo ("owner/name") served by apiBase.
func NewResolver(client *httpclient.Client, apiBase, repo string) *Resolver {
	return &Resolver{
		client:  client,
		apiBase: strings.TrimRight(apiBase, "/"),
		repo:    repo,
	}
}

// Latest fetches the latest release. It makes exactly one request.
func (r *Resolver) Latest(ctx context.Context) (*Info, error) {
	url := fmt.Sprintf("%s/repos/%s/releases/latest", r.apiBase, r.repo)
	info, err := r.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch latest release: %w", err)
	}
	return info, nil
}

// ByTag fetches the release for version. A version without a leading "v"
// is looked up as "v"+version.
func (r *Resolver) ByTag(ctx context.Context, version string) (*Info, error) {
	tag := TagFor(version)
	url := fmt.Sprintf("%s/repos/%s/releases/tags/%s", r.apiBase, r.repo, tag)
	info, err := r.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch release %s: %w", tag, err)
	}
	return info, nil
}

// TagFor returns the release tag for version.
func TagFor(version string) string {
	if strings.HasPrefix(version, "v") {
		return version
	}
	return "v" + version
}

func (r *Resolver) fetch(ctx context.Context, url string) (*Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	// Optional: raises the API rate limit, never required.
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &httpclient.HTTPStatusError{
			Op:         http.MethodGet,
			URL:        url,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &httpclient.NetworkError{Op: http.MethodGet, URL: url, Err: err}
	}

	return Parse(body)
}

// Parse decodes a GitHub release document.
func Parse(data []byte) (*Info, error) {
	var doc githubRelease
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Detail: "invalid JSON", Err: err}
	}

	tag := strings.TrimSpace(doc.TagName)
	if tag == "" {
		return nil, &ParseError{Detail: "no version tag found"}
	}
	if _, err := semver.NewVersion(tag); err != nil {
		return nil, &ParseError{Detail: fmt.Sprintf("invalid version tag %q", tag), Err: err}
	}

	for i, a := range doc.Assets {
		if a.Name == "" || a.DownloadURL == "" {
			return nil, &ParseError{Detail: fmt.Sprintf("asset %d is missing name or download URL", i)}
		}
	}

	return &Info{
		Version: strings.TrimPrefix(tag, "v"),
		Tag:     tag,
		Assets:  doc.Assets,
	}, nil
}

// IsParseError reports whether err is a metadata parse failure.
func IsParseError(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}
