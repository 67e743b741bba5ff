// Package registry looks up the latest published version of a package on npm, PyPI or
// the Go module proxy.
package registry

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"chat-tools-backend/auth"
	"chat-tools-backend/restclient"
	"chat-tools-backend/types"

	"golang.org/x/mod/module"
)

// Ecosystem names a package registry.
type Ecosystem string

const (
	NPM  Ecosystem = "npm"
	PyPI Ecosystem = "pypi"
	Go   Ecosystem = "go"
)

// Default registry endpoints.
const (
	DefaultNPMURL     = "https://registry.npmjs.org"
	DefaultPyPIURL    = "https://pypi.org/pypi"
	DefaultGoProxyURL = "https://proxy.golang.org"
)

// Package is what a lookup reports.
type Package struct {
	Ecosystem   Ecosystem `json:"ecosystem"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Description string    `json:"description,omitempty"`
	License     string    `json:"license,omitempty"`
	Homepage    string    `json:"homepage,omitempty"`
	Published   string    `json:"published,omitempty"`
}

// Client queries the public registries anonymously.
type Client struct {
	npm     *restclient.Client
	pypi    *restclient.Client
	goproxy *restclient.Client
}

// Endpoints overrides registry base URLs; empty fields keep the defaults.
type Endpoints struct {
	NPM, PyPI, GoProxy string
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// New returns a Client.
func New(ep Endpoints, opts ...restclient.Option) *Client {
	return &Client{
		npm:     restclient.New("npm", or(ep.NPM, DefaultNPMURL), auth.Token{}, opts...),
		pypi:    restclient.New("pypi", or(ep.PyPI, DefaultPyPIURL), auth.Token{}, opts...),
		goproxy: restclient.New("goproxy", or(ep.GoProxy, DefaultGoProxyURL), auth.Token{}, opts...),
	}
}

// Lookup returns the latest version of name in ecosystem.
func (c *Client) Lookup(ctx context.Context, ecosystem Ecosystem, name string) (*Package, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &types.ValidationError{Field: "name", Message: "is required"}
	}
	switch Ecosystem(strings.ToLower(string(ecosystem))) {
	case NPM:
		return c.lookupNPM(ctx, name)
	case PyPI:
		return c.lookupPyPI(ctx, name)
	case Go:
		return c.lookupGo(ctx, name)
	default:
		return nil, &types.ValidationError{Field: "ecosystem", Message: fmt.Sprintf("unsupported ecosystem %q (use npm, pypi or go)", ecosystem)}
	}
}

func (c *Client) lookupNPM(ctx context.Context, name string) (*Package, error) {
	var doc struct {
		Name     string            `json:"name"`
		DistTags map[string]string `json:"dist-tags"`
		Versions map[string]struct {
			Description string `json:"description"`
			License     any    `json:"license"`
			Homepage    string `json:"homepage"`
		} `json:"versions"`
		Time map[string]string `json:"time"`
	}
	// Scoped names such as @scope/pkg are requested as @scope%2Fpkg.
	if _, err := c.npm.GetJSON(ctx, "/"+url.PathEscape(name), &doc); err != nil {
		return nil, err
	}
	latest := doc.DistTags["latest"]
	pkg := &Package{Ecosystem: NPM, Name: doc.Name, Version: latest, Published: doc.Time[latest]}
	if v, ok := doc.Versions[latest]; ok {
		pkg.Description = v.Description
		pkg.Homepage = v.Homepage
		if s, ok := v.License.(string); ok {
			pkg.License = s
		}
	}
	return pkg, nil
}

func (c *Client) lookupPyPI(ctx context.Context, name string) (*Package, error) {
	var doc struct {
		Info struct {
			Name     string `json:"name"`
			Version  string `json:"version"`
			Summary  string `json:"summary"`
			License  string `json:"license"`
			HomePage string `json:"home_page"`
		} `json:"info"`
		URLs []struct {
			UploadTime string `json:"upload_time_iso_8601"`
		} `json:"urls"`
	}
	if _, err := c.pypi.GetJSON(ctx, "/"+url.PathEscape(name)+"/json", &doc); err != nil {
		return nil, err
	}
	pkg := &Package{
		Ecosystem:   PyPI,
		Name:        doc.Info.Name,
		Version:     doc.Info.Version,
		Description: doc.Info.Summary,
		License:     doc.Info.License,
		Homepage:    doc.Info.HomePage,
	}
	if len(doc.URLs) > 0 {
		pkg.Published = doc.URLs[0].UploadTime
	}
	return pkg, nil
}

func (c *Client) lookupGo(ctx context.Context, name string) (*Package, error) {
	escaped, err := module.EscapePath(name)
	if err != nil {
		return nil, &types.ValidationError{Field: "name", Message: err.Error()}
	}
	var info struct {
		Version string `json:"Version"`
		Time    string `json:"Time"`
	}
	if _, err := c.goproxy.GetJSON(ctx, "/"+escaped+"/@latest", &info); err != nil {
		return nil, err
	}
	return &Package{
		Ecosystem: Go,
		Name:      name,
		Version:   info.Version,
		Published: info.Time,
		Homepage:  "https://pkg.go.dev/" + name,
	}, nil
}
