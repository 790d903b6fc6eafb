// Package publish uploads generated style documents to GeoServer via its
// REST API and sets them as layer defaults.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// mbstyleContentType is the GeoServer media type for Mapbox style uploads.
const mbstyleContentType = "application/vnd.geoserver.mbstyle+json"

// Publisher defines the GeoServer style operations.
type Publisher interface {
	// PublishStyle uploads a style document to a workspace, creating the
	// style or replacing an existing one with the same name.
	PublishStyle(ctx context.Context, workspace, name string, document []byte) error
	// AttachToLayer sets a published style as the default style of a layer.
	AttachToLayer(ctx context.Context, workspace, layer, styleName string) error
	// DeleteStyle removes a style from a workspace.
	DeleteStyle(ctx context.Context, workspace, name string) error
	// StyleURL returns the REST URL of a published style.
	StyleURL(workspace, name string) string
}

// Option configures the GeoServer client.
type Option func(*restClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *restClient) {
		c.http = hc
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *restClient) {
		c.http.Timeout = d
	}
}

type restClient struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	log      *zap.Logger
}

// NewClient creates a GeoServer REST client. baseURL points at the REST
// root, e.g. http://localhost:8080/geoserver/rest.
func NewClient(baseURL, username, password string, opts ...Option) Publisher {
	c := &restClient{
		baseURL:  baseURL,
		username: username,
		password: password,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: zap.L().With(zap.String("component", "publish")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *restClient) StyleURL(workspace, name string) string {
	return fmt.Sprintf("%s/workspaces/%s/styles/%s", c.baseURL, workspace, name)
}

func (c *restClient) PublishStyle(ctx context.Context, workspace, name string, document []byte) error {
	createURL := fmt.Sprintf("%s/workspaces/%s/styles?name=%s", c.baseURL, workspace, name)

	status, body, err := c.do(ctx, http.MethodPost, createURL, mbstyleContentType, document)
	if err != nil {
		return eris.Wrapf(err, "publish: create style %s", name)
	}
	if status == http.StatusCreated || status == http.StatusOK {
		c.log.Info("style created",
			zap.String("workspace", workspace),
			zap.String("style", name))
		return nil
	}

	// GeoServer answers 403 or 500 when the style already exists. Replace
	// the definition in place.
	if status == http.StatusForbidden || status == http.StatusConflict || status == http.StatusInternalServerError {
		updateURL := c.StyleURL(workspace, name)
		status, body, err = c.do(ctx, http.MethodPut, updateURL, mbstyleContentType, document)
		if err != nil {
			return eris.Wrapf(err, "publish: update style %s", name)
		}
		if status == http.StatusOK {
			c.log.Info("style updated",
				zap.String("workspace", workspace),
				zap.String("style", name))
			return nil
		}
	}

	return eris.Errorf("publish: style %s: status %d: %s", name, status, truncate(body, 200))
}

func (c *restClient) AttachToLayer(ctx context.Context, workspace, layer, styleName string) error {
	payload, err := json.Marshal(map[string]any{
		"layer": map[string]any{
			"defaultStyle": map[string]string{
				"name": workspace + ":" + styleName,
			},
		},
	})
	if err != nil {
		return eris.Wrap(err, "publish: marshal layer payload")
	}

	layerURL := fmt.Sprintf("%s/layers/%s:%s", c.baseURL, workspace, layer)
	status, body, err := c.do(ctx, http.MethodPut, layerURL, "application/json", payload)
	if err != nil {
		return eris.Wrapf(err, "publish: attach style to layer %s", layer)
	}
	if status != http.StatusOK {
		return eris.Errorf("publish: attach to layer %s: status %d: %s", layer, status, truncate(body, 200))
	}

	c.log.Info("style attached",
		zap.String("layer", layer),
		zap.String("style", styleName))
	return nil
}

func (c *restClient) DeleteStyle(ctx context.Context, workspace, name string) error {
	deleteURL := c.StyleURL(workspace, name) + "?purge=true"
	status, body, err := c.do(ctx, http.MethodDelete, deleteURL, "", nil)
	if err != nil {
		return eris.Wrapf(err, "publish: delete style %s", name)
	}
	if status != http.StatusOK && status != http.StatusNotFound {
		return eris.Errorf("publish: delete style %s: status %d: %s", name, status, truncate(body, 200))
	}
	return nil
}

func (c *restClient) do(ctx context.Context, method, url, contentType string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, eris.Wrap(err, "create request")
	}
	req.SetBasicAuth(c.username, c.password)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, eris.Wrap(err, "read response body")
	}
	return resp.StatusCode, respBody, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
