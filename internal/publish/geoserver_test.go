package publish

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method      string
	path        string
	query       string
	contentType string
	body        []byte
	user        string
	pass        string
}

func record(r *http.Request) recordedRequest {
	body, _ := io.ReadAll(r.Body)
	user, pass, _ := r.BasicAuth()
	return recordedRequest{
		method:      r.Method,
		path:        r.URL.Path,
		query:       r.URL.RawQuery,
		contentType: r.Header.Get("Content-Type"),
		body:        body,
		user:        user,
		pass:        pass,
	}
}

func TestPublishStyle_Create(t *testing.T) {
	var reqs []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqs = append(reqs, record(r))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "admin", "geoserver")
	doc := []byte(`{"version":8,"name":"parcels_value_style","layers":[]}`)
	err := c.PublishStyle(context.Background(), "topp", "parcels_value_style", doc)
	require.NoError(t, err)

	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].method)
	assert.Equal(t, "/workspaces/topp/styles", reqs[0].path)
	assert.Equal(t, "name=parcels_value_style", reqs[0].query)
	assert.Equal(t, "application/vnd.geoserver.mbstyle+json", reqs[0].contentType)
	assert.Equal(t, doc, reqs[0].body)
	assert.Equal(t, "admin", reqs[0].user)
	assert.Equal(t, "geoserver", reqs[0].pass)
}

func TestPublishStyle_UpdateFallbackOnConflict(t *testing.T) {
	var reqs []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqs = append(reqs, record(r))
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "admin", "geoserver")
	err := c.PublishStyle(context.Background(), "topp", "roads_lanes_style", []byte(`{}`))
	require.NoError(t, err)

	require.Len(t, reqs, 2)
	assert.Equal(t, http.MethodPost, reqs[0].method)
	assert.Equal(t, http.MethodPut, reqs[1].method)
	assert.Equal(t, "/workspaces/topp/styles/roads_lanes_style", reqs[1].path)
}

func TestPublishStyle_ErrorIncludesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("no such workspace"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "admin", "geoserver")
	err := c.PublishStyle(context.Background(), "nope", "s", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Contains(t, err.Error(), "no such workspace")
}

func TestAttachToLayer(t *testing.T) {
	var reqs []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqs = append(reqs, record(r))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "admin", "geoserver")
	err := c.AttachToLayer(context.Background(), "topp", "parcels", "parcels_value_style")
	require.NoError(t, err)

	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPut, reqs[0].method)
	assert.Equal(t, "/layers/topp:parcels", reqs[0].path)
	assert.Equal(t, "application/json", reqs[0].contentType)

	var payload map[string]map[string]map[string]string
	require.NoError(t, json.Unmarshal(reqs[0].body, &payload))
	assert.Equal(t, "topp:parcels_value_style", payload["layer"]["defaultStyle"]["name"])
}

func TestAttachToLayer_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "admin", "geoserver")
	err := c.AttachToLayer(context.Background(), "topp", "missing", "s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestDeleteStyle_ToleratesMissing(t *testing.T) {
	var reqs []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqs = append(reqs, record(r))
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "admin", "geoserver")
	err := c.DeleteStyle(context.Background(), "topp", "gone_style")
	require.NoError(t, err)

	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodDelete, reqs[0].method)
	assert.Equal(t, "purge=true", reqs[0].query)
}

func TestStyleURL(t *testing.T) {
	c := NewClient("http://gs:8080/geoserver/rest", "u", "p")
	assert.Equal(t,
		"http://gs:8080/geoserver/rest/workspaces/topp/styles/parcels_value_style",
		c.StyleURL("topp", "parcels_value_style"))
}
