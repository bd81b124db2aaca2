package detect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient(t *testing.T) {
	t.Run("should post the image and decode elements", func(t *testing.T) {
		var got detectRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_, _ = w.Write([]byte(`{"annotatedImage":"AQI=","elements":[{"id":1,"type":"button","content":"OK","boundingBox":{"x":10,"y":20,"width":30,"height":40},"center":{"x":25,"y":40},"interactive":true}]}`))
		}))
		defer srv.Close()

		c, err := NewClient(Config{URL: srv.URL, APIKey: "key", Logger: zerolog.Nop()})
		require.NoError(t, err)

		res, err := c.Detect(context.Background(), []byte{9, 9}, 640, 480)
		require.NoError(t, err)

		assert.Equal(t, []byte{9, 9}, got.Image)
		assert.Equal(t, 640, got.Width)
		assert.Equal(t, []byte{1, 2}, res.AnnotatedImage)
		require.Len(t, res.Elements, 1)
		assert.Equal(t, "OK", res.Elements[0].Content)
		assert.Equal(t, Point{X: 25, Y: 40}, res.Elements[0].Center)
		assert.True(t, res.Elements[0].Interactive)
	})

	t.Run("should retry server errors", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"elements":[]}`))
		}))
		defer srv.Close()

		c, err := NewClient(Config{URL: srv.URL, MaxRetries: 2, Logger: zerolog.Nop()})
		require.NoError(t, err)

		res, err := c.Detect(context.Background(), nil, 1, 1)
		require.NoError(t, err)
		assert.Empty(t, res.Elements)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("should not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("bad image"))
		}))
		defer srv.Close()

		c, err := NewClient(Config{URL: srv.URL, MaxRetries: 3, Logger: zerolog.Nop()})
		require.NoError(t, err)

		_, err = c.Detect(context.Background(), nil, 1, 1)
		assert.True(t, IsStatus(err, http.StatusBadRequest))
		assert.Contains(t, err.Error(), "bad image")
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("should require a url", func(t *testing.T) {
		_, err := NewClient(Config{})
		assert.Error(t, err)
	})
}
