package imagehost

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osohbayr1016/standoff2-sub004/internal/apperr"
)

func TestUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.URL.Query().Get("key"))

		f, hdr, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "shot.png", hdr.Filename)
		assert.Equal(t, []byte("png-bytes"), data)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"success":true,"data":{"url":"https://i.example/abc.png"}}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	got, err := c.Upload(context.Background(), "shot.png", []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "https://i.example/abc.png", got)
}

func TestUploadFailuresAreRetryable(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadGateway) }},
		{"rejected", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"success":false,"error":{"message":"invalid key"}}`)
		}},
		{"garbage", func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, `<html>`) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			_, err := New(srv.URL, "").Upload(context.Background(), "a.png", []byte("x"))
			require.Error(t, err)
			assert.True(t, apperr.Retryable(apperr.KindOf(err)))
		})
	}

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	_, err := New(srv.URL, "").Upload(context.Background(), "a.png", []byte("x"))
	assert.True(t, apperr.Retryable(apperr.KindOf(err)), "unreachable host")
}
