package policy

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestServer_RejectsMalformedImageHeader(t *testing.T) {
	tests := []struct {
		name          string
		zstd          bool
		width, height int
	}{
		{"negative width", true, -1, 16},
		{"zero height", true, 16, 0},
		{"oversized", true, 1 << 20, 1 << 20},
		{"overflowing product", true, 1 << 40, 1 << 40},
		{"size mismatch", true, 8, 8},
		{"raw negative width", false, -1, 16},
		{"raw overflowing product", false, 1 << 40, 1 << 40},
		{"raw size mismatch", false, 8, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			p := PolicyFunc(func(ctx context.Context, req *Request) (*Response, error) {
				called = true
				return &Response{Actions: [][]float64{{0}}}, nil
			})
			srv := httptest.NewServer(NewServer(p, nil, nil).Handler())
			defer srv.Close()

			req := testRequest()
			if tt.zstd {
				req.EgoCamera = Compress(req.EgoCamera)
			}
			req.EgoCamera.Width = tt.width
			req.EgoCamera.Height = tt.height
			body, err := marshal(req)
			if err != nil {
				t.Fatal(err)
			}

			resp, err := srv.Client().Post(srv.URL+"/infer", contentType, bytes.NewReader(body))
			if err != nil {
				t.Fatalf("post failed: %v", err)
			}
			resp.Body.Close()

			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", resp.StatusCode)
			}
			if called {
				t.Error("policy must not see a malformed image")
			}
		})
	}
}

func TestImageRGBA_RejectsBadDimensions(t *testing.T) {
	for _, img := range []Image{testRequest().EgoCamera, Compress(testRequest().EgoCamera)} {
		img.Width = -3
		if _, err := img.RGBA(); !errors.Is(err, ErrBadPayload) {
			t.Errorf("%s: expected ErrBadPayload, got %v", img.Encoding, err)
		}
		img.Width, img.Height = 1<<40, 1<<40
		if _, err := img.RGBA(); !errors.Is(err, ErrBadPayload) {
			t.Errorf("%s: expected ErrBadPayload for huge image, got %v", img.Encoding, err)
		}
	}
}

func TestPixelSize(t *testing.T) {
	tests := []struct {
		width, height int
		want          int
		ok            bool
	}{
		{16, 16, 768, true},
		{1, 1, 3, true},
		{0, 4, 0, false},
		{4, -1, 0, false},
		{1 << 20, 1 << 20, 0, false},
		{maxRequestBytes, 1, 0, false},
	}
	for _, tt := range tests {
		got, err := pixelSize(tt.width, tt.height)
		if (err == nil) != tt.ok {
			t.Errorf("pixelSize(%d, %d) error = %v", tt.width, tt.height, err)
			continue
		}
		if got != tt.want {
			t.Errorf("pixelSize(%d, %d) = %d, want %d", tt.width, tt.height, got, tt.want)
		}
	}
}
