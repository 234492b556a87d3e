package policy

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const maxRequestBytes = 64 << 20

// Server exposes a Policy over HTTP using the same wire format as Client.
type Server struct {
	policy   Policy
	metadata map[string]any
	logger   *slog.Logger
}

func NewServer(p Policy, metadata map[string]any, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &Server{policy: p, metadata: metadata, logger: logger}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /infer", s.handleInfer)
	mux.HandleFunc("GET /metadata", s.handleMetadata)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

func (s *Server) handleInfer(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}

	var req Request
	if err := unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, img := range []*Image{&req.EgoCamera, &req.WristLeft, &req.WristRight} {
		if err := inflate(img); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	resp, err := s.policy.Infer(r.Context(), &req)
	if err != nil {
		s.logger.Warn("inference failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.write(w, resp)
	s.logger.Debug("served inference", "chunk_len", len(resp.Actions), "elapsed", time.Since(start))
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	s.write(w, s.metadata)
}

func (s *Server) write(w http.ResponseWriter, v any) {
	data, err := marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(data)
}

// inflate replaces compressed pixels with raw ones so policies only ever see
// EncodingRaw. Image headers are validated for every encoding.
func inflate(img *Image) error {
	size, err := pixelSize(img.Width, img.Height)
	if err != nil {
		return err
	}
	if img.Encoding != EncodingZstd {
		if len(img.Pixels) != size {
			return fmt.Errorf("%w: got %d bytes for %dx%d image", ErrBadPayload, len(img.Pixels), img.Width, img.Height)
		}
		return nil
	}
	pix, err := decompressPixels(img.Pixels, img.Width, img.Height)
	if err != nil {
		return err
	}
	img.Pixels = pix
	img.Encoding = EncodingRaw
	return nil
}
