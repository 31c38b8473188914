package download

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func testContent(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + i/251)
	}
	return b
}

// assetServer serves content with range support and counts requests.
type assetServer struct {
	*httptest.Server
	content []byte

	heads      atomic.Int32
	rangeGets  atomic.Int32
	fullGets   atomic.Int32
	noHead     bool
	noLength   bool
	failFull   bool
	shortStart int64 // range starting here is truncated to half; -1 disables
	failStart  int64 // range starting here gets a 500; -1 disables
	delayStart int64 // range starting here is delayed; -1 disables
	delay      time.Duration
}

func newAssetServer(t *testing.T, content []byte, configure func(*assetServer)) *assetServer {
	t.Helper()
	s := &assetServer{content: content, shortStart: -1, failStart: -1, delayStart: -1}
	if configure != nil {
		configure(s)
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *assetServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		s.heads.Add(1)
		if s.noHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if s.noLength {
			return
		}
	}

	rng := r.Header.Get("Range")
	if r.Method == http.MethodGet {
		if rng == "" {
			s.fullGets.Add(1)
			if s.failFull {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			if s.noLength {
				w.Header().Set("Content-Type", "application/octet-stream")
				w.WriteHeader(http.StatusOK)
				w.(http.Flusher).Flush()
				_, _ = w.Write(s.content)
				return
			}
		} else {
			s.rangeGets.Add(1)
			var start, end int64
			if _, err := fmt.Sscanf(rng, "bytes=%d-%d", &start, &end); err == nil {
				switch start {
				case s.failStart:
					w.WriteHeader(http.StatusInternalServerError)
					return
				case s.shortStart:
					half := (end - start + 1) / 2
					w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(s.content)))
					w.Header().Set("Content-Length", strconv.FormatInt(half, 10))
					w.WriteHeader(http.StatusPartialContent)
					_, _ = w.Write(s.content[start : start+half])
					return
				case s.delayStart:
					time.Sleep(s.delay)
				}
			}
		}
	}

	http.ServeContent(w, r, "asset", time.Time{}, bytes.NewReader(s.content))
}

// leftovers lists files in dir other than the named ones.
func leftovers(t *testing.T, dir string, keep ...string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	keepSet := map[string]bool{}
	for _, k := range keep {
		keepSet[k] = true
	}
	var out []string
	for _, e := range entries {
		if !keepSet[e.Name()] {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out
}
