package fetcher

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/paper_radar/internal/model"
)

var testDate = time.Date(2026, 2, 28, 0, 0, 0, 0, time.Local)

func newTestFetcher(t *testing.T, opts Options) (*Fetcher, *[]time.Duration) {
	t.Helper()
	if opts.Dir == "" {
		opts.Dir = t.TempDir()
	}
	opts.UserAgent = "paper-radar-test"
	f, err := New(opts)
	require.NoError(t, err)

	var slept []time.Duration
	f.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return f, &slept
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func imageSource(base string) model.NewspaperSource {
	return model.NewspaperSource{
		Name:        "纽约时报",
		Kind:        model.SourceDirectImage,
		URLTemplate: base + "/images/{yyyy}/{mm}/{dd}/nytfrontpage/scan.jpg",
	}
}

func layoutSource(base string) model.NewspaperSource {
	return model.NewspaperSource{
		Name:              "人民日报",
		Kind:              model.SourcePDFViaLayout,
		LayoutURLTemplate: base + "/rmrb/pc/layout/{yymm}/{dd}/node_01.html",
	}
}

func TestFetch_DirectImage(t *testing.T) {
	body := jpegBytes(t, 64, 96)
	var hits atomic.Int32
	var gotPath, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		gotPath = r.URL.Path
		gotUA = r.UserAgent()
		w.Write(body)
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t, Options{})
	a, err := f.Fetch(context.Background(), imageSource(srv.URL), testDate, false)
	require.NoError(t, err)

	assert.Equal(t, "/images/2026/02/28/nytfrontpage/scan.jpg", gotPath)
	assert.Equal(t, "paper-radar-test", gotUA)
	assert.Equal(t, model.MediaJPG, a.MediaKind)
	assert.False(t, a.Cached)
	assert.Equal(t, "纽约时报_20260228.jpg", filepath.Base(a.LocalPath))

	saved, err := os.ReadFile(a.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, body, saved)
	assert.NoFileExists(t, a.LocalPath+".part")
	assert.EqualValues(t, 1, hits.Load())
}

func TestFetch_CachedFileSkipsNetwork(t *testing.T) {
	body := jpegBytes(t, 16, 16)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write(body)
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t, Options{})
	src := imageSource(srv.URL)

	first, err := f.Fetch(context.Background(), src, testDate, false)
	require.NoError(t, err)
	second, err := f.Fetch(context.Background(), src, testDate, false)
	require.NoError(t, err)

	assert.Equal(t, first.LocalPath, second.LocalPath)
	assert.True(t, second.Cached)
	assert.EqualValues(t, 1, hits.Load())

	_, err = f.Fetch(context.Background(), src, testDate, true)
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
}

func TestFetch_LayoutPageResolvesRelativePDF(t *testing.T) {
	pdf := []byte("%PDF-1.4\n% test front page\n")
	mux := http.NewServeMux()
	mux.HandleFunc("/rmrb/pc/layout/202602/28/node_01.html", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
<a href="node_02.html">第02版</a>
<a href="../../../attachement/202602/28/rmrb2026022801.pdf">PDF下载</a>
</body></html>`))
	})
	mux.HandleFunc("/rmrb/pc/attachement/202602/28/rmrb2026022801.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Write(pdf)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f, _ := newTestFetcher(t, Options{})
	a, err := f.Fetch(context.Background(), layoutSource(srv.URL), testDate, false)
	require.NoError(t, err)

	assert.Equal(t, model.MediaPDF, a.MediaKind)
	assert.Equal(t, "人民日报_20260228.pdf", filepath.Base(a.LocalPath))
	saved, err := os.ReadFile(a.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, pdf, saved)
}

func TestFetch_NoPDFLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><a href="node_02.html">第02版</a></body></html>`))
	}))
	defer srv.Close()

	f, slept := newTestFetcher(t, Options{})
	_, err := f.Fetch(context.Background(), layoutSource(srv.URL), testDate, false)
	require.ErrorIs(t, err, ErrNoPDFLink)
	assert.Empty(t, *slept)
	assert.Contains(t, Hint(err), "昨天")
}

func TestFetch_StatusErrorIsNotRetried(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusForbidden, http.StatusInternalServerError} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(code)
			}))
			defer srv.Close()

			f, slept := newTestFetcher(t, Options{})
			a, err := f.Fetch(context.Background(), imageSource(srv.URL), testDate, false)
			require.Error(t, err)
			assert.Nil(t, a)

			var se *StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, code, se.Code)
			assert.EqualValues(t, 1, hits.Load())
			assert.Empty(t, *slept)
			assert.NoFileExists(t, f.ArtifactPath(imageSource(srv.URL), testDate))
		})
	}
}

func TestFetch_StatusHints(t *testing.T) {
	assert.Contains(t, Hint(&StatusError{Code: 404}), "未发布")
	assert.Contains(t, Hint(&StatusError{Code: 403}), "反爬")
	assert.Empty(t, Hint(errors.New("x")))
}

func TestFetch_TransientErrorsExhaustRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		conn.Close()
	}))
	defer srv.Close()

	f, slept := newTestFetcher(t, Options{})
	_, err := f.Fetch(context.Background(), imageSource(srv.URL), testDate, false)
	require.ErrorIs(t, err, ErrExhausted)

	assert.EqualValues(t, 5, hits.Load())
	assert.Equal(t, []time.Duration{
		5 * time.Second, 10 * time.Second, 15 * time.Second, 20 * time.Second,
	}, *slept)
	assert.Contains(t, Hint(err), "代理")
}

func TestFetch_TimeoutWidensOnRetry(t *testing.T) {
	body := jpegBytes(t, 8, 8)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-time.After(250 * time.Millisecond):
		case <-r.Context().Done():
			return
		}
		w.Write(body)
	}))
	defer srv.Close()

	f, slept := newTestFetcher(t, Options{
		ReadTimeout: 100 * time.Millisecond,
		ReadStep:    300 * time.Millisecond,
	})
	a, err := f.Fetch(context.Background(), imageSource(srv.URL), testDate, false)
	require.NoError(t, err)
	assert.FileExists(t, a.LocalPath)
	assert.EqualValues(t, 2, hits.Load())
	assert.Equal(t, []time.Duration{5 * time.Second}, *slept)
}

func TestFetch_InvalidImageRemoved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not an image</html>"))
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t, Options{})
	src := imageSource(srv.URL)
	_, err := f.Fetch(context.Background(), src, testDate, false)
	require.ErrorIs(t, err, ErrInvalidArtifact)
	assert.NoFileExists(t, f.ArtifactPath(src, testDate))
	assert.NoFileExists(t, f.ArtifactPath(src, testDate)+".part")
}

func TestFetch_ForcedRefetchKeepsCachedFileOnInvalidDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>blocked</html>"))
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t, Options{})
	src := imageSource(srv.URL)
	path := f.ArtifactPath(src, testDate)
	cached := jpegBytes(t, 40, 30)
	require.NoError(t, os.WriteFile(path, cached, 0o644))

	_, err := f.Fetch(context.Background(), src, testDate, true)
	require.ErrorIs(t, err, ErrInvalidArtifact)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cached, got)
	assert.NoFileExists(t, path+".part")
}

func TestFetch_ContextCanceledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, _ := w.(http.Hijacker)
		conn, _, _ := hj.Hijack()
		conn.Close()
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	f.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	_, err := f.Fetch(ctx, imageSource(srv.URL), testDate, false)
	require.ErrorIs(t, err, context.Canceled)
}

func TestBackoffAndTimeoutSchedule(t *testing.T) {
	f, _ := newTestFetcher(t, Options{ConnectTimeout: 10 * time.Second, ReadTimeout: 30 * time.Second})

	assert.Equal(t, timeouts{10 * time.Second, 30 * time.Second}, f.timeoutsFor(0))
	assert.Equal(t, timeouts{20 * time.Second, 60 * time.Second}, f.timeoutsFor(2))
	assert.Equal(t, 5*time.Second, f.backoff(1))
	assert.Equal(t, 30*time.Second, f.backoff(6))
	assert.Equal(t, 30*time.Second, f.backoff(10))
}

func TestExtractPDFLink(t *testing.T) {
	tests := []struct {
		name string
		page string
		want string
		ok   bool
	}{
		{"double quoted", `<a href="../../../attachement/202602/28/rmrb2026022801.pdf">PDF</a>`, "../../../attachement/202602/28/rmrb2026022801.pdf", true},
		{"first wins", `<a href="a.pdf"></a><a href="b.pdf"></a>`, "a.pdf", true},
		{"single quoted", `<a href='/files/front.pdf'>PDF</a>`, "/files/front.pdf", true},
		{"upper case with query", `<a href="/files/FRONT.PDF?v=2">PDF</a>`, "/files/FRONT.PDF?v=2", true},
		{"none", `<a href="node_02.html">02</a>`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractPDFLink([]byte(tt.page))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveURL(t *testing.T) {
	got, err := resolveURL("http://paper.people.com.cn/rmrb/pc/layout/202602/28/node_01.html",
		"../../../attachement/202602/28/rmrb2026022801.pdf")
	require.NoError(t, err)
	assert.Equal(t, "http://paper.people.com.cn/rmrb/pc/attachement/202602/28/rmrb2026022801.pdf", got)

	got, err = resolveURL("http://paper.people.com.cn/rmrb/pc/layout/202602/28/node_01.html", "https://cdn.example.com/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.pdf", got)
}
