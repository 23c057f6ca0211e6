package batch

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MeKo-Tech/barscan/internal/pipeline"
	"github.com/MeKo-Tech/barscan/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedDecoder answers by file name and tracks concurrency.
type scriptedDecoder struct {
	mu       sync.Mutex
	seen     []pipeline.Upload
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
	fail     map[string]error
}

func (d *scriptedDecoder) ProcessUpload(ctx context.Context, up pipeline.Upload) (*pipeline.DecodeResult, error) {
	n := d.inFlight.Add(1)
	defer d.inFlight.Add(-1)
	for {
		p := d.peak.Load()
		if n <= p || d.peak.CompareAndSwap(p, n) {
			break
		}
	}

	d.mu.Lock()
	d.seen = append(d.seen, up)
	d.mu.Unlock()

	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := d.fail[up.Filename]; err != nil {
		return nil, err
	}
	if strings.HasPrefix(up.Filename, "hit") {
		return &pipeline.DecodeResult{
			Status: pipeline.StatusFound,
			Text:   string(up.Data),
			Search: &pipeline.SearchResult{
				Found:     true,
				Attempts:  3,
				Candidate: &pipeline.CandidateInfo{Angle: 0, Crop: "full", Variant: "sharpened"},
			},
		}, nil
	}
	return &pipeline.DecodeResult{Status: pipeline.StatusNotFound, Search: &pipeline.SearchResult{Attempts: 60}}, nil
}

func TestProcessFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hit.png")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o600))

	dec := &scriptedDecoder{}
	res, err := ProcessFile(context.Background(), dec, path)
	require.NoError(t, err)

	assert.True(t, res.Found())
	assert.Equal(t, "payload", res.Text)
	assert.Equal(t, 3, res.Attempts)
	require.NotNil(t, res.Candidate)
	assert.Equal(t, "sharpened", res.Candidate.Variant)

	require.Len(t, dec.seen, 1)
	assert.Equal(t, "hit.png", dec.seen[0].Filename)
	assert.Equal(t, "image/png", dec.seen[0].ContentType)
}

func TestProcessFile_Errors(t *testing.T) {
	dir := t.TempDir()

	res, err := ProcessFile(context.Background(), &scriptedDecoder{}, filepath.Join(dir, "missing.png"))
	require.Error(t, err)
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Error, "failed to read")
	assert.ErrorIs(t, res.Err(), os.ErrNotExist)

	path := filepath.Join(dir, "bad.png")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	boom := errors.New("boom")
	res, err = ProcessFile(context.Background(), &scriptedDecoder{fail: map[string]error{"bad.png": boom}}, path)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StatusError, res.Status)
}

func TestProcessBatch_OrderAndStats(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"hit_a.png", "miss_b.png", "hit_c.png", "miss_d.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o600))
	}

	dec := &scriptedDecoder{delay: 20 * time.Millisecond}
	var callbacks atomic.Int32
	cfg := DefaultConfig()
	cfg.Workers = 2
	cfg.OnResult = func(FileResult) { callbacks.Add(1) }

	res, err := ProcessBatch(context.Background(), dec, []string{dir}, cfg)
	require.NoError(t, err)
	require.Len(t, res.Results, 4)

	names := make([]string, len(res.Results))
	for i, r := range res.Results {
		names[i] = filepath.Base(r.File)
	}
	assert.Equal(t, []string{"hit_a.png", "hit_c.png", "miss_b.png", "miss_d.png"}, names)
	assert.Equal(t, "hit_a.png", res.Results[0].Text)

	assert.LessOrEqual(t, dec.peak.Load(), int32(2))
	assert.Equal(t, int32(4), callbacks.Load())

	stats := res.Stats()
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Found)
	assert.Equal(t, 2, stats.NotFound)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 2, stats.WorkerCount)
}

func TestProcessBatch_ContinueOnError(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"hit_a.png", "broken.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o600))
	}
	dec := &scriptedDecoder{fail: map[string]error{"broken.png": errors.New("decoder crashed")}}

	cfg := DefaultConfig()
	res, err := ProcessBatch(context.Background(), dec, []string{dir}, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats().Failed)
	assert.Equal(t, 1, res.Stats().Found)

	cfg.ContinueOnError = false
	_, err = ProcessBatch(context.Background(), dec, []string{dir}, cfg)
	assert.ErrorContains(t, err, "decoder crashed")
}

func TestProcessBatch_NoFiles(t *testing.T) {
	_, err := ProcessBatch(context.Background(), &scriptedDecoder{}, []string{t.TempDir()}, DefaultConfig())
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestProcessBatch_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Format = "yaml"
	_, err := ProcessBatch(context.Background(), &scriptedDecoder{}, []string{t.TempDir()}, cfg)
	assert.ErrorContains(t, err, "unsupported output format")
}

func TestProcessBatch_RealPipeline(t *testing.T) {
	dir := t.TempDir()
	qr := testutil.MustGenerateQR("XXbatch-payload")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "qr.png"), testutil.EncodePNG(t, qr), 0o600))
	blank := testutil.CreateTestImage(64, 64, color.White)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blank.png"), testutil.EncodePNG(t, blank), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "garbage.jpg"), []byte("not an image"), 0o600))

	p, err := pipeline.NewBuilder().Build()
	require.NoError(t, err)

	res, err := ProcessBatch(context.Background(), p, []string{dir}, DefaultConfig())
	require.NoError(t, err)

	byName := map[string]FileResult{}
	for _, r := range res.Results {
		byName[filepath.Base(r.File)] = r
	}
	assert.Equal(t, "found", byName["qr.png"].Status)
	assert.Equal(t, "batch-payload", byName["qr.png"].Text)
	assert.Nil(t, byName["qr.png"].FileID)
	assert.Equal(t, "not_found", byName["blank.png"].Status)
	assert.Equal(t, "invalid_image", byName["garbage.jpg"].Status)
}

func TestResult_SaveResultsAndStats(t *testing.T) {
	res := &Result{Results: sampleResults(), Duration: 3 * time.Second, WorkerCount: 2}

	var buf bytes.Buffer
	require.NoError(t, res.SaveResults(&buf, FormatText, "", false))
	assert.Contains(t, buf.String(), "# /in/a.png")

	out := filepath.Join(t.TempDir(), "results.csv")
	buf.Reset()
	require.NoError(t, res.SaveResults(&buf, FormatCSV, out, false))
	assert.Equal(t, "Results written to "+out+"\n", buf.String())
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "file,status,"))

	buf.Reset()
	res.PrintStats(&buf, false)
	assert.Contains(t, buf.String(), "Total images: 3")
	assert.Contains(t, buf.String(), "Found: 1")
	assert.Contains(t, buf.String(), "Failed: 1")
	assert.Contains(t, buf.String(), "Throughput: 1.0 images/sec")

	buf.Reset()
	res.PrintStats(&buf, true)
	assert.Empty(t, buf.String())
}
