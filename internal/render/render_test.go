package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"
	"testing"
	"time"

	"bereal-backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedFetcher blocks each key until released, then returns the key as data
type gatedFetcher struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{gates: make(map[string]chan struct{})}
}

func (f *gatedFetcher) gate(key string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.gates[key]
	if !ok {
		g = make(chan struct{})
		f.gates[key] = g
	}
	return g
}

func (f *gatedFetcher) release(key string) { close(f.gate(key)) }

func (f *gatedFetcher) Fetch(ctx context.Context, key string) ([]byte, error) {
	select {
	case <-f.gate(key):
		return []byte(key), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type delivery struct {
	postID string
	data   string
	err    error
}

func collector() (Deliver, chan delivery) {
	ch := make(chan delivery, 8)
	return func(postID string, data []byte, err error) {
		ch <- delivery{postID: postID, data: string(data), err: err}
	}, ch
}

func TestSlot_DeliversBoundPost(t *testing.T) {
	f := newGatedFetcher()
	s := NewSlot(f, nil)
	deliver, got := collector()

	s.Bind(context.Background(), "post-1", "key-1", deliver)
	assert.Equal(t, "post-1", s.PostID())
	f.release("key-1")

	select {
	case d := <-got:
		require.NoError(t, d.err)
		assert.Equal(t, "post-1", d.postID)
		assert.Equal(t, "key-1", d.data)
	case <-time.After(time.Second):
		t.Fatal("no delivery")
	}
}

func TestSlot_RebindDropsStaleResult(t *testing.T) {
	f := newGatedFetcher()
	s := NewSlot(f, nil)
	deliver, got := collector()

	s.Bind(context.Background(), "post-1", "key-1", deliver)
	s.Bind(context.Background(), "post-2", "key-2", deliver)
	f.release("key-2")
	f.release("key-1")

	select {
	case d := <-got:
		assert.Equal(t, "post-2", d.postID)
		assert.Equal(t, "key-2", d.data)
	case <-time.After(time.Second):
		t.Fatal("no delivery")
	}

	select {
	case d := <-got:
		t.Fatalf("stale delivery for %s", d.postID)
	case <-time.After(50 * time.Millisecond):
	}
}

type ctxRecorder struct {
	started  chan struct{}
	canceled chan struct{}
}

func (r *ctxRecorder) Fetch(ctx context.Context, key string) ([]byte, error) {
	close(r.started)
	<-ctx.Done()
	close(r.canceled)
	return nil, ctx.Err()
}

func TestSlot_ResetCancelsFetch(t *testing.T) {
	r := &ctxRecorder{started: make(chan struct{}), canceled: make(chan struct{})}
	s := NewSlot(r, nil)
	deliver, got := collector()

	s.Bind(context.Background(), "post-1", "key-1", deliver)
	<-r.started
	s.Reset()

	select {
	case <-r.canceled:
	case <-time.After(time.Second):
		t.Fatal("fetch was not canceled")
	}
	assert.Equal(t, "", s.PostID())

	select {
	case d := <-got:
		t.Fatalf("unexpected delivery for %s", d.postID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSlot_ProcessError(t *testing.T) {
	f := newGatedFetcher()
	boom := errors.New("boom")
	s := NewSlot(f, func([]byte) ([]byte, error) { return nil, boom })
	deliver, got := collector()

	s.Bind(context.Background(), "post-1", "key-1", deliver)
	f.release("key-1")

	d := <-got
	assert.ErrorIs(t, d.err, boom)
}

func TestSlotSet(t *testing.T) {
	f := newGatedFetcher()
	ss := NewSlotSet(f, nil)

	assert.Same(t, ss.Slot(3), ss.Slot(3))
	assert.NotSame(t, ss.Slot(3), ss.Slot(4))

	deliver, got := collector()
	ss.Slot(3).Bind(context.Background(), "post-1", "key-1", deliver)
	ss.Close()
	f.release("key-1")

	select {
	case d := <-got:
		t.Fatalf("unexpected delivery for %s", d.postID)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, "", ss.Slot(3).PostID())
}

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{G: 180, A: 255})
	}
	return img
}

func TestThumbnail(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, testImage(1200, 800)))

	out, err := Thumbnail(buf.Bytes(), 300, 0)
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Width)
	assert.Equal(t, 200, cfg.Height)
}

func TestThumbnail_KeepsSmallImages(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, jpeg.Encode(buf, testImage(100, 150), nil))

	out, err := ThumbnailFunc(640, 0)(buf.Bytes())
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 150, cfg.Height)
}

func TestThumbnail_InvalidData(t *testing.T) {
	_, err := Thumbnail([]byte("garbage"), 100, 0)
	assert.Error(t, err)
}

func TestThumbnail_RejectsOversizedImage(t *testing.T) {
	_, err := Thumbnail(testutil.PNGHeader(20000, 20000), 640, 0)
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestDecode_PixelLimit(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, testImage(100, 100)))

	img, err := Decode(buf.Bytes(), 10_000)
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())

	_, err = Decode(buf.Bytes(), 9_999)
	assert.ErrorIs(t, err, ErrImageTooLarge)
}
