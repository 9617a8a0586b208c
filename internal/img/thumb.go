package img

import (
	"bytes"
	"context"
	"fmt"
	"runtime"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/semaphore"
)

// DefaultQuality is the JPEG quality used for every derivative.
const DefaultQuality = 80

// transcodeGate caps concurrent decodes/encodes across the whole process.
// The job queue bounds its own worker count separately; this gate keeps the
// total codec load at or below the core count even if callers outside the
// queue transcode at the same time.
var transcodeGate = semaphore.NewWeighted(int64(max(1, runtime.GOMAXPROCS(0))))

// FitJPEG decodes src, scales it to fit inside the boxW x boxH bounding box
// preserving aspect ratio, and re-encodes it as JPEG. Sources already smaller
// than the box are never upscaled. EXIF orientation is applied before
// resizing.
func FitJPEG(ctx context.Context, src []byte, boxW, boxH, quality int) (out []byte, w int, h int, _ error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	if err := transcodeGate.Acquire(ctx, 1); err != nil {
		return nil, 0, 0, fmt.Errorf("acquire transcode slot: %w", err)
	}
	defer transcodeGate.Release(1)

	im, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode: %w", err)
	}

	thumb := imaging.Fit(im, boxW, boxH, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, 0, 0, fmt.Errorf("encode: %w", err)
	}

	b := thumb.Bounds()
	return buf.Bytes(), b.Dx(), b.Dy(), nil
}
