package img

import (
	"bytes"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/disintegration/imaging"
)

func TestPlaceholderProducesDecodableJPEG(t *testing.T) {
	out, err := Placeholder("IMG_4032.CR2", 400, 400)
	if err != nil {
		t.Fatalf("Placeholder returned error: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("placeholder is empty")
	}

	decoded, err := imaging.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("placeholder does not decode: %v", err)
	}
	b := decoded.Bounds()
	if b.Dx() != 400 || b.Dy() != 400 {
		t.Fatalf("unexpected placeholder size: %dx%d", b.Dx(), b.Dy())
	}
}

func TestPlaceholderHandlesMissingExtension(t *testing.T) {
	if _, err := Placeholder("noext", 200, 200); err != nil {
		t.Fatalf("Placeholder returned error: %v", err)
	}
}

func TestTruncateLabelKeepsRunesIntact(t *testing.T) {
	long := strings.Repeat("фотография", 10) + ".nef"
	got := truncateLabel(long, 200, 28)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated label is not valid UTF-8: %q", got)
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("expected ellipsis suffix, got %q", got)
	}
}

func TestPlaceholderHandlesMultibyteFilename(t *testing.T) {
	out, err := Placeholder(strings.Repeat("寫真", 40)+".arw", 400, 400)
	if err != nil {
		t.Fatalf("Placeholder returned error: %v", err)
	}
	if _, err := imaging.Decode(bytes.NewReader(out)); err != nil {
		t.Fatalf("placeholder does not decode: %v", err)
	}
}

func TestPlaceholderClampsTinyBoxes(t *testing.T) {
	out, err := Placeholder("x.raf", 1, 1)
	if err != nil {
		t.Fatalf("Placeholder returned error: %v", err)
	}
	decoded, err := imaging.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("placeholder does not decode: %v", err)
	}
	if decoded.Bounds().Dx() < minPlaceholderEdge {
		t.Fatalf("expected clamped width, got %d", decoded.Bounds().Dx())
	}
}
