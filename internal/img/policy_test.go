package img

import "testing"

func TestDecodable(t *testing.T) {
	cases := []struct {
		filename string
		want     bool
	}{
		{"photo.jpg", true},
		{"photo.JPEG", true},
		{"photo.png", true},
		{"scan.tiff", true},
		{"raw.CR2", false},
		{"raw.nef", false},
		{"raw.arw", false},
		{"image.heic", false},
		{"noext", false},
	}
	for _, tc := range cases {
		if got := Decodable(tc.filename); got != tc.want {
			t.Errorf("Decodable(%q) = %v, want %v", tc.filename, got, tc.want)
		}
	}
}

func TestDerivativeKeyIsDeterministic(t *testing.T) {
	key := DerivativeKey("folder-1", "photo-1", "Summer Trip (1).jpg", "small")
	want := "galleries/folder-1/thumbs/photo-1_small_Summer-Trip--1-.jpg"
	if key != want {
		t.Fatalf("DerivativeKey = %q, want %q", key, want)
	}
	if again := DerivativeKey("folder-1", "photo-1", "Summer Trip (1).jpg", "small"); again != key {
		t.Fatalf("DerivativeKey not deterministic: %q vs %q", again, key)
	}
}

func TestOriginalKeySanitizesFilename(t *testing.T) {
	key := OriginalKey("f", "u", "../../etc/passwd")
	want := "galleries/f/originals/u_passwd"
	if key != want {
		t.Fatalf("OriginalKey = %q, want %q", key, want)
	}
}

func TestDefaultSizesOrdered(t *testing.T) {
	sizes := DefaultSizes()
	if len(sizes) != 3 {
		t.Fatalf("expected 3 default sizes, got %d", len(sizes))
	}
	if sizes[0].Name != "small" || sizes[0].Width != 400 {
		t.Fatalf("unexpected first size: %+v", sizes[0])
	}
	if sizes[2].Name != "large" || sizes[2].Height != 2000 {
		t.Fatalf("unexpected last size: %+v", sizes[2])
	}
}
