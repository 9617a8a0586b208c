package img

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Size names a derivative bounding box.
type Size struct {
	Name   string
	Width  int
	Height int
}

// DefaultSizes returns the derivative set generated for every photo unless
// THUMBNAIL_SIZES overrides it.
func DefaultSizes() []Size {
	return []Size{
		{Name: "small", Width: 400, Height: 400},
		{Name: "medium", Width: 1200, Height: 1200},
		{Name: "large", Width: 2000, Height: 2000},
	}
}

// Formats the transcoder can decode directly. Everything else (camera RAW,
// HEIC, PSD, ...) goes through the placeholder path so the photo still gets a
// viewable thumbnail.
var decodableExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
}

// Decodable reports whether the transcoder can decode the file itself, judged
// by extension.
func Decodable(filename string) bool {
	return decodableExts[strings.ToLower(filepath.Ext(filename))]
}

// DerivativeKey builds the deterministic store key for one derivative size.
func DerivativeKey(folderID, photoID, filename, sizeName string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return fmt.Sprintf("galleries/%s/thumbs/%s_%s_%s.jpg", folderID, photoID, sizeName, sanitize(base))
}

// OriginalKey builds the store key a new upload lands under. uniqueID keeps
// same-named files in one folder from colliding.
func OriginalKey(folderID, uniqueID, filename string) string {
	return fmt.Sprintf("galleries/%s/originals/%s_%s", folderID, uniqueID, sanitize(filepath.Base(filename)))
}

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}
