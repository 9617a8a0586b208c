// cmd/test-convert is a standalone CLI for trying a single file-to-derivative
// conversion without the server or any backing services.
//
// Usage:
//   ./test-convert -input photo.jpg -output thumb.jpg
//   ./test-convert -input photo.arw -output thumb.jpg -size 1200
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Sinnan1/PhotoPortal-sub002/internal/img"
)

func main() {
	input := flag.String("input", "", "input file path (required)")
	output := flag.String("output", "", "output path (default: input_thumb.jpg)")
	size := flag.Int("size", 512, "bounding box edge in pixels")
	quality := flag.Int("quality", img.DefaultQuality, "JPEG quality, 1-100")
	timeout := flag.Int("timeout", 30, "conversion timeout in seconds")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "error: -input flag is required")
		flag.Usage()
		os.Exit(1)
	}
	if *output == "" {
		ext := filepath.Ext(*input)
		*output = (*input)[:len(*input)-len(ext)] + "_thumb.jpg"
	}

	data, err := os.ReadFile(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read input: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*timeout)*time.Second)
	defer cancel()

	start := time.Now()
	var out []byte
	if img.Decodable(*input) {
		var w, h int
		out, w, h, err = img.FitJPEG(ctx, data, *size, *size, *quality)
		if err == nil {
			fmt.Printf("transcoded to %dx%d in %s\n", w, h, time.Since(start).Round(time.Millisecond))
		}
	} else {
		err = fmt.Errorf("format is not decodable")
	}
	if err != nil {
		fmt.Printf("falling back to placeholder (%v)\n", err)
		out, err = img.Placeholder(filepath.Base(*input), *size, *size)
		if err != nil {
			fmt.Fprintf(os.Stderr, "render placeholder: %v\n", err)
			os.Exit(1)
		}
	}

	if err := os.WriteFile(*output, out, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s (%d bytes)\n", *output, len(out))
}
