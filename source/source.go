// Package source resolves input paths for document operations: it checks
// existence, classifies the format by extension, and decodes raster inputs.
package source

import (
	"bytes"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Kind classifies what an input path contains.
type Kind int

const (
	KindUnknown Kind = iota
	KindPDF
	KindImage
)

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// NotFoundError reports an input path that does not exist or is not a
// regular file.
type NotFoundError struct {
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("source %s not found", e.Path)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// UnsupportedFormatError reports an input whose format no operation
// accepts, either by extension or because the payload does not decode.
type UnsupportedFormatError struct {
	Path string
	Err  error
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("source %s has an unsupported format", e.Path)
}

func (e *UnsupportedFormatError) Unwrap() error { return e.Err }

// Classify reports the kind of the file at path. The path must exist; the
// format is judged by extension.
func Classify(path string) (Kind, error) {
	info, err := os.Stat(path)
	if err != nil {
		return KindUnknown, &NotFoundError{Path: path, Err: err}
	}
	if !info.Mode().IsRegular() {
		return KindUnknown, &NotFoundError{Path: path, Err: fs.ErrInvalid}
	}
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case ext == ".pdf":
		return KindPDF, nil
	case imageExts[ext]:
		return KindImage, nil
	}
	return KindUnknown, &UnsupportedFormatError{Path: path}
}

// ReadPDF loads a document source, verifying it exists and carries the PDF
// header.
func ReadPDF(path string) ([]byte, error) {
	kind, err := Classify(path)
	if err != nil {
		return nil, err
	}
	if kind != KindPDF {
		return nil, &UnsupportedFormatError{Path: path}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &NotFoundError{Path: path, Err: err}
	}
	if !bytes.Contains(firstKB(data), []byte("%PDF-")) {
		return nil, &UnsupportedFormatError{Path: path}
	}
	return data, nil
}

// DecodeImage loads and decodes a raster source. The registered codecs cover
// PNG, JPEG, GIF, BMP, TIFF and WebP.
func DecodeImage(path string) (image.Image, error) {
	kind, err := Classify(path)
	if err != nil {
		return nil, err
	}
	if kind != KindImage {
		return nil, &UnsupportedFormatError{Path: path}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, &NotFoundError{Path: path, Err: err}
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, &UnsupportedFormatError{Path: path, Err: err}
	}
	return img, nil
}

func firstKB(data []byte) []byte {
	if len(data) > 1024 {
		return data[:1024]
	}
	return data
}
