package source_test

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/fileskadis/fileskadis/source"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestClassify(t *testing.T) {
	pdf := writeFile(t, "a.pdf", []byte("%PDF-1.7"))
	if kind, err := source.Classify(pdf); err != nil || kind != source.KindPDF {
		t.Errorf("pdf: kind=%v err=%v", kind, err)
	}
	img := writeFile(t, "b.PNG", nil)
	if kind, err := source.Classify(img); err != nil || kind != source.KindImage {
		t.Errorf("png: kind=%v err=%v", kind, err)
	}
}

func TestClassifyMissing(t *testing.T) {
	_, err := source.Classify(filepath.Join(t.TempDir(), "nope.pdf"))
	var nf *source.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v", err)
	}
}

func TestClassifyUnsupported(t *testing.T) {
	path := writeFile(t, "notes.txt", []byte("hello"))
	_, err := source.Classify(path)
	var uf *source.UnsupportedFormatError
	if !errors.As(err, &uf) {
		t.Fatalf("err = %v", err)
	}
	if uf.Path != path {
		t.Errorf("path = %q", uf.Path)
	}
}

func TestReadPDFRejectsNonPDFContent(t *testing.T) {
	path := writeFile(t, "fake.pdf", []byte("just text"))
	_, err := source.ReadPDF(path)
	var uf *source.UnsupportedFormatError
	if !errors.As(err, &uf) {
		t.Fatalf("err = %v", err)
	}
}

func TestReadPDF(t *testing.T) {
	path := writeFile(t, "ok.pdf", []byte("%PDF-1.4\nbody"))
	data, err := source.ReadPDF(path)
	if err != nil {
		t.Fatalf("ReadPDF: %v", err)
	}
	if len(data) == 0 {
		t.Error("no data")
	}
}

func TestDecodeImage(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatal(err)
	}
	path := writeFile(t, "img.png", buf.Bytes())
	img, err := source.DecodeImage(path)
	if err != nil {
		t.Fatalf("DecodeImage: %v", err)
	}
	if img.Bounds().Dx() != 2 {
		t.Errorf("bounds = %v", img.Bounds())
	}
}

func TestDecodeImageRejectsPDF(t *testing.T) {
	path := writeFile(t, "c.pdf", []byte("%PDF-1.7"))
	if _, err := source.DecodeImage(path); err == nil {
		t.Fatal("expected error")
	}
}
