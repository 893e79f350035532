package aggregator_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/fileskadis/fileskadis/aggregator"
	"github.com/fileskadis/fileskadis/builder"
	"github.com/fileskadis/fileskadis/extractor"
	"github.com/fileskadis/fileskadis/ir"
	"github.com/fileskadis/fileskadis/source"
	"github.com/fileskadis/fileskadis/writer"
)

func pdfWithPages(t *testing.T, dir, name string, pages int) string {
	t.Helper()
	b := builder.New()
	for i := 1; i <= pages; i++ {
		b.NewPage(612, 792).DrawText(fmt.Sprintf("%s %d", name, i), 72, 700, 12)
	}
	doc, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	var buf bytes.Buffer
	if err := writer.New().Write(context.Background(), doc, &buf, writer.Config{Compression: 6}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	path := filepath.Join(dir, name+".pdf")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func pngFile(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 250, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "scan.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMergeOrderAndPageCounts(t *testing.T) {
	dir := t.TempDir()
	first := pdfWithPages(t, dir, "first", 2)
	img := pngFile(t, dir, 120, 80)
	second := pdfWithPages(t, dir, "second", 1)
	dest := filepath.Join(dir, "merged.pdf")

	if err := aggregator.New().Merge(context.Background(), []string{first, img, second}, dest); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	doc, err := ir.NewDefault().ParseFile(context.Background(), dest)
	if err != nil {
		t.Fatalf("parse merged: %v", err)
	}
	if len(doc.Pages) != 4 {
		t.Fatalf("pages = %d", len(doc.Pages))
	}

	ex := extractor.New(doc)
	for i, want := range []string{"first 1", "first 2"} {
		text, err := ex.PageText(i)
		if err != nil {
			t.Fatalf("PageText: %v", err)
		}
		if text != want {
			t.Errorf("page %d text = %q", i+1, text)
		}
	}
	// The image page matches the image's natural size in points.
	if doc.Pages[2].MediaBox.Width() != 120 || doc.Pages[2].MediaBox.Height() != 80 {
		t.Errorf("image page box = %+v", doc.Pages[2].MediaBox)
	}
	if text, _ := ex.PageText(3); text != "second 1" {
		t.Errorf("page 4 text = %q", text)
	}
}

func TestMergeImagePixelsSurvive(t *testing.T) {
	dir := t.TempDir()
	img := pngFile(t, dir, 8, 8)
	dest := filepath.Join(dir, "merged.pdf")

	if err := aggregator.New().Merge(context.Background(), []string{img}, dest); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	doc, err := ir.NewDefault().ParseFile(context.Background(), dest)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	assets := extractor.New(doc).Images()
	if len(assets) != 1 {
		t.Fatalf("assets = %d", len(assets))
	}
	decoded, err := assets[0].ToImage()
	if err != nil {
		t.Fatalf("ToImage: %v", err)
	}
	r, _, _, _ := decoded.At(3, 0).RGBA()
	if r>>8 != 250 {
		t.Errorf("pixel red = %d", r>>8)
	}
}

func TestMergeUnsupportedInputLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	pdf := pdfWithPages(t, dir, "doc", 1)
	txt := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txt, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(dir, "merged.pdf")

	err := aggregator.New().Merge(context.Background(), []string{pdf, txt}, dest)
	var uf *source.UnsupportedFormatError
	if !errors.As(err, &uf) {
		t.Fatalf("err = %v", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("destination should not exist after a failed merge")
	}
}

func TestMergeMissingInput(t *testing.T) {
	dir := t.TempDir()
	err := aggregator.New().Merge(context.Background(),
		[]string{filepath.Join(dir, "gone.pdf")}, filepath.Join(dir, "out.pdf"))
	var nf *source.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v", err)
	}
}

func TestMergeNoInputs(t *testing.T) {
	if err := aggregator.New().Merge(context.Background(), nil, "out.pdf"); err == nil {
		t.Fatal("expected error")
	}
}
