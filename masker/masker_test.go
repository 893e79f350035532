package masker_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fileskadis/fileskadis/builder"
	"github.com/fileskadis/fileskadis/extractor"
	"github.com/fileskadis/fileskadis/ir"
	"github.com/fileskadis/fileskadis/ir/semantic"
	"github.com/fileskadis/fileskadis/masker"
	"github.com/fileskadis/fileskadis/writer"
)

func writeDoc(t *testing.T, doc *semantic.Document, path string) {
	t.Helper()
	var buf bytes.Buffer
	if err := writer.New().Write(context.Background(), doc, &buf, writer.Config{Compression: 6}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

// textPDF builds a one-page file with "public line" near the top and
// "secret value" lower down.
func textPDF(t *testing.T, dir string) string {
	t.Helper()
	b := builder.New()
	b.NewPage(612, 792).
		DrawText("public line", 72, 700, 12).
		DrawText("secret value", 72, 400, 12)
	doc, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	path := filepath.Join(dir, "text.pdf")
	writeDoc(t, doc, path)
	return path
}

// gradientImage has distinct pixel values everywhere so a blur measurably
// changes them.
func gradientImage(size int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, color.RGBA{
				R: byte(x * 255 / size),
				G: byte(y * 255 / size),
				B: byte((x + y) * 127 / size),
				A: 255,
			})
		}
	}
	return img
}

// imagePDF builds a 100x100 point page fully covered by a 20x20 pixel
// gradient image.
func imagePDF(t *testing.T, dir string) string {
	t.Helper()
	b := builder.New()
	b.NewPage(100, 100).DrawImage(gradientImage(20), 0, 0, 100, 100)
	doc, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	path := filepath.Join(dir, "image.pdf")
	writeDoc(t, doc, path)
	return path
}

func redactedPixels(t *testing.T, path string) *semantic.XObject {
	t.Helper()
	doc, err := ir.NewDefault().ParseFile(context.Background(), path)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	assets := extractor.New(doc).Images()
	if len(assets) != 1 {
		t.Fatalf("assets = %d", len(assets))
	}
	return assets[0].XObject
}

func pixelAt(xo *semantic.XObject, x, y int) [3]byte {
	off := (y*xo.Width + x) * 3
	return [3]byte{xo.Data[off], xo.Data[off+1], xo.Data[off+2]}
}

func TestRedactValidation(t *testing.T) {
	dir := t.TempDir()
	src := textPDF(t, dir)
	dest := filepath.Join(dir, "out.pdf")
	region := masker.Region{X: 10, Y: 10, Width: 100, Height: 100}

	cases := []struct {
		name    string
		page    int
		regions []masker.Region
	}{
		{"page out of range", 5, []masker.Region{region}},
		{"negative page", -1, []masker.Region{region}},
		{"zero width", 0, []masker.Region{{X: 10, Y: 10, Width: 0, Height: 50}}},
		{"negative height", 0, []masker.Region{{X: 10, Y: 10, Width: 50, Height: -1}}},
		{"no regions", 0, nil},
	}
	for _, tc := range cases {
		err := masker.New().Redact(context.Background(), src, tc.page, tc.regions, masker.ModeSolid, dest)
		var ire *masker.InvalidRegionError
		if !errors.As(err, &ire) {
			t.Errorf("%s: err = %v", tc.name, err)
		}
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("destination should not exist after failed redactions")
	}
}

func TestRedactSolidRemovesText(t *testing.T) {
	dir := t.TempDir()
	src := textPDF(t, dir)
	dest := filepath.Join(dir, "out.pdf")

	// Cover the line at y=400.
	region := masker.Region{X: 60, Y: 380, Width: 300, Height: 50}
	m := masker.New(masker.WithCompression(0))
	if err := m.Redact(context.Background(), src, 0, []masker.Region{region}, masker.ModeSolid, dest); err != nil {
		t.Fatalf("Redact: %v", err)
	}

	out, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(out, []byte("secret")) {
		t.Error("redacted text still present in output bytes")
	}

	doc, err := ir.NewDefault().Parse(context.Background(), out)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	text, err := extractor.New(doc).PageText(0)
	if err != nil {
		t.Fatalf("PageText: %v", err)
	}
	if strings.Contains(text, "secret") {
		t.Errorf("text = %q", text)
	}
	if !strings.Contains(text, "public line") {
		t.Errorf("untouched text lost: %q", text)
	}
}

func TestRedactDeterministic(t *testing.T) {
	dir := t.TempDir()
	src := textPDF(t, dir)
	region := masker.Region{X: 60, Y: 380, Width: 300, Height: 50}

	paths := []string{filepath.Join(dir, "a.pdf"), filepath.Join(dir, "b.pdf")}
	for _, p := range paths {
		if err := masker.New().Redact(context.Background(), src, 0, []masker.Region{region}, masker.ModeSolid, p); err != nil {
			t.Fatalf("Redact: %v", err)
		}
	}
	a, _ := os.ReadFile(paths[0])
	b, _ := os.ReadFile(paths[1])
	if !bytes.Equal(a, b) {
		t.Error("identical redactions produced different bytes")
	}
}

func TestRedactSolidFillsImagePixels(t *testing.T) {
	dir := t.TempDir()
	src := imagePDF(t, dir)
	dest := filepath.Join(dir, "out.pdf")

	// Top-left quadrant of the page maps to the top-left 10x10 pixels.
	region := masker.Region{X: 0, Y: 50, Width: 50, Height: 50}
	if err := masker.New().Redact(context.Background(), src, 0, []masker.Region{region}, masker.ModeSolid, dest); err != nil {
		t.Fatalf("Redact: %v", err)
	}

	xo := redactedPixels(t, dest)
	if got := pixelAt(xo, 3, 3); got != [3]byte{0, 0, 0} {
		t.Errorf("covered pixel = %v", got)
	}
	orig := gradientImage(20)
	r, g, bl, _ := orig.At(15, 15).RGBA()
	if got := pixelAt(xo, 15, 15); got != [3]byte{byte(r >> 8), byte(g >> 8), byte(bl >> 8)} {
		t.Errorf("uncovered pixel changed: %v", got)
	}
}

func TestRedactWhiteFill(t *testing.T) {
	dir := t.TempDir()
	src := imagePDF(t, dir)
	dest := filepath.Join(dir, "out.pdf")

	region := masker.Region{X: 0, Y: 50, Width: 50, Height: 50}
	m := masker.New(masker.WithFill(masker.FillWhite))
	if err := m.Redact(context.Background(), src, 0, []masker.Region{region}, masker.ModeSolid, dest); err != nil {
		t.Fatalf("Redact: %v", err)
	}
	xo := redactedPixels(t, dest)
	if got := pixelAt(xo, 3, 3); got != [3]byte{255, 255, 255} {
		t.Errorf("covered pixel = %v", got)
	}
}

func TestRedactBlurChangesOnlyCoveredPixels(t *testing.T) {
	dir := t.TempDir()
	src := imagePDF(t, dir)
	dest := filepath.Join(dir, "out.pdf")

	region := masker.Region{X: 0, Y: 50, Width: 50, Height: 50}
	m := masker.New(masker.WithBlurRadius(5))
	if err := m.Redact(context.Background(), src, 0, []masker.Region{region}, masker.ModeBlur, dest); err != nil {
		t.Fatalf("Redact: %v", err)
	}

	xo := redactedPixels(t, dest)
	orig := gradientImage(20)
	r, g, bl, _ := orig.At(15, 15).RGBA()
	if got := pixelAt(xo, 15, 15); got != [3]byte{byte(r >> 8), byte(g >> 8), byte(bl >> 8)} {
		t.Errorf("uncovered pixel changed: %v", got)
	}
	// A corner pixel of the gradient moves toward the local average when
	// blurred.
	or, _, _, _ := orig.At(0, 0).RGBA()
	if got := pixelAt(xo, 0, 0); got[0] == byte(or>>8) {
		t.Errorf("covered pixel not blurred: %v", got)
	}
}

func TestRedactBlurOverlapIsSinglePass(t *testing.T) {
	dir := t.TempDir()
	src := imagePDF(t, dir)

	// Two overlapping rectangles tiling the same area as one.
	split := []masker.Region{
		{X: 0, Y: 60, Width: 60, Height: 40},
		{X: 40, Y: 60, Width: 60, Height: 40},
	}
	union := []masker.Region{{X: 0, Y: 60, Width: 100, Height: 40}}

	destA := filepath.Join(dir, "split.pdf")
	destB := filepath.Join(dir, "union.pdf")
	m := masker.New(masker.WithBlurRadius(5))
	if err := m.Redact(context.Background(), src, 0, split, masker.ModeBlur, destA); err != nil {
		t.Fatalf("Redact split: %v", err)
	}
	if err := m.Redact(context.Background(), src, 0, union, masker.ModeBlur, destB); err != nil {
		t.Fatalf("Redact union: %v", err)
	}

	a, _ := os.ReadFile(destA)
	b, _ := os.ReadFile(destB)
	if !bytes.Equal(a, b) {
		t.Error("overlapping regions blurred differently from their union")
	}
}

func TestRedactBlurTextFallsBackToFill(t *testing.T) {
	dir := t.TempDir()
	src := textPDF(t, dir)
	dest := filepath.Join(dir, "out.pdf")

	region := masker.Region{X: 60, Y: 380, Width: 300, Height: 50}
	m := masker.New(masker.WithCompression(0))
	if err := m.Redact(context.Background(), src, 0, []masker.Region{region}, masker.ModeBlur, dest); err != nil {
		t.Fatalf("Redact: %v", err)
	}
	out, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(out, []byte("secret")) {
		t.Error("redacted text still present in output bytes")
	}
	// The removed text's footprint is covered by a fill.
	if !bytes.Contains(out, []byte(" re\n")) {
		t.Error("no fill rectangle in output content")
	}
}

// rawFile assembles a file from literal object bodies, numbered from one,
// with a matching cross-reference table. Lets tests build constructs the
// builder cannot, such as split content streams and exotic color spaces.
func rawFile(t *testing.T, dir, name string, objects []string) string {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects)+1)
	for i, body := range objects {
		offsets[i+1] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	start := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= len(objects); i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, start)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func streamObj(body string) string {
	return fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(body), body)
}

func TestRedactWipesUneditableImageData(t *testing.T) {
	dir := t.TempDir()
	payload := bytes.Repeat([]byte{0xC1, 0x3B, 0x5D, 0x7E}, 4)
	content := "q 100 0 0 100 0 0 cm /Im0 Do Q\n"
	src := rawFile(t, dir, "cmyk.pdf", []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 100 100] /Resources << /XObject << /Im0 4 0 R >> >> /Contents 5 0 R >>",
		fmt.Sprintf("<< /Type /XObject /Subtype /Image /Width 2 /Height 2 /ColorSpace /DeviceCMYK /BitsPerComponent 8 /Length %d >>\nstream\n%s\nendstream", len(payload), payload),
		streamObj(content),
	})
	dest := filepath.Join(dir, "out.pdf")

	// CMYK pixels cannot be rewritten in place, so the placement is
	// deleted. The image stream must not ride along into the output.
	region := masker.Region{X: 0, Y: 0, Width: 100, Height: 100}
	m := masker.New(masker.WithCompression(0))
	if err := m.Redact(context.Background(), src, 0, []masker.Region{region}, masker.ModeSolid, dest); err != nil {
		t.Fatalf("Redact: %v", err)
	}

	out, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(out, payload) {
		t.Error("original image bytes still present in the output file")
	}
	if _, err := ir.NewDefault().Parse(context.Background(), out); err != nil {
		t.Fatalf("parse output: %v", err)
	}
}

func TestRedactTextPlacedByEarlierStream(t *testing.T) {
	dir := t.TempDir()
	// The cm at the end of the first stream scales the text in the second
	// up to device coordinates around (50,50)-(170,170).
	src := rawFile(t, dir, "split.pdf", []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents [4 0 R 5 0 R] >>",
		streamObj("q 10 0 0 10 0 0 cm\n"),
		streamObj("BT /F1 12 Tf 5 5 Td (secret) Tj ET\n"),
	})
	dest := filepath.Join(dir, "out.pdf")

	region := masker.Region{X: 30, Y: 30, Width: 582, Height: 762}
	m := masker.New(masker.WithCompression(0))
	if err := m.Redact(context.Background(), src, 0, []masker.Region{region}, masker.ModeSolid, dest); err != nil {
		t.Fatalf("Redact: %v", err)
	}

	out, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(out, []byte("secret")) {
		t.Error("text painted inside the region survived redaction")
	}
	doc, err := ir.NewDefault().Parse(context.Background(), out)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	text, err := extractor.New(doc).PageText(0)
	if err != nil {
		t.Fatalf("PageText: %v", err)
	}
	if strings.Contains(text, "secret") {
		t.Errorf("text = %q", text)
	}
}

func TestRedactMap(t *testing.T) {
	dir := t.TempDir()
	b := builder.New()
	b.NewPage(612, 792).DrawText("alpha", 72, 700, 12)
	b.NewPage(612, 792).DrawText("bravo", 72, 700, 12)
	doc, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	src := filepath.Join(dir, "two.pdf")
	writeDoc(t, doc, src)
	dest := filepath.Join(dir, "out.pdf")

	regions := map[int][]masker.Region{
		0: {{X: 60, Y: 680, Width: 300, Height: 50}},
		1: {{X: 60, Y: 680, Width: 300, Height: 50}},
	}
	if err := masker.New().RedactMap(context.Background(), src, regions, masker.ModeSolid, dest); err != nil {
		t.Fatalf("RedactMap: %v", err)
	}
	parsed, err := ir.NewDefault().ParseFile(context.Background(), dest)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ex := extractor.New(parsed)
	for i, word := range []string{"alpha", "bravo"} {
		text, err := ex.PageText(i)
		if err != nil {
			t.Fatalf("PageText: %v", err)
		}
		if strings.Contains(text, word) {
			t.Errorf("page %d still shows %q", i, word)
		}
	}
}
