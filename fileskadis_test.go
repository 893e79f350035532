package fileskadis_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fileskadis/fileskadis"
	"github.com/fileskadis/fileskadis/builder"
	"github.com/fileskadis/fileskadis/ir"
	"github.com/fileskadis/fileskadis/writer"
)

func fixture(t *testing.T, dir string, pages int) string {
	t.Helper()
	b := builder.New()
	for i := 0; i < pages; i++ {
		b.NewPage(612, 792).DrawText("fixture", 72, 700, 12)
	}
	doc, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	var buf bytes.Buffer
	if err := writer.New().Write(context.Background(), doc, &buf, writer.Config{Compression: 6}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	path := filepath.Join(dir, "fixture.pdf")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFacadeEndToEnd(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := fixture(t, dir, 3)

	n, err := fileskadis.PageCount(ctx, src)
	if err != nil || n != 3 {
		t.Fatalf("PageCount = %d, %v", n, err)
	}

	extracted := filepath.Join(dir, "extracted.pdf")
	if err := fileskadis.Extract(ctx, src, "1,3", extracted); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	merged := filepath.Join(dir, "merged.pdf")
	if err := fileskadis.Merge(ctx, []string{src, extracted}, merged); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	doc, err := ir.NewDefault().ParseFile(ctx, merged)
	if err != nil {
		t.Fatalf("parse merged: %v", err)
	}
	if len(doc.Pages) != 5 {
		t.Errorf("merged pages = %d", len(doc.Pages))
	}

	redacted := filepath.Join(dir, "redacted.pdf")
	regions := []fileskadis.Region{{X: 60, Y: 680, Width: 300, Height: 50}}
	if err := fileskadis.Redact(ctx, src, 0, regions, fileskadis.ModeSolid, redacted); err != nil {
		t.Fatalf("Redact: %v", err)
	}
	if _, err := os.Stat(redacted); err != nil {
		t.Errorf("redacted output missing: %v", err)
	}
}
