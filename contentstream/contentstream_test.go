package contentstream_test

import (
	"bytes"
	"testing"

	"github.com/fileskadis/fileskadis/contentstream"
	"github.com/fileskadis/fileskadis/ir/semantic"
)

func TestTokenizeBasicOps(t *testing.T) {
	src := []byte("q 1 0 0 1 50 60 cm /Im0 Do Q\nBT /F1 12 Tf 72 700 Td (Hi) Tj ET\n")
	ops, err := contentstream.Tokenize(src)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	want := []string{"q", "cm", "Do", "Q", "BT", "Tf", "Td", "Tj", "ET"}
	if len(ops) != len(want) {
		t.Fatalf("got %d ops, want %d", len(ops), len(want))
	}
	for i, w := range want {
		if ops[i].Operator != w {
			t.Errorf("op %d = %q, want %q", i, ops[i].Operator, w)
		}
	}
	if name, ok := ops[2].Operands[0].(semantic.NameOperand); !ok || name != "Im0" {
		t.Errorf("Do operand = %#v", ops[2].Operands)
	}
	if s, ok := ops[7].Operands[0].(semantic.StringOperand); !ok || string(s) != "Hi" {
		t.Errorf("Tj operand = %#v", ops[7].Operands)
	}
}

func TestTokenizeTJArray(t *testing.T) {
	ops, err := contentstream.Tokenize([]byte("[(A) -120 (B)] TJ"))
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if len(ops) != 1 || ops[0].Operator != "TJ" {
		t.Fatalf("ops = %#v", ops)
	}
	arr, ok := ops[0].Operands[0].(semantic.ArrayOperand)
	if !ok || len(arr) != 3 {
		t.Fatalf("array = %#v", ops[0].Operands[0])
	}
	if n, ok := arr[1].(semantic.NumberOperand); !ok || n != -120 {
		t.Errorf("kern = %#v", arr[1])
	}
}

func TestTokenizeInlineImage(t *testing.T) {
	src := []byte("BI /W 2 /H 2 /BPC 8 /CS /G ID \x00\x01\x02\x03 EI q Q")
	ops, err := contentstream.Tokenize(src)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if len(ops) != 3 || ops[0].Operator != "BI" {
		t.Fatalf("ops = %#v", ops)
	}
	img, ok := ops[0].Operands[0].(semantic.InlineImageOperand)
	if !ok {
		t.Fatalf("operand = %#v", ops[0].Operands[0])
	}
	if !bytes.Equal(img.Data, []byte{0, 1, 2, 3}) {
		t.Errorf("data = %x", img.Data)
	}
	if w, ok := img.Dict["W"].(semantic.NumberOperand); !ok || w != 2 {
		t.Errorf("W = %#v", img.Dict["W"])
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	src := []byte("q 0 0 0 rg 10 20 100 50 re f Q BT /F1 14 Tf (a\\(b\\)c) Tj ET\n")
	ops, err := contentstream.Tokenize(src)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	out := contentstream.Serialize(ops)
	again, err := contentstream.Tokenize(out)
	if err != nil {
		t.Fatalf("Tokenize serialized: %v", err)
	}
	if len(again) != len(ops) {
		t.Fatalf("op count changed: %d -> %d", len(ops), len(again))
	}
	for i := range ops {
		if again[i].Operator != ops[i].Operator {
			t.Errorf("op %d: %q -> %q", i, ops[i].Operator, again[i].Operator)
		}
	}
	if s, ok := again[7].Operands[0].(semantic.StringOperand); !ok || string(s) != "a(b)c" {
		t.Errorf("string survived as %#v", again[8].Operands)
	}
}

func TestSerializeDeterministic(t *testing.T) {
	ops := []semantic.Operation{{
		Operator: "gs",
		Operands: []semantic.Operand{semantic.DictOperand{
			"B": semantic.NumberOperand(2),
			"A": semantic.NumberOperand(1),
			"C": semantic.BoolOperand(true),
		}},
	}}
	first := contentstream.Serialize(ops)
	for i := 0; i < 10; i++ {
		if !bytes.Equal(first, contentstream.Serialize(ops)) {
			t.Fatal("serialization not deterministic")
		}
	}
}

func TestFormatNumber(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{42, "42"},
		{-3, "-3"},
		{1.5, "1.5"},
		{0.25, "0.25"},
	}
	for _, c := range cases {
		if got := contentstream.FormatNumber(c.in); got != c.want {
			t.Errorf("FormatNumber(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}
