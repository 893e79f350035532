package scanner_test

import (
	"bytes"
	"testing"

	"github.com/fileskadis/fileskadis/scanner"
)

func mustNext(t *testing.T, s *scanner.Scanner) scanner.Token {
	t.Helper()
	tok, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	return tok
}

func TestNumbers(t *testing.T) {
	cases := []struct {
		in    string
		num   float64
		isInt bool
		i     int64
	}{
		{"0", 0, true, 0},
		{"42", 42, true, 42},
		{"-17", -17, true, -17},
		{"+5", 5, true, 5},
		{"3.14", 3.14, false, 0},
		{"-.5", -0.5, false, 0},
		{"4.", 4, false, 0},
	}
	for _, c := range cases {
		tok := mustNext(t, scanner.New([]byte(c.in)))
		if tok.Type != scanner.TokenNumber {
			t.Errorf("%q: type = %v", c.in, tok.Type)
			continue
		}
		if tok.Num != c.num || tok.IsInt != c.isInt || tok.Int != c.i {
			t.Errorf("%q: got (%v, %v, %v), want (%v, %v, %v)", c.in, tok.Num, tok.IsInt, tok.Int, c.num, c.isInt, c.i)
		}
	}
}

func TestMalformedNumber(t *testing.T) {
	if _, err := scanner.New([]byte("-")).Next(); err == nil {
		t.Fatal("expected error for bare sign")
	}
}

func TestNames(t *testing.T) {
	cases := []struct{ in, want string }{
		{"/Type", "Type"},
		{"/A#42", "AB"},
		{"/Name1/Name2", "Name1"},
		{"/", ""},
	}
	for _, c := range cases {
		tok := mustNext(t, scanner.New([]byte(c.in)))
		if tok.Type != scanner.TokenName || string(tok.Bytes) != c.want {
			t.Errorf("%q: got %v %q, want name %q", c.in, tok.Type, tok.Bytes, c.want)
		}
	}
}

func TestLiteralStrings(t *testing.T) {
	cases := []struct {
		in   string
		want []byte
	}{
		{"(hello)", []byte("hello")},
		{"(a(b)c)", []byte("a(b)c")},
		{`(tab\there)`, []byte("tab\there")},
		{`(\101\102)`, []byte("AB")},
		{`(\0533)`, []byte("+3")},
		{"(line\rbreak)", []byte("line\nbreak")},
		{"(cont\\\ninued)", []byte("continued")},
		{`(\q)`, []byte("q")},
	}
	for _, c := range cases {
		tok := mustNext(t, scanner.New([]byte(c.in)))
		if tok.Type != scanner.TokenString || !bytes.Equal(tok.Bytes, c.want) {
			t.Errorf("%q: got %v %q, want string %q", c.in, tok.Type, tok.Bytes, c.want)
		}
	}
}

func TestUnterminatedString(t *testing.T) {
	if _, err := scanner.New([]byte("(open")).Next(); err == nil {
		t.Fatal("expected error for unterminated string")
	}
}

func TestHexStrings(t *testing.T) {
	cases := []struct {
		in   string
		want []byte
	}{
		{"<414243>", []byte("ABC")},
		{"<41 42\n43>", []byte("ABC")},
		{"<414>", []byte{0x41, 0x40}},
		{"<>", nil},
	}
	for _, c := range cases {
		tok := mustNext(t, scanner.New([]byte(c.in)))
		if tok.Type != scanner.TokenString || !bytes.Equal(tok.Bytes, c.want) {
			t.Errorf("%q: got %v %x, want %x", c.in, tok.Type, tok.Bytes, c.want)
		}
	}
}

func TestStructureAndComments(t *testing.T) {
	s := scanner.New([]byte("<< /Len 5 >> % trailing\n[ 1 2 ] obj"))
	want := []scanner.TokenType{
		scanner.TokenDictOpen, scanner.TokenName, scanner.TokenNumber,
		scanner.TokenDictClose, scanner.TokenArrayOpen, scanner.TokenNumber,
		scanner.TokenNumber, scanner.TokenArrayClose, scanner.TokenKeyword,
		scanner.TokenEOF,
	}
	for i, w := range want {
		tok := mustNext(t, s)
		if tok.Type != w {
			t.Fatalf("token %d: got %v, want %v", i, tok.Type, w)
		}
	}
}

func TestPeekDoesNotConsume(t *testing.T) {
	s := scanner.New([]byte("7 8"))
	p, err := s.Peek()
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	n := mustNext(t, s)
	if p.Int != 7 || n.Int != 7 {
		t.Errorf("peek/next = %d/%d, want 7/7", p.Int, n.Int)
	}
	if tok := mustNext(t, s); tok.Int != 8 {
		t.Errorf("second token = %d, want 8", tok.Int)
	}
}

func TestReadNAndStreamEOL(t *testing.T) {
	s := scanner.New([]byte("stream\r\nPAYLOAD endstream"))
	tok := mustNext(t, s)
	if tok.Keyword != "stream" {
		t.Fatalf("keyword = %q", tok.Keyword)
	}
	s.SkipStreamEOL()
	data, err := s.ReadN(7)
	if err != nil {
		t.Fatalf("ReadN: %v", err)
	}
	if string(data) != "PAYLOAD" {
		t.Errorf("payload = %q", data)
	}
	if tok := mustNext(t, s); tok.Keyword != "endstream" {
		t.Errorf("trailing keyword = %q", tok.Keyword)
	}
}

func TestFindAndReadLine(t *testing.T) {
	s := scanner.New([]byte("first line\r\nsecond\nstartxref\n1234"))
	if line := s.ReadLine(); string(line) != "first line" {
		t.Errorf("line 1 = %q", line)
	}
	if off := s.Find([]byte("startxref")); off != 19 {
		t.Errorf("Find = %d, want 19", off)
	}
	s.SeekTo(19)
	if line := s.ReadLine(); string(line) != "startxref" {
		t.Errorf("startxref line = %q", line)
	}
	if tok := mustNext(t, s); tok.Int != 1234 {
		t.Errorf("offset token = %d", tok.Int)
	}
}
