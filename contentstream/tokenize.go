package contentstream

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/fileskadis/fileskadis/ir/semantic"
	"github.com/fileskadis/fileskadis/scanner"
)

// Parse fills cs.Operations from cs.Raw if not already populated.
func Parse(cs *semantic.ContentStream) error {
	if cs.Operations != nil {
		return nil
	}
	ops, err := Tokenize(cs.Raw)
	if err != nil {
		return err
	}
	cs.Operations = ops
	return nil
}

// Tokenize splits decoded content bytes into operations. Inline images are
// captured verbatim as a single BI operation.
func Tokenize(data []byte) ([]semantic.Operation, error) {
	s := scanner.New(data)
	var ops []semantic.Operation
	var operands []semantic.Operand
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, err
		}
		switch tok.Type {
		case scanner.TokenEOF:
			// Trailing operands without an operator are dropped; damaged
			// tails are common in truncated streams.
			return ops, nil
		case scanner.TokenKeyword:
			switch tok.Keyword {
			case "true":
				operands = append(operands, semantic.BoolOperand(true))
			case "false":
				operands = append(operands, semantic.BoolOperand(false))
			case "null":
				operands = append(operands, semantic.NullOperand{})
			case "BI":
				img, err := scanInlineImage(s)
				if err != nil {
					return nil, err
				}
				ops = append(ops, semantic.Operation{
					Operator: "BI",
					Operands: []semantic.Operand{img},
				})
				operands = nil
			default:
				ops = append(ops, semantic.Operation{Operator: tok.Keyword, Operands: operands})
				operands = nil
			}
		default:
			op, err := parseOperand(s, tok)
			if err != nil {
				return nil, err
			}
			operands = append(operands, op)
		}
	}
}

func parseOperand(s *scanner.Scanner, tok scanner.Token) (semantic.Operand, error) {
	switch tok.Type {
	case scanner.TokenNumber:
		return semantic.NumberOperand(tok.Num), nil
	case scanner.TokenName:
		return semantic.NameOperand(tok.Bytes), nil
	case scanner.TokenString:
		return semantic.StringOperand(tok.Bytes), nil
	case scanner.TokenArrayOpen:
		var arr semantic.ArrayOperand
		for {
			next, err := s.Next()
			if err != nil {
				return nil, err
			}
			if next.Type == scanner.TokenArrayClose {
				return arr, nil
			}
			if next.Type == scanner.TokenEOF {
				return nil, fmt.Errorf("contentstream: unterminated array at offset %d", tok.Offset)
			}
			item, err := parseOperand(s, next)
			if err != nil {
				return nil, err
			}
			arr = append(arr, item)
		}
	case scanner.TokenDictOpen:
		return parseDictOperand(s)
	case scanner.TokenKeyword:
		switch tok.Keyword {
		case "true":
			return semantic.BoolOperand(true), nil
		case "false":
			return semantic.BoolOperand(false), nil
		case "null":
			return semantic.NullOperand{}, nil
		}
	}
	return nil, fmt.Errorf("contentstream: unexpected token %v at offset %d", tok.Type, tok.Offset)
}

func parseDictOperand(s *scanner.Scanner) (semantic.DictOperand, error) {
	dict := semantic.DictOperand{}
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenDictClose {
			return dict, nil
		}
		if tok.Type != scanner.TokenName {
			return nil, fmt.Errorf("contentstream: dict key must be a name at offset %d", tok.Offset)
		}
		valTok, err := s.Next()
		if err != nil {
			return nil, err
		}
		val, err := parseOperand(s, valTok)
		if err != nil {
			return nil, err
		}
		dict[string(tok.Bytes)] = val
	}
}

// scanInlineImage reads key/value pairs up to ID, then raw samples up to a
// whitespace-delimited EI.
func scanInlineImage(s *scanner.Scanner) (semantic.InlineImageOperand, error) {
	img := semantic.InlineImageOperand{Dict: semantic.DictOperand{}}
	for {
		tok, err := s.Next()
		if err != nil {
			return img, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Keyword == "ID" {
			break
		}
		if tok.Type != scanner.TokenName {
			return img, fmt.Errorf("contentstream: inline image key must be a name at offset %d", tok.Offset)
		}
		valTok, err := s.Next()
		if err != nil {
			return img, err
		}
		val, err := parseOperand(s, valTok)
		if err != nil {
			return img, err
		}
		img.Dict[string(tok.Bytes)] = val
	}
	// One whitespace byte separates ID from the samples.
	if _, err := s.ReadN(1); err != nil {
		return img, err
	}
	start := s.Pos()
	for {
		at := s.Find([]byte("EI"))
		if at < 0 {
			return img, fmt.Errorf("contentstream: unterminated inline image")
		}
		after := at + 2
		okBefore := at == start || isSpaceByte(byteAt(s, at-1))
		okAfter := after >= s.Len() || isSpaceByte(byteAt(s, after)) || byteAt(s, after) == 'Q' || byteAt(s, after) == '/'
		if okBefore && okAfter {
			s.SeekTo(start)
			data, err := s.ReadN(int(at - start))
			if err != nil {
				return img, err
			}
			img.Data = bytes.TrimRight(data, " \t\r\n")
			s.SeekTo(after)
			return img, nil
		}
		s.SeekTo(at + 2)
	}
}

func byteAt(s *scanner.Scanner, off int64) byte {
	s.SeekTo(off)
	b, err := s.ReadN(1)
	if err != nil {
		return 0
	}
	return b[0]
}

func isSpaceByte(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

// Serialize writes operations back to content-stream syntax. Output is
// deterministic: dict keys sort, numbers use the shortest exact decimal
// form.
func Serialize(ops []semantic.Operation) []byte {
	var buf bytes.Buffer
	for _, op := range ops {
		if op.Operator == "BI" && len(op.Operands) == 1 {
			if img, ok := op.Operands[0].(semantic.InlineImageOperand); ok {
				writeInlineImage(&buf, img)
				continue
			}
		}
		for _, operand := range op.Operands {
			writeOperand(&buf, operand)
			buf.WriteByte(' ')
		}
		buf.WriteString(op.Operator)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func writeInlineImage(buf *bytes.Buffer, img semantic.InlineImageOperand) {
	buf.WriteString("BI")
	keys := make([]string, 0, len(img.Dict))
	for k := range img.Dict {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf.WriteString(" /")
		buf.WriteString(k)
		buf.WriteByte(' ')
		writeOperand(buf, img.Dict[k])
	}
	buf.WriteString(" ID ")
	buf.Write(img.Data)
	buf.WriteString(" EI\n")
}

func writeOperand(buf *bytes.Buffer, op semantic.Operand) {
	switch v := op.(type) {
	case semantic.NumberOperand:
		buf.WriteString(FormatNumber(float64(v)))
	case semantic.NameOperand:
		buf.WriteByte('/')
		writeNameBytes(buf, string(v))
	case semantic.StringOperand:
		writeStringBytes(buf, []byte(v))
	case semantic.BoolOperand:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case semantic.NullOperand:
		buf.WriteString("null")
	case semantic.ArrayOperand:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(' ')
			}
			writeOperand(buf, item)
		}
		buf.WriteByte(']')
	case semantic.DictOperand:
		buf.WriteString("<<")
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			buf.WriteString(" /")
			writeNameBytes(buf, k)
			buf.WriteByte(' ')
			writeOperand(buf, v[k])
		}
		buf.WriteString(" >>")
	case semantic.InlineImageOperand:
		writeInlineImage(buf, v)
	}
}

// FormatNumber renders a number the way content streams expect: integers
// without a point, reals in shortest exact form.
func FormatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeNameBytes(buf *bytes.Buffer, name string) {
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c <= ' ' || c > '~' || c == '#' || c == '/' || c == '(' || c == ')' ||
			c == '<' || c == '>' || c == '[' || c == ']' || c == '{' || c == '}' || c == '%' {
			fmt.Fprintf(buf, "#%02X", c)
		} else {
			buf.WriteByte(c)
		}
	}
}

func writeStringBytes(buf *bytes.Buffer, s []byte) {
	buf.WriteByte('(')
	for _, c := range s {
		switch c {
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			buf.WriteByte(c)
		}
	}
	buf.WriteByte(')')
}
