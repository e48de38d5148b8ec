package contentstream

import (
	"errors"
	"io"

	"github.com/wudi/pdfband/ir/semantic"
	"github.com/wudi/pdfband/scanner"
)

// maxOperands caps the operand stack; longer runs are discarded as garbage.
const maxOperands = 4096

// Parse splits content stream bytes into operations. Malformed fragments are skipped
// rather than reported, matching how viewers render damaged content.
func Parse(data []byte) ([]semantic.Operation, error) {
	s := scanner.New(data, scanner.Config{ContentStream: true})
	p := &opParser{s: s}
	var ops []semantic.Operation
	var stack []semantic.Operand
	for {
		tok, err := p.next()
		if errors.Is(err, io.EOF) {
			return ops, nil
		}
		if err != nil {
			return ops, err
		}
		if tok.Type == scanner.TokenKeyword {
			switch tok.Str {
			case "]", ">>", ">", ")", "{", "}":
				continue
			case "BI":
				img, err := p.inlineImage()
				if err != nil {
					return ops, err
				}
				ops = append(ops, semantic.Operation{Operator: "BI", Operands: []semantic.Operand{img}})
				stack = stack[:0]
				continue
			}
			ops = append(ops, semantic.Operation{Operator: tok.Str, Operands: stack})
			stack = nil
			continue
		}
		operand, err := p.operand(tok, 0)
		if err != nil {
			return ops, err
		}
		if len(stack) >= maxOperands {
			stack = stack[:0]
		}
		stack = append(stack, operand)
	}
}

type opParser struct {
	s   scanner.Scanner
	buf []scanner.Token
}

func (p *opParser) next() (scanner.Token, error) {
	if n := len(p.buf); n > 0 {
		t := p.buf[n-1]
		p.buf = p.buf[:n-1]
		return t, nil
	}
	return p.s.Next()
}

const maxNesting = 64

func (p *opParser) operand(tok scanner.Token, depth int) (semantic.Operand, error) {
	if depth > maxNesting {
		return nil, errors.New("operand nesting too deep")
	}
	switch tok.Type {
	case scanner.TokenNumber:
		return semantic.NumberOperand{Value: tok.Number()}, nil
	case scanner.TokenName:
		return semantic.NameOperand{Value: tok.Str}, nil
	case scanner.TokenString:
		return semantic.StringOperand{Value: tok.Bytes, Hex: tok.Hex}, nil
	case scanner.TokenBoolean:
		return semantic.BoolOperand{Value: tok.Bool}, nil
	case scanner.TokenNull:
		return semantic.NullOperand{}, nil
	case scanner.TokenArray:
		var arr semantic.ArrayOperand
		for {
			t, err := p.next()
			if errors.Is(err, io.EOF) {
				return arr, nil
			}
			if err != nil {
				return nil, err
			}
			if t.Type == scanner.TokenKeyword {
				if t.Str == "]" {
					return arr, nil
				}
				// An operator inside an array means the array was never closed.
				p.buf = append(p.buf, t)
				return arr, nil
			}
			v, err := p.operand(t, depth+1)
			if err != nil {
				return nil, err
			}
			arr.Values = append(arr.Values, v)
		}
	case scanner.TokenDict:
		return p.dict(depth)
	}
	return semantic.NullOperand{}, nil
}

func (p *opParser) dict(depth int) (semantic.DictOperand, error) {
	d := semantic.DictOperand{Values: make(map[string]semantic.Operand)}
	for {
		t, err := p.next()
		if errors.Is(err, io.EOF) {
			return d, nil
		}
		if err != nil {
			return d, err
		}
		if t.Type == scanner.TokenKeyword && t.Str == ">>" {
			return d, nil
		}
		if t.Type != scanner.TokenName {
			if t.Type == scanner.TokenKeyword {
				p.buf = append(p.buf, t)
				return d, nil
			}
			continue
		}
		vt, err := p.next()
		if err != nil {
			return d, nil
		}
		v, err := p.operand(vt, depth+1)
		if err != nil {
			return d, err
		}
		d.Values[t.Str] = v
	}
}

// inlineImage reads the key/value pairs after BI up to ID, then the payload up to EI.
func (p *opParser) inlineImage() (semantic.InlineImageOperand, error) {
	img := semantic.InlineImageOperand{Image: semantic.DictOperand{Values: make(map[string]semantic.Operand)}}
	for {
		t, err := p.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return img, nil
			}
			return img, err
		}
		switch {
		case t.Type == scanner.TokenInlineImage:
			img.Data = t.Bytes
			return img, nil
		case t.Type == scanner.TokenName:
			vt, err := p.next()
			if err != nil {
				return img, nil
			}
			if vt.Type == scanner.TokenInlineImage {
				img.Data = vt.Bytes
				return img, nil
			}
			v, err := p.operand(vt, 1)
			if err != nil {
				return img, err
			}
			img.Image.Values[t.Str] = v
		}
	}
}
