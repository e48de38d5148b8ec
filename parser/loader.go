package parser

import (
	"errors"

	"github.com/wudi/pdfband/ir/raw"
	"github.com/wudi/pdfband/recovery"
	"github.com/wudi/pdfband/scanner"
)

type streamLengthSetter interface{ SetNextStreamLength(int64) }

// tokenReader adds unread support on top of a scanner.
type tokenReader struct {
	s            scanner.Scanner
	buf          []scanner.Token
	lengthSetter streamLengthSetter
}

func newTokenReader(src scanner.Scanner) *tokenReader {
	tr := &tokenReader{s: src}
	if setter, ok := src.(streamLengthSetter); ok {
		tr.lengthSetter = setter
	}
	return tr
}

func (r *tokenReader) next() (scanner.Token, error) {
	if l := len(r.buf); l > 0 {
		t := r.buf[l-1]
		r.buf = r.buf[:l-1]
		return t, nil
	}
	return r.s.Next()
}

func (r *tokenReader) unread(tok scanner.Token) { r.buf = append(r.buf, tok) }

// seek drops buffered tokens and moves the scanner.
func (r *tokenReader) seek(pos int64) error {
	r.buf = r.buf[:0]
	return r.s.SeekTo(pos)
}

func (r *tokenReader) setStreamLengthHint(n int64) {
	if r.lengthSetter != nil {
		r.lengthSetter.SetNextStreamLength(n)
	}
}

var errUnexpectedEndobj = errors.New("unexpected endobj")

// ParseObject reads one direct object from the scanner. It is shared with the content stream parser.
func ParseObject(s scanner.Scanner) (raw.Object, error) {
	return parseObject(newTokenReader(s), nil, 0, 0)
}

func parseObject(tr *tokenReader, rec recovery.Strategy, objNum, gen int) (raw.Object, error) {
	tok, err := tr.next()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case scanner.TokenName:
		return raw.NameObj{Val: tok.Str}, nil
	case scanner.TokenNumber:
		if tok.IsInt {
			return raw.NumberObj{I: tok.Int, IsInt: true}, nil
		}
		return raw.NumberObj{F: tok.Float, IsInt: false}, nil
	case scanner.TokenBoolean:
		return raw.BoolObj{V: tok.Bool}, nil
	case scanner.TokenNull:
		return raw.NullObj{}, nil
	case scanner.TokenString:
		if tok.Hex {
			return raw.HexStringObj{Bytes: tok.Bytes}, nil
		}
		return raw.StringObj{Bytes: tok.Bytes}, nil
	case scanner.TokenArray:
		return parseArray(tr, rec, objNum, gen)
	case scanner.TokenDict:
		return parseDict(tr, rec, objNum, gen)
	case scanner.TokenRef:
		return raw.RefObj{R: raw.ObjectRef{Num: tok.Ref.Num, Gen: tok.Ref.Gen}}, nil
	case scanner.TokenKeyword:
		if tok.Str == "endobj" {
			tr.unread(tok)
			return nil, errUnexpectedEndobj
		}
	}
	return nil, errors.New("unexpected token " + tok.Str)
}

func parseArray(tr *tokenReader, rec recovery.Strategy, objNum, gen int) (raw.Object, error) {
	arr := &raw.ArrayObj{}
	for {
		tok, err := tr.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "]" {
			break
		}
		tr.unread(tok)
		item, err := parseObject(tr, rec, objNum, gen)
		if err != nil {
			if errors.Is(err, errUnexpectedEndobj) && tolerate(rec, errors.New("unterminated array"), objNum, gen) {
				break
			}
			return nil, err
		}
		arr.Append(item)
	}
	return arr, nil
}

func parseDict(tr *tokenReader, rec recovery.Strategy, objNum, gen int) (raw.Object, error) {
	d := raw.Dict()
	for {
		tok, err := tr.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == ">>" {
			break
		}
		if tok.Type != scanner.TokenName {
			// Recovery logic for missing ">>"
			if tok.Type == scanner.TokenStream || (tok.Type == scanner.TokenKeyword && tok.Str == "endobj") {
				if tolerate(rec, errors.New("dictionary not closed (missing >>?)"), objNum, gen) {
					tr.unread(tok)
					break
				}
			}
			return nil, errors.New("expected name in dict")
		}
		key := tok.Str
		val, err := parseObject(tr, rec, objNum, gen)
		if err != nil {
			return nil, err
		}
		// A null value is equivalent to an absent entry.
		if _, isNull := val.(raw.NullObj); isNull {
			continue
		}
		d.Set(raw.NameObj{Val: key}, val)
	}
	return d, nil
}

func tolerate(rec recovery.Strategy, err error, objNum, gen int) bool {
	if rec == nil {
		return false
	}
	action := rec.OnError(nil, err, recovery.Location{ObjectNum: objNum, ObjectGen: gen, Component: "Parser"})
	return action == recovery.ActionWarn || action == recovery.ActionFix
}
