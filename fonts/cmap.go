package fonts

import (
	"errors"
	"io"

	"golang.org/x/text/encoding/unicode"

	"github.com/wudi/pdfband/scanner"
)

// maxRangeSize bounds bfrange/cidrange expansion for hostile CMaps.
const maxRangeSize = 1 << 16

// CMap maps character codes to CIDs (encoding CMaps) or to Unicode text (ToUnicode CMaps).
type CMap struct {
	codespaces []codespace
	unicode    map[uint32]string
	cids       map[uint32]uint32
	cidRanges  []cidRange
}

type codespace struct {
	lo, hi uint32
	n      int
}

type cidRange struct {
	lo, hi uint32
	cid    uint32
}

// cmapItem is a parsed operand: a string token or an array of string tokens.
type cmapItem struct {
	tok   scanner.Token
	array []scanner.Token
}

// ParseCMap reads the codespace, bfchar/bfrange and cidchar/cidrange sections of a CMap program.
// PostScript it does not understand is skipped.
func ParseCMap(data []byte) *CMap {
	cm := &CMap{unicode: make(map[uint32]string), cids: make(map[uint32]uint32)}
	s := scanner.New(data, scanner.Config{ContentStream: true})
	var stack []cmapItem
	var array []scanner.Token
	inArray := false
	for {
		tok, err := s.Next()
		if errors.Is(err, io.EOF) || err != nil {
			return cm
		}
		switch {
		case tok.Type == scanner.TokenArray:
			inArray, array = true, nil
		case inArray && tok.Type == scanner.TokenKeyword && tok.Str == "]":
			inArray = false
			stack = append(stack, cmapItem{array: array})
		case inArray:
			array = append(array, tok)
		case tok.Type == scanner.TokenKeyword:
			cm.apply(tok.Str, stack)
			stack = stack[:0]
		default:
			stack = append(stack, cmapItem{tok: tok})
		}
	}
}

func (cm *CMap) apply(op string, items []cmapItem) {
	switch op {
	case "endcodespacerange":
		for i := 0; i+1 < len(items); i += 2 {
			lo, hi := items[i].tok.Bytes, items[i+1].tok.Bytes
			if len(lo) == 0 || len(lo) > 4 {
				continue
			}
			cm.codespaces = append(cm.codespaces, codespace{lo: codeOf(lo), hi: codeOf(hi), n: len(lo)})
		}
	case "endbfchar":
		for i := 0; i+1 < len(items); i += 2 {
			src := items[i].tok.Bytes
			dst := items[i+1].tok
			if dst.Type == scanner.TokenName {
				if r, ok := GlyphRune(dst.Str); ok {
					cm.unicode[codeOf(src)] = string(r)
				}
				continue
			}
			cm.unicode[codeOf(src)] = utf16Text(dst.Bytes)
		}
	case "endbfrange":
		for i := 0; i+2 < len(items); i += 3 {
			lo, hi := codeOf(items[i].tok.Bytes), codeOf(items[i+1].tok.Bytes)
			if hi < lo || hi-lo >= maxRangeSize {
				continue
			}
			dst := items[i+2]
			if dst.array != nil {
				for j, t := range dst.array {
					if lo+uint32(j) > hi {
						break
					}
					cm.unicode[lo+uint32(j)] = utf16Text(t.Bytes)
				}
				continue
			}
			base := append([]byte(nil), dst.tok.Bytes...)
			for code := lo; code <= hi; code++ {
				cm.unicode[code] = utf16Text(incrementLast(base, code-lo))
			}
		}
	case "endcidchar":
		for i := 0; i+1 < len(items); i += 2 {
			if items[i+1].tok.Type == scanner.TokenNumber {
				cm.cids[codeOf(items[i].tok.Bytes)] = uint32(items[i+1].tok.Int)
			}
		}
	case "endcidrange":
		for i := 0; i+2 < len(items); i += 3 {
			lo, hi := codeOf(items[i].tok.Bytes), codeOf(items[i+1].tok.Bytes)
			if hi < lo || items[i+2].tok.Type != scanner.TokenNumber {
				continue
			}
			cm.cidRanges = append(cm.cidRanges, cidRange{lo: lo, hi: hi, cid: uint32(items[i+2].tok.Int)})
		}
	}
}

func codeOf(b []byte) uint32 {
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v
}

// incrementLast adds delta to the final UTF-16 code unit of a big-endian destination string.
func incrementLast(base []byte, delta uint32) []byte {
	out := append([]byte(nil), base...)
	if len(out) < 2 {
		if len(out) == 1 {
			out[0] += byte(delta)
		}
		return out
	}
	n := len(out)
	v := uint32(out[n-2])<<8 | uint32(out[n-1])
	v += delta
	out[n-2], out[n-1] = byte(v>>8), byte(v)
	return out
}

var utf16be = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

func utf16Text(b []byte) string {
	if len(b) == 1 {
		return string(rune(b[0]))
	}
	out, err := utf16be.NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return string(out)
}

// Next splits the first character code off b using the codespace ranges.
// Without codespaces, codes are def bytes wide.
func (cm *CMap) Next(b []byte, def int) (code uint32, n int) {
	if cm != nil && len(cm.codespaces) > 0 {
		for n := 1; n <= 4 && n <= len(b); n++ {
			c := codeOf(b[:n])
			for _, cs := range cm.codespaces {
				if cs.n == n && c >= cs.lo && c <= cs.hi {
					return c, n
				}
			}
		}
		// No range matched: consume the shortest codespace width.
		shortest := 4
		for _, cs := range cm.codespaces {
			if cs.n < shortest {
				shortest = cs.n
			}
		}
		def = shortest
	}
	if def > len(b) {
		def = len(b)
	}
	return codeOf(b[:def]), def
}

// Unicode returns the text mapped to code by a ToUnicode CMap.
func (cm *CMap) Unicode(code uint32) (string, bool) {
	if cm == nil {
		return "", false
	}
	s, ok := cm.unicode[code]
	return s, ok
}

// CID maps a character code to a CID. Codes outside every mapping map to themselves.
func (cm *CMap) CID(code uint32) uint32 {
	if cm == nil {
		return code
	}
	if cid, ok := cm.cids[code]; ok {
		return cid
	}
	for _, r := range cm.cidRanges {
		if code >= r.lo && code <= r.hi {
			return r.cid + code - r.lo
		}
	}
	return code
}
