package fonts

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// baseEncoding returns the code-to-rune table for a named simple font encoding.
// Unknown names fall back to StandardEncoding, as for a Type1 font without /Encoding.
func baseEncoding(name string) [256]rune {
	switch name {
	case "WinAnsiEncoding":
		return charmapTable(charmap.Windows1252)
	case "MacRomanEncoding":
		return charmapTable(charmap.Macintosh)
	case "PDFDocEncoding":
		return charmapTable(charmap.ISO8859_1)
	case "MacExpertEncoding", "StandardEncoding":
		return standardEncoding
	}
	return standardEncoding
}

func charmapTable(cm *charmap.Charmap) [256]rune {
	var t [256]rune
	for i := 0; i < 256; i++ {
		r := cm.DecodeByte(byte(i))
		if r == utf8.RuneError {
			r = 0
		}
		t[i] = r
	}
	return t
}

// GlyphRune maps an Adobe glyph name to its Unicode value.
// Names of the form uniXXXX, uXXXX[XX] and single letters are decoded directly.
func GlyphRune(name string) (rune, bool) {
	if r, ok := glyphNames[name]; ok {
		return r, true
	}
	if i := strings.IndexByte(name, '.'); i > 0 {
		// Suffixed variants such as "a.sc" or "one.oldstyle".
		return GlyphRune(name[:i])
	}
	if len(name) == 1 {
		c := name[0]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			return rune(c), true
		}
	}
	if strings.HasPrefix(name, "uni") && len(name) >= 7 {
		if v, err := strconv.ParseUint(name[3:7], 16, 32); err == nil {
			return rune(v), true
		}
	}
	if strings.HasPrefix(name, "u") && len(name) >= 5 && len(name) <= 7 {
		if v, err := strconv.ParseUint(name[1:], 16, 32); err == nil && v <= 0x10FFFF {
			return rune(v), true
		}
	}
	return 0, false
}

var standardEncoding = [256]rune{
	0x20: ' ', '!', '"', '#', '$', '%', '&', 0x2019, '(', ')', '*', '+', ',', '-', '.', '/',
	'0', '1', '2', '3', '4', '5', '6', '7', '8', '9', ':', ';', '<', '=', '>', '?',
	'@', 'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'I', 'J', 'K', 'L', 'M', 'N', 'O',
	'P', 'Q', 'R', 'S', 'T', 'U', 'V', 'W', 'X', 'Y', 'Z', '[', '\\', ']', '^', '_',
	0x2018, 'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'i', 'j', 'k', 'l', 'm', 'n', 'o',
	'p', 'q', 'r', 's', 't', 'u', 'v', 'w', 'x', 'y', 'z', '{', '|', '}', '~',
	0xA1: 0x00A1, 0x00A2, 0x00A3, 0x2044, 0x00A5, 0x0192, 0x00A7,
	0x00A4, 0x0027, 0x201C, 0x00AB, 0x2039, 0x203A, 0xFB01, 0xFB02,
	0xB1: 0x2013, 0x2020, 0x2021, 0x00B7, 0xB6: 0x00B6, 0x2022,
	0x201A, 0x201E, 0x201D, 0x00BB, 0x2026, 0x2030, 0xBF: 0x00BF,
	0xC1: 0x0060, 0x00B4, 0x02C6, 0x02DC, 0x00AF, 0x02D8, 0x02D9,
	0x00A8, 0xCA: 0x02DA, 0x00B8, 0xCD: 0x02DD, 0x02DB, 0x02C7,
	0x2014,
	0xE1: 0x00C6, 0xE3: 0x00AA,
	0xE8: 0x0141, 0x00D8, 0x0152, 0x00BA,
	0xF1: 0x00E6, 0xF5: 0x0131,
	0xF8: 0x0142, 0x00F8, 0x0153, 0x00DF,
}

// glyphNames covers the Adobe Glyph List entries found in Latin text fonts.
var glyphNames = map[string]rune{
	"space": ' ', "exclam": '!', "quotedbl": '"', "numbersign": '#', "dollar": '$',
	"percent": '%', "ampersand": '&', "quotesingle": '\'', "quoteright": 0x2019,
	"parenleft": '(', "parenright": ')', "asterisk": '*', "plus": '+', "comma": ',',
	"hyphen": '-', "period": '.', "slash": '/', "zero": '0', "one": '1', "two": '2',
	"three": '3', "four": '4', "five": '5', "six": '6', "seven": '7', "eight": '8',
	"nine": '9', "colon": ':', "semicolon": ';', "less": '<', "equal": '=',
	"greater": '>', "question": '?', "at": '@', "bracketleft": '[', "backslash": '\\',
	"bracketright": ']', "asciicircum": '^', "underscore": '_', "grave": '`',
	"quoteleft": 0x2018, "braceleft": '{', "bar": '|', "braceright": '}',
	"asciitilde": '~', "nbspace": 0xA0, "nonbreakingspace": 0xA0,
	"exclamdown": 0xA1, "cent": 0xA2, "sterling": 0xA3, "currency": 0xA4, "yen": 0xA5,
	"brokenbar": 0xA6, "section": 0xA7, "dieresis": 0xA8, "copyright": 0xA9,
	"ordfeminine": 0xAA, "guillemotleft": 0xAB, "logicalnot": 0xAC, "sfthyphen": 0xAD,
	"registered": 0xAE, "macron": 0xAF, "degree": 0xB0, "plusminus": 0xB1,
	"twosuperior": 0xB2, "threesuperior": 0xB3, "acute": 0xB4, "mu": 0xB5,
	"paragraph": 0xB6, "periodcentered": 0xB7, "cedilla": 0xB8, "onesuperior": 0xB9,
	"ordmasculine": 0xBA, "guillemotright": 0xBB, "onequarter": 0xBC, "onehalf": 0xBD,
	"threequarters": 0xBE, "questiondown": 0xBF,
	"Agrave": 0xC0, "Aacute": 0xC1, "Acircumflex": 0xC2, "Atilde": 0xC3, "Adieresis": 0xC4,
	"Aring": 0xC5, "AE": 0xC6, "Ccedilla": 0xC7, "Egrave": 0xC8, "Eacute": 0xC9,
	"Ecircumflex": 0xCA, "Edieresis": 0xCB, "Igrave": 0xCC, "Iacute": 0xCD,
	"Icircumflex": 0xCE, "Idieresis": 0xCF, "Eth": 0xD0, "Ntilde": 0xD1, "Ograve": 0xD2,
	"Oacute": 0xD3, "Ocircumflex": 0xD4, "Otilde": 0xD5, "Odieresis": 0xD6,
	"multiply": 0xD7, "Oslash": 0xD8, "Ugrave": 0xD9, "Uacute": 0xDA, "Ucircumflex": 0xDB,
	"Udieresis": 0xDC, "Yacute": 0xDD, "Thorn": 0xDE, "germandbls": 0xDF,
	"agrave": 0xE0, "aacute": 0xE1, "acircumflex": 0xE2, "atilde": 0xE3, "adieresis": 0xE4,
	"aring": 0xE5, "ae": 0xE6, "ccedilla": 0xE7, "egrave": 0xE8, "eacute": 0xE9,
	"ecircumflex": 0xEA, "edieresis": 0xEB, "igrave": 0xEC, "iacute": 0xED,
	"icircumflex": 0xEE, "idieresis": 0xEF, "eth": 0xF0, "ntilde": 0xF1, "ograve": 0xF2,
	"oacute": 0xF3, "ocircumflex": 0xF4, "otilde": 0xF5, "odieresis": 0xF6,
	"divide": 0xF7, "oslash": 0xF8, "ugrave": 0xF9, "uacute": 0xFA, "ucircumflex": 0xFB,
	"udieresis": 0xFC, "yacute": 0xFD, "thorn": 0xFE, "ydieresis": 0xFF,
	"OE": 0x152, "oe": 0x153, "Scaron": 0x160, "scaron": 0x161, "Ydieresis": 0x178,
	"Zcaron": 0x17D, "zcaron": 0x17E, "florin": 0x192, "dotlessi": 0x131,
	"Lslash": 0x141, "lslash": 0x142, "circumflex": 0x2C6, "caron": 0x2C7,
	"breve": 0x2D8, "dotaccent": 0x2D9, "ring": 0x2DA, "ogonek": 0x2DB, "tilde": 0x2DC,
	"hungarumlaut": 0x2DD, "endash": 0x2013, "emdash": 0x2014,
	"quotesinglbase": 0x201A, "quotedblleft": 0x201C, "quotedblright": 0x201D,
	"quotedblbase": 0x201E, "dagger": 0x2020, "daggerdbl": 0x2021, "bullet": 0x2022,
	"ellipsis": 0x2026, "perthousand": 0x2030, "guilsinglleft": 0x2039,
	"guilsinglright": 0x203A, "fraction": 0x2044, "Euro": 0x20AC, "trademark": 0x2122,
	"minus": 0x2212, "fi": 0xFB01, "fl": 0xFB02, "ff": 0xFB00, "ffi": 0xFB03, "ffl": 0xFB04,
	"arrowleft": 0x2190, "arrowup": 0x2191, "arrowright": 0x2192, "arrowdown": 0x2193,
	"lessequal": 0x2264, "greaterequal": 0x2265, "notequal": 0x2260, "infinity": 0x221E,
	"approxequal": 0x2248, "partialdiff": 0x2202, "summation": 0x2211, "product": 0x220F,
	"radical": 0x221A, "integral": 0x222B, "Delta": 0x2206, "Omega": 0x2126, "pi": 0x3C0,
	"lozenge": 0x25CA, "checkmark": 0x2713, "heart": 0x2665, "filledbox": 0x25A0,
	"circle": 0x25CB, "triagup": 0x25B2, "triagdn": 0x25BC,
}
