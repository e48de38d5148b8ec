package filters

import (
	"errors"

	"github.com/wudi/pdfband/ir/raw"
)

// applyPredictor reverses the TIFF (2) and PNG (10-15) predictors of ISO 32000-1 Table 8.
func applyPredictor(data []byte, params *raw.DictObj) ([]byte, error) {
	predictor, _ := intParam(params, "Predictor")
	if predictor <= 1 {
		return data, nil
	}
	colors := paramOr(params, "Colors", 1)
	bpc := paramOr(params, "BitsPerComponent", 8)
	columns := paramOr(params, "Columns", 1)
	if colors < 1 || bpc < 1 || columns < 1 {
		return nil, errors.New("invalid predictor parameters")
	}
	rowLen := (colors*bpc*columns + 7) / 8
	bpp := (colors*bpc + 7) / 8

	if predictor == 2 {
		if bpc != 8 {
			return data, nil
		}
		out := append([]byte(nil), data...)
		for row := 0; row+rowLen <= len(out); row += rowLen {
			for i := bpp; i < rowLen; i++ {
				out[row+i] += out[row+i-bpp]
			}
		}
		return out, nil
	}

	out := make([]byte, 0, len(data))
	prior := make([]byte, rowLen)
	cur := make([]byte, rowLen)
	for pos := 0; pos < len(data); pos += rowLen + 1 {
		filter := data[pos]
		end := pos + 1 + rowLen
		if end > len(data) {
			// Short final row: decode what is there.
			end = len(data)
		}
		n := copy(cur, data[pos+1:end])
		for i := n; i < rowLen; i++ {
			cur[i] = 0
		}
		for i := 0; i < rowLen; i++ {
			var left, up, upLeft byte
			if i >= bpp {
				left = cur[i-bpp]
				upLeft = prior[i-bpp]
			}
			up = prior[i]
			switch filter {
			case 0:
			case 1:
				cur[i] += left
			case 2:
				cur[i] += up
			case 3:
				cur[i] += byte((int(left) + int(up)) / 2)
			case 4:
				cur[i] += paeth(left, up, upLeft)
			default:
				return nil, errors.New("invalid PNG filter type")
			}
		}
		out = append(out, cur[:n]...)
		prior, cur = cur, prior
	}
	return out, nil
}

func paramOr(params *raw.DictObj, key string, def int) int {
	if v, ok := intParam(params, key); ok {
		return v
	}
	return def
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
