package decoder

import (
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// ZXing decodes symbols with gozxing. Readers are tried in the order the
// formats were given. Not safe for concurrent use.
type ZXing struct {
	formats []Format
	readers []gozxing.Reader
	hints   map[gozxing.DecodeHintType]interface{}
}

// NewZXing creates a decoder for formats, QR only when none are given.
// Unknown formats are ignored.
func NewZXing(formats ...Format) *ZXing {
	if len(formats) == 0 {
		formats = []Format{FormatQRCode}
	}
	z := &ZXing{
		hints: map[gozxing.DecodeHintType]interface{}{},
	}
	var possible []gozxing.BarcodeFormat
	for _, f := range formats {
		r, bf, ok := readerFor(f)
		if !ok {
			continue
		}
		z.formats = append(z.formats, f)
		z.readers = append(z.readers, r)
		possible = append(possible, bf)
	}
	z.hints[gozxing.DecodeHintType_POSSIBLE_FORMATS] = possible
	return z
}

// Formats returns the formats the decoder recognises.
func (z *ZXing) Formats() []Format {
	return append([]Format(nil), z.formats...)
}

func (z *ZXing) DecodeSymbol(img image.Image) (Symbol, bool) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return Symbol{}, false
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return Symbol{}, false
	}
	for i, r := range z.readers {
		res, err := r.Decode(bmp, z.hints)
		r.Reset()
		if err != nil {
			continue
		}
		format := formatOf(res.GetBarcodeFormat())
		if format == "" {
			format = z.formats[i]
		}
		return Symbol{Text: res.GetText(), Format: format}, true
	}
	return Symbol{}, false
}

func readerFor(f Format) (gozxing.Reader, gozxing.BarcodeFormat, bool) {
	switch f {
	case FormatQRCode:
		return qrcode.NewQRCodeReader(), gozxing.BarcodeFormat_QR_CODE, true
	case FormatEAN13:
		return oned.NewEAN13Reader(), gozxing.BarcodeFormat_EAN_13, true
	case FormatCode128:
		return oned.NewCode128Reader(), gozxing.BarcodeFormat_CODE_128, true
	case FormatCode39:
		return oned.NewCode39Reader(), gozxing.BarcodeFormat_CODE_39, true
	}
	return nil, 0, false
}

func formatOf(bf gozxing.BarcodeFormat) Format {
	switch bf {
	case gozxing.BarcodeFormat_QR_CODE:
		return FormatQRCode
	case gozxing.BarcodeFormat_EAN_13:
		return FormatEAN13
	case gozxing.BarcodeFormat_CODE_128:
		return FormatCode128
	case gozxing.BarcodeFormat_CODE_39:
		return FormatCode39
	}
	return ""
}

// KnownFormat reports whether f can be decoded.
func KnownFormat(f Format) bool {
	_, _, ok := readerFor(f)
	return ok
}
