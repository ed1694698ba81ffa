package decoder

import "image"

// Decoder decodes encoded frame bytes into an image.
type Decoder interface {
	Decode(data []byte) (*image.RGBA, error)
}

// Format names a barcode symbology.
type Format string

const (
	FormatQRCode  Format = "QR_CODE"
	FormatEAN13   Format = "EAN_13"
	FormatCode128 Format = "CODE_128"
	FormatCode39  Format = "CODE_39"
)

// Symbol is a decoded barcode.
type Symbol struct {
	Text   string `json:"text"`
	Format Format `json:"format"`
}

// SymbolDecoder finds a symbol in a still image. A false result is a miss,
// not an error.
type SymbolDecoder interface {
	DecodeSymbol(img image.Image) (Symbol, bool)
}
