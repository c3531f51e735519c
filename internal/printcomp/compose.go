package printcomp

import (
	"bytes"
	"image"
	"image/draw"
	"image/png"
	"math"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/skip2/go-qrcode"
	xdraw "golang.org/x/image/draw"

	pkgerrors "github.com/blakebenson/artkey-backend/pkg/errors"
)

// GenerateQR renders the permalink as a high error-correction QR raster.
func GenerateQR(permalink string, sizePx int) (image.Image, error) {
	qr, err := qrcode.New(permalink, qrcode.High)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "generating qr code")
	}
	return qr.Image(sizePx), nil
}

// DecodeDesign decodes the buyer's uploaded design raster. JPEG, PNG, and GIF
// are registered.
func DecodeDesign(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding design image")
	}
	return img, nil
}

// PixelRect computes the QR placement for a design of the given dimensions.
// Coordinates floor rather than round so the rect never exceeds the canvas.
func PixelRect(tpl Template, width, height int) image.Rectangle {
	x := int(math.Floor(float64(width) * tpl.QRX))
	y := int(math.Floor(float64(height) * tpl.QRY))
	w := int(math.Floor(float64(width) * tpl.QRW))
	h := int(math.Floor(float64(height) * tpl.QRH))
	return image.Rect(x, y, x+w, y+h)
}

// Compose copies the design onto a fresh canvas and alpha-blends the resized
// QR at the template's rect. Pixels outside the rect are untouched.
func Compose(design, qr image.Image, tpl Template) (*image.RGBA, image.Rectangle) {
	bounds := design.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(canvas, canvas.Bounds(), design, bounds.Min, draw.Src)

	rect := PixelRect(tpl, bounds.Dx(), bounds.Dy())
	scaled := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), qr, qr.Bounds(), xdraw.Src, nil)
	draw.Draw(canvas, rect, scaled, image.Point{}, draw.Over)

	return canvas, rect
}

// EncodePNG writes the canvas at maximum compression, alpha preserved.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.BestCompression}
	if err := encoder.Encode(&buf, img); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "encoding composite png")
	}
	return buf.Bytes(), nil
}
