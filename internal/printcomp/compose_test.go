package printcomp

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func TestPixelRectTemplate1(t *testing.T) {
	registry := NewRegistry()
	tpl, ok := registry.Get("template_1")
	if !ok {
		t.Fatal("template_1 missing from registry")
	}

	rect := PixelRect(tpl, 1000, 1000)
	if rect.Min.X != 750 || rect.Min.Y != 850 || rect.Dx() != 200 || rect.Dy() != 200 {
		t.Fatalf("unexpected rect %v", rect)
	}
}

func TestPixelRectFloorsOddDimensions(t *testing.T) {
	registry := NewRegistry()
	tpl, _ := registry.Get("template_2")

	rect := PixelRect(tpl, 1013, 757)
	if rect.Min.X != 506 {
		t.Fatalf("x not floored: %d", rect.Min.X)
	}
	if rect.Min.Y != 681 {
		t.Fatalf("y not floored: %d", rect.Min.Y)
	}
	if rect.Dx() != 182 || rect.Dy() != 136 {
		t.Fatalf("size not floored: %dx%d", rect.Dx(), rect.Dy())
	}
}

func TestRegistryHasFiveTemplates(t *testing.T) {
	registry := NewRegistry()
	keys := registry.Keys()
	if len(keys) != 5 {
		t.Fatalf("expected 5 templates, got %d", len(keys))
	}
	for i, key := range keys {
		tpl, ok := registry.Get(key)
		if !ok {
			t.Fatalf("key %s not resolvable", key)
		}
		if tpl.QRW <= 0 || tpl.QRH <= 0 {
			t.Fatalf("template %d has empty rect", i)
		}
	}
	if _, ok := registry.Get("template_99"); ok {
		t.Fatal("unknown key must not resolve")
	}
}

func TestComposeOnlyTouchesRect(t *testing.T) {
	design := image.NewRGBA(image.Rect(0, 0, 100, 100))
	base := color.RGBA{R: 10, G: 20, B: 30, A: 255}
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			design.Set(x, y, base)
		}
	}

	qr, err := GenerateQR("https://artkeys.example.com/artkey/ak-test", 600)
	if err != nil {
		t.Fatalf("GenerateQR: %v", err)
	}

	registry := NewRegistry()
	tpl, _ := registry.Get("template_1")
	canvas, rect := Compose(design, qr, tpl)

	if canvas.Bounds().Dx() != 100 || canvas.Bounds().Dy() != 100 {
		t.Fatalf("canvas must match design size, got %v", canvas.Bounds())
	}
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			inside := image.Pt(x, y).In(rect)
			got := canvas.RGBAAt(x, y)
			if !inside && got != base {
				t.Fatalf("pixel (%d,%d) outside rect changed: %v", x, y, got)
			}
		}
	}

	// the overlay is opaque, so the rect must differ from the base somewhere
	changed := false
	for y := rect.Min.Y; y < rect.Max.Y && !changed; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			if canvas.RGBAAt(x, y) != base {
				changed = true
				break
			}
		}
	}
	if !changed {
		t.Fatal("qr overlay did not land inside the rect")
	}
}

func TestEncodePNGRoundTrip(t *testing.T) {
	canvas := image.NewRGBA(image.Rect(0, 0, 16, 16))
	canvas.Set(3, 3, color.RGBA{R: 200, A: 255})

	encoded, err := EncodePNG(canvas)
	if err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Bounds() != canvas.Bounds() {
		t.Fatalf("bounds changed: %v", decoded.Bounds())
	}
}

func TestDecodeDesignRejectsGarbage(t *testing.T) {
	if _, err := DecodeDesign([]byte("not an image")); err == nil {
		t.Fatal("garbage bytes must not decode")
	}
}
