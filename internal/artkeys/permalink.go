package artkeys

import "strings"

// Permalinker renders the public page URL for a slug. The URL is embedded in
// printed QR codes, so the shape must stay stable across releases.
type Permalinker struct {
	baseURL string
}

// NewPermalinker builds a permalinker rooted at the public site host.
func NewPermalinker(baseURL string) Permalinker {
	return Permalinker{baseURL: strings.TrimRight(baseURL, "/")}
}

// For returns the permanent public URL of an Art Key page.
func (p Permalinker) For(slug string) string {
	return p.baseURL + "/artkey/" + slug
}
