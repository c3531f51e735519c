package printcomp

// Template places the QR overlay on a print design. The rect is fractional:
// x/y anchor the top-left corner, w/h size the overlay, all relative to the
// design's pixel dimensions.
type Template struct {
	Key  string  `json:"key"`
	Name string  `json:"name"`
	QRX  float64 `json:"qr_x"`
	QRY  float64 `json:"qr_y"`
	QRW  float64 `json:"qr_w"`
	QRH  float64 `json:"qr_h"`
}

// Registry is the immutable set of print templates, injected at construction.
type Registry struct {
	ordered []Template
	byKey   map[string]Template
}

// NewRegistry builds the registry with the five fixed layouts.
func NewRegistry() *Registry {
	templates := []Template{
		{Key: "template_1", Name: "Bottom Right", QRX: 0.75, QRY: 0.85, QRW: 0.20, QRH: 0.20},
		{Key: "template_2", Name: "Bottom Center", QRX: 0.50, QRY: 0.90, QRW: 0.18, QRH: 0.18},
		{Key: "template_3", Name: "Lower Right Large", QRX: 0.85, QRY: 0.75, QRW: 0.22, QRH: 0.22},
		{Key: "template_4", Name: "Bottom Left", QRX: 0.10, QRY: 0.88, QRW: 0.19, QRH: 0.19},
		{Key: "template_5", Name: "Top Center", QRX: 0.50, QRY: 0.10, QRW: 0.25, QRH: 0.25},
	}
	byKey := make(map[string]Template, len(templates))
	for _, tpl := range templates {
		byKey[tpl.Key] = tpl
	}
	return &Registry{ordered: templates, byKey: byKey}
}

// Get resolves a template by key.
func (r *Registry) Get(key string) (Template, bool) {
	tpl, ok := r.byKey[key]
	return tpl, ok
}

// List returns the templates in display order.
func (r *Registry) List() []Template {
	return append([]Template(nil), r.ordered...)
}

// Keys returns the template keys in display order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.ordered))
	for _, tpl := range r.ordered {
		keys = append(keys, tpl.Key)
	}
	return keys
}
