package types

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// FieldsVersion is the current shape version of ArtKeyFields. Rows written by
// earlier releases carry a lower version and are upgraded on read.
const FieldsVersion = 2

// ArtKeyFields is the structured page content of an Art Key, stored as a
// single JSONB column.
type ArtKeyFields struct {
	Version       int               `json:"version"`
	Title         string            `json:"title"`
	Theme         Theme             `json:"theme"`
	Features      Features          `json:"features"`
	Links         []LinkButton      `json:"links"`
	Spotify       SpotifyEmbed      `json:"spotify"`
	WatchVideo    MediaRef          `json:"watch_video"`
	Messages1     *MediaRef         `json:"messages_1,omitempty"`
	Messages2     *MediaRef         `json:"messages_2,omitempty"`
	FeatureLabels map[string]string `json:"feature_labels,omitempty"`
	PrintTemplate string            `json:"print_template,omitempty"`
	DesignMediaID uuid.UUID         `json:"design_media_id,omitempty"`
}

// Theme describes the visual configuration of the page.
type Theme struct {
	Template   string    `json:"template"`
	BGColor    string    `json:"bg_color"`
	BGMediaID  uuid.UUID `json:"bg_media_id,omitempty"`
	BGImageURL string    `json:"bg_image_url,omitempty"`
	TextColor  string    `json:"text_color,omitempty"`
	TitleColor string    `json:"title_color,omitempty"`
	ColorScope string    `json:"color_scope"`
	TitleStyle string    `json:"title_style"`
	Font       string    `json:"font"`
}

// Features are the page's toggles plus their display order.
type Features struct {
	ShowGuestbook    bool     `json:"show_guestbook"`
	AllowImgUploads  bool     `json:"allow_img_uploads"`
	AllowVidUploads  bool     `json:"allow_vid_uploads"`
	EnableGallery    bool     `json:"enable_gallery"`
	EnableVideo      bool     `json:"enable_video"`
	EnableWatchVideo bool     `json:"enable_watch_video"`
	EnableMessages1  bool     `json:"enable_messages_1"`
	EnableMessages2  bool     `json:"enable_messages_2"`
	GBBtnView        bool     `json:"gb_btn_view"`
	GBBtnSign        bool     `json:"gb_btn_sign"`
	Order            []string `json:"order"`
}

// LinkButton is one entry of the page's ordered link list.
type LinkButton struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// SpotifyEmbed configures the music embed block.
type SpotifyEmbed struct {
	URL      string `json:"url"`
	Autoplay bool   `json:"autoplay"`
}

// MediaRef points at an uploaded asset, optionally with a resolved URL.
type MediaRef struct {
	MediaID uuid.UUID `json:"media_id,omitempty"`
	URL     string    `json:"url,omitempty"`
}

var (
	themeTemplates = []string{
		"classic", "dark", "bold", "sunset", "ocean", "aurora",
		"rose_gold", "forest", "cosmic", "vintage", "paper",
	}
	themeFonts = []string{
		"system", "serif", "mono", "g:Inter", "g:Poppins", "g:Lato",
		"g:Montserrat", "g:Roboto", "g:Playfair Display", "g:Open Sans",
	}
	colorScopes      = []string{"content", "buttons", "title", "content_buttons"}
	featureOrderKeys = []string{"gallery", "video", "watch_video", "guestbook", "messages_1", "messages_2", "imgup", "vidup"}
	featureLabelKeys = []string{"gallery", "video", "watch_video", "gb_view", "gb_sign", "messages_1", "messages_2", "imgup", "vidup"}

	hexColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
)

// DefaultArtKeyFields returns the content every fresh Art Key starts with.
func DefaultArtKeyFields() ArtKeyFields {
	return ArtKeyFields{
		Version: FieldsVersion,
		Title:   "Your Art Key",
		Theme: Theme{
			Template:   "classic",
			BGColor:    "#F6F7FB",
			ColorScope: "content",
			TitleStyle: "gradient",
			Font:       "system",
		},
		Features: Features{
			ShowGuestbook:   true,
			AllowImgUploads: true,
			EnableGallery:   true,
			EnableVideo:     true,
			Order:           append([]string(nil), featureOrderKeys...),
		},
		Links:   []LinkButton{},
		Spotify: SpotifyEmbed{},
	}
}

// Normalize clamps every field to its allow-list and fills gaps with defaults.
// It also upgrades rows stored with an older version.
func (f ArtKeyFields) Normalize() ArtKeyFields {
	defaults := DefaultArtKeyFields()

	out := f
	out.Version = FieldsVersion

	out.Title = strings.TrimSpace(out.Title)
	if out.Title == "" {
		out.Title = defaults.Title
	}

	out.Theme.Template = pick(out.Theme.Template, themeTemplates, defaults.Theme.Template)
	out.Theme.Font = pick(out.Theme.Font, themeFonts, defaults.Theme.Font)
	out.Theme.ColorScope = pick(out.Theme.ColorScope, colorScopes, defaults.Theme.ColorScope)
	if out.Theme.TitleStyle != "solid" {
		out.Theme.TitleStyle = "gradient"
	}
	out.Theme.BGColor = pickHex(out.Theme.BGColor, defaults.Theme.BGColor)
	out.Theme.TextColor = pickHex(out.Theme.TextColor, "")
	out.Theme.TitleColor = pickHex(out.Theme.TitleColor, "")

	out.Features.Order = filterKeys(out.Features.Order, featureOrderKeys)
	if len(out.Features.Order) == 0 {
		out.Features.Order = append([]string(nil), featureOrderKeys...)
	}

	links := make([]LinkButton, 0, len(out.Links))
	for _, link := range out.Links {
		label := strings.TrimSpace(link.Label)
		url := strings.TrimSpace(link.URL)
		if label == "" || url == "" {
			continue
		}
		links = append(links, LinkButton{Label: label, URL: url})
	}
	out.Links = links

	if out.Messages1 != nil && out.Messages1.MediaID == uuid.Nil && out.Messages1.URL == "" {
		out.Messages1 = nil
	}
	if out.Messages2 != nil && out.Messages2.MediaID == uuid.Nil && out.Messages2.URL == "" {
		out.Messages2 = nil
	}

	if len(out.FeatureLabels) > 0 {
		labels := map[string]string{}
		for _, key := range featureLabelKeys {
			if v := strings.TrimSpace(out.FeatureLabels[key]); v != "" {
				labels[key] = v
			}
		}
		if len(labels) == 0 {
			labels = nil
		}
		out.FeatureLabels = labels
	}

	return out
}

// HasPrintSelections reports whether both compose preconditions are set.
func (f ArtKeyFields) HasPrintSelections() bool {
	return f.PrintTemplate != "" && f.DesignMediaID != uuid.Nil
}

func pick(value string, allowed []string, fallback string) string {
	for _, candidate := range allowed {
		if candidate == value {
			return value
		}
	}
	return fallback
}

func pickHex(value, fallback string) string {
	if hexColorPattern.MatchString(value) {
		return value
	}
	return fallback
}

func filterKeys(values, allowed []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		for _, candidate := range allowed {
			if candidate == v {
				out = append(out, v)
				break
			}
		}
	}
	return out
}
