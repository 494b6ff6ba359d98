package domain

import (
	"errors"
	"fmt"
	"regexp"
)

// Display is the overlay rendering record. The daemon only stores and
// forwards it; overlay clients interpret it.
type Display struct {
	FontFamily        string `json:"font_family"`
	FontSize          int    `json:"font_size"`
	FontWeight        string `json:"font_weight"`
	FontColor         string `json:"font_color"`
	BackgroundColor   string `json:"background_color"`
	BackgroundOpacity int    `json:"background_opacity"`
	BorderRadius      int    `json:"border_radius"`
	Position          string `json:"position"`
	HorizontalAlign   string `json:"horizontal_align"`
	MarginOffset      int    `json:"margin_offset"`
	ShowOriginal      bool   `json:"show_original"`
	AutoHide          bool   `json:"auto_hide"`
	AutoHideSeconds   int    `json:"auto_hide_seconds"`
	ShowInterim       bool   `json:"show_interim"`
}

// DefaultDisplay returns the stock overlay look.
func DefaultDisplay() Display {
	return Display{
		FontFamily:        "Arial, sans-serif",
		FontSize:          16,
		FontWeight:        "600",
		FontColor:         "#ffffff",
		BackgroundColor:   "#000000",
		BackgroundOpacity: 80,
		BorderRadius:      4,
		Position:          "bottom",
		HorizontalAlign:   "center",
		MarginOffset:      20,
		AutoHide:          true,
		AutoHideSeconds:   3,
		ShowInterim:       true,
	}
}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Validate checks ranges the overlay can render.
func (d Display) Validate() error {
	var errs []error
	if d.FontSize < 8 || d.FontSize > 96 {
		errs = append(errs, fmt.Errorf("font_size %d outside 8..96", d.FontSize))
	}
	if d.BackgroundOpacity < 0 || d.BackgroundOpacity > 100 {
		errs = append(errs, fmt.Errorf("background_opacity %d outside 0..100", d.BackgroundOpacity))
	}
	switch d.Position {
	case "top", "bottom":
	default:
		errs = append(errs, fmt.Errorf("position must be top or bottom, got %q", d.Position))
	}
	switch d.HorizontalAlign {
	case "left", "center", "right":
	default:
		errs = append(errs, fmt.Errorf("horizontal_align must be left, center or right, got %q", d.HorizontalAlign))
	}
	for name, value := range map[string]string{"font_color": d.FontColor, "background_color": d.BackgroundColor} {
		if !hexColor.MatchString(value) {
			errs = append(errs, fmt.Errorf("%s must be #rrggbb, got %q", name, value))
		}
	}
	if d.AutoHide && d.AutoHideSeconds <= 0 {
		errs = append(errs, errors.New("auto_hide_seconds must be positive when auto_hide is set"))
	}
	return errors.Join(errs...)
}
