package visual

import (
	"strings"

	"github.com/ahrdadan/tabpilot/internal/browser"
)

// ParseFrameOptions validates caller-supplied capture options and maps
// them onto the surface's frame options. Format is matched
// case-insensitively and defaults to PNG; quality is only meaningful for
// JPEG and must sit in [0,100].
func ParseFrameOptions(format string, quality *int) (browser.FrameOptions, error) {
	opts := browser.DefaultFrameOptions()

	switch strings.ToUpper(strings.TrimSpace(format)) {
	case "", "PNG":
		opts.Format = browser.FormatPNG
	case "JPEG", "JPG":
		opts.Format = browser.FormatJPEG
	default:
		return opts, browser.NewError(browser.CodeInvalidArgument, "unsupported screenshot format %q", format)
	}

	if quality != nil {
		if opts.Format != browser.FormatJPEG {
			return opts, browser.NewError(browser.CodeInvalidArgument, "quality is only valid for JPEG captures")
		}
		if *quality < 0 || *quality > 100 {
			return opts, browser.NewError(browser.CodeInvalidArgument, "quality %d out of range [0,100]", *quality)
		}
		opts.Quality = *quality
	}

	return opts, nil
}
