// Package colorutil provides shared overlay colors and blending for
// the viewer UI.
package colorutil

import "image/color"

// Overlay colors used by the page painter and selection chrome.
var (
	Background    = color.NRGBA{R: 0x52, G: 0x56, B: 0x5a, A: 0xff}
	PageBlank     = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	PageBorder    = color.NRGBA{R: 0x32, G: 0x34, B: 0x36, A: 0xff}
	Selection     = color.NRGBA{R: 0x1e, G: 0x6e, B: 0xff, A: 0xff}
	SearchMatch   = color.NRGBA{R: 0xff, G: 0xe0, B: 0x30, A: 0xff}
	SearchCurrent = color.NRGBA{R: 0xff, G: 0x8c, B: 0x20, A: 0xff}
	Hover         = color.NRGBA{R: 0x60, G: 0xa0, B: 0xff, A: 0xff}
)

// Mix blends src over dst at the given alpha (0-255), per channel.
func Mix(dst [3]uint8, src color.NRGBA, alpha uint32) [3]uint8 {
	return [3]uint8{
		uint8((uint32(src.R)*alpha + uint32(dst[0])*(255-alpha)) / 255),
		uint8((uint32(src.G)*alpha + uint32(dst[1])*(255-alpha)) / 255),
		uint8((uint32(src.B)*alpha + uint32(dst[2])*(255-alpha)) / 255),
	}
}
