// Package device derives a client device profile from a Xiino request.
package device

import (
	"regexp"
	"strconv"
)

// DefaultWidth is the post-downscale screen width assumed when the client
// does not announce one. Xiino halves everything, so a 306 px screen asks
// for 153 px content.
const DefaultWidth = 153

// Profile describes the requesting handheld for the duration of one
// request. Immutable once built.
type Profile struct {
	ScreenWidth int
	Color       bool
	Depth       int // bits per pixel: 1, 2, 4 or 8
	Encoding    string
}

// The Xiino client encodes its capabilities as path segments, e.g.
// /c8/w153/dISO-8859-1/. Unannounced values keep defaults.
var (
	colorDepthRe  = regexp.MustCompile(`/c([0-9]+)/`)
	grayDepthRe   = regexp.MustCompile(`/g([0-9]+)/`)
	screenWidthRe = regexp.MustCompile(`/w([0-9]+)/`)
	encodingRe    = regexp.MustCompile(`/[de]{1,2}([a-zA-Z0-9-]+)/`)
)

// FromPath parses the capability segments out of the request path.
func FromPath(path string) Profile {
	p := Profile{
		ScreenWidth: DefaultWidth,
		Color:       true,
		Depth:       8,
	}

	if m := grayDepthRe.FindStringSubmatch(path); m != nil {
		if d, err := strconv.Atoi(m[1]); err == nil && validDepth(d) {
			p.Color = false
			p.Depth = d
		}
	}
	if m := colorDepthRe.FindStringSubmatch(path); m != nil {
		if d, err := strconv.Atoi(m[1]); err == nil && validDepth(d) {
			p.Color = true
			p.Depth = d
		}
	}
	if m := screenWidthRe.FindStringSubmatch(path); m != nil {
		if w, err := strconv.Atoi(m[1]); err == nil && w > 0 && w <= 1024 {
			p.ScreenWidth = w
		}
	}
	if m := encodingRe.FindStringSubmatch(path); m != nil {
		p.Encoding = m[1]
	}
	return p
}

func validDepth(d int) bool {
	switch d {
	case 1, 2, 4, 8:
		return true
	}
	return false
}
