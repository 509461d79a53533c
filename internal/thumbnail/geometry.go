package thumbnail

import (
	"image"

	"remuxkit/internal/timebase"
)

const (
	// MaxThumbnail is the longest side of a thumbnail.
	MaxThumbnail = 320
	// MinCrop is the shortest long side a crop keeps.
	MinCrop = 300
)

// Size is a picture size in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Fits reports whether both sides are at most n.
func (s Size) Fits(n int) bool {
	return s.Width <= n && s.Height <= n
}

// CropRect returns the centered crop applied to a w x h source before
// scaling. Square sources and sources that already fit are not cropped.
// Otherwise the long axis is cut to max(short side, MinCrop).
func CropRect(w, h int) image.Rectangle {
	if w == h || (Size{w, h}).Fits(MaxThumbnail) {
		return image.Rect(0, 0, w, h)
	}
	cw, ch := w, h
	if w >= h {
		cw = min(w, max(h, MinCrop))
	} else {
		ch = min(h, max(w, MinCrop))
	}
	x := (w - cw) / 2
	y := (h - ch) / 2
	return image.Rect(x, y, x+cw, y+ch)
}

// ThumbnailSize returns the crop and the final size of the thumbnail of a
// w x h source. Square crops are scaled to MaxThumbnail; anything else
// keeps its cropped size.
func ThumbnailSize(w, h int) (image.Rectangle, Size) {
	crop := CropRect(w, h)
	if crop.Dx() == crop.Dy() {
		return crop, Size{MaxThumbnail, MaxThumbnail}
	}
	return crop, Size{crop.Dx(), crop.Dy()}
}

// CompressSize scales w x h so that the longer side is maxLen, rounding
// the other side to nearest. Pictures already within maxLen are kept.
func CompressSize(w, h, maxLen int) Size {
	if maxLen <= 0 || max(w, h) <= maxLen {
		return Size{w, h}
	}
	if w >= h {
		return Size{maxLen, max(1, int(timebase.MulDiv(int64(maxLen), int64(h), int64(w), timebase.RoundNearInf)))}
	}
	return Size{max(1, int(timebase.MulDiv(int64(maxLen), int64(w), int64(h), timebase.RoundNearInf))), maxLen}
}
