// Package thumbnail produces Telegram-ready pictures from images and
// videos.
//
// Thumbnail builds a thumbnail of at most 320x320 in JPEG or WebP.
// Compress shrinks a picture so its longer side fits a limit, in JPEG or
// PNG. Both copy the source packet untouched when it already satisfies the
// target, and otherwise decode the first frame, reshape it with imaging
// and encode it: JPEG and PNG with imaging, WebP with libvips.
//
// The geometry helpers ThumbnailSize, CropRect and CompressSize are pure
// and carry the sizing rules.
package thumbnail
