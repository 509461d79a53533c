// Package libav implements the av interfaces on top of FFmpeg through
// github.com/asticode/go-astiav. It is the only package that links
// against the FFmpeg libraries.
//
// FFmpeg log lines are routed through the logging package. Framework
// errors carry the FFmpeg error code in av.Error.Code.
package libav
