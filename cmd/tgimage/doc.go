// Command tgimage shrinks a picture so that its longer side is at most
// -m pixels (2560 by default) and writes it as JPEG or PNG.
//
// Usage:
//
//	tgimage [-f jpeg|png] [-m 2560] [-yuv420p] input output
package main
