package libav

// Fields of FFmpeg structs that the bindings do not expose are read and
// written here.

//#cgo pkg-config: libavcodec libavformat libavutil
//#include <libavcodec/avcodec.h>
//#include <libavformat/avformat.h>
//#include <libavutil/avutil.h>
//#include <libavutil/log.h>
//#include <libavutil/samplefmt.h>
//
//static int remux_codec_sample_rate(const AVCodec *c, int i) {
//	if (c->supported_samplerates == NULL) {
//		return 0;
//	}
//	return c->supported_samplerates[i];
//}
//
//static int remux_codec_variable_frame_size(const AVCodec *c) {
//	return (c->capabilities & AV_CODEC_CAP_VARIABLE_FRAME_SIZE) != 0;
//}
//
//static int remux_stream_attached_pic(const AVStream *s) {
//	return (s->disposition & AV_DISPOSITION_ATTACHED_PIC) != 0;
//}
//
//static void remux_stream_set_attached_pic(AVStream *s) {
//	s->disposition |= AV_DISPOSITION_ATTACHED_PIC;
//}
import "C"

import (
	"unsafe"

	"github.com/asticode/go-astiav"
)

// logLevelTrace is AV_LOG_TRACE, which the bindings do not name.
const logLevelTrace = astiav.LogLevel(C.AV_LOG_TRACE)

// cObject returns the C struct behind an astiav wrapper. Codec and Stream
// hold that pointer as their only field.
func cObject[T astiav.Codec | astiav.Stream](w *T) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(w))
}

// ffmpegVersion returns the version of the linked libraries.
func ffmpegVersion() string {
	return C.GoString(C.av_version_info())
}

// supportedSampleRates returns the rates c accepts, or nil when c takes
// any rate.
func supportedSampleRates(c *astiav.Codec) []int {
	p := (*C.AVCodec)(cObject(c))
	var rates []int
	for i := 0; ; i++ {
		r := int(C.remux_codec_sample_rate(p, C.int(i)))
		if r == 0 {
			return rates
		}
		rates = append(rates, r)
	}
}

func variableFrameSize(c *astiav.Codec) bool {
	return C.remux_codec_variable_frame_size((*C.AVCodec)(cObject(c))) != 0
}

func attachedPic(s *astiav.Stream) bool {
	return C.remux_stream_attached_pic((*C.AVStream)(cObject(s))) != 0
}

func setAttachedPic(s *astiav.Stream) {
	C.remux_stream_set_attached_pic((*C.AVStream)(cObject(s)))
}

func bytesPerSample(f astiav.SampleFormat) int {
	return int(C.av_get_bytes_per_sample(C.enum_AVSampleFormat(int(f))))
}

func isPlanar(f astiav.SampleFormat) bool {
	return C.av_sample_fmt_is_planar(C.enum_AVSampleFormat(int(f))) != 0
}
