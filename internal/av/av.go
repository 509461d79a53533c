package av

import (
	"context"
	"image"

	"remuxkit/internal/timebase"
)

// Packet is one compressed unit of a stream. Timestamps are in the time
// base of the stream the packet currently belongs to.
type Packet interface {
	StreamIndex() int
	SetStreamIndex(int)
	PTS() int64
	SetPTS(int64)
	DTS() int64
	SetDTS(int64)
	Duration() int64
	SetDuration(int64)
	SetPos(int64)
	Data() []byte
	Release()
}

// Frame is one decoded unit.
type Frame interface {
	PTS() int64
	SetPTS(int64)
	Release()
}

// AudioFrame is a decoded block of audio samples. Planes returns one slice
// per plane holding exactly NbSamples samples.
type AudioFrame interface {
	Frame
	NbSamples() int
	Planes() ([][]byte, error)
	SetPlanes(planes [][]byte) error
}

// VideoFrame is a decoded picture.
type VideoFrame interface {
	Frame
	Width() int
	Height() int
	PixelFormat() string
	Image() (image.Image, error)
}

// InputOptions configures how an input is opened.
type InputOptions struct {
	// Format forces a demuxer instead of probing.
	Format string
	// Options are passed to the demuxer ("headers" for HTTP inputs).
	Options map[string]string
}

// Demuxer reads packets from an opened input.
type Demuxer interface {
	Streams() []StreamInfo
	// ReadPacket returns the next packet, or io.EOF.
	ReadPacket() (Packet, error)
	// Duration is the container duration in timebase.AVTimeBase units.
	Duration() int64
	Metadata() map[string]string
	Chapters() []Chapter
	FormatName() string
	FormatLongName() string
	MimeType() string
	Close() error
}

// Decoder turns packets into frames.
type Decoder interface {
	// SendPacket feeds a packet. A nil packet starts draining.
	SendPacket(Packet) error
	// ReceiveFrame returns a frame, ErrNeedMoreInput, or io.EOF once drained.
	ReceiveFrame() (Frame, error)
	Close()
}

// Encoder turns frames into packets.
type Encoder interface {
	// SendFrame feeds a frame. A nil frame starts flushing.
	SendFrame(Frame) error
	// ReceivePacket returns a packet, ErrNeedMoreInput, or io.EOF once flushed.
	ReceivePacket() (Packet, error)
	// FrameSize is the number of samples per audio frame the encoder
	// requires, or 0 when it accepts any size.
	FrameSize() int
	TimeBase() timebase.Rational
	Codec() string
	Close()
}

// AudioEncoder is an opened audio encoder.
type AudioEncoder interface {
	Encoder
	Format() AudioFormat
	// NewFrame allocates a writable frame of n samples in Format.
	NewFrame(n int) (AudioFrame, error)
}

// VideoEncoder is an opened video encoder.
type VideoEncoder interface {
	Encoder
	// NewFrame converts img into a frame in the encoder's pixel format.
	NewFrame(img image.Image) (Frame, error)
}

// AudioEncoderConfig configures an audio encoder.
type AudioEncoderConfig struct {
	Codec        string
	SampleRate   int
	Bitrate      int64
	GlobalHeader bool
	Options      map[string]string
}

// VideoEncoderConfig configures a video encoder.
type VideoEncoderConfig struct {
	// Codecs are tried in order; the first available encoder is used.
	Codecs       []string
	Width        int
	Height       int
	PixelFormat  string
	TimeBase     timebase.Rational
	GlobalHeader bool
	Options      map[string]string
}

// Resampler converts decoded audio into an encoder's sample format.
type Resampler interface {
	// Convert converts src and returns the converted planes and their
	// sample count. A nil src drains buffered samples.
	Convert(src AudioFrame) ([][]byte, int, error)
	Close()
}

// Muxer writes packets to an output file.
type Muxer interface {
	// AddCopyStream adds an output stream with the codec parameters of
	// stream index of src.
	AddCopyStream(src Demuxer, index int, attachedPic bool) (int, error)
	// AddEncoderStream adds an output stream fed by enc.
	AddEncoderStream(enc Encoder) (int, error)
	// AddImageStream adds a still-image stream carrying encoded pictures.
	AddImageStream(codec string, width, height int, attachedPic bool) (int, error)
	SetMetadata(map[string]string)
	WriteHeader() error
	// TimeBase returns the time base chosen for an output stream. Only
	// valid after WriteHeader.
	TimeBase(index int) timebase.Rational
	WritePacket(Packet) error
	WriteTrailer() error
	// Close releases the output. When the trailer was not written the
	// partially written file is removed.
	Close() error
}

// Framework creates the objects above.
type Framework interface {
	OpenInput(ctx context.Context, url string, opts InputOptions) (Demuxer, error)
	OpenDecoder(src Demuxer, index int) (Decoder, error)
	AudioEncoderInfo(codec string) (EncoderInfo, error)
	// OpenAudioEncoder opens an encoder whose channel layout follows dec.
	OpenAudioEncoder(cfg AudioEncoderConfig, dec Decoder) (AudioEncoder, error)
	OpenVideoEncoder(cfg VideoEncoderConfig) (VideoEncoder, error)
	OpenResampler(target AudioEncoder) (Resampler, error)
	CreateOutput(path, format string) (Muxer, error)
	// NewPacket wraps already encoded bytes.
	NewPacket(data []byte) (Packet, error)
}
