// Package pipeline turns a declarative set of effect parameters into an
// ordered two-track processing graph for the transcoding engine.
// Construction is pure and deterministic: no I/O, no side effects, so the
// scheduler can rebuild the graph in a different mode without re-deriving
// parameters.
package pipeline

// Params is the full set of rendering parameters for one job.
// Call Normalize before building a graph; Build assumes clamped values.
type Params struct {
	// Geometry.
	Mirror   bool    // horizontal flip
	Zoom     float64 // pre-zoom factor, 1 = none
	Rotation float64 // degrees, [-180, 180]
	Width    int     // target canvas width
	Height   int     // target canvas height

	// Color. Identity values: contrast 1, brightness 0, saturation 1, gamma 1.
	Contrast   float64
	Brightness float64
	Saturation float64
	Gamma      float64
	Grayscale  bool

	// Sharpen is the sharpening intensity; negative values blur, 0 is off.
	Sharpen float64

	// Subtitles styles the optional burned-in subtitle track. Whether a
	// subtitle source exists is decided by Inputs, not here.
	Subtitles SubtitleStyle

	Audio  AudioParams
	Encode EncodeParams
}

// SubtitleStyle controls subtitle burn-in. Size and margins are ratios of
// the target canvas so proportions stay constant across resolutions.
type SubtitleStyle struct {
	Font         string
	SizeRatio    float64 // font size as a fraction of canvas height
	MarginVRatio float64 // vertical margin as a fraction of canvas height
	MarginHRatio float64 // horizontal margins as a fraction of canvas width
	Alignment    int     // ASS numpad alignment, 1-9
}

// AudioParams controls the audio track mix. The narration track is always
// present; background music is optional and its presence is decided by
// Inputs.
type AudioParams struct {
	// NarrationGainDB is an explicit gain adjustment on the narration, in dB.
	NarrationGainDB float64
	// MusicVolume is the linear volume of the background music, [0, 2].
	MusicVolume float64
	// MusicDelayMs delays the start of the music track.
	MusicDelayMs int
	// Ducking enables sidechain ducking of the music keyed off the
	// narration envelope.
	Ducking bool
	// DuckThresholdDB, DuckRatio, DuckAttackMs and DuckReleaseMs tune the
	// sidechain compressor when Ducking is set.
	DuckThresholdDB float64
	DuckRatio       float64
	DuckAttackMs    float64
	DuckReleaseMs   float64
}

// EncodeParams controls the encoder invocation.
type EncodeParams struct {
	CRF              int    // quality factor, [0, 51]
	Preset           string // encoder speed/quality tradeoff
	VideoBitrate     string // optional, e.g. "2500k"
	Threads          int
	KeyframeInterval int // GOP size in frames
	// LoopVideo loops the source video so it covers the narration length.
	LoopVideo bool
}

// Inputs names the local files a graph is built against. Video and
// Narration are required; empty Music or Subtitles disables the
// corresponding stages.
type Inputs struct {
	Video     string
	Narration string
	Music     string
	Subtitles string
}

// Indexes of the engine input streams. Subtitles are consumed by a filter,
// not mapped as an input.
const (
	inputVideo     = 0
	inputNarration = 1
	inputMusic     = 2
)

// List returns the ordered input file arguments for the engine.
func (in Inputs) List() []string {
	paths := []string{in.Video, in.Narration}
	if in.Music != "" {
		paths = append(paths, in.Music)
	}
	return paths
}

// Encoder presets accepted by the engine, used to reject typos early.
var validPresets = map[string]bool{
	"ultrafast": true, "superfast": true, "veryfast": true, "faster": true,
	"fast": true, "medium": true, "slow": true, "slower": true, "veryslow": true,
}

// Defaults applied by Normalize.
const (
	DefaultWidth            = 1080
	DefaultHeight           = 1920
	DefaultCRF              = 23
	DefaultPreset           = "veryfast"
	DefaultThreads          = 2
	DefaultKeyframeInterval = 60
	DefaultSubtitleFont     = "DejaVu Sans"
)

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampI(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Normalize fills defaults and clamps every field to its valid range.
// The zero value of Params normalizes to an identity pipeline at the
// default canvas.
func (p *Params) Normalize() {
	if p.Width <= 0 {
		p.Width = DefaultWidth
	}
	if p.Height <= 0 {
		p.Height = DefaultHeight
	}
	p.Width = clampI(even(p.Width), 2, 7680)
	p.Height = clampI(even(p.Height), 2, 7680)

	if p.Zoom == 0 {
		p.Zoom = 1
	}
	p.Zoom = clampF(p.Zoom, 1, 3)
	p.Rotation = clampF(p.Rotation, -180, 180)

	if p.Contrast == 0 {
		p.Contrast = 1
	}
	p.Contrast = clampF(p.Contrast, 0, 2)
	p.Brightness = clampF(p.Brightness, -1, 1)
	if p.Saturation == 0 {
		p.Saturation = 1
	}
	p.Saturation = clampF(p.Saturation, 0, 3)
	if p.Gamma == 0 {
		p.Gamma = 1
	}
	p.Gamma = clampF(p.Gamma, 0.1, 10)
	p.Sharpen = clampF(p.Sharpen, -2, 5)

	if p.Subtitles.Font == "" {
		p.Subtitles.Font = DefaultSubtitleFont
	}
	if p.Subtitles.SizeRatio == 0 {
		p.Subtitles.SizeRatio = 0.045
	}
	p.Subtitles.SizeRatio = clampF(p.Subtitles.SizeRatio, 0.01, 0.2)
	if p.Subtitles.MarginVRatio == 0 {
		p.Subtitles.MarginVRatio = 0.04
	}
	p.Subtitles.MarginVRatio = clampF(p.Subtitles.MarginVRatio, 0, 0.4)
	if p.Subtitles.MarginHRatio == 0 {
		p.Subtitles.MarginHRatio = 0.02
	}
	p.Subtitles.MarginHRatio = clampF(p.Subtitles.MarginHRatio, 0, 0.4)
	if p.Subtitles.Alignment == 0 {
		p.Subtitles.Alignment = 2 // bottom center
	}
	p.Subtitles.Alignment = clampI(p.Subtitles.Alignment, 1, 9)

	p.Audio.NarrationGainDB = clampF(p.Audio.NarrationGainDB, -30, 30)
	if p.Audio.MusicVolume == 0 {
		p.Audio.MusicVolume = 1
	}
	p.Audio.MusicVolume = clampF(p.Audio.MusicVolume, 0, 2)
	if p.Audio.MusicDelayMs < 0 {
		p.Audio.MusicDelayMs = 0
	}
	if p.Audio.DuckThresholdDB == 0 {
		p.Audio.DuckThresholdDB = -27
	}
	p.Audio.DuckThresholdDB = clampF(p.Audio.DuckThresholdDB, -60, 0)
	if p.Audio.DuckRatio == 0 {
		p.Audio.DuckRatio = 8
	}
	p.Audio.DuckRatio = clampF(p.Audio.DuckRatio, 1, 20)
	if p.Audio.DuckAttackMs == 0 {
		p.Audio.DuckAttackMs = 20
	}
	p.Audio.DuckAttackMs = clampF(p.Audio.DuckAttackMs, 0.01, 2000)
	if p.Audio.DuckReleaseMs == 0 {
		p.Audio.DuckReleaseMs = 300
	}
	p.Audio.DuckReleaseMs = clampF(p.Audio.DuckReleaseMs, 0.01, 9000)

	if p.Encode.CRF == 0 {
		p.Encode.CRF = DefaultCRF
	}
	p.Encode.CRF = clampI(p.Encode.CRF, 0, 51)
	if !validPresets[p.Encode.Preset] {
		p.Encode.Preset = DefaultPreset
	}
	if p.Encode.Threads <= 0 {
		p.Encode.Threads = DefaultThreads
	}
	p.Encode.Threads = clampI(p.Encode.Threads, 1, 16)
	if p.Encode.KeyframeInterval <= 0 {
		p.Encode.KeyframeInterval = DefaultKeyframeInterval
	}
	p.Encode.KeyframeInterval = clampI(p.Encode.KeyframeInterval, 1, 600)
}

// even rounds n down to the nearest even number. Encoders reject odd
// dimensions for 4:2:0 content.
func even(n int) int {
	return n - n%2
}
