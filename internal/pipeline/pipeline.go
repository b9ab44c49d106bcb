package pipeline

import (
	"errors"
	"fmt"
	"math"
)

// Mode selects between the full-cost pipeline and the reduced-cost variant
// used when the primary attempt exhausts resources.
type Mode string

const (
	// ModePrimary is the full-quality pipeline.
	ModePrimary Mode = "primary"
	// ModeFallback is the degraded pipeline: the pre-zoom is expressed as a
	// direct crop instead of upscale-then-crop, the canvas is reduced, a
	// cheaper resampler is selected, and subtitles are not burned in.
	ModeFallback Mode = "fallback"
)

// Static errors for graph construction.
var (
	// ErrVideoInputRequired is returned when Inputs.Video is empty.
	ErrVideoInputRequired = errors.New("pipeline: video input is required")
	// ErrNarrationInputRequired is returned when Inputs.Narration is empty.
	ErrNarrationInputRequired = errors.New("pipeline: narration input is required")
	// ErrUnknownMode is returned for a mode other than primary or fallback.
	ErrUnknownMode = errors.New("pipeline: unknown mode")
)

// Pad labels of the final stages, consumed by the muxer mapping.
const (
	VideoOutPad = "vout"
	AudioOutPad = "aout"
)

// Stage is one node of the processing graph: a named engine filter with
// ordered options, consuming and producing labeled pads.
type Stage struct {
	Inputs  []string
	Filter  string
	Options []string
	Outputs []string
}

// Graph is the ordered two-track description handed to the executor. The
// video and audio stage lists connect through named pads and terminate in
// VideoOutPad and AudioOutPad.
type Graph struct {
	Mode   Mode
	Width  int // effective canvas width, after any fallback reduction
	Height int

	VideoStages []Stage
	AudioStages []Stage
}

// Build constructs the processing graph for the given parameters, inputs
// and mode. Params must be normalized. Build performs no I/O and is
// deterministic in its arguments.
func Build(p Params, in Inputs, mode Mode) (*Graph, error) {
	if in.Video == "" {
		return nil, ErrVideoInputRequired
	}
	if in.Narration == "" {
		return nil, ErrNarrationInputRequired
	}
	if mode != ModePrimary && mode != ModeFallback {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	g := &Graph{Mode: mode, Width: p.Width, Height: p.Height}
	if mode == ModeFallback {
		// Halving the canvas is the principal cost reduction besides the
		// cheaper pre-zoom; keep dimensions even for 4:2:0.
		g.Width = maxInt(even(p.Width/2), 2)
		g.Height = maxInt(even(p.Height/2), 2)
	}

	g.buildVideo(p, in, mode)
	g.buildAudio(p, in)
	return g, nil
}

// videoChain tracks pad wiring while video stages are appended.
type videoChain struct {
	g   *Graph
	cur string
	n   int
}

func (c *videoChain) add(filter string, options ...string) {
	out := fmt.Sprintf("v%d", c.n)
	c.n++
	c.g.VideoStages = append(c.g.VideoStages, Stage{
		Inputs:  []string{c.cur},
		Filter:  filter,
		Options: options,
		Outputs: []string{out},
	})
	c.cur = out
}

// seal relabels the last stage's output pad as the final video pad.
func (c *videoChain) seal() {
	last := &c.g.VideoStages[len(c.g.VideoStages)-1]
	last.Outputs = []string{VideoOutPad}
}

func (g *Graph) buildVideo(p Params, in Inputs, mode Mode) {
	c := &videoChain{g: g, cur: fmt.Sprintf("%d:v", inputVideo)}

	// 1. Horizontal mirror.
	if p.Mirror {
		c.add("hflip")
	}

	// 2. Pre-zoom. Primary pays for an upscale and crops back to the
	// original frame; fallback crops the factor directly and lets the
	// cover-fit scale absorb the size change.
	if p.Zoom > 1 {
		z := formatFloat(p.Zoom)
		if mode == ModePrimary {
			c.add("scale",
				fmt.Sprintf("trunc(iw*%s/2)*2", z),
				fmt.Sprintf("trunc(ih*%s/2)*2", z),
			)
			c.add("crop",
				fmt.Sprintf("trunc(iw/%s/2)*2", z),
				fmt.Sprintf("trunc(ih/%s/2)*2", z),
			)
		} else {
			c.add("crop",
				fmt.Sprintf("trunc(iw/%s/2)*2", z),
				fmt.Sprintf("trunc(ih/%s/2)*2", z),
			)
		}
	}

	// 3. Rotation.
	if p.Rotation != 0 {
		c.add("rotate",
			fmt.Sprintf("a=%s*PI/180", formatFloat(p.Rotation)),
			"fillcolor=black",
		)
	}

	// 4. Color adjustment, only when something deviates from identity.
	if eq := eqOptions(p); len(eq) > 0 {
		c.add("eq", eq...)
	}
	if p.Grayscale {
		c.add("hue", "s=0")
	}

	// 5. Sharpen or blur.
	if p.Sharpen != 0 {
		c.add("unsharp",
			"luma_msize_x=5",
			"luma_msize_y=5",
			fmt.Sprintf("luma_amount=%s", formatFloat(p.Sharpen)),
		)
	}

	// 6. Cover-fit: scale so the source covers the canvas, then crop the
	// excess. The fallback resampler trades quality for speed.
	flags := "flags=lanczos"
	if mode == ModeFallback {
		flags = "flags=bilinear"
	}
	c.add("scale",
		fmt.Sprintf("%d", g.Width),
		fmt.Sprintf("%d", g.Height),
		"force_original_aspect_ratio=increase",
		flags,
	)
	c.add("crop", fmt.Sprintf("%d", g.Width), fmt.Sprintf("%d", g.Height))

	// 7. Subtitle burn-in. Fallback mode skips it entirely as a further
	// cost reduction.
	if in.Subtitles != "" && mode == ModePrimary {
		c.add("subtitles", subtitleOptions(p.Subtitles, in.Subtitles, g.Width, g.Height)...)
	}

	c.add("format", "yuv420p")
	c.seal()
}

// eqOptions returns the non-identity color options, or nil when the stage
// would be a no-op.
func eqOptions(p Params) []string {
	var opts []string
	if p.Contrast != 1 {
		opts = append(opts, "contrast="+formatFloat(p.Contrast))
	}
	if p.Brightness != 0 {
		opts = append(opts, "brightness="+formatFloat(p.Brightness))
	}
	if p.Saturation != 1 {
		opts = append(opts, "saturation="+formatFloat(p.Saturation))
	}
	if p.Gamma != 1 {
		opts = append(opts, "gamma="+formatFloat(p.Gamma))
	}
	return opts
}

// subtitleOptions derives the burn-in options. Font size and margins are
// fractions of the canvas so proportions hold at any resolution.
func subtitleOptions(s SubtitleStyle, path string, width, height int) []string {
	size := maxInt(int(math.Round(s.SizeRatio*float64(height))), 1)
	marginV := int(math.Round(s.MarginVRatio * float64(height)))
	marginH := int(math.Round(s.MarginHRatio * float64(width)))
	style := fmt.Sprintf("FontName=%s,FontSize=%d,Alignment=%d,MarginV=%d,MarginL=%d,MarginR=%d",
		s.Font, size, s.Alignment, marginV, marginH, marginH)
	return []string{
		fmt.Sprintf("filename='%s'", escapeFilterPath(path)),
		fmt.Sprintf("force_style='%s'", style),
	}
}

func (g *Graph) buildAudio(p Params, in Inputs) {
	n := 0
	pad := func() string {
		out := fmt.Sprintf("a%d", n)
		n++
		return out
	}
	add := func(inputs []string, filter string, outputs []string, options ...string) {
		g.AudioStages = append(g.AudioStages, Stage{
			Inputs:  inputs,
			Filter:  filter,
			Options: options,
			Outputs: outputs,
		})
	}

	// Narration: fixed sample rate and layout, then optional gain.
	nar := pad()
	add([]string{fmt.Sprintf("%d:a", inputNarration)}, "aresample", []string{nar}, "48000")
	next := pad()
	add([]string{nar}, "aformat", []string{next}, "sample_fmts=fltp", "channel_layouts=stereo")
	nar = next
	if p.Audio.NarrationGainDB != 0 {
		next = pad()
		add([]string{nar}, "volume", []string{next}, formatFloat(p.Audio.NarrationGainDB)+"dB")
		nar = next
	}

	if in.Music == "" {
		// Narration is the final audio pad directly.
		g.AudioStages[len(g.AudioStages)-1].Outputs = []string{AudioOutPad}
		return
	}

	// Background music: resample, volume, optional start delay.
	mus := pad()
	add([]string{fmt.Sprintf("%d:a", inputMusic)}, "aresample", []string{mus}, "48000")
	next = pad()
	add([]string{mus}, "aformat", []string{next}, "sample_fmts=fltp", "channel_layouts=stereo")
	mus = next
	if p.Audio.MusicVolume != 1 {
		next = pad()
		add([]string{mus}, "volume", []string{next}, formatFloat(p.Audio.MusicVolume))
		mus = next
	}
	if p.Audio.MusicDelayMs > 0 {
		next = pad()
		add([]string{mus}, "adelay", []string{next},
			fmt.Sprintf("delays=%d", p.Audio.MusicDelayMs), "all=1")
		mus = next
	}

	if p.Audio.Ducking {
		// Split narration into a mix copy and a sidechain control copy,
		// duck the music against the control, then mix with the copy.
		// amix duration=first keys the result off the narration length.
		narMix, narSide := pad(), pad()
		add([]string{nar}, "asplit", []string{narMix, narSide}, "2")
		duck := pad()
		add([]string{mus, narSide}, "sidechaincompress", []string{duck},
			fmt.Sprintf("threshold=%s", formatFloat(dbToLinear(p.Audio.DuckThresholdDB))),
			fmt.Sprintf("ratio=%s", formatFloat(p.Audio.DuckRatio)),
			fmt.Sprintf("attack=%s", formatFloat(p.Audio.DuckAttackMs)),
			fmt.Sprintf("release=%s", formatFloat(p.Audio.DuckReleaseMs)),
		)
		add([]string{narMix, duck}, "amix", []string{AudioOutPad},
			"inputs=2", "duration=first", "normalize=0")
		return
	}

	add([]string{nar, mus}, "amix", []string{AudioOutPad},
		"inputs=2", "duration=first", "normalize=0")
}

// dbToLinear converts a decibel value to the linear amplitude the
// sidechain compressor expects.
func dbToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
