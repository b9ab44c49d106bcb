// Package server provides the HTTP surface of the render API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/clipforge/render-api/internal/job"
	"github.com/clipforge/render-api/internal/pipeline"
)

// CreateJobRequest is the HTTP request body for submitting a render job.
// Effect values outside their documented ranges are rejected up front;
// omitted values fall back to defaults during normalization.
type CreateJobRequest struct {
	// VideoURL is the remote location of the source video.
	VideoURL string `json:"video_url" validate:"required,url"`
	// AudioURL is the remote location of the narration track.
	AudioURL string `json:"audio_url" validate:"required,url"`
	// SubtitlesURL optionally points at a subtitle file to burn in.
	SubtitlesURL string `json:"subtitles_url,omitempty" validate:"omitempty,url"`
	// MusicURL optionally points at a background music track.
	MusicURL string `json:"music_url,omitempty" validate:"omitempty,url"`

	Effects       EffectsRequest  `json:"effects"`
	SubtitleStyle SubtitleRequest `json:"subtitle_style"`
	Audio         AudioRequest    `json:"audio"`
	Encode        EncodeRequest   `json:"encode"`

	// Upload requests an S3 upload of the finished artifact.
	Upload bool `json:"upload"`
}

// EffectsRequest holds the visual effect parameters.
type EffectsRequest struct {
	Mirror     bool    `json:"mirror"`
	Zoom       float64 `json:"zoom" validate:"omitempty,min=1,max=3"`
	Rotation   float64 `json:"rotation" validate:"omitempty,min=-180,max=180"`
	Width      int     `json:"width" validate:"omitempty,min=2,max=7680"`
	Height     int     `json:"height" validate:"omitempty,min=2,max=7680"`
	Contrast   float64 `json:"contrast" validate:"omitempty,min=0,max=2"`
	Brightness float64 `json:"brightness" validate:"omitempty,min=-1,max=1"`
	Saturation float64 `json:"saturation" validate:"omitempty,min=0,max=3"`
	Gamma      float64 `json:"gamma" validate:"omitempty,min=0.1,max=10"`
	Grayscale  bool    `json:"grayscale"`
	Sharpen    float64 `json:"sharpen" validate:"omitempty,min=-2,max=5"`
}

// SubtitleRequest styles the burned-in subtitles.
type SubtitleRequest struct {
	Font         string  `json:"font"`
	SizeRatio    float64 `json:"size_ratio" validate:"omitempty,min=0.01,max=0.2"`
	MarginVRatio float64 `json:"margin_v_ratio" validate:"omitempty,min=0,max=0.4"`
	MarginHRatio float64 `json:"margin_h_ratio" validate:"omitempty,min=0,max=0.4"`
	Alignment    int     `json:"alignment" validate:"omitempty,min=1,max=9"`
}

// AudioRequest holds the audio mix parameters.
type AudioRequest struct {
	NarrationGainDB float64 `json:"narration_gain_db" validate:"omitempty,min=-30,max=30"`
	MusicVolume     float64 `json:"music_volume" validate:"omitempty,min=0,max=2"`
	MusicDelayMs    int     `json:"music_delay_ms" validate:"omitempty,min=0"`
	Ducking         bool    `json:"ducking"`
	DuckThresholdDB float64 `json:"duck_threshold_db" validate:"omitempty,min=-60,max=0"`
	DuckRatio       float64 `json:"duck_ratio" validate:"omitempty,min=1,max=20"`
	DuckAttackMs    float64 `json:"duck_attack_ms" validate:"omitempty,min=0.01,max=2000"`
	DuckReleaseMs   float64 `json:"duck_release_ms" validate:"omitempty,min=0.01,max=9000"`
}

// EncodeRequest holds the encoder parameters.
type EncodeRequest struct {
	CRF              int    `json:"crf" validate:"omitempty,min=0,max=51"`
	Preset           string `json:"preset" validate:"omitempty,oneof=ultrafast superfast veryfast faster fast medium slow slower veryslow"`
	VideoBitrate     string `json:"video_bitrate"`
	Threads          int    `json:"threads" validate:"omitempty,min=1,max=16"`
	KeyframeInterval int    `json:"keyframe_interval" validate:"omitempty,min=1,max=600"`
	LoopVideo        bool   `json:"loop_video"`
}

// ToParams converts the request into a normalized job parameter set.
func (r *CreateJobRequest) ToParams() job.Params {
	effects := pipeline.Params{
		Mirror:     r.Effects.Mirror,
		Zoom:       r.Effects.Zoom,
		Rotation:   r.Effects.Rotation,
		Width:      r.Effects.Width,
		Height:     r.Effects.Height,
		Contrast:   r.Effects.Contrast,
		Brightness: r.Effects.Brightness,
		Saturation: r.Effects.Saturation,
		Gamma:      r.Effects.Gamma,
		Grayscale:  r.Effects.Grayscale,
		Sharpen:    r.Effects.Sharpen,
		Subtitles: pipeline.SubtitleStyle{
			Font:         r.SubtitleStyle.Font,
			SizeRatio:    r.SubtitleStyle.SizeRatio,
			MarginVRatio: r.SubtitleStyle.MarginVRatio,
			MarginHRatio: r.SubtitleStyle.MarginHRatio,
			Alignment:    r.SubtitleStyle.Alignment,
		},
		Audio: pipeline.AudioParams{
			NarrationGainDB: r.Audio.NarrationGainDB,
			MusicVolume:     r.Audio.MusicVolume,
			MusicDelayMs:    r.Audio.MusicDelayMs,
			Ducking:         r.Audio.Ducking,
			DuckThresholdDB: r.Audio.DuckThresholdDB,
			DuckRatio:       r.Audio.DuckRatio,
			DuckAttackMs:    r.Audio.DuckAttackMs,
			DuckReleaseMs:   r.Audio.DuckReleaseMs,
		},
		Encode: pipeline.EncodeParams{
			CRF:              r.Encode.CRF,
			Preset:           r.Encode.Preset,
			VideoBitrate:     r.Encode.VideoBitrate,
			Threads:          r.Encode.Threads,
			KeyframeInterval: r.Encode.KeyframeInterval,
			LoopVideo:        r.Encode.LoopVideo,
		},
	}
	effects.Normalize()

	return job.Params{
		VideoURL:     r.VideoURL,
		AudioURL:     r.AudioURL,
		SubtitlesURL: r.SubtitlesURL,
		MusicURL:     r.MusicURL,
		Effects:      effects,
		Upload:       r.Upload,
	}
}

// CreateJobResponse is the HTTP response after submitting a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
	// StatusURL is where the job can be polled.
	StatusURL string `json:"status_url"`
	// ResultURL is where the finished artifact can be fetched.
	ResultURL string `json:"result_url"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	// Error contains the failure diagnostic if the job ended in error.
	Error string `json:"error,omitempty"`
	// ResultURL is the S3 URL of the artifact if an upload was requested.
	ResultURL   string     `json:"result_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at,omitzero"`
	UpdatedAt   time.Time  `json:"updated_at,omitzero"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
	// QueueDepth is the number of jobs waiting for a slot.
	QueueDepth int `json:"queue_depth"`
	// InFlight is the number of renders currently running.
	InFlight int `json:"in_flight"`
}
