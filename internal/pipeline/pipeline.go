// Package pipeline executes named detection pipelines over decoded video
// frames and produces a structured, serializable result.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"sort"

	"github.com/forgesyte/forgesyte/internal/video"
)

// Detector analyzes one frame at a time. A detector instance lives for a
// single pipeline run and may keep cross-frame state (previous frame,
// accumulators); Summarize is called once after the last frame.
type Detector interface {
	Detect(ctx context.Context, index int, frame image.Image) (map[string]any, error)
	Summarize() map[string]any
}

// Factory builds a fresh Detector per run.
type Factory func() Detector

// Info describes a registered pipeline for the catalog endpoint.
type Info struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

type Registry struct {
	pipelines map[string]registration
}

type registration struct {
	info    Info
	factory Factory
}

func NewRegistry() *Registry {
	return &Registry{pipelines: make(map[string]registration)}
}

func (r *Registry) Register(info Info, factory Factory) {
	r.pipelines[info.ID] = registration{info: info, factory: factory}
}

func (r *Registry) Has(id string) bool {
	_, ok := r.pipelines[id]
	return ok
}

func (r *Registry) List() []Info {
	out := make([]Info, 0, len(r.pipelines))
	for _, reg := range r.pipelines {
		out = append(out, reg.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FrameResult holds one frame's observations.
type FrameResult struct {
	Frame        int            `json:"frame"`
	Observations map[string]any `json:"observations"`
}

// Result is the value persisted as the job's output blob.
type Result struct {
	PipelineID string         `json:"pipeline_id"`
	FrameCount int            `json:"frame_count"`
	Frames     []FrameResult  `json:"frames"`
	Summary    map[string]any `json:"summary,omitempty"`
}

// Engine is the pipeline executor: it decodes frames out of the input video
// and runs the selected detector over each one.
type Engine struct {
	decoder   video.FrameDecoder
	registry  *Registry
	maxFrames int
}

func NewEngine(decoder video.FrameDecoder, registry *Registry, maxFrames int) *Engine {
	return &Engine{decoder: decoder, registry: registry, maxFrames: maxFrames}
}

func (e *Engine) Run(ctx context.Context, pipelineID string, videoBytes []byte) (*Result, error) {
	reg, ok := e.registry.pipelines[pipelineID]
	if !ok {
		return nil, fmt.Errorf("unknown pipeline %q", pipelineID)
	}

	frames, err := e.decoder.Decode(ctx, videoBytes, e.maxFrames)
	if err != nil {
		return nil, fmt.Errorf("decode frames: %w", err)
	}

	det := reg.factory()
	result := &Result{
		PipelineID: pipelineID,
		FrameCount: len(frames),
		Frames:     make([]FrameResult, 0, len(frames)),
	}
	for i, raw := range frames {
		img, err := png.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("frame %d: decode png: %w", i, err)
		}
		obs, err := det.Detect(ctx, i, img)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		result.Frames = append(result.Frames, FrameResult{Frame: i, Observations: obs})
	}
	result.Summary = det.Summarize()
	return result, nil
}
