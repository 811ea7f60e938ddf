package pipeline

import (
	"context"
	"image"
	"math"
)

// DefaultRegistry returns the built-in pipeline catalog.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Info{
		ID:          "detect-v1",
		Description: "per-frame luminance statistics with inter-frame motion detection",
	}, func() Detector { return &motionDetector{} })
	r.Register(Info{
		ID:          "meta-v1",
		Description: "frame geometry and brightness metadata",
	}, func() Detector { return &metaDetector{} })
	return r
}

// lumaStride subsamples pixels when scanning a frame; full-resolution scans
// buy nothing for scene-level statistics.
const lumaStride = 4

// motionDiffThreshold is the per-sample luma delta (0..255) that counts a
// sample as changed between consecutive frames.
const motionDiffThreshold = 24.0

// motionRatioThreshold is the changed-sample fraction above which a frame is
// flagged as containing motion.
const motionRatioThreshold = 0.05

type motionDetector struct {
	prev        []float64
	motionCount int
}

func (d *motionDetector) Detect(_ context.Context, _ int, frame image.Image) (map[string]any, error) {
	samples := sampleLuma(frame)

	var sum float64
	for _, v := range samples {
		sum += v
	}
	mean := sum / float64(len(samples))

	motion := false
	changedRatio := 0.0
	if d.prev != nil && len(d.prev) == len(samples) {
		changed := 0
		for i, v := range samples {
			if math.Abs(v-d.prev[i]) > motionDiffThreshold {
				changed++
			}
		}
		changedRatio = float64(changed) / float64(len(samples))
		motion = changedRatio > motionRatioThreshold
	}
	if motion {
		d.motionCount++
	}
	d.prev = samples

	return map[string]any{
		"mean_luma":     round2(mean),
		"changed_ratio": round2(changedRatio),
		"motion":        motion,
	}, nil
}

func (d *motionDetector) Summarize() map[string]any {
	return map[string]any{"motion_frames": d.motionCount}
}

type metaDetector struct {
	width, height int
	frames        int
	lumaSum       float64
}

func (d *metaDetector) Detect(_ context.Context, _ int, frame image.Image) (map[string]any, error) {
	b := frame.Bounds()
	d.width, d.height = b.Dx(), b.Dy()
	d.frames++

	samples := sampleLuma(frame)
	var sum float64
	for _, v := range samples {
		sum += v
	}
	mean := sum / float64(len(samples))
	d.lumaSum += mean

	return map[string]any{
		"width":     b.Dx(),
		"height":    b.Dy(),
		"mean_luma": round2(mean),
	}, nil
}

func (d *metaDetector) Summarize() map[string]any {
	avg := 0.0
	if d.frames > 0 {
		avg = d.lumaSum / float64(d.frames)
	}
	return map[string]any{
		"width":    d.width,
		"height":   d.height,
		"avg_luma": round2(avg),
	}
}

// sampleLuma returns Rec. 601 luma values (0..255) for a subsampled pixel
// grid. Always returns at least one sample for a non-empty image.
func sampleLuma(frame image.Image) []float64 {
	b := frame.Bounds()
	out := make([]float64, 0, (b.Dx()/lumaStride+1)*(b.Dy()/lumaStride+1))
	for y := b.Min.Y; y < b.Max.Y; y += lumaStride {
		for x := b.Min.X; x < b.Max.X; x += lumaStride {
			r, g, bl, _ := frame.At(x, y).RGBA()
			luma := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 257.0
			out = append(out, luma)
		}
	}
	if len(out) == 0 {
		out = append(out, 0)
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
