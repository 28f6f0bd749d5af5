package scene

import "sort"

// RegenerateBeats rebuilds the scene's beat list so it always spans the full
// clip. Explicit stamps are kept (filtered to finite values inside the clip,
// sorted, deduped) and the tail past the last one is filled with a 60/bpm
// ladder. With no usable stamps the whole grid is synthesized from zero.
// Runs as the last step of Normalize and again after a tempo change.
func RegenerateBeats(s *Scene) {
	s.Meta.BPM = clampBPM(s.Meta.BPM)
	step := 60.0 / s.Meta.BPM
	dur := s.Meta.DurationSeconds

	kept := make([]float64, 0, len(s.Beats))
	for _, b := range s.Beats {
		if isFinite(b) && b >= 0 && b <= dur {
			kept = append(kept, b)
		}
	}
	sort.Float64s(kept)
	kept = dedupe(kept)

	if len(kept) == 0 {
		s.BeatsSynthesized = true
		for k := 0; ; k++ {
			t := float64(k) * step
			if t > dur+1e-9 {
				break
			}
			kept = append(kept, t)
		}
		s.Beats = kept
		return
	}

	s.BeatsSynthesized = false
	last := kept[len(kept)-1]
	for k := 1; ; k++ {
		t := last + float64(k)*step
		if t > dur+1e-9 {
			break
		}
		kept = append(kept, t)
	}
	s.Beats = kept
}

// dedupe drops stamps closer than a microsecond to their predecessor; a
// zero-length beat span would break phase math downstream.
func dedupe(sorted []float64) []float64 {
	out := sorted[:0]
	for i, b := range sorted {
		if i > 0 && b-out[len(out)-1] < 1e-6 {
			continue
		}
		out = append(out, b)
	}
	return out
}
