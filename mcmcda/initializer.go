package mcmcda

import (
	"fmt"

	"github.com/arthurkushman/go-hungarian"
	"github.com/pkg/errors"
)

// MatchingAlgorithm is for algorithm type for linking detections to open tracks
type MatchingAlgorithm uint16

const (
	// MatchingAlgorithmHungarian uses the Hungarian algorithm (Kuhn-Munkres) for optimal assignment
	MatchingAlgorithmHungarian MatchingAlgorithm = iota
	// MatchingAlgorithmGreedy links closest pairs first
	MatchingAlgorithmGreedy
)

func (algorithm MatchingAlgorithm) String() string {
	switch algorithm {
	case MatchingAlgorithmHungarian:
		return "hungarian"
	case MatchingAlgorithmGreedy:
		return "greedy"
	default:
		return fmt.Sprintf("MatchingAlgorithm(%d)", uint16(algorithm))
	}
}

// ParseMatchingAlgorithm parses name returned by MatchingAlgorithm.String
func ParseMatchingAlgorithm(name string) (MatchingAlgorithm, error) {
	switch name {
	case "hungarian":
		return MatchingAlgorithmHungarian, nil
	case "greedy":
		return MatchingAlgorithmGreedy, nil
	default:
		return 0, errors.Wrapf(ErrInvalidConfig, "unknown matching algorithm '%s'", name)
	}
}

// Initialize builds a starting association by linking detections frame by frame.
// A track stays open for d_bar frames after its last detection; links must be neighbors
// in the v_bar sense. Tracks which end up with a single frame are dropped, so their
// detections stay dead.
func (p *Proposer[D]) Initialize(data *Data[D], algorithm MatchingAlgorithm) *Association[D] {
	tracks := make([]*Track[D], 0)
	open := make([]int, 0)
	for t := 1; t <= data.Size(); t++ {
		// Close tracks which can't be continued any more
		stillOpen := open[:0]
		for _, idx := range open {
			if t-tracks[idx].EndTime() <= p.cfg.DBar {
				stillOpen = append(stillOpen, idx)
			}
		}
		open = stillOpen

		refs := data.Refs(t)
		links := p.gatedLinks(tracks, open, refs, t)
		var matches [][2]int
		switch algorithm {
		case MatchingAlgorithmGreedy:
			matches = matchGreedy(links)
		default:
			matches = matchHungarian(links, len(open), len(refs))
		}

		matched := make(map[int]struct{}, len(matches))
		for _, match := range matches {
			tracks[open[match[0]]].Insert(refs[match[1]])
			matched[match[1]] = struct{}{}
		}
		// Unmatched detections start new tracks
		for i, ref := range refs {
			if _, ok := matched[i]; ok {
				continue
			}
			tracks = append(tracks, NewTrackFrom(ref))
			open = append(open, len(tracks)-1)
		}
	}

	w := NewAssociation(data)
	for _, track := range tracks {
		if track.RealSize() < 2 {
			continue
		}
		w.Insert(track)
	}
	p.logger.Debug("association initialized", "algorithm", algorithm, "tracks", w.Len(), "detections", data.Total())
	return w
}

// gatedLinks returns links between open tracks and detections of frame t.
// Link is kept only when detection is reachable from the end of the track.
func (p *Proposer[D]) gatedLinks(tracks []*Track[D], open []int, refs []Ref[D], t int) []link {
	links := make([]link, 0)
	for i, idx := range open {
		last := tracks[idx].Last()
		from := p.convert(last.Det)
		d := t - last.Time
		for j, ref := range refs {
			to := p.convert(ref.Det)
			if !isNeighbor(from, to, d, p.cfg.DBar, p.cfg.VBar, p.cfg.NoiseVariance) {
				continue
			}
			links = append(links, link{track: i, det: j, distance: euclideanDistance(from, to)})
		}
	}
	return links
}

// matchGreedy takes closest links first
func matchGreedy(links []link) [][2]int {
	h := make(linkHeap, 0, len(links))
	for _, l := range links {
		h.Push(l)
	}
	matches := make([][2]int, 0)
	usedTracks := make(map[int]struct{})
	usedDets := make(map[int]struct{})
	for h.Len() > 0 {
		l := h.Pop()
		if _, ok := usedTracks[l.track]; ok {
			continue
		}
		if _, ok := usedDets[l.det]; ok {
			continue
		}
		usedTracks[l.track] = struct{}{}
		usedDets[l.det] = struct{}{}
		matches = append(matches, [2]int{l.track, l.det})
	}
	return matches
}

// matchHungarian maximizes total similarity of links. Similarity of a link is positive and decreases
// with distance; pairs without link get zero and are never matched.
func matchHungarian(links []link, numTracks, numDetections int) [][2]int {
	if len(links) == 0 {
		return [][2]int{}
	}
	// Pad to make it square
	size := maxInt(numTracks, numDetections)
	similarity := make([][]float64, size)
	for i := range similarity {
		similarity[i] = make([]float64, size)
	}
	for _, l := range links {
		similarity[l.track][l.det] = 1.0 / (1.0 + l.distance)
	}
	assignments := hungarian.SolveMax(similarity)
	matches := make([][2]int, 0)
	for trackIndex, row := range assignments {
		for detIndex := range row {
			if trackIndex >= numTracks || detIndex >= numDetections {
				continue
			}
			if similarity[trackIndex][detIndex] <= 0 {
				continue
			}
			matches = append(matches, [2]int{trackIndex, detIndex})
		}
	}
	return matches
}
