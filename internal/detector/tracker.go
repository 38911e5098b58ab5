package detector

import "sort"

// Track is a detection followed across frames.
type Track struct {
	ID        int
	Detection Detection
	Hits      int // Frames in which the track was matched
	Missed    int // Consecutive frames without a match
}

// Tracker assigns persistent IDs to detections by IoU matching against the
// previous frame.
type Tracker struct {
	minIoU    float64
	maxMissed int
	nextID    int
	tracks    []*Track
}

// NewTracker creates a tracker. A detection continues a track of the same
// class when their IoU is at least minIoU; a track is dropped after more
// than maxMissed consecutive frames without a match.
func NewTracker(minIoU float64, maxMissed int) *Tracker {
	return &Tracker{minIoU: minIoU, maxMissed: maxMissed, nextID: 1}
}

type candidate struct {
	track, det int
	iou        float64
}

// Update matches dets against the live tracks and returns the tracks seen
// in this frame, ordered by ID.
func (t *Tracker) Update(dets []Detection) []Track {
	var cands []candidate
	for ti, tr := range t.tracks {
		for di, d := range dets {
			if tr.Detection.ClassID != d.ClassID {
				continue
			}
			if iou := IoU(tr.Detection.Box, d.Box); iou >= t.minIoU {
				cands = append(cands, candidate{ti, di, iou})
			}
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].iou > cands[j].iou })

	trackUsed := make([]bool, len(t.tracks))
	detUsed := make([]bool, len(dets))
	for _, c := range cands {
		if trackUsed[c.track] || detUsed[c.det] {
			continue
		}
		trackUsed[c.track] = true
		detUsed[c.det] = true
		tr := t.tracks[c.track]
		tr.Detection = dets[c.det]
		tr.Hits++
		tr.Missed = 0
	}

	live := t.tracks[:0]
	for i, tr := range t.tracks {
		if !trackUsed[i] {
			tr.Missed++
			if tr.Missed > t.maxMissed {
				continue
			}
		}
		live = append(live, tr)
	}
	t.tracks = live

	for i, d := range dets {
		if detUsed[i] {
			continue
		}
		t.tracks = append(t.tracks, &Track{ID: t.nextID, Detection: d, Hits: 1})
		t.nextID++
	}

	var seen []Track
	for _, tr := range t.tracks {
		if tr.Missed == 0 {
			seen = append(seen, *tr)
		}
	}
	sort.Slice(seen, func(i, j int) bool { return seen[i].ID < seen[j].ID })
	return seen
}

// Len is the number of live tracks, including ones currently unmatched.
func (t *Tracker) Len() int {
	return len(t.tracks)
}
