package client

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"comment-map/constant"
	"comment-map/dto"
	"comment-map/projector"
)

// TooltipSize is the fixed box the map reserves for a hovered cluster.
var TooltipSize = projector.Size{Width: 240, Height: 120}

type Marker struct {
	ClusterId uuid.UUID
	Label     string
	Center    projector.Point
	Radius    float64
	Color     string
	Size      int
}

type Tooltip struct {
	Cluster  dto.ClusterResponse
	Position projector.Point
}

// MapView owns the state of one rendered map: its poller, the loaded video,
// the viewport, the pointer and the hovered cluster. Views share nothing.
type MapView struct {
	poller *Poller

	mu       sync.Mutex
	watchGen uint64
	viewport projector.Size
	status   dto.JobStatusResponse
	video    *dto.VideoResponse
	outcome  *Outcome
	pointer  projector.Point
	hovered  *uuid.UUID
}

func NewMapView(api StatusAPI, interval time.Duration, viewport projector.Size) *MapView {
	return &MapView{
		poller:   NewPoller(api, interval),
		viewport: viewport,
	}
}

// Watch starts following jobId, replacing any job the view was following.
// onDone fires once with the final outcome unless the view is closed or
// re-watched first.
func (v *MapView) Watch(ctx context.Context, jobId uuid.UUID, onDone func(Outcome)) {
	v.poller.Cancel()

	v.mu.Lock()
	v.watchGen++
	gen := v.watchGen
	v.status = dto.JobStatusResponse{}
	v.video, v.outcome, v.hovered = nil, nil, nil
	v.mu.Unlock()

	v.poller.Start(ctx, jobId, func(status dto.JobStatusResponse) {
		v.mu.Lock()
		if v.watchGen == gen {
			v.status = status
		}
		v.mu.Unlock()
	}, func(outcome Outcome) {
		v.mu.Lock()
		current := v.watchGen == gen
		if current {
			v.outcome = &outcome
			v.video = outcome.Video
		}
		v.mu.Unlock()
		if current && onDone != nil {
			onDone(outcome)
		}
	})
}

// Close stops polling. The view keeps whatever it already loaded.
func (v *MapView) Close() {
	v.poller.Cancel()
}

func (v *MapView) Status() dto.JobStatusResponse {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status
}

func (v *MapView) Video() *dto.VideoResponse {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.video
}

// SetVideo shows an already loaded video without polling.
func (v *MapView) SetVideo(video *dto.VideoResponse) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.watchGen++
	v.video = video
	v.hovered = nil
}

func (v *MapView) Resize(viewport projector.Size) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.viewport = viewport
}

func (v *MapView) Markers() []Marker {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.markers()
}

func (v *MapView) markers() []Marker {
	if v.video == nil {
		return nil
	}
	markers := make([]Marker, 0, len(v.video.Clusters))
	for i, c := range v.video.Clusters {
		markers = append(markers, Marker{
			ClusterId: c.Id,
			Label:     c.Label,
			Center:    projector.Position(c.OrdX, c.OrdY, v.viewport.Width, v.viewport.Height),
			Radius:    projector.MarkerRadius(c.Size),
			Color:     projector.Color(c.Stance, i),
			Size:      c.Size,
		})
	}
	return markers
}

// PointerMove records the pointer and returns the tooltip for the cluster
// under it, if any. Overlapping markers resolve to the one drawn last.
func (v *MapView) PointerMove(pointer projector.Point) *Tooltip {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pointer = pointer
	v.hovered = nil

	markers := v.markers()
	for i := len(markers) - 1; i >= 0; i-- {
		m := markers[i]
		if math.Hypot(pointer.X-m.Center.X, pointer.Y-m.Center.Y) > m.Radius {
			continue
		}
		id := m.ClusterId
		v.hovered = &id
		return &Tooltip{
			Cluster:  v.video.Clusters[i],
			Position: projector.PlaceTooltip(pointer, v.viewport, TooltipSize, projector.DefaultTooltipMargin, projector.DefaultTooltipMinOffset),
		}
	}
	return nil
}

func (v *MapView) PointerLeave() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.hovered = nil
}

func (v *MapView) Hovered() *uuid.UUID {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hovered
}

// Ranked lists the clusters largest first, keeping list order among ties.
func (v *MapView) Ranked() []dto.ClusterResponse {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.video == nil {
		return nil
	}
	ranked := append([]dto.ClusterResponse(nil), v.video.Clusters...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Size > ranked[j].Size })
	return ranked
}

func (v *MapView) Breakdown() []projector.Segment {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.video == nil {
		return nil
	}
	stances := make([]*constant.Stance, len(v.video.Clusters))
	sizes := make([]int, len(v.video.Clusters))
	for i, c := range v.video.Clusters {
		stances[i], sizes[i] = c.Stance, c.Size
	}
	return projector.StanceBreakdown(stances, sizes)
}

// Outcome is the final result of the last watched job, nil while polling.
func (v *MapView) Outcome() *Outcome {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.outcome
}
