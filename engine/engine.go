// Package engine talks to the analysis engine that embeds, clusters and
// summarizes comment text.
package engine

// Group is one opinion cluster proposed by the engine. Members and
// Representatives index into the texts slice sent with the request.
type Group struct {
	Members         []int  `json:"members"`
	Label           string `json:"label"`
	Summary         string `json:"summary"`
	Stance          string `json:"stance"`
	Representatives []int  `json:"representatives"`
}

// Point is a raw, un-normalized 2-D ordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Digest describes a finished cluster when asking for a video-wide summary.
type Digest struct {
	Label   string `json:"label"`
	Summary string `json:"summary"`
	Stance  string `json:"stance"`
	Size    int    `json:"size"`
}

type Summary struct {
	Overall string `json:"overall_summary"`
	Outline string `json:"issue_outline"`
}
