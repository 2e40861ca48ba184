package graph

import "github.com/ritzau/relgraph/pkg/model"

// Node colors, one per classification.
const (
	ColorStart   = "#3bd671"
	ColorEnd     = "#ff5c6c"
	ColorOnPath  = "#6b5cff"
	ColorOffPath = "#8a94a6"
)

// ColorFor returns the render color of a classification.
func ColorFor(c model.Classification) string {
	switch c {
	case model.ClassStart:
		return ColorStart
	case model.ClassEnd:
		return ColorEnd
	case model.ClassOnPath:
		return ColorOnPath
	default:
		return ColorOffPath
	}
}

// ValFor returns the node size hint of a classification.
func ValFor(c model.Classification) float64 {
	switch c {
	case model.ClassStart, model.ClassEnd:
		return 3
	case model.ClassOnPath:
		return 2
	default:
		return 1
	}
}
