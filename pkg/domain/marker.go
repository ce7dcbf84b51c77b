package domain

// DiagramMarker is an approximate, conceptually-labeled point of interest on
// an analyzed image. ConceptualArea is a bounding region, not pixel-exact.
type DiagramMarker struct {
	ID                  string `json:"id"`
	ApproximatePosition Point  `json:"approximatePosition"`
	Label               string `json:"label"`
	Description         string `json:"description"`
	ConceptualArea      Rect   `json:"conceptualArea"`
}
