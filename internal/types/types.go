package types

// Request is one framed message sent to a child worker (Blender bridge or segmentation worker).
// Op selects the handler on the other side; Args carries its JSON payload.
type Request struct {
	Op   string `json:"op"`
	Args any    `json:"args,omitempty"`
}

// ErrorResult captures the error object returned by a worker on failure
type ErrorResult struct {
	Error string `json:"error"`
}

// Box is an axis-aligned pixel rectangle in xyxy form, [x1, y1, x2, y2].
type Box [4]float64

// Detection is one object found by the detector
type Detection struct {
	Box        Box     `json:"box"`
	Confidence float32 `json:"confidence"`
	Class      int     `json:"class"`
}

// Light is one light of the render rig, in world coordinates
type Light struct {
	Type     string     `json:"type"` // SUN, POINT, AREA
	Location [3]float64 `json:"location"`
	Energy   float64    `json:"energy"`
	Size     float64    `json:"size,omitempty"` // AREA only
}

// ImportResult matches the bridge's reply to an import: the active object's
// name and its eight world-space bounding box corners.
type ImportResult struct {
	Object  string       `json:"object"`
	Corners [][3]float64 `json:"corners"`
}

// RenderFrame is sent to the bridge for every sampled pose.
type RenderFrame struct {
	Index    int        `json:"index"`
	Location [3]float64 `json:"location"`
	Rotation [3]float64 `json:"rotation"` // Euler XYZ, radians
	Path     string     `json:"path"`
}

// SegmentRequest asks the segmentation worker for one box-prompted mask.
type SegmentRequest struct {
	Checkpoint string `json:"checkpoint"`
	ImageKey   string `json:"image_key"`           // lets the worker reuse embeddings for the same image
	ImageB64   string `json:"image_b64,omitempty"` // PNG, only sent when ImageKey changes
	Box        Box    `json:"box"`
}

// SegmentResult matches the JSON structure coming back from the segmentation worker
type SegmentResult struct {
	MaskB64 string `json:"mask_b64"` // single-channel PNG, non-zero = object
}
