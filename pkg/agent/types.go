package agent

import (
	"encoding/json"
	"time"
)

// Turn is one conversational exchange unit sent to or received from the
// simulation backend.
type Turn struct {
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Timestamp time.Time       `json:"timestamp"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// RoleUser and RoleAgent are the two transcript roles the backend accepts.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// SimulationParameters are the optional physical knobs for a run. Each field
// is a bounded physical quantity; zero values are omitted from the wire body.
type SimulationParameters struct {
	Resolution      string  `json:"resolution,omitempty"`
	WindSpeed       float64 `json:"windSpeed,omitempty"`
	SolarIrradiance float64 `json:"solarIrradiance,omitempty"`
	Humidity        float64 `json:"humidity,omitempty"`
	Albedo          float64 `json:"albedo,omitempty"`
}

// GeometryBounds is an axis-aligned bounding box for the analysis domain.
type GeometryBounds struct {
	MinX float64 `json:"minX"`
	MaxX float64 `json:"maxX"`
	MinY float64 `json:"minY"`
	MaxY float64 `json:"maxY"`
}

// Geometry references the building geometry a run operates on.
type Geometry struct {
	STLFile string          `json:"stlFile,omitempty"`
	Bounds  *GeometryBounds `json:"bounds,omitempty"`
}

// SimulationRequest is the body of POST /simulation/start.
type SimulationRequest struct {
	Query      string                `json:"query"`
	Parameters *SimulationParameters `json:"parameters,omitempty"`
	Geometry   *Geometry             `json:"geometry,omitempty"`
}

// Result statuses reported by the backend.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusPending = "pending"
)

// SimulationResults carries the metrics of a completed run. PET is the
// thermal-comfort index; it is opaque to this client.
type SimulationResults struct {
	MeanPET         float64  `json:"meanPET"`
	MaxPET          float64  `json:"maxPET"`
	WindSpeed       float64  `json:"windSpeed"`
	HeatmapURL      string   `json:"heatmapUrl,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// SimulationResponse is the body returned by the start, status, and results
// endpoints. SessionID is stable for the lifetime of one run. Status
// "success" implies Results is non-nil; "error" implies it is nil.
type SimulationResponse struct {
	Status    string             `json:"status"`
	SessionID string             `json:"sessionId"`
	Message   string             `json:"message"`
	Results   *SimulationResults `json:"results,omitempty"`
	Progress  int                `json:"progress,omitempty"`
}

// Export formats accepted by the export endpoint.
const (
	FormatPDF = "pdf"
	FormatCSV = "csv"
	FormatVTK = "vtk"
)
