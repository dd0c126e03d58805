package models

// Requests for the HTTP API. Defined in domain so handlers and use cases
// share one shape.

type CreateRunRequest struct {
	WindowLength    int     `json:"window_length" default:"100" validate:"gte=2,lte=2000"`
	Horizon         int     `json:"horizon" default:"50" validate:"oneof=10 20 30 50 100"`
	RecurrentUnits  int     `json:"recurrent_units" default:"64" validate:"gte=1,lte=1024"`
	BatchSize       int     `json:"batch_size" default:"64" validate:"gte=1,lte=8192"`
	Epochs          int     `json:"epochs" default:"200" validate:"gte=1,lte=10000"`
	ValidationSplit float64 `json:"validation_split" default:"0.2" validate:"gte=0,lt=1"`
	ShuffleSeed     int64   `json:"shuffle_seed" validate:"gte=0"`
	Device          string  `json:"device" validate:"omitempty,oneof=cpu gpu"`
}

type GetRunRequest struct {
	ID string `param:"id" validate:"required,uuid4"`
}

type ListRunsRequest struct {
	Status string `query:"status" validate:"omitempty,oneof=queued compiling uploading training completed failed"`
	Limit  int    `query:"limit" default:"20" validate:"gte=1,lte=200"`
}

// PredictRequest scores either the live window of an instrument or an
// explicit window supplied inline (rows are time steps, columns features).
type PredictRequest struct {
	Instrument string      `json:"instrument" query:"instrument" validate:"required_without=Window"`
	Window     [][]float64 `json:"window,omitempty" validate:"omitempty,min=2"`
	Horizon    int         `json:"horizon" query:"horizon" default:"50" validate:"oneof=10 20 30 50 100"`
}

type RecentPredictionsRequest struct {
	Instrument string `query:"instrument" validate:"required"`
	Limit      int    `query:"limit" default:"50" validate:"gte=1,lte=1000"`
}

type ModelSummaryRequest struct {
	WindowLength   int `query:"window_length" default:"100" validate:"gte=2,lte=2000"`
	NumFeatures    int `query:"num_features" default:"40" validate:"gte=2,lte=400"`
	RecurrentUnits int `query:"recurrent_units" default:"64" validate:"gte=1,lte=1024"`
}
