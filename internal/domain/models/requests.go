package models

// Requests for the fractal HTTP endpoints.

type FocusPackRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,symbol"`
	Focus  string `query:"focus" json:"focus" default:"30d"`
	Phase  string `query:"phase" json:"phase"`
	Mode   string `query:"mode" json:"mode" default:"hybrid" validate:"oneof=synthetic replay hybrid"`
}

type TerminalRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,symbol"`
	Focus  string `query:"focus" json:"focus" default:"30d"`
	Preset string `query:"preset" json:"preset" default:"balanced" validate:"oneof=conservative balanced aggressive CONSERVATIVE BALANCED AGGRESSIVE"`
	Set    string `query:"set" json:"set" default:"default" validate:"oneof=default extended"`
}

type CandlesRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,symbol"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	Limit  int    `query:"limit" json:"limit" default:"1000" validate:"gte=1,lte=50000"`
}

type SnapshotsRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,symbol"`
	Limit  int    `query:"limit" json:"limit" default:"36" validate:"gte=1,lte=1000"`
}

type StreamRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,symbol"`
}

type WriteSnapshotsRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,symbol"`
}

type MemoryRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,symbol"`
}

type LatestSnapshotRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,symbol"`
	Focus  string `query:"focus" json:"focus" default:"30d"`
	Preset string `query:"preset" json:"preset" default:"balanced" validate:"oneof=conservative balanced aggressive CONSERVATIVE BALANCED AGGRESSIVE"`
}

type IntelTimelineRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,symbol"`
	Window int    `query:"window" json:"window" default:"90" validate:"gte=7,lte=730"`
}
