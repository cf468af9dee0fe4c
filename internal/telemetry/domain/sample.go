package telemetry

import (
	"context"
	"time"
)

// Sample is the per-minute scalar telemetry for one site.
type Sample struct {
	SiteID       string
	TS           time.Time
	SoCPct       float64
	PowerKW      float64
	AmbientTempC float64
}

// RackCells carries the raw per-cell arrays for one rack at one timestamp.
type RackCells struct {
	SiteID     string
	RackID     string
	TS         time.Time
	CellIDs    []string
	VoltagesMV []float64
	TempsC     []float64
}

// SampleReader loads the latest scalar sample for a site.
type SampleReader interface {
	LatestSample(ctx context.Context, siteID string) (*Sample, error)
}

// CellReader loads the latest per-rack cell arrays for a site.
type CellReader interface {
	LatestRackCells(ctx context.Context, siteID string) ([]RackCells, error)
}
