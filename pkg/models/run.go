package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Run is the persisted form of a MeasurementResult. Optional figures use
// pointer columns so an unavailable value stays NULL in the database.
type Run struct {
	bun.BaseModel `bun:"table:runs,alias:r"`

	ID            int64     `bun:",pk,autoincrement"`
	RunID         string    `bun:",unique,notnull"`
	Time          time.Time `bun:",notnull"`
	ServerHost    string
	ServerName    string
	ServerCountry string
	Address       string `bun:",notnull"`
	UsedFallback  bool   `bun:",notnull"`

	SuccessfulTrials  int
	AvgDownloadMbps   *float64
	AvgUploadMbps     *float64
	AvgDownloadDataMB *float64
	AvgUploadDataMB   *float64

	PacketLossPct float64
	PingLowMs     *float64
	PingHighMs    *float64
	PingAvgMs     *float64
	PingJitterMs  *float64

	ExternalIP string
	ISP        string
	Location   string
	Device     string

	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

// RunFromResult flattens a MeasurementResult into its database row.
func RunFromResult(res *MeasurementResult) *Run {
	run := &Run{
		RunID:        res.RunID,
		Time:         res.Time,
		Address:      res.Endpoint.Addr.String(),
		UsedFallback: res.UsedFallback,
	}

	if c := res.Endpoint.Candidate; c != nil {
		run.ServerHost = c.Host
		run.ServerName = c.DisplayName
		run.ServerCountry = c.Country
	}

	if t := res.Trials; t != nil {
		run.SuccessfulTrials = t.SuccessfulTrials
		run.AvgDownloadMbps = &t.AvgDownloadMbps
		run.AvgUploadMbps = &t.AvgUploadMbps
		run.AvgDownloadDataMB = &t.AvgDownloadDataMB
		run.AvgUploadDataMB = &t.AvgUploadDataMB
	}

	run.PacketLossPct = res.PacketLossPct
	if l := res.Latency; l != nil {
		run.PingLowMs = &l.LowMs
		run.PingHighMs = &l.HighMs
		run.PingAvgMs = &l.AvgMs
		run.PingJitterMs = &l.JitterMs
	}

	if ci := res.Client; ci != nil {
		run.ExternalIP = ci.ExternalIP
		run.ISP = ci.ISP
		run.Location = ci.Location
		run.Device = ci.Device
	}

	return run
}
