// Package report formats a MeasurementResult for the console and appends a
// one-line record to a results log file. Optional figures render as "n/a"
// here and nowhere else.
package report

import (
	"fmt"
	"log"
	"os"
	"strings"

	"netquality-tester/pkg/models"
)

func Print(printer *log.Logger, res *models.MeasurementResult) {
	printer.Printf("Date: %s\n", res.Time.Format("January 2, 2006 @ 3:04 PM"))
	printer.Printf("Run: %s\n", res.RunID)

	if c := res.Endpoint.Candidate; c != nil {
		printer.Printf("Server: %s (advertised latency: %.3f ms)\n", c.Host, c.AdvertisedLatencyMs)
		printer.Printf("Server location: %s, %s\n", c.DisplayName, c.Country)
	} else {
		printer.Printf("Server: fallback\n")
	}
	printer.Printf("Address: %s\n", res.Endpoint.Addr)
	if res.UsedFallback {
		printer.Printf("Note: no catalog server was reachable; measured against the fallback address\n")
	}
	printer.Println()

	if ci := res.Client; ci != nil {
		printer.Printf("Connection: %s\n", orNA(ci.ISP))
		printer.Printf("Device: %s\n", orNA(ci.Device))
		printer.Printf("Internal IP: %s\n", orNA(ci.InternalIP))
		printer.Printf("External IP: %s\n", orNA(ci.ExternalIP))
		printer.Printf("Location: %s\n", orNA(ci.Location))
		printer.Println()
	}

	if t := res.Trials; t != nil {
		printer.Printf("Download: %.2f Mbps (data used: %.2f MB)\n", t.AvgDownloadMbps, t.AvgDownloadDataMB)
		printer.Printf("Upload: %.2f Mbps (data used: %.2f MB)\n", t.AvgUploadMbps, t.AvgUploadDataMB)
		printer.Printf("Successful trials: %d\n", t.SuccessfulTrials)
	} else {
		printer.Printf("Throughput: n/a (all trials failed)\n")
	}
	printer.Println()

	printer.Printf("Packet loss: %.2f%%\n", res.PacketLossPct)
	if l := res.Latency; l != nil {
		printer.Printf("Ping: %.2f ms (low: %.2f ms, high: %.2f ms, jitter: %.2f ms, n=%d)\n",
			l.AvgMs, l.LowMs, l.HighMs, l.JitterMs, l.NSamples)
	} else {
		printer.Printf("Ping: n/a\n")
	}
}

// AppendLog writes a single-line record to the results log.
func AppendLog(path string, res *models.MeasurementResult) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening results log: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, logLine(res)); err != nil {
		return fmt.Errorf("writing results log: %w", err)
	}
	return nil
}

func logLine(res *models.MeasurementResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s: run=%s addr=%s fallback=%t", res.Time.Format("2006-01-02 15:04:05"), res.RunID, res.Endpoint.Addr, res.UsedFallback)
	if c := res.Endpoint.Candidate; c != nil {
		fmt.Fprintf(&b, " server=%s", c.Host)
	}
	if t := res.Trials; t != nil {
		fmt.Fprintf(&b, " down=%.2fMbps up=%.2fMbps trials=%d", t.AvgDownloadMbps, t.AvgUploadMbps, t.SuccessfulTrials)
	} else {
		b.WriteString(" down=n/a up=n/a trials=0")
	}
	fmt.Fprintf(&b, " loss=%.2f%%", res.PacketLossPct)
	if l := res.Latency; l != nil {
		fmt.Fprintf(&b, " ping=%.2fms jitter=%.2fms", l.AvgMs, l.JitterMs)
	} else {
		b.WriteString(" ping=n/a")
	}

	return b.String()
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}
