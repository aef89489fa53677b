// Package metrics provides the SNMP-style atomic counter struct used by
// every Wavry binary (spec §2's per-component "stats digestion" rows),
// generalized from the teacher's kcp.Snmp / std.SnmpLogger pattern
// (xtaci-kcptun std/snmp.go) into per-component counter blocks with the
// same periodic CSV logging cadence.
package metrics

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// FramingCounters tracks invalid datagrams dropped by the framing codec
// (spec §4.1, §7), broken down by rejection cause.
type FramingCounters struct {
	TooShort          atomic.Uint64
	InvalidMagic      atomic.Uint64
	UnsupportedVer    atomic.Uint64
	ChecksumMismatch  atomic.Uint64
}

// Header names the CSV columns in the same order ToSlice emits values.
func (c *FramingCounters) Header() []string {
	return []string{"TooShort", "InvalidMagic", "UnsupportedVersion", "ChecksumMismatch"}
}

// ToSlice renders the counters as strings for CSV logging.
func (c *FramingCounters) ToSlice() []string {
	return []string{
		fmt.Sprint(c.TooShort.Load()),
		fmt.Sprint(c.InvalidMagic.Load()),
		fmt.Sprint(c.UnsupportedVer.Load()),
		fmt.Sprint(c.ChecksumMismatch.Load()),
	}
}

// RelayCounters tracks the relay forwarder's rx/forwarded/drop counters
// (spec §4.6 "Metrics counters").
type RelayCounters struct {
	PacketsRx          atomic.Uint64
	BytesRx            atomic.Uint64
	PacketsForwarded   atomic.Uint64
	BytesForwarded     atomic.Uint64
	LeasePresents      atomic.Uint64
	LeaseRenews        atomic.Uint64
	DroppedPackets     atomic.Uint64
	RateLimited        atomic.Uint64
	InvalidPackets     atomic.Uint64
	AuthRejects        atomic.Uint64
}

func (c *RelayCounters) Header() []string {
	return []string{
		"PacketsRx", "BytesRx", "PacketsForwarded", "BytesForwarded",
		"LeasePresents", "LeaseRenews", "DroppedPackets", "RateLimited",
		"InvalidPackets", "AuthRejects",
	}
}

func (c *RelayCounters) ToSlice() []string {
	return []string{
		fmt.Sprint(c.PacketsRx.Load()),
		fmt.Sprint(c.BytesRx.Load()),
		fmt.Sprint(c.PacketsForwarded.Load()),
		fmt.Sprint(c.BytesForwarded.Load()),
		fmt.Sprint(c.LeasePresents.Load()),
		fmt.Sprint(c.LeaseRenews.Load()),
		fmt.Sprint(c.DroppedPackets.Load()),
		fmt.Sprint(c.RateLimited.Load()),
		fmt.Sprint(c.InvalidPackets.Load()),
		fmt.Sprint(c.AuthRejects.Load()),
	}
}

// snmpSource is anything that can render itself as a CSV row, matching the
// shape of kcp.Snmp in the teacher.
type snmpSource interface {
	Header() []string
	ToSlice() []string
}

// CSVLogger periodically appends a timestamped row of counters to path,
// writing a header on first use. Ported directly from the teacher's
// std.SnmpLogger (xtaci-kcptun std/snmp.go), generalized to any
// snmpSource rather than hardcoding kcp.DefaultSnmp.
func CSVLogger(path string, interval time.Duration, source snmpSource, stop <-chan struct{}) {
	if path == "" || interval == 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			logdir, logfile := filepath.Split(path)
			f, err := os.OpenFile(logdir+time.Now().Format(logfile), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
			if err != nil {
				log.Println(err)
				return
			}
			w := csv.NewWriter(f)
			if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
				if err := w.Write(append([]string{"Unix"}, source.Header()...)); err != nil {
					log.Println(err)
				}
			}
			if err := w.Write(append([]string{fmt.Sprint(time.Now().Unix())}, source.ToSlice()...)); err != nil {
				log.Println(err)
			}
			w.Flush()
			f.Close()
		}
	}
}
