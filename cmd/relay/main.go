// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli"

	"github.com/wavry-io/wavry/internal/metrics"
	"github.com/wavry-io/wavry/internal/relay"
	"github.com/wavry-io/wavry/internal/wavryconfig"
)

// VERSION is populated via build flags when packaging official binaries,
// same convention as cmd/host and cmd/client.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	app := cli.NewApp()
	app.Name = "wavry-relay"
	app.Usage = "Wavry relay forwarder"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "listen", Value: ":7891", Usage: "UDP listen address"},
		cli.StringFlag{Name: "master-url", Usage: "Master registration/heartbeat base URL"},
		cli.StringFlag{Name: "master-public-key", Usage: "hex-encoded PASETO v4.public Master key"},
		cli.IntFlag{Name: "max-sessions", Value: 256, Usage: "maximum concurrently bound relay sessions"},
		cli.IntFlag{Name: "idle-timeout", Value: 60, Usage: "seconds of no traffic before a session is reaped"},
		cli.IntFlag{Name: "lease-duration-secs", Value: 300, Usage: "lease lifetime granted on LeasePresent/LeaseRenew"},
		cli.IntFlag{Name: "ip-rate-limit-pps", Value: 1000, Usage: "per-source-IP packets/sec token bucket"},
		cli.StringFlag{Name: "region", Usage: "advertised region tag for Master registration"},
		cli.IntFlag{Name: "asn", Usage: "advertised ASN for Master registration"},
		cli.IntFlag{Name: "max-bitrate", Usage: "advertised max per-session bitrate (kbps) for Master registration"},
		cli.StringFlag{Name: "metrics-listen", Value: ":9091", Usage: "Prometheus /metrics listen address"},
		cli.BoolFlag{Name: "insecure-dev", Usage: "run without lease verification (dev only, see WAVRY_ALLOW_INSECURE_RELAY)"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Fatalln(err)
	}
}

const cleanupInterval = 10 * time.Second // spec §5: "relay cleanup every 10 s"

func run(c *cli.Context) error {
	if !wavryconfig.IsLoopback(c.String("listen")) && !wavryconfig.EnvBool(wavryconfig.EnvRelayAllowPublicBind, false) {
		return fmt.Errorf("wavry-relay: refusing to bind non-loopback address %q without %s=1", c.String("listen"), wavryconfig.EnvRelayAllowPublicBind)
	}

	insecureDev := c.Bool("insecure-dev")
	if insecureDev && !wavryconfig.EnvBool(wavryconfig.EnvAllowInsecureRelay, false) {
		return fmt.Errorf("wavry-relay: refusing --insecure-dev without %s=1", wavryconfig.EnvAllowInsecureRelay)
	}

	var verifier *relay.LeaseVerifier
	if !insecureDev {
		key := c.String("master-public-key")
		if key == "" {
			return fmt.Errorf("wavry-relay: --master-public-key is required unless --insecure-dev is set")
		}
		v, err := relay.NewLeaseVerifier(key)
		if err != nil {
			return fmt.Errorf("wavry-relay: %w", err)
		}
		verifier = v
	}

	conn, err := net.ListenPacket("udp", c.String("listen"))
	if err != nil {
		return fmt.Errorf("wavry-relay: listen: %w", err)
	}
	defer conn.Close()

	cfg := relay.Config{
		MaxSessions:     c.Int("max-sessions"),
		IdleTimeout:     time.Duration(c.Int("idle-timeout")) * time.Second,
		LeaseDuration:   time.Duration(c.Int("lease-duration-secs")) * time.Second,
		CleanupInterval: cleanupInterval,
		IPRateLimitPPS:  c.Int("ip-rate-limit-pps"),
		InsecureDev:     insecureDev,
	}

	counters := &metrics.RelayCounters{}
	forwarder, err := relay.NewForwarder(conn, cfg, verifier, counters)
	if err != nil {
		return fmt.Errorf("wavry-relay: %w", err)
	}

	reg := prometheus.NewRegistry()
	metrics.NewRelayRegistry(reg, counters)
	metricsSrv := &http.Server{
		Addr:    c.String("metrics-listen"),
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Println("wavry-relay: metrics server:", err)
		}
	}()
	defer metricsSrv.Close()

	relayID := uuid.New().String()
	if masterURL := c.String("master-url"); masterURL != "" {
		if err := registerWithMaster(masterURL, relayID, c.String("region"), c.Int("asn"), c.Int("max-bitrate")); err != nil {
			log.Println("wavry-relay: Master registration failed, continuing unregistered:", err)
		} else {
			go forwarder.HeartbeatLoop(masterURL, relayID, 30*time.Second)
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Println("wavry-relay: shutting down")
		forwarder.Stop()
	}()

	log.Println("wavry-relay: listening on", conn.LocalAddr(), "relay_id", relayID)
	return forwarder.Serve()
}

// registrationPayload is POSTed once at startup so the Master can add this
// relay to its selection pool (spec §6's relay CLI surface: --region,
// --asn, --max-bitrate are advertised, not locally enforced).
type registrationPayload struct {
	RelayID       string `json:"relay_id"`
	Region        string `json:"region,omitempty"`
	ASN           int    `json:"asn,omitempty"`
	MaxBitrateKbp int    `json:"max_bitrate_kbps,omitempty"`
}

func registerWithMaster(masterURL, relayID, region string, asn, maxBitrate int) error {
	body, err := json.Marshal(registrationPayload{RelayID: relayID, Region: region, ASN: asn, MaxBitrateKbp: maxBitrate})
	if err != nil {
		return err
	}
	// The Master's registration route lives outside this repo's scope
	// (spec §1: the signaling web gateway is an external collaborator);
	// this only needs to succeed well enough to start the heartbeat loop.
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(masterURL+"/api/relay/register", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("registration rejected with status %d", resp.StatusCode)
	}
	return nil
}
