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
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/wavry-io/wavry/internal/collab"
	"github.com/wavry-io/wavry/internal/host"
	"github.com/wavry-io/wavry/internal/message"
	"github.com/wavry-io/wavry/internal/session"
	"github.com/wavry-io/wavry/internal/wavryconfig"
	"github.com/wavry-io/wavry/internal/wirecrypto"
)

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	app := cli.NewApp()
	app.Name = "wavry-host"
	app.Usage = "Wavry streaming host"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "listen", Value: ":7890", Usage: "UDP listen address"},
		cli.BoolFlag{Name: "no-encrypt", Usage: "disable the Noise crypto channel (dev only, see WAVRY_ALLOW_INSECURE_RELAY)"},
		cli.IntFlag{Name: "width", Value: 1920, Usage: "default capture width"},
		cli.IntFlag{Name: "height", Value: 1080, Usage: "default capture height"},
		cli.IntFlag{Name: "fps", Value: 60, Usage: "default capture fps"},
		cli.IntFlag{Name: "bitrate-kbps", Value: 20000, Usage: "initial encoder bitrate"},
		cli.IntFlag{Name: "keyframe-interval-ms", Value: 2000, Usage: "keyframe interval"},
		cli.StringFlag{Name: "display-id", Value: "0", Usage: "capture display id"},
		cli.IntFlag{Name: "max-peers", Value: 8, Usage: "concurrent in-progress handshakes"},
		cli.IntFlag{Name: "peer-idle-timeout-secs", Value: 30, Usage: "idle peer eviction timeout"},
		cli.BoolFlag{Name: "enable-webrtc", Usage: "enable the WebRTC signaling fallback path"},
		cli.StringFlag{Name: "gateway-url", Usage: "signaling gateway URL"},
		cli.StringFlag{Name: "session-token", Usage: "signaling gateway session token"},
		cli.BoolFlag{Name: "disable-mdns", Usage: "disable _wavry._udp.local. advertisement"},
		cli.StringFlag{Name: "key-path", Value: defaultKeyPath(), Usage: "identity key persistence path"},
		cli.StringFlag{Name: "c", Usage: "path to a JSON config file overriding the flags above"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Fatalln(err)
	}
}

// jsonConfig mirrors the teacher's parseJSONConfig: a JSON file overrides
// whatever the CLI flags set, field by field, only for keys present.
type jsonConfig struct {
	Listen             *string `json:"listen"`
	NoEncrypt          *bool   `json:"no_encrypt"`
	Width              *int    `json:"width"`
	Height             *int    `json:"height"`
	FPS                *int    `json:"fps"`
	BitrateKbps        *int    `json:"bitrate_kbps"`
	KeyframeIntervalMs *int    `json:"keyframe_interval_ms"`
	DisplayID          *string `json:"display_id"`
	MaxPeers           *int    `json:"max_peers"`
	PeerIdleTimeoutSec *int    `json:"peer_idle_timeout_secs"`
}

func run(c *cli.Context) error {
	cfg := host.Config{
		Listen:             c.String("listen"),
		NoEncrypt:          c.Bool("no-encrypt"),
		Width:              uint16(c.Int("width")),
		Height:             uint16(c.Int("height")),
		FPS:                uint16(c.Int("fps")),
		BitrateKbps:        uint32(c.Int("bitrate-kbps")),
		KeyframeIntervalMs: uint32(c.Int("keyframe-interval-ms")),
		DisplayID:          c.String("display-id"),
		MaxPeers:           c.Int("max-peers"),
		PeerIdleTimeout:    secondsToDuration(c.Int("peer-idle-timeout-secs")),
		EnableWebRTC:       c.Bool("enable-webrtc"),
		GatewayURL:         c.String("gateway-url"),
		SessionToken:       c.String("session-token"),
		DisableMDNS:        c.Bool("disable-mdns"),
	}

	if path := c.String("c"); path != "" {
		var jc jsonConfig
		if err := wavryconfig.LoadJSON(path, &jc); err != nil {
			return fmt.Errorf("wavry-host: load config %s: %w", path, err)
		}
		applyJSONConfig(&cfg, jc)
	}

	if cfg.NoEncrypt && !wavryconfig.EnvBool(wavryconfig.EnvAllowInsecureRelay, false) {
		return fmt.Errorf("wavry-host: refusing --no-encrypt without %s=1", wavryconfig.EnvAllowInsecureRelay)
	}

	if !wavryconfig.IsLoopback(cfg.Listen) && !wavryconfig.EnvBool(wavryconfig.EnvHostAllowPublicBind, false) {
		return fmt.Errorf("wavry-host: refusing to bind non-loopback address %q without %s=1", cfg.Listen, wavryconfig.EnvHostAllowPublicBind)
	}

	conn, err := net.ListenPacket("udp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("wavry-host: listen: %w", err)
	}
	defer conn.Close()

	staticPriv, err := loadOrCreateIdentity(c.String("key-path"))
	if err != nil {
		return err
	}

	caps := session.HostCapabilities{
		SupportedCodecs:   []message.Codec{message.CodecH264, message.CodecHEVC},
		AV1HardwareAccel:  false,
		DefaultResolution: message.Resolution{Width: cfg.Width, Height: cfg.Height},
	}

	probe := collab.NewFakeCapabilityProbe()
	encoder := collab.NewFakeVideoEncoder(cfg.BitrateKbps)
	injector := &collab.FakeInputInjector{}

	h := host.New(cfg, conn, staticPriv, caps, encoder, injector, probe)

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Println("wavry-host: shutting down")
		cancel()
	}()

	log.Println("wavry-host: listening on", conn.LocalAddr())
	return h.Run(ctx)
}

func applyJSONConfig(cfg *host.Config, jc jsonConfig) {
	if jc.Listen != nil {
		cfg.Listen = *jc.Listen
	}
	if jc.NoEncrypt != nil {
		cfg.NoEncrypt = *jc.NoEncrypt
	}
	if jc.Width != nil {
		cfg.Width = uint16(*jc.Width)
	}
	if jc.Height != nil {
		cfg.Height = uint16(*jc.Height)
	}
	if jc.FPS != nil {
		cfg.FPS = uint16(*jc.FPS)
	}
	if jc.BitrateKbps != nil {
		cfg.BitrateKbps = uint32(*jc.BitrateKbps)
	}
	if jc.KeyframeIntervalMs != nil {
		cfg.KeyframeIntervalMs = uint32(*jc.KeyframeIntervalMs)
	}
	if jc.DisplayID != nil {
		cfg.DisplayID = *jc.DisplayID
	}
	if jc.MaxPeers != nil {
		cfg.MaxPeers = *jc.MaxPeers
	}
	if jc.PeerIdleTimeoutSec != nil {
		cfg.PeerIdleTimeout = secondsToDuration(*jc.PeerIdleTimeoutSec)
	}
}

func defaultKeyPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "wavry-host.key"
	}
	return filepath.Join(dir, "wavry", "host.key")
}

// loadOrCreateIdentity loads the host's persistent X25519 static key via a
// FileKeyStore, minting and persisting a fresh one on first run (spec §6
// Persisted state, §9 identity key cache).
func loadOrCreateIdentity(path string) (wirecrypto.PrivateKey, error) {
	store := &collab.FileKeyStore{Path: path}
	if raw, ok, err := store.Load(); err != nil {
		return wirecrypto.PrivateKey{}, fmt.Errorf("wavry-host: load identity: %w", err)
	} else if ok {
		return wirecrypto.PrivateKey(raw), nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return wirecrypto.PrivateKey{}, fmt.Errorf("wavry-host: create key dir: %w", err)
	}
	priv, _, err := wirecrypto.GenerateKeypair(rand.Read)
	if err != nil {
		return wirecrypto.PrivateKey{}, fmt.Errorf("wavry-host: generate identity: %w", err)
	}
	if err := store.Save(priv); err != nil {
		return wirecrypto.PrivateKey{}, fmt.Errorf("wavry-host: persist identity: %w", err)
	}
	return priv, nil
}

func secondsToDuration(s int) time.Duration { return time.Duration(s) * time.Second }
