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
	"runtime"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/wavry-io/wavry/internal/client"
	"github.com/wavry-io/wavry/internal/collab"
	"github.com/wavry-io/wavry/internal/message"
	"github.com/wavry-io/wavry/internal/mdns"
	"github.com/wavry-io/wavry/internal/wavryconfig"
	"github.com/wavry-io/wavry/internal/wirecrypto"
)

// VERSION is populated via build flags when packaging official binaries,
// same convention as cmd/host.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	app := cli.NewApp()
	app.Name = "wavry-client"
	app.Usage = "Wavry streaming client"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "connect", Usage: "host UDP address (host:port); discovered via mDNS if empty"},
		cli.StringFlag{Name: "name", Value: defaultClientName(), Usage: "client display name sent in Hello"},
		cli.BoolFlag{Name: "no-encrypt", Usage: "disable the Noise crypto channel (dev only, see WAVRY_ALLOW_INSECURE_RELAY)"},
		cli.IntFlag{Name: "max-width", Value: 1920, Usage: "max accepted stream width"},
		cli.IntFlag{Name: "max-height", Value: 1080, Usage: "max accepted stream height"},
		cli.IntFlag{Name: "max-fps", Value: 60, Usage: "max accepted stream fps"},
		cli.BoolFlag{Name: "disable-mdns", Usage: "skip mDNS discovery even when --connect is empty"},
		cli.StringFlag{Name: "key-path", Value: defaultKeyPath(), Usage: "identity key persistence path"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Fatalln(err)
	}
}

func run(c *cli.Context) error {
	if c.Bool("no-encrypt") && !wavryconfig.EnvBool(wavryconfig.EnvAllowInsecureRelay, false) {
		return fmt.Errorf("wavry-client: refusing --no-encrypt without %s=1", wavryconfig.EnvAllowInsecureRelay)
	}

	addr := c.String("connect")
	if addr == "" && !c.Bool("disable-mdns") {
		found, err := discover()
		if err != nil {
			return fmt.Errorf("wavry-client: discover host: %w", err)
		}
		addr = found
		log.Println("wavry-client: discovered host at", addr)
	}
	if addr == "" {
		return fmt.Errorf("wavry-client: --connect is required when mDNS discovery is disabled")
	}

	remoteAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("wavry-client: resolve %s: %w", addr, err)
	}

	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return fmt.Errorf("wavry-client: listen: %w", err)
	}
	defer conn.Close()

	staticPriv, err := loadOrCreateIdentity(c.String("key-path"))
	if err != nil {
		return err
	}

	cfg := client.Config{
		Connect:         addr,
		Name:            c.String("name"),
		NoEncrypt:       c.Bool("no-encrypt"),
		Platform:        clientPlatform(),
		SupportedCodecs: []message.Codec{message.CodecHEVC, message.CodecH264},
		MaxResolution: message.Resolution{
			Width:  uint16(c.Int("max-width")),
			Height: uint16(c.Int("max-height")),
		},
		MaxFPS:      uint16(c.Int("max-fps")),
		DisableMDNS: c.Bool("disable-mdns"),
	}

	cl := client.New(cfg, conn, remoteAddr, staticPriv, &collab.FakeRenderer{})

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Println("wavry-client: shutting down")
		cancel()
	}()

	log.Println("wavry-client: dialing", addr)
	if err := cl.Dial(ctx); err != nil {
		return fmt.Errorf("wavry-client: handshake: %w", err)
	}
	log.Println("wavry-client: session established")
	return cl.Run(ctx)
}

// discoverTimeout mirrors spec §5's "discovery 3 s" suspension point.
const discoverTimeout = 3 * time.Second

// discover browses for a single Wavry host advertising
// _wavry._udp.local. and returns its address, mirroring the teacher's
// dial.go "resolve a target before connecting" step generalized from a
// static config.json target to mDNS auto-discovery.
func discover() (string, error) {
	found, err := mdns.Browse(discoverTimeout)
	if err != nil {
		return "", err
	}
	if len(found) == 0 {
		return "", fmt.Errorf("no Wavry host found via mDNS")
	}
	return found[0].Addr.String(), nil
}

func defaultClientName() string {
	host, err := os.Hostname()
	if err != nil {
		return "wavry-client"
	}
	return host
}

func clientPlatform() string {
	return runtime.GOOS
}

func defaultKeyPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "wavry-client.key"
	}
	return filepath.Join(dir, "wavry", "client.key")
}

// loadOrCreateIdentity mirrors cmd/host's identity bootstrap: a
// FileKeyStore persists the client's X25519 static key, minting one on
// first run (spec §6 Persisted state, §9 identity key cache).
func loadOrCreateIdentity(path string) (wirecrypto.PrivateKey, error) {
	store := &collab.FileKeyStore{Path: path}
	if raw, ok, err := store.Load(); err != nil {
		return wirecrypto.PrivateKey{}, fmt.Errorf("wavry-client: load identity: %w", err)
	} else if ok {
		return wirecrypto.PrivateKey(raw), nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return wirecrypto.PrivateKey{}, fmt.Errorf("wavry-client: create key dir: %w", err)
	}
	priv, _, err := wirecrypto.GenerateKeypair(rand.Read)
	if err != nil {
		return wirecrypto.PrivateKey{}, fmt.Errorf("wavry-client: generate identity: %w", err)
	}
	if err := store.Save(priv); err != nil {
		return wirecrypto.PrivateKey{}, fmt.Errorf("wavry-client: persist identity: %w", err)
	}
	return priv, nil
}
