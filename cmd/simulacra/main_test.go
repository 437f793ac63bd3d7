package main

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"net"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faanross/simulacra_lsb/internal/chunker"
	"github.com/faanross/simulacra_lsb/internal/configs"
	kerrors "github.com/faanross/simulacra_lsb/internal/errors"
	"github.com/faanross/simulacra_lsb/internal/logging"
	"github.com/faanross/simulacra_lsb/internal/raster"
	"github.com/faanross/simulacra_lsb/internal/relay"
)

// run executes the CLI with an isolated SIMULACRA_HOME and returns its output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, stderr bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv(configs.HomeEnv, home)
	return home
}

func carrierPNG(t *testing.T, dir string, w, h int, fill func([]byte)) string {
	t.Helper()
	r := raster.Blank(w, h)
	fill(r.Pix)
	for i := 3; i < len(r.Pix); i += 4 {
		r.Pix[i] = 0xFF
	}
	path := filepath.Join(dir, "cover.png")
	require.NoError(t, raster.Save(path, r))
	return path
}

func noise(seed int64) func([]byte) {
	return func(p []byte) { rand.New(rand.NewSource(seed)).Read(p) }
}

func TestRootShowsBanner(t *testing.T) {
	isolate(t)
	out, err := run(t)
	require.NoError(t, err)
	assert.Contains(t, out, "encode")
	assert.Contains(t, out, "relay")
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cover := carrierPNG(t, dir, 40, 40, noise(1))
	stego := filepath.Join(dir, "secret.png")

	out, err := run(t, "encode", "--in", cover, "--out", stego, "-m", "meet at the usual place", "-p", "hunter22")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Message hidden in")
	assert.Contains(t, out, "23 bytes")
	assert.FileExists(t, stego)

	out, err = run(t, "decode", "--in", stego, "-p", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "meet at the usual place\n", out)

	msgFile := filepath.Join(dir, "message.txt")
	_, err = run(t, "decode", "--in", stego, "-p", "hunter22", "--out", msgFile)
	require.NoError(t, err)
	data, err := os.ReadFile(msgFile)
	require.NoError(t, err)
	assert.Equal(t, "meet at the usual place", string(data))

	out, err = run(t, "history", "list", "--oldest")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4, out)
	assert.Contains(t, lines[1], "encode")
	assert.Contains(t, lines[2], "decode")

	out, err = run(t, "history", "list", "--kind", "encode", "--json")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, `"type": "encode"`))
	assert.NotContains(t, out, `"type": "decode"`)

	_, err = run(t, "history", "clear")
	require.NoError(t, err)
	out, err = run(t, "history", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no history")
}

func TestEncodeGeneratedSealedCarrier(t *testing.T) {
	isolate(t)
	stego := filepath.Join(t.TempDir(), "noise.bmp")

	_, err := run(t, "encode", "--out", stego, "-m", "sealed note", "-p", "pw", "--cipher", "sealed", "--width", "16")
	require.NoError(t, err)

	out, err := run(t, "decode", "--in", stego, "-p", "pw", "--cipher", "sealed")
	require.NoError(t, err)
	assert.Equal(t, "sealed note\n", out)

	_, err = run(t, "decode", "--in", stego, "-p", "nope", "--cipher", "sealed")
	assert.ErrorIs(t, err, kerrors.ErrAuthFailed)
}

func TestSealedCipherWithoutPassword(t *testing.T) {
	isolate(t)
	stego := filepath.Join(t.TempDir(), "nopw.png")

	_, err := run(t, "encode", "--out", stego, "-m", "top secret", "--cipher", "sealed")
	require.NoError(t, err)

	out, err := run(t, "decode", "--in", stego)
	require.NoError(t, err)
	assert.NotContains(t, out, "top secret")

	out, err = run(t, "decode", "--in", stego, "--cipher", "sealed")
	require.NoError(t, err)
	assert.Equal(t, "top secret\n", out)
}

func TestEncodeRejectsLossyOutputAndOversizedMessage(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cover := carrierPNG(t, dir, 10, 10, noise(2))

	_, err := run(t, "encode", "--in", cover, "--out", filepath.Join(dir, "out.jpg"), "-m", "x")
	assert.ErrorIs(t, err, kerrors.ErrLossyFormat)

	_, err = run(t, "encode", "--in", cover, "--out", filepath.Join(dir, "out.png"), "-m", strings.Repeat("x", 40))
	assert.ErrorIs(t, err, kerrors.ErrCapacityExceeded)
	assert.NoFileExists(t, filepath.Join(dir, "out.png"))

	_, err = run(t, "encode", "--in", cover, "--out", filepath.Join(dir, "out.png"))
	assert.Error(t, err)

	_, err = run(t, "encode", "--in", cover, "--out", filepath.Join(dir, "out.png"), "-m", "x", "--cipher", "rot13")
	assert.ErrorIs(t, err, kerrors.ErrUnknownCipher)
}

func TestDecodeUntouchedImage(t *testing.T) {
	isolate(t)
	white := carrierPNG(t, t.TempDir(), 50, 50, func(p []byte) {
		for i := range p {
			p[i] = 0xFF
		}
	})

	_, err := run(t, "decode", "--in", white)
	require.ErrorIs(t, err, kerrors.ErrIncompleteStream)
	assert.Equal(t, "no hidden message found (wrong image or password)", explain(err))
}

func TestCapacityAndAnalyze(t *testing.T) {
	isolate(t)
	cover := carrierPNG(t, t.TempDir(), 10, 10, noise(3))

	out, err := run(t, "capacity", "--in", cover, "--length", "40")
	require.NoError(t, err)
	assert.Contains(t, out, "eligible bytes:   300")
	assert.Contains(t, out, "max message:      33 bytes (xor), 0 bytes (sealed)")
	assert.Contains(t, out, "does not fit")

	out, err = run(t, "capacity", "--in", cover, "-n", "33")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ fits")

	out, err = run(t, "analyze", "--in", cover)
	require.NoError(t, err)
	assert.Contains(t, out, "LSB entropy")
	assert.Contains(t, out, "verdict")
}

func TestTryPass(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cover := carrierPNG(t, dir, 32, 32, noise(4))
	stego := filepath.Join(dir, "secret.png")

	_, err := run(t, "encode", "--in", cover, "--out", stego, "-m", "found me", "-p", "autumn", "--cipher", "sealed")
	require.NoError(t, err)

	out, err := run(t, "trypass", "--in", stego, "--list", "spring,summer,autumn", "--cipher", "sealed")
	require.NoError(t, err)
	assert.Contains(t, out, "Candidate 3 matched")
	assert.Contains(t, out, "found me")

	candidates := filepath.Join(dir, "candidates.txt")
	require.NoError(t, os.WriteFile(candidates, []byte("winter\r\nspring\n"), 0600))
	_, err = run(t, "trypass", "--in", stego, "--file", candidates, "--cipher", "sealed")
	assert.ErrorIs(t, err, kerrors.ErrNoPasswordMatch)

	_, err = run(t, "trypass", "--in", stego)
	assert.Error(t, err)
}

func TestUserCommands(t *testing.T) {
	isolate(t)

	_, err := run(t, "user", "whoami")
	assert.ErrorIs(t, err, kerrors.ErrNotLoggedIn)

	out, err := run(t, "user", "register", "--email", "Ada@Example.com", "--username", "ada", "-p", "engine1")
	require.NoError(t, err)
	assert.Contains(t, out, "Registered")

	_, err = run(t, "user", "register", "--email", "bad-email", "-p", "engine1")
	assert.ErrorIs(t, err, kerrors.ErrInvalidEmail)
	_, err = run(t, "user", "register", "--email", "bob@example.com", "-p", "short")
	assert.ErrorIs(t, err, kerrors.ErrWeakPassword)

	_, err = run(t, "user", "login", "--email", "ada@example.com", "-p", "wrong!!")
	assert.ErrorIs(t, err, kerrors.ErrInvalidCredentials)

	_, err = run(t, "user", "login", "--email", "ada@example.com", "-p", "engine1")
	require.NoError(t, err)
	out, err = run(t, "user", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "ada <ada@example.com>")

	out, err = run(t, "user", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "demouser <demo@example.com>")
	assert.Contains(t, out, "ada <ada@example.com>")

	_, err = run(t, "user", "login", "--email", "demo@example.com", "-p", "password")
	require.NoError(t, err)
	out, err = run(t, "user", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "demouser")

	_, err = run(t, "user", "logout")
	require.NoError(t, err)
	_, err = run(t, "user", "whoami")
	assert.ErrorIs(t, err, kerrors.ErrNotLoggedIn)
}

func TestConfigInitAndShow(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "config", "config.toml")

	out, err := run(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote")
	assert.FileExists(t, path)

	out, err = run(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	require.NoError(t, os.WriteFile(path, []byte("[codec]\ncipher = \"sealed\"\n"), 0600))
	out, err = run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "[codec]")
	assert.Contains(t, out, `cipher = "sealed"`)
	assert.Contains(t, out, "[relay]")

	_, err = run(t, "--config", filepath.Join(home, "missing.toml"), "config", "show")
	assert.NoError(t, err)
}

func TestRelaySendAndFetch(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cover := carrierPNG(t, dir, 24, 24, noise(5))
	stego := filepath.Join(dir, "secret.png")
	_, err := run(t, "encode", "--in", cover, "--out", stego, "-m", "over the wire", "-p", "pw")
	require.NoError(t, err)

	srv := relay.NewServer("relay.example", relay.NewMemoryStorage(), logging.Logger{Out: io.Discard, Err: io.Discard})
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	started := make(chan struct{})
	ds := &dns.Server{PacketConn: pc, Handler: srv, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = ds.ActivateAndServe() }()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("dns server did not start")
	}
	defer ds.Shutdown()
	hs := httptest.NewServer(srv.HTTPHandler())
	defer hs.Close()
	u, err := url.Parse(hs.URL)
	require.NoError(t, err)

	relayArgs := func(args ...string) []string {
		return append(args, "--dns-addr", pc.LocalAddr().String(), "--http-addr", u.Host, "--domain", "relay.example", "--client", "tester")
	}

	out, err := run(t, relayArgs("relay", "send", "--in", stego)...)
	require.NoError(t, err, out)

	data, err := os.ReadFile(stego)
	require.NoError(t, err)
	id, err := chunker.NewMessageID(data)
	require.NoError(t, err)
	assert.Contains(t, out, id.String())

	out, err = run(t, relayArgs("relay", "list")...)
	require.NoError(t, err)
	assert.Contains(t, out, id.String())

	fetched := filepath.Join(dir, "fetched.png")
	out, err = run(t, relayArgs("relay", "fetch", "--id", id.String(), "--out", fetched, "--reveal", "-p", "pw")...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "over the wire")
	got, err := os.ReadFile(fetched)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	out, err = run(t, relayArgs("relay", "ack", "--id", id.String())...)
	require.NoError(t, err)
	assert.Contains(t, out, "Acknowledged")

	out, err = run(t, relayArgs("relay", "status")...)
	require.NoError(t, err)
	assert.Contains(t, out, "1 messages: 0 new, 0 delivered, 1 consumed")

	_, err = run(t, relayArgs("relay", "fetch", "--id", strings.Repeat("ab", 16))...)
	assert.ErrorIs(t, err, kerrors.ErrMessageNotFound)
}

func TestRelayZone(t *testing.T) {
	isolate(t)
	cover := carrierPNG(t, t.TempDir(), 8, 8, noise(6))

	out, err := run(t, "relay", "zone", "--in", cover, "--domain", "z.example", "--ttl", "60")
	require.NoError(t, err)
	assert.Contains(t, out, "z.example.")
	assert.Contains(t, out, "TXT")
	assert.Contains(t, out, "60")
}

func TestExplain(t *testing.T) {
	assert.Empty(t, explain(io.EOF))
	assert.Contains(t, explain(kerrors.ErrCapacityExceeded), "capacity")
	assert.Contains(t, explain(kerrors.ErrNotLoggedIn), "user login")
	assert.Contains(t, explain(kerrors.ErrAuthFailed), "wrong password")
}
