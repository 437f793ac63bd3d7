package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/faanross/simulacra_lsb/internal/chunker"
	kerrors "github.com/faanross/simulacra_lsb/internal/errors"
	"github.com/faanross/simulacra_lsb/internal/logging"
)

// Client talks to a relay: uploads over HTTP, fetches over DNS.
type Client struct {
	DNSAddr string // host:port of the relay's DNS listener
	HTTPURL string // base URL of the relay's HTTP listener
	Naming  chunker.Naming

	MaxRetries int
	// RateLimit is the pause between consecutive DNS queries.
	RateLimit time.Duration
	Timeout   time.Duration
	// PollInterval is the idle wait between list queries in Poll.
	PollInterval time.Duration

	Log logging.Logger
	// Progress, if set, is called after each fragment is fetched.
	Progress func(done, total int)

	HTTP *http.Client
}

// NewClient returns a Client with the default retry and pacing settings.
func NewClient(dnsAddr, httpURL, zone string, log logging.Logger) *Client {
	return &Client{
		DNSAddr:      dnsAddr,
		HTTPURL:      strings.TrimRight(httpURL, "/"),
		Naming:       chunker.NewNaming(zone),
		MaxRetries:   3,
		RateLimit:    50 * time.Millisecond,
		Timeout:      5 * time.Second,
		PollInterval: 5 * time.Second,
		Log:          log,
		HTTP:         &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// Upload publishes a chunked message to the relay.
func (c *Client) Upload(ctx context.Context, msg *chunker.Message) (*UploadResponse, error) {
	manifest := chunker.Manifest{Total: uint16(len(msg.Chunks)), Checksum: msg.Checksum}
	body := UploadRequest{
		MessageID: msg.ID.String(),
		Manifest:  manifest.String(),
		Chunks:    make([]string, 0, len(msg.Chunks)),
	}
	for _, ch := range msg.Chunks {
		body.Chunks = append(body.Chunks, ch.Encoded)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.HTTPURL+"/upload", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, uploadError(resp)
	}

	var out UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("reading upload response: %w", err)
	}
	c.Log.Infof("uploaded %s in %d chunks", out.MessageID, out.Chunks)
	return &out, nil
}

func uploadError(resp *http.Response) error {
	text, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	reason := strings.TrimSpace(string(text))
	switch resp.StatusCode {
	case http.StatusConflict:
		return fmt.Errorf("%s: %w", reason, kerrors.ErrMessageExists)
	case http.StatusBadRequest:
		return fmt.Errorf("relay rejected upload: %s: %w", reason, kerrors.ErrInvalidChunk)
	default:
		return fmt.Errorf("relay returned %s: %s", resp.Status, reason)
	}
}

// Status fetches the relay's statistics and message list.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.HTTPURL+"/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("relay returned %s", resp.Status)
	}
	var out StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("reading status response: %w", err)
	}
	return &out, nil
}

// Fetch retrieves message id over DNS: the manifest first, then every
// fragment, then reassembly checked against the manifest and the id.
func (c *Client) Fetch(ctx context.Context, id chunker.MessageID) ([]byte, error) {
	values, err := c.queryWithRetry(ctx, c.Naming.Manifest(id))
	if err != nil {
		return nil, fmt.Errorf("manifest fetch failed: %w", notFound(err, kerrors.ErrMessageNotFound))
	}
	manifest, err := chunker.ParseManifest(values[0])
	if err != nil {
		return nil, err
	}
	c.Log.Debugf("manifest for %s: %d chunks, crc32 %08x", id.Short(), manifest.Total, manifest.Checksum)

	chunks := make([]chunker.Chunk, 0, manifest.Total)
	for seq := uint16(0); seq < manifest.Total; seq++ {
		if err := c.pause(ctx); err != nil {
			return nil, err
		}

		values, err := c.queryWithRetry(ctx, c.Naming.Chunk(id, seq))
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", seq, notFound(err, kerrors.ErrChunkNotFound))
		}
		ch, err := chunker.Decode(strings.Join(values, ""), "")
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", seq, err)
		}
		chunks = append(chunks, *ch)

		if c.Progress != nil {
			c.Progress(int(seq)+1, int(manifest.Total))
		}
	}

	data, err := chunker.Reassemble(chunks)
	if err != nil {
		return nil, err
	}
	if err := verify(id, manifest, data); err != nil {
		return nil, err
	}
	c.Log.Infof("fetched %s: %d bytes", id.Short(), len(data))
	return data, nil
}

// List asks the relay for message ids pending for client. Listed ids are
// not offered to the same client again.
func (c *Client) List(ctx context.Context, client string) ([]chunker.MessageID, error) {
	values, err := c.queryWithRetry(ctx, c.Naming.List(client))
	if err != nil {
		if errors.Is(err, errNoAnswer) {
			return nil, nil
		}
		return nil, err
	}

	ids := make([]chunker.MessageID, 0, len(values))
	for _, v := range values {
		id, err := chunker.ParseMessageID(v)
		if err != nil {
			c.Log.Warnf("ignoring malformed id %q in list answer", v)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Ack marks id consumed on the relay.
func (c *Client) Ack(ctx context.Context, id chunker.MessageID, client string) error {
	_, err := c.queryWithRetry(ctx, c.Naming.Ack(id, client))
	return notFound(err, kerrors.ErrMessageNotFound)
}

// Poll lists pending messages for client until ctx is done, fetching and
// acknowledging each one. handle is called with every fetched message; a
// handler error leaves the message unacknowledged.
func (c *Client) Poll(ctx context.Context, client string, handle func(chunker.MessageID, []byte) error) error {
	interval := c.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	idle := 0

	for {
		ids, err := c.List(ctx, client)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.Log.Warnf("poll error: %v", err)
		}

		for _, id := range ids {
			data, err := c.Fetch(ctx, id)
			if err != nil {
				c.Log.Errorf("failed to retrieve %s: %v", id.Short(), err)
				continue
			}
			if err := handle(id, data); err != nil {
				c.Log.Errorf("handling %s: %v", id.Short(), err)
				continue
			}
			if err := c.Ack(ctx, id, client); err != nil {
				c.Log.Warnf("ack %s: %v", id.Short(), err)
			}
		}

		// Back off while idle, up to four times the base interval.
		wait := interval
		if len(ids) == 0 {
			if idle < 2 {
				idle++
			}
			wait = interval << idle
		} else {
			idle = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

var errNoAnswer = errors.New("no TXT answer")

type nxdomainError struct{ name string }

func (e nxdomainError) Error() string {
	return e.name + ": NXDOMAIN"
}

func notFound(err, sentinel error) error {
	var nx nxdomainError
	if errors.As(err, &nx) || errors.Is(err, errNoAnswer) {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return err
}

func (c *Client) pause(ctx context.Context) error {
	if c.RateLimit <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.RateLimit):
		return nil
	}
}

// queryWithRetry retries transport failures with linear backoff. NXDOMAIN
// and empty answers are final.
func (c *Client) queryWithRetry(ctx context.Context, name string) ([]string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			c.Log.Debugf("retrying %s (%d/%d): %v", name, attempt, c.MaxRetries, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 250 * time.Millisecond):
			}
		}

		values, err := c.queryTXT(ctx, name)
		if err == nil {
			return values, nil
		}
		var nx nxdomainError
		if errors.As(err, &nx) || errors.Is(err, errNoAnswer) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%s: giving up after %d retries: %w", name, c.MaxRetries, lastErr)
}

func (c *Client) queryTXT(ctx context.Context, name string) ([]string, error) {
	dc := &dns.Client{Net: "udp", Timeout: c.Timeout, UDPSize: dns.DefaultMsgSize}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeTXT)
	m.SetEdns0(dns.DefaultMsgSize, false)

	resp, _, err := dc.ExchangeContext(ctx, m, c.DNSAddr)
	if err != nil {
		return nil, err
	}
	switch resp.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, nxdomainError{name: name}
	default:
		return nil, fmt.Errorf("%s: %s", name, dns.RcodeToString[resp.Rcode])
	}

	for _, ans := range resp.Answer {
		if txt, ok := ans.(*dns.TXT); ok && len(txt.Txt) > 0 {
			return txt.Txt, nil
		}
	}
	return nil, errNoAnswer
}
