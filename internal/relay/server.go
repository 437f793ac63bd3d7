package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"

	"github.com/faanross/simulacra_lsb/internal/chunker"
	kerrors "github.com/faanross/simulacra_lsb/internal/errors"
	"github.com/faanross/simulacra_lsb/internal/logging"
)

const maxUploadBytes = 16 << 20

// UploadRequest is the body of POST /upload.
type UploadRequest struct {
	MessageID string   `json:"message_id"`
	Manifest  string   `json:"manifest"`
	Chunks    []string `json:"chunks"`
}

// UploadResponse is the body of a successful upload.
type UploadResponse struct {
	Status    string `json:"status"`
	MessageID string `json:"message_id"`
	Chunks    int    `json:"chunks"`
}

// MessageInfo summarizes a stored message for GET /status.
type MessageInfo struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	Chunks    int       `json:"chunks"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Stats    Stats         `json:"stats"`
	Messages []MessageInfo `json:"messages"`
}

// Server answers relay TXT queries for one zone and accepts uploads over HTTP.
type Server struct {
	naming  chunker.Naming
	storage Storage
	queue   *QueueManager
	log     logging.Logger

	// AnswerTTL is the TTL on fragment and manifest answers. List and ack
	// answers always use 0.
	AnswerTTL uint32
	// Retention removes messages older than this. Zero keeps them forever.
	Retention     time.Duration
	CleanInterval time.Duration
	// ReportInterval logs storage stats periodically. Zero disables it.
	ReportInterval time.Duration
}

// NewServer returns a Server for zone backed by storage.
func NewServer(zone string, storage Storage, log logging.Logger) *Server {
	return &Server{
		naming:        chunker.NewNaming(zone),
		storage:       storage,
		queue:         NewQueueManager(storage),
		log:           log,
		AnswerTTL:     300,
		CleanInterval: time.Hour,
	}
}

// Queue exposes the server's queue manager.
func (s *Server) Queue() *QueueManager {
	return s.queue
}

// ServeDNS implements dns.Handler.
func (s *Server) ServeDNS(w dns.ResponseWriter, r *dns.Msg) {
	reply := new(dns.Msg)
	reply.SetReply(r)
	reply.Authoritative = true

	for _, q := range r.Question {
		if q.Qtype != dns.TypeTXT {
			continue
		}
		rrs, err := s.answer(q.Name)
		if err != nil {
			s.log.Debugf("%s: %v", q.Name, err)
			reply.Rcode = dns.RcodeNameError
			continue
		}
		reply.Answer = append(reply.Answer, rrs...)
	}

	if err := w.WriteMsg(reply); err != nil {
		s.log.Warnf("writing DNS reply: %v", err)
	}
}

func (s *Server) answer(qname string) ([]dns.RR, error) {
	q, err := s.naming.Parse(qname)
	if err != nil {
		return nil, err
	}

	switch q.Kind {
	case chunker.QueryManifest:
		msg, err := s.storage.GetMessage(q.ID.String())
		if err != nil {
			return nil, err
		}
		return []dns.RR{s.txt(qname, s.AnswerTTL, msg.Manifest)}, nil

	case chunker.QueryChunk:
		data, err := s.storage.GetChunk(q.ID.String(), q.Sequence)
		if err != nil {
			return nil, err
		}
		s.log.Debugf("served chunk %d of %s", q.Sequence, q.ID.Short())
		return []dns.RR{s.txt(qname, s.AnswerTTL, data)}, nil

	case chunker.QueryList:
		ids, err := s.queue.Consume(q.Client)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, nil
		}
		s.log.Infof("client %s listed %d messages", q.Client, len(ids))
		return []dns.RR{s.txt(qname, 0, ids...)}, nil

	case chunker.QueryAck:
		if err := s.queue.Acknowledge(q.ID.String(), q.Client); err != nil {
			return nil, err
		}
		s.log.Infof("client %s consumed %s", q.Client, q.ID.Short())
		return []dns.RR{s.txt(qname, 0, "ok")}, nil
	}
	return nil, fmt.Errorf("unhandled query %q", qname)
}

func (s *Server) txt(name string, ttl uint32, values ...string) dns.RR {
	return &dns.TXT{
		Hdr: dns.RR_Header{
			Name:   dns.Fqdn(name),
			Rrtype: dns.TypeTXT,
			Class:  dns.ClassINET,
			Ttl:    ttl,
		},
		Txt: values,
	}
}

// HTTPHandler serves POST /upload and GET /status.
func (s *Server) HTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req UploadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes)).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	msg, err := s.queue.Publish(req.MessageID, req.Manifest, req.Chunks)
	if err != nil {
		s.log.Warnf("upload %s rejected: %v", req.MessageID, err)
		http.Error(w, err.Error(), uploadStatus(err))
		return
	}
	s.log.Infof("stored message %s (%d chunks, %d bytes)", msg.ID, len(msg.Chunks), msg.Size)

	writeJSON(w, UploadResponse{Status: "success", MessageID: msg.ID, Chunks: len(msg.Chunks)})
}

func uploadStatus(err error) int {
	switch {
	case errors.Is(err, kerrors.ErrMessageExists):
		return http.StatusConflict
	case errors.Is(err, kerrors.ErrInvalidChunk),
		errors.Is(err, kerrors.ErrIncompleteMessage),
		errors.Is(err, kerrors.ErrChecksumMismatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	msgs, err := s.storage.ListMessages()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := StatusResponse{Stats: s.storage.Stats(), Messages: make([]MessageInfo, 0, len(msgs))}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, MessageInfo{
			ID:        m.ID,
			State:     m.State.String(),
			Chunks:    len(m.Chunks),
			Size:      m.Size,
			CreatedAt: m.CreatedAt,
		})
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Run serves DNS over UDP on dnsAddr and HTTP on httpAddr until ctx is done.
func (s *Server) Run(ctx context.Context, dnsAddr, httpAddr string) error {
	dnsSrv := &dns.Server{Addr: dnsAddr, Net: "udp", Handler: s}
	httpSrv := &http.Server{Addr: httpAddr, Handler: s.HTTPHandler(), ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Infof("DNS listening on %s for %s", dnsAddr, s.naming.Zone)
		if err := dnsSrv.ListenAndServe(); err != nil && gctx.Err() == nil {
			return fmt.Errorf("dns server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s.log.Infof("HTTP listening on %s", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s.cleanLoop(gctx)
		return nil
	})

	g.Go(func() error {
		s.reportLoop(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = dnsSrv.ShutdownContext(shutdownCtx)
		_ = httpSrv.Shutdown(shutdownCtx)
		return nil
	})

	return g.Wait()
}

func (s *Server) cleanLoop(ctx context.Context) {
	if s.Retention <= 0 || s.CleanInterval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(s.CleanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.storage.CleanExpired(s.Retention)
			if err != nil {
				s.log.Warnf("cleaning expired messages: %v", err)
			} else if removed > 0 {
				s.log.Infof("removed %d expired messages", removed)
			}
		}
	}
}

func (s *Server) reportLoop(ctx context.Context) {
	if s.ReportInterval <= 0 {
		return
	}

	ticker := time.NewTicker(s.ReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := s.storage.Stats()
			s.log.Infof("status: %d messages (%d new, %d delivered, %d consumed), %d chunks",
				st.TotalMessages, st.NewMessages, st.Delivered, st.Consumed, st.TotalChunks)
		}
	}
}
