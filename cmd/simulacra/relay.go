package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/faanross/simulacra_lsb/internal/chunker"
	"github.com/faanross/simulacra_lsb/internal/raster"
	"github.com/faanross/simulacra_lsb/internal/relay"
	"github.com/faanross/simulacra_lsb/internal/ui"
)

// relayFlags override the [relay] config section for one invocation.
type relayFlags struct {
	dnsAddr  string
	httpAddr string
	domain   string
	client   string
}

func (f *relayFlags) apply(a *app) {
	if f.dnsAddr != "" {
		a.cfg.Relay.DNSAddr = f.dnsAddr
	}
	if f.httpAddr != "" {
		a.cfg.Relay.HTTPAddr = f.httpAddr
	}
	if f.domain != "" {
		a.cfg.Relay.Domain = f.domain
	}
	if f.client != "" {
		a.cfg.Relay.Client = f.client
	}
}

func newRelayCmd(a *app) *cobra.Command {
	f := &relayFlags{}

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Move stego images through a DNS TXT relay",
		Long: `A relay stores stego images split into fragments and serves each fragment
as a DNS TXT record under its zone. Senders upload over HTTP; receivers
fetch over plain DNS queries.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}
			f.apply(a)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&f.dnsAddr, "dns-addr", "", "relay DNS address (default from config)")
	cmd.PersistentFlags().StringVar(&f.httpAddr, "http-addr", "", "relay HTTP address (default from config)")
	cmd.PersistentFlags().StringVar(&f.domain, "domain", "", "relay zone (default from config)")
	cmd.PersistentFlags().StringVar(&f.client, "client", "", "client name for list, ack and poll (default from config)")

	cmd.AddCommand(
		newRelayServeCmd(a),
		newRelaySendCmd(a),
		newRelayFetchCmd(a),
		newRelayListCmd(a),
		newRelayAckCmd(a),
		newRelayPollCmd(a),
		newRelayStatusCmd(a),
		newRelayZoneCmd(a),
	)
	return cmd
}

func (a *app) relayClient() *relay.Client {
	c := relay.NewClient(a.cfg.Relay.DNSAddr, a.cfg.Relay.HTTPURL(), a.cfg.Relay.Domain, a.log)
	c.RateLimit = a.cfg.Relay.RateLimit()
	c.MaxRetries = a.cfg.Relay.MaxRetries
	return c
}

// splitImage reads a lossless image file and fragments it.
func (a *app) splitImage(path string) (*chunker.Message, error) {
	if _, err := raster.FormatFromPath(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if _, err := raster.Decode(bytes.NewReader(data), a.cfg.Codec.MaxImageBytes); err != nil {
		return nil, err
	}

	ch, err := chunker.New(chunker.Config{Encoding: a.cfg.Relay.Encoding, PayloadSize: a.cfg.Relay.ChunkSize})
	if err != nil {
		return nil, err
	}
	return ch.Split(data)
}

func newRelayServeCmd(a *app) *cobra.Command {
	var (
		memory   bool
		duration time.Duration
		report   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay's DNS and HTTP listeners",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var storage relay.Storage
			if memory {
				storage = relay.NewMemoryStorage()
			} else {
				fs, err := relay.NewFileStorage(a.cfg.Relay.StoragePath)
				if err != nil {
					return err
				}
				storage = fs
			}

			srv := relay.NewServer(a.cfg.Relay.Domain, storage, a.log)
			srv.Retention = a.cfg.Relay.Retention()
			srv.ReportInterval = report

			ctx := cmd.Context()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s Relay for %s\n", color.GreenString("✓"), ui.Highlight.Sprint(a.cfg.Relay.Domain))
			fmt.Fprintf(w, "  dns:   %s (udp)\n", a.cfg.Relay.DNSAddr)
			fmt.Fprintf(w, "  http:  %s\n", a.cfg.Relay.HTTPURL())
			if !memory {
				fmt.Fprintf(w, "  state: %s\n", ui.Path.Sprint(a.cfg.Relay.StoragePath))
			}

			if err := srv.Run(ctx, a.cfg.Relay.DNSAddr, a.cfg.Relay.HTTPAddr); err != nil {
				return err
			}
			st := storage.Stats()
			fmt.Fprintf(w, "%s Relay stopped with %d messages stored\n", color.YellowString("!"), st.TotalMessages)
			return nil
		},
	}

	cmd.Flags().BoolVar(&memory, "memory", false, "keep messages in memory only")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (default runs until interrupted)")
	cmd.Flags().DurationVar(&report, "report", 0, "log storage stats at this interval")
	return cmd
}

func newRelaySendCmd(a *app) *cobra.Command {
	var in string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Upload a stego image to the relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := a.splitImage(in)
			if err != nil {
				return err
			}
			a.log.Infof("split %d bytes into %d %s chunks", len(msg.Data), len(msg.Chunks), msg.Encoding)

			w := cmd.OutOrStdout()
			s, done := a.startSpinner(w, fmt.Sprintf("Uploading %d chunks...", len(msg.Chunks)))
			resp, err := a.relayClient().Upload(cmd.Context(), msg)
			if err != nil {
				done()
				return err
			}
			s.FinalMSG = fmt.Sprintf("%s Uploaded %s\n", color.GreenString("✓"), ui.Highlight.Sprint(resp.MessageID))
			done()
			fmt.Fprintf(w, "  chunks: %d\n", resp.Chunks)
			fmt.Fprintf(w, "  fetch:  %s\n", ui.Code.Sprint("simulacra relay fetch --id "+resp.MessageID))
			return nil
		},
	}
	cmd.Flags().StringVarP(&in, "in", "i", "", "stego image to send")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func newRelayFetchCmd(a *app) *cobra.Command {
	var (
		idFlag string
		out    string
		reveal bool
		pw     passwordFlags
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download a stego image from the relay over DNS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := chunker.ParseMessageID(idFlag)
			if err != nil {
				return err
			}
			if out == "" {
				out = id.Short() + ".png"
			}

			w := cmd.OutOrStdout()
			c := a.relayClient()
			var bar *ui.ProgressBar
			c.Progress = func(done, total int) {
				if bar == nil {
					bar = ui.NewProgressBar(cmd.ErrOrStderr(), total)
				}
				bar.Update(done)
			}

			data, err := c.Fetch(cmd.Context(), id)
			if bar != nil {
				bar.Finish()
			}
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0644); err != nil {
				return fmt.Errorf("writing %s: %w", out, err)
			}
			fmt.Fprintf(w, "%s Saved %d bytes to %s\n", color.GreenString("✓"), len(data), ui.Path.Sprint(out))

			if !reveal {
				return nil
			}
			password, err := pw.read(false)
			if err != nil {
				return err
			}
			dec, err := a.newDecoder(&pw)
			if err != nil {
				return err
			}
			loaded, err := raster.Decode(bytes.NewReader(data), dec.MaxImageBytes)
			if err != nil {
				return err
			}
			res, err := dec.DecodeRaster(cmd.Context(), loaded, password)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, string(res.Message))
			return nil
		},
	}

	cmd.Flags().StringVar(&idFlag, "id", "", "message id")
	cmd.Flags().StringVarP(&out, "out", "o", "", "where to save the image (default <id>.png)")
	cmd.Flags().BoolVar(&reveal, "reveal", false, "decode the hidden message after fetching")
	pw.register(cmd)
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newRelayListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Ask the relay for messages not yet offered to this client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := a.relayClient().List(cmd.Context(), a.cfg.Relay.Client)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintln(w, ui.Muted.Sprint("no new messages"))
				return nil
			}
			for _, id := range ids {
				fmt.Fprintln(w, id.String())
			}
			return nil
		},
	}
}

func newRelayAckCmd(a *app) *cobra.Command {
	var idFlag string

	cmd := &cobra.Command{
		Use:   "ack",
		Short: "Mark a message consumed so no other client is offered it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := chunker.ParseMessageID(idFlag)
			if err != nil {
				return err
			}
			if err := a.relayClient().Ack(cmd.Context(), id, a.cfg.Relay.Client); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Acknowledged %s\n", color.GreenString("✓"), id.Short())
			return nil
		},
	}
	cmd.Flags().StringVar(&idFlag, "id", "", "message id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newRelayPollCmd(a *app) *cobra.Command {
	var (
		dir      string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Fetch and acknowledge new messages until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return err
			}
			c := a.relayClient()
			if interval > 0 {
				c.PollInterval = interval
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Polling as %s every %s (Ctrl+C to stop)\n", ui.Highlight.Sprint(a.cfg.Relay.Client), c.PollInterval)
			err := c.Poll(cmd.Context(), a.cfg.Relay.Client, func(id chunker.MessageID, data []byte) error {
				path := filepath.Join(dir, "received_"+id.Short()+".png")
				if err := os.WriteFile(path, data, 0644); err != nil {
					return err
				}
				fmt.Fprintf(w, "%s %s saved to %s\n", color.GreenString("✓"), id.Short(), ui.Path.Sprint(path))
				return nil
			})
			if cmd.Context().Err() != nil {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "directory for received images")
	cmd.Flags().DurationVar(&interval, "interval", 0, "idle poll interval (default 5s)")
	return cmd
}

func newRelayStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show what the relay is holding",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.relayClient().Status(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%d messages: %d new, %d delivered, %d consumed (%d chunks, %d bytes)\n",
				st.Stats.TotalMessages, st.Stats.NewMessages, st.Stats.Delivered, st.Stats.Consumed,
				st.Stats.TotalChunks, st.Stats.TotalBytes)
			if len(st.Messages) == 0 {
				return nil
			}

			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATE\tCHUNKS\tBYTES\tCREATED")
			for _, m := range st.Messages {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", m.ID, m.State, m.Chunks, m.Size, m.CreatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
}

func newRelayZoneCmd(a *app) *cobra.Command {
	var (
		in  string
		ttl uint32
	)

	cmd := &cobra.Command{
		Use:   "zone",
		Short: "Print a stego image as BIND zone file TXT records",
		Long: `Prints the manifest and fragment records for an image so it can be served
from any authoritative DNS server instead of the built-in relay.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := a.splitImage(in)
			if err != nil {
				return err
			}
			naming := chunker.NewNaming(a.cfg.Relay.Domain)
			fmt.Fprint(cmd.OutOrStdout(), naming.ZoneFile(msg, ttl))
			return nil
		},
	}
	cmd.Flags().StringVarP(&in, "in", "i", "", "stego image")
	cmd.Flags().Uint32Var(&ttl, "ttl", 300, "record TTL in seconds")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}
