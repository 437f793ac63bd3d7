package main

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/faanross/simulacra_lsb/internal/encoder"
	"github.com/faanross/simulacra_lsb/internal/history"
	"github.com/faanross/simulacra_lsb/internal/ui"
)

func newEncodeCmd(a *app) *cobra.Command {
	var (
		in, out     string
		message     string
		messageFile string
		width       int
		pw          passwordFlags
	)

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Hide a message in an image",
		Long: `Hides a message in the least significant bits of an image and writes a
lossless copy. Without --in a noise carrier just large enough for the message
is generated.

Examples:
  simulacra encode --in cover.png --out secret.png --message "meet at noon" -p hunter22
  simulacra encode --out noise.png --message-file notes.txt --prompt --cipher sealed
  echo "hi" | simulacra encode --in cover.bmp --out secret.bmp --message-file -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := readMessage(cmd, message, messageFile)
			if err != nil {
				return err
			}
			password, err := pw.read(true)
			if err != nil {
				return err
			}
			ob, err := pw.obfuscator(a)
			if err != nil {
				return err
			}
			if width == 0 {
				width = a.cfg.Codec.CarrierWidth
			}

			enc := encoder.New(a.log)
			enc.Obfuscator = ob
			enc.Workers = a.cfg.Codec.Workers
			enc.MaxImageBytes = a.cfg.Codec.MaxImageBytes

			w := cmd.OutOrStdout()
			s, done := a.startSpinner(w, "Hiding message...")
			res, err := enc.EncodeFile(cmd.Context(), encoder.Request{
				Input:        in,
				Output:       out,
				Message:      msg,
				Password:     password,
				CarrierWidth: width,
			})
			if err != nil {
				done()
				return err
			}
			s.FinalMSG = color.GreenString("✓") + " Message hidden in " + ui.Path.Sprint(res.Output) + "\n"
			done()

			carrier := ui.Path.Sprint(in)
			if res.Generated {
				carrier = ui.Muted.Sprint("generated noise")
			}
			fmt.Fprintf(w, "  carrier:     %s, %dx%d\n", carrier, res.Plan.Width, res.Plan.Height)
			fmt.Fprintf(w, "  message:     %d bytes\n", res.MessageLength)
			fmt.Fprintf(w, "  capacity:    %d of %d bits used (%.1f%%)\n", res.Plan.StreamBits, res.Plan.CapacityBits, res.Plan.Utilization)
			fmt.Fprintf(w, "  content id:  %s\n", ui.Highlight.Sprint(res.ImageCID))

			a.record(history.KindEncode, filepath.Base(res.Output), res.MessageLength, res.ImageCID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&in, "in", "i", "", "carrier image (omit to generate one)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output image (.png, .bmp or .tiff)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "message text")
	cmd.Flags().StringVarP(&messageFile, "message-file", "f", "", "read the message from a file, - for stdin")
	cmd.Flags().IntVar(&width, "width", 0, "width of a generated carrier (default from config)")
	pw.register(cmd)
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
