package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/faanross/simulacra_lsb/internal/decoder"
	"github.com/faanross/simulacra_lsb/internal/history"
	"github.com/faanross/simulacra_lsb/internal/ui"
)

func (a *app) newDecoder(pw *passwordFlags) (*decoder.Decoder, error) {
	ob, err := pw.obfuscator(a)
	if err != nil {
		return nil, err
	}
	dec := decoder.New(a.log)
	dec.Obfuscator = ob
	dec.Workers = a.cfg.Codec.Workers
	dec.MaxImageBytes = a.cfg.Codec.MaxImageBytes
	return dec, nil
}

func newDecodeCmd(a *app) *cobra.Command {
	var (
		in, out string
		pw      passwordFlags
	)

	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Reveal a message hidden in an image",
		Long: `Reads the hidden bit-stream from an image and prints the message, or writes
it to --out.

Examples:
  simulacra decode --in secret.png -p hunter22
  simulacra decode --in secret.png --prompt --cipher sealed --out message.txt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := pw.read(false)
			if err != nil {
				return err
			}
			dec, err := a.newDecoder(&pw)
			if err != nil {
				return err
			}

			res, err := dec.DecodeFile(cmd.Context(), in, password)
			if err != nil {
				return err
			}
			a.record(history.KindDecode, filepath.Base(in), len(res.Message), res.ImageCID)

			w := cmd.OutOrStdout()
			if !utf8.Valid(res.Message) {
				a.log.WarnfAlways("message is not valid UTF-8; the password may be wrong")
			}
			if out != "" {
				if err := os.WriteFile(out, res.Message, 0600); err != nil {
					return fmt.Errorf("writing %s: %w", out, err)
				}
				fmt.Fprintf(w, "%s %d bytes written to %s\n", color.GreenString("✓"), len(res.Message), ui.Path.Sprint(out))
				return nil
			}
			fmt.Fprintln(w, string(res.Message))
			return nil
		},
	}

	cmd.Flags().StringVarP(&in, "in", "i", "", "stego image")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the message to a file instead of stdout")
	pw.register(cmd)
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func newTryPassCmd(a *app) *cobra.Command {
	var (
		in     string
		list   string
		file   string
		cipher string
	)

	cmd := &cobra.Command{
		Use:   "trypass",
		Short: "Try several candidate passwords against an image",
		Long: `Decodes the image with each candidate in turn and reports the first that
yields readable UTF-8 text. An empty candidate means no password.

With the default xor cipher a wrong password can still produce readable
text, so treat a match as a hint. The sealed cipher authenticates every
attempt.

Examples:
  simulacra trypass --in secret.png --list "spring,summer,autumn"
  simulacra trypass --in secret.png --file candidates.txt --cipher sealed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			candidates, err := candidateList(list, file)
			if err != nil {
				return err
			}
			dec, err := a.newDecoder(&passwordFlags{cipher: cipher})
			if err != nil {
				return err
			}
			loaded, err := dec.Load(in)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			s, done := a.startSpinner(w, fmt.Sprintf("Trying %d passwords...", len(candidates)))
			match, err := dec.TryPasswords(cmd.Context(), loaded.Raster, candidates)
			if err != nil {
				done()
				return err
			}
			s.FinalMSG = fmt.Sprintf("%s Candidate %d matched: %s\n", color.GreenString("✓"), match.Index+1, ui.Highlight.Sprint(match.Password))
			done()
			fmt.Fprintln(w, string(match.Message))
			return nil
		},
	}

	cmd.Flags().StringVarP(&in, "in", "i", "", "stego image")
	cmd.Flags().StringVarP(&list, "list", "l", "", "comma-separated candidate passwords")
	cmd.Flags().StringVarP(&file, "file", "f", "", "file with one candidate per line")
	cmd.Flags().StringVar(&cipher, "cipher", "", "payload cipher: xor or sealed (default from config)")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func candidateList(list, file string) ([]string, error) {
	var out []string
	if list != "" {
		out = append(out, strings.Split(list, ",")...)
	}
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		sc := bufio.NewScanner(f)
		for sc.Scan() {
			out = append(out, strings.TrimRight(sc.Text(), "\r"))
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no candidates: use --list or --file")
	}
	return out, nil
}
