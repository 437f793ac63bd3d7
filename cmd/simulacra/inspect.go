package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/faanross/simulacra_lsb/internal/decoder"
	"github.com/faanross/simulacra_lsb/internal/encoder"
	"github.com/faanross/simulacra_lsb/internal/scrypto"
	"github.com/faanross/simulacra_lsb/internal/ui"
)

func newCapacityCmd(a *app) *cobra.Command {
	var (
		in     string
		length int
	)

	cmd := &cobra.Command{
		Use:   "capacity",
		Short: "Show how much text an image can hide",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dec := decoder.New(a.log)
			dec.MaxImageBytes = a.cfg.Codec.MaxImageBytes
			loaded, err := dec.Load(in)
			if err != nil {
				return err
			}

			plan := encoder.NewPlan(loaded.Raster, length)
			sealed := max(plan.MaxPayload-scrypto.SealOverhead, 0)

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s (%s, %dx%d)\n", ui.Path.Sprint(in), loaded.Format, plan.Width, plan.Height)
			fmt.Fprintf(w, "  eligible bytes:   %d\n", plan.EligibleBytes)
			fmt.Fprintf(w, "  capacity:         %d bits\n", plan.CapacityBits)
			fmt.Fprintf(w, "  max message:      %d bytes (xor), %d bytes (sealed)\n", plan.MaxPayload, sealed)

			if cmd.Flags().Changed("length") {
				mark := color.GreenString("✓ fits")
				if !plan.Fits() {
					mark = color.RedString("✗ does not fit")
				}
				fmt.Fprintf(w, "  %d byte payload:  %s (%.1f%% of capacity)\n", length, mark, plan.Utilization)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&in, "in", "i", "", "image to measure")
	cmd.Flags().IntVarP(&length, "length", "n", 0, "check whether a payload of this many bytes fits")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var in string

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Measure how random an image's least significant bits look",
		Long: `Reports the 0/1 balance and entropy of the least significant bit plane, the
average of each color channel, and whether the header position declares a
payload that would fit. Noise-like LSBs suggest a hidden payload or a noise
carrier; natural photographs usually show more structure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dec := decoder.New(a.log)
			dec.MaxImageBytes = a.cfg.Codec.MaxImageBytes
			loaded, err := dec.Load(in)
			if err != nil {
				return err
			}
			rep := decoder.AnalyzeSecurity(loaded.Raster)

			verdict := ui.Warning.Sprint(rep.Verdict)
			switch rep.Verdict {
			case decoder.VerdictRandom:
				verdict = ui.Success.Sprint(rep.Verdict)
			case decoder.VerdictNatural:
				verdict = ui.Info.Sprint(rep.Verdict)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s (%dx%d)\n", ui.Path.Sprint(in), loaded.Raster.Width, loaded.Raster.Height)
			fmt.Fprintf(w, "  LSB zeros/ones:   %d / %d (%.2f%% zeros)\n", rep.Zeros, rep.Ones, rep.ZeroRatio)
			fmt.Fprintf(w, "  LSB entropy:      %.4f bits (%.1f%% random)\n", rep.Entropy, rep.Randomness)
			fmt.Fprintf(w, "  channel averages: R %.1f  G %.1f  B %.1f\n", rep.RedAvg, rep.GreenAvg, rep.BlueAvg)
			if rep.Uniform {
				fmt.Fprintf(w, "  %s\n", ui.Muted.Sprint("channels are evenly balanced"))
			}
			fmt.Fprintf(w, "  header length:    %d (plausible: %t)\n", rep.DeclaredLength, rep.Plausible)
			fmt.Fprintf(w, "  verdict:          %s\n", verdict)
			return nil
		},
	}

	cmd.Flags().StringVarP(&in, "in", "i", "", "image to analyze")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}
