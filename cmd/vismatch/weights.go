package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lostboard/vismatch/convnet"
)

func newWeightsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weights",
		Short: "Create and inspect weight files",
	}

	gen := &cobra.Command{
		Use:   "generate <file>",
		Short: "Write a network with deterministic random weights",
		Args:  cobra.ExactArgs(1),
		RunE:  runWeightsGenerate,
	}
	gen.Flags().String("arch", "mobilenet", "Architecture: mobilenet or compact")
	gen.Flags().Int("input", 64, "Input size for the compact architecture")
	gen.Flags().Int("dim", 128, "Embedding length for the compact architecture")
	gen.Flags().Uint64("seed", 1, "Random seed")
	gen.Flags().String("compression", "zstd", "Body compression: none, zstd or lz4")

	inspect := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Describe a weight file",
		Args:  cobra.ExactArgs(1),
		RunE:  runWeightsInspect,
	}

	cmd.AddCommand(gen, inspect)
	return cmd
}

func archFromFlags(cmd *cobra.Command) (convnet.Arch, error) {
	name, _ := cmd.Flags().GetString("arch")
	switch name {
	case "mobilenet":
		return convnet.MobileNetV1(), nil
	case "compact":
		input, _ := cmd.Flags().GetInt("input")
		dim, _ := cmd.Flags().GetInt("dim")
		arch := convnet.Compact(input, dim)
		return arch, arch.Validate()
	default:
		return convnet.Arch{}, fmt.Errorf("unknown architecture %q", name)
	}
}

func runWeightsGenerate(cmd *cobra.Command, args []string) error {
	arch, err := archFromFlags(cmd)
	if err != nil {
		return err
	}
	compName, _ := cmd.Flags().GetString("compression")
	comp, err := convnet.ParseCompression(compName)
	if err != nil {
		return err
	}
	seed, _ := cmd.Flags().GetUint64("seed")

	net, err := convnet.Random(arch, seed)
	if err != nil {
		return err
	}

	f, err := os.Create(args[0])
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := convnet.Encode(w, net, comp); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return newOutputFormatter(cmd).Print(describe(net, comp.String()), func() string {
		return fmt.Sprintf("wrote %s: %s, %d params, %s", args[0], net.Name(), net.Params(), comp)
	})
}

func runWeightsInspect(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	net, err := convnet.Decode(bufio.NewReader(f))
	if err != nil {
		return err
	}
	d := describe(net, "")
	return newOutputFormatter(cmd).Print(d, func() string {
		return fmt.Sprintf("%s: input %dx%dx%d, %d layers, %d params, dim %d",
			d.Name, d.InputChannels, d.InputSize, d.InputSize, d.Layers, d.Params, d.Dim)
	})
}

type weightsInfo struct {
	Name          string `json:"name"`
	InputSize     int    `json:"inputSize"`
	InputChannels int    `json:"inputChannels"`
	Layers        int    `json:"layers"`
	Params        int    `json:"params"`
	Dim           int    `json:"dim"`
	Compression   string `json:"compression,omitempty"`
}

func describe(net *convnet.Network, comp string) weightsInfo {
	return weightsInfo{
		Name:          net.Name(),
		InputSize:     net.InputSize(),
		InputChannels: net.InputChannels(),
		Layers:        len(net.Arch().Layers),
		Params:        net.Params(),
		Dim:           net.Dim(),
		Compression:   comp,
	}
}
