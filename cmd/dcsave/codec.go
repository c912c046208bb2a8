package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/dcsave/pkg/dcsave/savecodec"
)

var decodeCmd = &cobra.Command{
	Use:   "decode <file.sav> [out.json]",
	Short: "Decode a save file to JSON",
	Long: `Decode a percent-encoded save file and print its JSON.

With an output path the JSON is written there instead of stdout.
Key order and number spelling are preserved exactly.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runDecode,
}

var encodeCmd = &cobra.Command{
	Use:   "encode <file.json> <out.sav>",
	Short: "Encode JSON into a save file",
	Long:  `Validate a JSON document and write it as a percent-encoded save file.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runEncode,
}

var decodeIndent string

func init() {
	decodeCmd.Flags().StringVar(&decodeIndent, "indent", "  ", "indentation of the JSON output (empty for compact)")

	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(encodeCmd)
}

func runDecode(cmd *cobra.Command, args []string) error {
	v, err := savecodec.ReadFile(args[0])
	if err != nil {
		return err
	}

	var data []byte
	if decodeIndent == "" {
		data, err = savecodec.Marshal(v)
	} else {
		data, err = savecodec.MarshalIndent(v, decodeIndent)
	}
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if len(args) == 1 {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := savecodec.AtomicWrite(args[1], data); err != nil {
		return fmt.Errorf("failed to write %s: %w", args[1], err)
	}
	printInfo("Decoded %s to %s", args[0], args[1])
	return nil
}

func runEncode(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	v, err := savecodec.ParseJSON(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	if err := savecodec.WriteFile(args[1], v); err != nil {
		return err
	}
	printInfo("Encoded %s to %s", args[0], args[1])
	return nil
}
