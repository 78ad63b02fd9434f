package main

import (
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"vtgofer/internal/codec"
	"vtgofer/internal/config"
	"vtgofer/internal/fields"
	"vtgofer/internal/vt"
)

func newDecodeCmd(configPath, envPath *string) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "decode [base64-buffer]",
		Short: "Decode an encoded lookup result into named fields",
		Long: `Decode prints every field of an encoded result, as returned by the
/lookup endpoint, using the field layout of the configured vendors. The
default vendor list is used when no config file can be loaded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vendors := (&config.VirusTotalConfig{DataSources: config.DefaultDataSources}).GetDataSources()
			if cfg, err := loadConfig(*configPath, *envPath); err == nil {
				vendors = cfg.VirusTotal.GetDataSources()
			}
			return decodeBuffer(cmd.OutOrStdout(), vendors, args[0], count)
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", -1, "number of fields in the buffer (default: all)")

	return cmd
}

// decodeBuffer writes one "field<TAB>value" line per encoded pair
func decodeBuffer(w io.Writer, vendors []string, encoded string, count int) error {
	buf, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return fmt.Errorf("invalid base64 buffer: %w", err)
	}

	reg := fields.NewMemoryRegistry()
	if _, err := vt.NewLayout(reg, vendors); err != nil {
		return err
	}

	if count < 0 {
		count = countRecords(buf)
	}

	pairs, err := codec.Decode(buf, count)
	if err != nil {
		return err
	}

	for _, p := range pairs {
		name := fmt.Sprintf("field#%d", p.Field)
		if spec, ok := reg.Lookup(p.Field); ok {
			name = spec.Field
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\n", name, p.Value); err != nil {
			return err
		}
	}
	return nil
}

// countRecords walks the record headers to find how many fields buf holds
func countRecords(buf []byte) int {
	n := 0
	for pos := 0; pos+1 < len(buf); n++ {
		pos += 2 + int(buf[pos+1])
	}
	return n
}
