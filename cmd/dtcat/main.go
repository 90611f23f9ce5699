// Command dtcat inspects encoded DataTable payloads and stream offsets.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tuannm99/novagather/internal/alias/bx"
	"github.com/tuannm99/novagather/internal/datatable"
	"github.com/tuannm99/novagather/internal/gather"
	"github.com/tuannm99/novagather/internal/sample"
	"github.com/tuannm99/novagather/internal/stream"
)

var rootCmd = &cobra.Command{
	Use:           "dtcat",
	Short:         "Inspect DataTable payloads",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func showCmd() *cobra.Command {
	var metaOnly bool
	cmd := &cobra.Command{
		Use:   "show <file>",
		Short: "Decode a payload file and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return show(cmd.OutOrStdout(), buf, metaOnly)
		},
	}
	cmd.Flags().BoolVar(&metaOnly, "meta", false, "print only the header and metadata")
	return cmd
}

func show(w io.Writer, buf []byte, metaOnly bool) error {
	t, err := datatable.Decode(buf)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	fmt.Fprintf(w, "version %d, %s total, fixed %s, heap %s\n",
		bx.I32(buf),
		humanize.Bytes(uint64(len(buf))),
		humanize.Bytes(uint64(t.FixedSize())),
		humanize.Bytes(uint64(t.HeapSize())),
	)
	if !metaOnly {
		fmt.Fprint(w, t.Dump())
		return nil
	}
	fmt.Fprintf(w, "schema %s, row size %d\n", t.Schema(), t.Layout().RowSize)
	meta := t.Metadata()
	for _, k := range meta.Keys() {
		fmt.Fprintf(w, "%s = %s\n", k, meta[k])
	}
	return nil
}

func sampleCmd() *cobra.Command {
	var (
		node    string
		rows    int
		version int32
		out     string
	)
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Write a sample node payload",
		RunE: func(cmd *cobra.Command, args []string) error {
			ex := &sample.Executor{Node: node, Rows: rows}
			b, err := ex.Execute(cmd.Context(), gather.Request{Query: "scan"})
			if err != nil {
				return err
			}
			b.SetMetadata(datatable.MetaNodeID, node)
			buf, err := datatable.Encode(b.Seal(), datatable.WithVersion(version))
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(buf)
				return err
			}
			if err := os.WriteFile(out, buf, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s to %s\n", humanize.Bytes(uint64(len(buf))), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&node, "node", "n1", "node id")
	cmd.Flags().IntVar(&rows, "rows", 5, "row count")
	cmd.Flags().Int32Var(&version, "version", datatable.DefaultVersion, "frame format version")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func offsetsCmd() *cobra.Command {
	var (
		db      string
		topic   string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "offsets",
		Short: "Print partition offsets of a stream store",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := stream.OpenStore(db)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()
			return printOffsets(cmd.OutOrStdout(), s, topic, timeout)
		},
	}
	cmd.Flags().StringVar(&db, "db", "stream.db", "stream store file")
	cmd.Flags().StringVar(&topic, "topic", "events", "topic")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Second, "per-fetch timeout")
	return cmd
}

func printOffsets(w io.Writer, s *stream.Store, topic string, timeout time.Duration) error {
	p0 := s.Provider(topic, 0)
	defer func() { _ = p0.Close() }()
	n, err := p0.FetchPartitionCount(timeout)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		p := s.Provider(topic, i)
		lo, err := p.FetchPartitionOffset(stream.Smallest, timeout)
		if err != nil {
			return err
		}
		hi, err := p.FetchPartitionOffset(stream.Largest, timeout)
		if err != nil {
			return err
		}
		_ = p.Close()
		fmt.Fprintf(w, "%s/%d\t%d..%d\t(%s messages)\n", topic, i, lo, hi, humanize.Comma(hi-lo))
	}
	return nil
}

func main() {
	rootCmd.AddCommand(showCmd(), sampleCmd(), offsetsCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
