package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/pgzip"
	"github.com/spf13/cobra"

	"github.com/testlabtools/postbuild/tar"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list <archive>",
	Short: "List the members of a tarball",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		setup, err := setupCommand(cmd, args)
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer f.Close()

		r, err := archiveReader(f)
		if err != nil {
			return err
		}

		members, err := tar.List(r)
		if err != nil {
			return err
		}

		setup.log.Debug("listed archive", "path", args[0], "members", len(members))

		w := cmd.OutOrStdout()
		for _, m := range members {
			fmt.Fprintf(w, "%04o %10d %s %s\n", m.Mode, m.Size, m.ModTime.UTC().Format("2006-01-02 15:04"), m.Name)
		}
		return nil
	},
}

// archiveReader unwraps gzip compressed archives.
func archiveReader(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := pgzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return zr, nil
	}
	return br, nil
}

func init() {
	Root.AddCommand(listCmd)
}
