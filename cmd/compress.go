package cmd

import (
	"github.com/spf13/cobra"

	"github.com/testlabtools/postbuild"
	"github.com/testlabtools/postbuild/esbuildhost"
)

// compressCmd represents the compress command
var compressCmd = &cobra.Command{
	Use:   "compress <dir>",
	Short: "Compress the files of an existing build directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		setup, err := setupCommand(cmd, args)
		if err != nil {
			return err
		}

		c := setup.config.Compression
		if err := applyCompressionFlags(cmd.Flags(), &c); err != nil {
			return err
		}

		o, err := c.build(setup)
		if err != nil {
			return err
		}

		dir := args[0]
		b := &postbuild.Build{
			OutDirs:   []string{dir},
			PublicDir: dir,
			Bundle:    postbuild.NewBundle(),
			Host:      esbuildhost.Host(),
			Log:       setup.log,
		}

		return postbuild.Run(cmd.Context(), b, postbuild.NewCompression(o))
	},
}

func init() {
	Root.AddCommand(compressCmd)

	addCompressionFlags(compressCmd.Flags())
}
