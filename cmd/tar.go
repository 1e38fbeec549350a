package cmd

import (
	"github.com/spf13/cobra"

	"github.com/testlabtools/postbuild"
	"github.com/testlabtools/postbuild/esbuildhost"
)

// tarCmd represents the tar command
var tarCmd = &cobra.Command{
	Use:   "tar <dir>",
	Short: "Pack an existing build directory into a tarball",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		setup, err := setupCommand(cmd, args)
		if err != nil {
			return err
		}

		c := setup.config.Tarball
		if err := applyTarballFlags(cmd.Flags(), &c); err != nil {
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

		return postbuild.Run(cmd.Context(), b, postbuild.NewTarball(o))
	},
}

func init() {
	Root.AddCommand(tarCmd)

	addTarballFlags(tarCmd.Flags())
}
