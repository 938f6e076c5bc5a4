package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"Prism/internal/core/directives"
)

type normalizeOutput struct {
	OriginalPath string `json:"originalPath"`
	Key          string `json:"key"`
	Identity     string `json:"identity"`
	EdgePattern  string `json:"edgePattern"`
}

func newNormalizeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "normalize REQUEST-URI",
		Short:   "Print the canonical identity of an image request",
		Args:    cobra.ExactArgs(1),
		PreRunE: bindFlags,
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := url.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parse request uri: %w", err)
			}
			n := directives.Normalizer{MaxDimension: viper.GetInt("max-dimension")}
			id := n.Normalize(u.Path, u.Query(), viper.GetString("accept"))
			if viper.GetBool("json") {
				return printJSON(cmd, normalizeOutput{
					OriginalPath: id.OriginalPath,
					Key:          id.Key,
					Identity:     id.Path(),
					EdgePattern:  "/" + id.OriginalPath + "*",
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), id.Path())
			return nil
		},
	}
	flags := cmd.Flags()
	flags.String("accept", "", "Accept header used to resolve format=auto")
	flags.Int("max-dimension", 0, "largest accepted width or height (0 = unbounded)")
	flags.Bool("json", false, "print JSON")
	return cmd
}
