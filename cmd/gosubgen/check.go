package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jo-hoe/gosubgen/internal/dispatch"
	"github.com/jo-hoe/gosubgen/internal/logging"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var mapPath bool
	cmd := &cobra.Command{
		Use:   "check <path>",
		Short: "Run the admission checks for a media file without queueing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			log := logging.Discard()
			if cfg.Server.Debug {
				if log, err = ctx.logger(); err != nil {
					return err
				}
			}

			path := args[0]
			if mapPath {
				path = pathMapper(cfg).Map(path)
			} else if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}

			d := dispatch.New(log, newChecker(log, cfg), nil, nil, nil)
			dec := d.Check(cmd.Context(), path)

			out := cmd.OutOrStdout()
			rows := [][]string{{"Path", path}}
			if dec.Admitted {
				rows = append(rows, []string{"Verdict", "would transcribe"}, []string{"Subtitle", dec.ArtifactPath})
			} else {
				rows = append(rows, []string{"Verdict", "skip"}, []string{"Reason", string(dec.Veto)})
			}
			fmt.Fprintln(out, fieldTable("Check", "Result", rows))
			if !dec.Admitted && dec.Veto == dispatch.VetoProbeFailed {
				return fmt.Errorf("probe failed for %s", path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&mapPath, "map", false, "Apply the configured path mapping first, as a webhook would")
	return cmd
}
