package main

import (
	"fmt"
	"log/slog"

	"github.com/blox-verify/internal/application/credit"
	"github.com/blox-verify/internal/config"
	"github.com/blox-verify/internal/infrastructure/filestore"
	"github.com/spf13/cobra"
)

func importLegacyCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import-legacy",
		Short: "Load owner/handle bindings from the old verifications.json file",
		Long: `Reads the flat {"<discord id>": "<roblox username>"} file and grants every
binding its initial BEcredits. Bindings whose handle already has a record keep
their current balance, so the import can be re-run safely.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			setupLogging(cfg)
			ctx := cmd.Context()

			bindings, err := filestore.ReadLegacy(file)
			if err != nil {
				return fmt.Errorf("read legacy file: %w", err)
			}

			st, err := openStores(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.close()

			credits := credit.NewService(st.verifications, cfg.InitialCredits, nil)
			granted, kept := 0, 0
			for _, b := range bindings {
				_, created, err := credits.GrantInitial(ctx, b.OwnerID, b.Handle)
				if err != nil {
					return fmt.Errorf("import %s (%s): %w", b.OwnerID, b.Handle, err)
				}
				if created {
					granted++
				} else {
					kept++
				}
			}
			slog.Info("legacy import complete", "file", file, "granted", granted, "unchanged", kept)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "verifications.json", "legacy verifications file")
	return cmd
}
