package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dhcgn/mail-campaign/config"
	"github.com/dhcgn/mail-campaign/report"
	"github.com/dhcgn/mail-campaign/suppression"
)

var suppressionCmd = &cobra.Command{
	Use:   "suppression",
	Short: "Manage addresses that must not be mailed again",
}

var suppressionImportCmd = &cobra.Command{
	Use:   "import <csv>",
	Short: "Add the addresses of a rejected-emails CSV to the suppression list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadSuppression(cmd)
		if err != nil {
			return err
		}
		addresses, err := report.ReadCSV(args[0])
		if err != nil {
			return err
		}

		store, err := suppression.Open(cfg.DB)
		if err != nil {
			return err
		}
		defer store.Close()

		added, err := store.Add(cmd.Context(), args[0], uuid.NewString(), addresses)
		if err != nil {
			return err
		}
		pterm.Success.Printf("Imported %d new of %d addresses into %s\n", added, len(addresses), cfg.DB)
		return nil
	},
}

var suppressionListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the suppression list",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadSuppression(cmd)
		if err != nil {
			return err
		}
		store, err := suppression.Open(cfg.DB)
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			pterm.Info.Println("Suppression list is empty")
			return nil
		}
		return pterm.DefaultTable.WithHasHeader().WithData(entriesTable(entries)).Render()
	},
}

var suppressionRemoveCmd = &cobra.Command{
	Use:   "remove <email>...",
	Short: "Allow addresses to be mailed again",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadSuppression(cmd)
		if err != nil {
			return err
		}
		store, err := suppression.Open(cfg.DB)
		if err != nil {
			return err
		}
		defer store.Close()

		for _, email := range args {
			removed, err := store.Remove(cmd.Context(), email)
			if err != nil {
				return err
			}
			if removed {
				pterm.Success.Printf("Removed %s\n", email)
			} else {
				pterm.Info.Printf("%s was not suppressed\n", email)
			}
		}
		return nil
	},
}

func init() {
	if err := config.RegisterSuppressionFlags(suppressionCmd); err != nil {
		panic(fmt.Sprintf("register suppression flags: %v", err))
	}
	suppressionCmd.AddCommand(suppressionImportCmd, suppressionListCmd, suppressionRemoveCmd)
	rootCmd.AddCommand(suppressionCmd)
}

func entriesTable(entries []suppression.Entry) pterm.TableData {
	data := pterm.TableData{{"Email", "Source", "Added"}}
	for _, e := range entries {
		data = append(data, []string{e.Email, e.Source, e.CreatedAt.Local().Format("2006-01-02 15:04")})
	}
	return data
}
