package cmd

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dhcgn/mail-campaign/config"
	"github.com/dhcgn/mail-campaign/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage the saved sender profile",
}

var settingsSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Store sender, SMTP and default file settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		update, err := config.LoadSettingsUpdate(cmd)
		if err != nil {
			return err
		}
		if err := settings.Save(update.Path, update.Values); err != nil {
			return err
		}
		pterm.Success.Printf("Settings saved to %s\n", settings.DisplayPath(update.Path))
		return nil
	},
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the saved settings with secrets masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		file, err := config.LoadSettingsFile(cmd)
		if err != nil {
			return err
		}
		s, err := settings.Load(file.Path)
		if err != nil {
			return err
		}
		if s.IsZero() {
			pterm.Info.Printf("No settings stored in %s\n", settings.DisplayPath(file.Path))
			return nil
		}
		return pterm.DefaultTable.WithHasHeader().WithData(settingsTable(s)).Render()
	},
}

func init() {
	config.RegisterSettingsFileFlag(settingsCmd)
	config.RegisterSettingsFlags(settingsSaveCmd)
	settingsCmd.AddCommand(settingsSaveCmd, settingsShowCmd)
	rootCmd.AddCommand(settingsCmd)
}

func settingsTable(s settings.Settings) pterm.TableData {
	port := func(p int) string {
		if p == 0 {
			return ""
		}
		return strconv.Itoa(p)
	}
	data := pterm.TableData{
		{"Setting", "Value"},
		{"Sender email", s.Email},
		{"Sender name", s.SenderName},
		{"Password", settings.Mask(s.Password)},
		{"App password", settings.Mask(s.AppPassword)},
		{"SMTP server", s.SMTPServer},
		{"SMTP port", port(s.SMTPPort)},
		{"Gmail", fmt.Sprint(s.Gmail)},
		{"Contacts", settings.DisplayPath(s.LastContacts)},
		{"Template", settings.DisplayPath(s.LastTemplate)},
	}
	if s.PreviousSMTPServer != "" {
		data = append(data, []string{"Previous SMTP", s.PreviousSMTPServer + ":" + port(s.PreviousSMTPPort)})
	}
	return data
}
