package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dhcgn/mail-campaign/campaign"
	"github.com/dhcgn/mail-campaign/settings"
)

// SettingsFile configures the settings commands.
type SettingsFile struct {
	Common
	Path string
}

// SettingsUpdate is a settings file merged with the values given on the
// command line.
type SettingsUpdate struct {
	SettingsFile
	Values settings.Settings
}

// Suppression configures the suppression commands.
type Suppression struct {
	Common
	DB string
}

// RegisterSettingsFileFlag attaches --settings-file as a persistent flag.
func RegisterSettingsFileFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().String("settings-file", settings.DefaultFile, "Saved sender settings")
}

// RegisterSettingsFlags attaches the sender profile flags of settings save.
func RegisterSettingsFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("sender-email", "", "Sender address, also the SMTP username")
	flags.String("sender-name", "", "Sender display name")
	flags.String("password", "", "SMTP password")
	flags.String("app-password", "", "Gmail App Password")
	flags.String("smtp-server", "", "SMTP server hostname")
	flags.Int("smtp-port", 465, "SMTP server port")
	flags.Bool("gmail", false, "Gmail mode: smtp.gmail.com, App Password, port 465 or 587")
	flags.String("contacts", "", "Default CSV contact sheet")
	flags.String("template", "", "Default HTML body template")
}

// RegisterSuppressionFlags attaches --db as a persistent flag.
func RegisterSuppressionFlags(cmd *cobra.Command) error {
	dir, err := defaultDir("")
	if err != nil {
		return err
	}
	cmd.PersistentFlags().String("db", filepath.Join(dir, "suppression.db"), "Suppression database")
	return nil
}

// LoadSettingsFile resolves the settings file location.
func LoadSettingsFile(cmd *cobra.Command) (SettingsFile, error) {
	v, common, err := load(cmd)
	if err != nil {
		return SettingsFile{}, err
	}
	return settingsFile(v, common)
}

func settingsFile(v *viper.Viper, common Common) (SettingsFile, error) {
	path := v.GetString("settings-file")
	if path == "" {
		return SettingsFile{}, fmt.Errorf("--settings-file must not be empty")
	}
	return SettingsFile{Common: common, Path: path}, nil
}

// LoadSettingsUpdate reads the stored settings and overlays every value that
// was set explicitly. A changed server or port moves the old one to the
// previous_* fields.
func LoadSettingsUpdate(cmd *cobra.Command) (SettingsUpdate, error) {
	v, common, err := load(cmd)
	if err != nil {
		return SettingsUpdate{}, err
	}
	file, err := settingsFile(v, common)
	if err != nil {
		return SettingsUpdate{}, err
	}

	stored, err := settings.Load(file.Path)
	if err != nil {
		return SettingsUpdate{}, err
	}
	next := stored

	set := func(key string, dst *string) {
		if explicitlySet(v, cmd, key) {
			*dst = v.GetString(key)
		}
	}
	set("sender-email", &next.Email)
	set("sender-name", &next.SenderName)
	set("password", &next.Password)
	set("app-password", &next.AppPassword)
	set("smtp-server", &next.SMTPServer)
	set("contacts", &next.LastContacts)
	set("template", &next.LastTemplate)
	if explicitlySet(v, cmd, "smtp-port") {
		next.SMTPPort = v.GetInt("smtp-port")
	}
	if explicitlySet(v, cmd, "gmail") {
		next.Gmail = v.GetBool("gmail")
	}
	if next.Gmail && next.SMTPServer == "" {
		next.SMTPServer = "smtp.gmail.com"
	}
	if next.SMTPPort == 0 {
		next.SMTPPort = v.GetInt("smtp-port")
	}

	if stored.SMTPServer != "" && (stored.SMTPServer != next.SMTPServer || stored.SMTPPort != next.SMTPPort) {
		next.PreviousSMTPServer = stored.SMTPServer
		next.PreviousSMTPPort = stored.SMTPPort
	}

	if next.Email == "" {
		return SettingsUpdate{}, fmt.Errorf("--sender-email is required")
	}
	if next.SMTPPort <= 0 || next.SMTPPort > 65535 {
		return SettingsUpdate{}, fmt.Errorf("--smtp-port must be between 1 and 65535")
	}
	if next.Gmail && next.SMTPPort != 465 && next.SMTPPort != 587 {
		return SettingsUpdate{}, campaign.ErrGmailPort
	}
	return SettingsUpdate{SettingsFile: file, Values: next}, nil
}

// LoadSuppression resolves the suppression database location.
func LoadSuppression(cmd *cobra.Command) (Suppression, error) {
	v, common, err := load(cmd)
	if err != nil {
		return Suppression{}, err
	}
	db := v.GetString("db")
	if db == "" {
		return Suppression{}, fmt.Errorf("--db must not be empty")
	}
	return Suppression{Common: common, DB: db}, nil
}
