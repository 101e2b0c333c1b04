package campaign

import (
	"fmt"
	"os"
	"strings"
)

// Placeholders replaced in message bodies.
const (
	PlaceholderName       = "{{name}}"
	PlaceholderCompany    = "{{company}}"
	PlaceholderSenderName = "{{sender_name}}"
)

// LoadTemplate reads an HTML body template.
func LoadTemplate(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read template: %w", err)
	}
	return string(data), nil
}

// Render substitutes the placeholders literally. Unknown placeholders are left as is.
func Render(template string, c Contact, senderName string) string {
	return strings.NewReplacer(
		PlaceholderName, c.Name,
		PlaceholderCompany, c.Company,
		PlaceholderSenderName, senderName,
	).Replace(template)
}
