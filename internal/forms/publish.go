// Package forms holds the interactive prompts used by the CLI.
package forms

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/hay-kot/perch/internal/core/validate"
	"github.com/hay-kot/perch/internal/styles"
)

// Publish holds the values collected by the publish form. Fields that are
// already set are offered as defaults.
type Publish struct {
	Channel string
	Type    string
	Payload string
}

// Fields builds the form fields bound to p. Known channels are offered as
// suggestions for the channel input.
func (p *Publish) Fields(knownChannels []string) []huh.Field {
	channel := huh.NewInput().
		Title("Channel *").
		Placeholder("jobs/build").
		Value(&p.Channel).
		Validate(validate.ChannelName)
	if len(knownChannels) > 0 {
		channel.Suggestions(knownChannels)
	}

	typ := huh.NewInput().
		Title("Type").
		Description("Optional message type, e.g. build.started").
		Value(&p.Type)

	payload := huh.NewText().
		Title("Payload *").
		Description("JSON is delivered as-is; anything else is delivered as a string").
		Value(&p.Payload).
		Validate(requiredValidator("Payload"))

	return []huh.Field{channel, typ, payload}
}

// Run shows the form and fills p.
func (p *Publish) Run(knownChannels []string) error {
	form := huh.NewForm(huh.NewGroup(p.Fields(knownChannels)...)).WithTheme(styles.FormTheme())
	if err := form.Run(); err != nil {
		return fmt.Errorf("publish form: %w", err)
	}

	p.Channel = strings.TrimSpace(p.Channel)
	p.Type = strings.TrimSpace(p.Type)
	return nil
}

// requiredValidator returns a validator that checks for non-empty values.
func requiredValidator(label string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", label)
		}
		return nil
	}
}
