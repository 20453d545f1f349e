package doctor

import (
	"context"
	"errors"

	"github.com/hay-kot/criterio"

	"github.com/hay-kot/perch/internal/core/config"
)

// ConfigCheck reports validation errors and warnings for the loaded config.
type ConfigCheck struct {
	cfg  *config.Config
	path string
}

// NewConfigCheck creates a config check. path is the file the config was
// loaded from and may be empty.
func NewConfigCheck(cfg *config.Config, path string) *ConfigCheck {
	return &ConfigCheck{cfg: cfg, path: path}
}

func (c *ConfigCheck) Name() string {
	return "Configuration"
}

func (c *ConfigCheck) Run(_ context.Context) Result {
	result := Result{Name: c.Name()}

	if c.cfg == nil {
		result.fail("Config loaded", "configuration not loaded")
		return result
	}

	err := c.cfg.ValidateDeep(c.path)

	var fieldErrs criterio.FieldErrors
	switch {
	case err == nil:
	case errors.As(err, &fieldErrs):
		for _, fe := range fieldErrs {
			result.fail(orDefault(fe.Field, "validation"), fe.Err.Error())
		}
	default:
		result.fail("validation", err.Error())
	}

	for _, w := range c.cfg.Warnings() {
		label := w.Category
		if w.Item != "" {
			label += " (" + w.Item + ")"
		}
		result.warn(label, w.Message)
	}

	if len(result.Items) == 0 {
		result.pass("Config valid", "")
	}

	return result
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
