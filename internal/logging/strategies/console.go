package strategies

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sxb1010/eventq/internal/logging/level"
)

// Console is a lightweight strategy suitable for local development and
// tests where a zap sink would be overkill.
type Console struct {
	colored bool
}

// ConsoleOptions configures the Console strategy.
type ConsoleOptions struct {
	Colored bool
}

// NewConsole creates a new Console strategy.
func NewConsole(opts ...ConsoleOptions) *Console {
	colored := true
	if len(opts) > 0 {
		colored = opts[0].Colored
	}
	return &Console{colored: colored}
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
)

func (c *Console) levelColor(lvl level.Level) string {
	if !c.colored {
		return ""
	}
	switch lvl {
	case level.Debug:
		return colorGray
	case level.Info:
		return colorBlue
	case level.Warn:
		return colorYellow
	case level.Error:
		return colorRed
	default:
		return ""
	}
}

func (c *Console) levelString(lvl level.Level) string {
	s := lvl.String()
	if c.colored {
		return c.levelColor(lvl) + s + colorReset
	}
	return s
}

// Log implements Strategy.
func (c *Console) Log(entry Entry) error {
	fmt.Fprintf(os.Stdout, "%s %s [%s]: %s\n",
		entry.Time.Format(time.RFC3339),
		c.levelString(entry.Level),
		entry.Worker,
		entry.Message,
	)
	if len(entry.Fields) == 0 {
		return nil
	}
	fieldsMap := make(map[string]any, len(entry.Fields))
	for _, f := range entry.Fields {
		fieldsMap[f.Key] = f.Value
	}
	b, err := json.Marshal(fieldsMap)
	if err != nil {
		fmt.Fprintf(os.Stdout, "  (failed to marshal fields: %v)\n", err)
		return nil
	}
	fmt.Fprintf(os.Stdout, "  %s\n", b)
	return nil
}

// Sync implements Strategy.
func (c *Console) Sync() error { return nil }
