package event

import (
	"fmt"

	"github.com/cadre-oss/hearth/internal/config"
)

// NewBusFromConfig builds a bus with the hooks declared in cfg. A disabled
// hooks section yields a bus with no hooks.
func NewBusFromConfig(cfg config.HooksConfig, logger Logger) (*Bus, error) {
	bus := NewBus(logger)
	if !cfg.Enabled {
		return bus, nil
	}

	for _, hc := range cfg.Hooks {
		events := make([]EventType, 0, len(hc.Events))
		for _, e := range hc.Events {
			events = append(events, EventType(e))
		}

		switch hc.Type {
		case "shell":
			bus.Register(NewShellHook(hc.Name, hc.Command, events, hc.Blocking))
		case "webhook":
			bus.Register(NewWebhookHook(hc.Name, hc.URL, events, hc.Blocking))
		case "log":
			bus.Register(NewLogHook(hc.Name, events, logger, hc.Level))
		default:
			return nil, fmt.Errorf("hook %s has unknown type %q", hc.Name, hc.Type)
		}
	}
	return bus, nil
}
