// Package config loads bus-profile settings (baudrate, GPIO pin names,
// and a retry policy) from an ini file via gopkg.in/ini.v1.
package config

import (
	"fmt"

	"gopkg.in/ini.v1"
)

// BusProfile is one named bus configuration: a baudrate and the pin names
// a periphpins.OpenOut/OpenIn pair should bind to.
type BusProfile struct {
	Name               string
	Baudrate           int
	TXPin              string
	RXPin              string
	RetryOnNoAck       int
	RetryBackoffMicros int
}

// LoadBusProfiles reads every [bus.<name>] section from path into a
// BusProfile. Unknown keys are ignored, and a missing key falls back to
// a documented default rather than failing the whole load.
func LoadBusProfiles(path string) (map[string]BusProfile, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %q: %w", path, err)
	}

	profiles := make(map[string]BusProfile)
	for _, section := range cfg.Sections() {
		const prefix = "bus."
		if len(section.Name()) <= len(prefix) || section.Name()[:len(prefix)] != prefix {
			continue
		}
		name := section.Name()[len(prefix):]
		profile := BusProfile{
			Name:               name,
			Baudrate:           section.Key("baudrate").MustInt(125_000),
			TXPin:              section.Key("tx_pin").MustString("GPIO17"),
			RXPin:              section.Key("rx_pin").MustString("GPIO27"),
			RetryOnNoAck:       section.Key("retry_on_no_ack").MustInt(0),
			RetryBackoffMicros: section.Key("retry_backoff_micros").MustInt(1000),
		}
		profiles[name] = profile
	}
	return profiles, nil
}
