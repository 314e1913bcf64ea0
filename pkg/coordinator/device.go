// Package coordinator pkg/coordinator/device.go
package coordinator

import (
	"time"

	"github.com/DucuSandu/ha-snmp-r1d1/pkg/config"
	"github.com/DucuSandu/ha-snmp-r1d1/pkg/snmp"
)

const (
	defaultPollInterval  = 30 * time.Second
	defaultSlowInterval  = time.Hour
	defaultMACMultiplier = 10
	defaultTimeout       = 5 * time.Second
	defaultRetries       = 1

	// degradedThreshold is how many consecutive whole-batch failures mark
	// a device degraded without tearing its polling loops down.
	degradedThreshold = 5
)

// DeviceConfig is one configured polling target.
type DeviceConfig struct {
	Name        string           `json:"name"`
	Host        string           `json:"host"`
	Port        uint16           `json:"port,omitempty"`
	DeviceType  string           `json:"device_type"`
	Credentials snmp.Credentials `json:"credentials"`

	PollInterval  config.Duration `json:"poll_interval,omitempty"`
	MACMultiplier int             `json:"mac_multiplier,omitempty"`
	SlowInterval  config.Duration `json:"slow_interval,omitempty"`
	Timeout       config.Duration `json:"timeout,omitempty"`
	Retries       int             `json:"retries,omitempty"`

	EnableControls bool   `json:"enable_controls,omitempty"`
	CustomOIDs     string `json:"custom_oids,omitempty"`

	// MACCollectionPorts limits the MAC-table refresh to these port
	// indices. Empty means every port.
	MACCollectionPorts []int `json:"mac_collection_ports,omitempty"`
}

// Validate implements config.Validator.
func (c *DeviceConfig) Validate() error {
	if c.Name == "" {
		return ErrDeviceNameRequired
	}

	if c.Host == "" {
		return ErrHostRequired
	}

	if c.DeviceType == "" {
		return ErrTypeRequired
	}

	if err := c.Credentials.Validate(); err != nil {
		return err
	}

	if time.Duration(c.PollInterval) <= 0 {
		c.PollInterval = config.Duration(defaultPollInterval)
	}

	if c.MACMultiplier <= 0 {
		c.MACMultiplier = defaultMACMultiplier
	}

	if time.Duration(c.SlowInterval) <= 0 {
		c.SlowInterval = config.Duration(defaultSlowInterval)
	}

	if time.Duration(c.Timeout) <= 0 {
		c.Timeout = config.Duration(defaultTimeout)
	}

	if c.Retries <= 0 {
		c.Retries = defaultRetries
	}

	return nil
}

// macInterval is the medium-cadence period.
func (c *DeviceConfig) macInterval() time.Duration {
	return time.Duration(c.PollInterval) * time.Duration(c.MACMultiplier)
}
