// Package config holds the process-wide configuration recognized by the
// IAAP core. It deliberately mirrors the flat, viper-friendly shape used by
// the rest of the module's collaborators: every field has a default and can
// be overridden by config file or environment variable.
package config

import "time"

// Config is the structured configuration described in spec.md's design
// notes. No other inputs are consulted by the core components.
type Config struct {
	DataDir string `mapstructure:"data_dir"`

	IAMDBName   string `mapstructure:"iam_db_name"`
	AuditDBName string `mapstructure:"audit_db_name"`

	RingBufferCapacity int `mapstructure:"ring_buffer_capacity"`

	DelegationTimeoutDefaultSeconds  int `mapstructure:"delegation_timeout_default_seconds"`
	DelegationCapabilityTTLSeconds   int `mapstructure:"delegation_capability_ttl_seconds"`
	DelegationMaxConcurrentInbound   int `mapstructure:"delegation_max_concurrent_inbound"`
	DelegationMaxAcceptedAccessLevel int `mapstructure:"delegation_max_accepted_access_level"`

	PeerRequestTimeoutSeconds int `mapstructure:"peer_request_timeout_seconds"`
	WatchdogIntervalSeconds   int `mapstructure:"watchdog_interval_seconds"`
	LogPruneRetentionDays     int `mapstructure:"log_prune_retention_days"`

	// MaxAccessLevel is loaded from max_access_level. Nothing in this module
	// reads it: agent access levels are not capped by this value.
	MaxAccessLevel int `mapstructure:"max_access_level"`

	NodeID   string `mapstructure:"node_id"`
	SelfHost string `mapstructure:"self_host"`
	SelfPort int    `mapstructure:"self_port"`

	GatewayPort         int      `mapstructure:"gateway_port"`
	GatewayRateLimitRPS int      `mapstructure:"gateway_rate_limit_rps"`
	GatewayCORSOrigins  []string `mapstructure:"gateway_cors_origins"`
	GatewayJWTSecret    string   `mapstructure:"gateway_jwt_secret"`

	PeerNodeIDs []string `mapstructure:"peer_node_ids"`
	PeerHosts   []string `mapstructure:"peer_hosts"`
	PeerPorts   []int    `mapstructure:"peer_ports"`
}

// Default returns a Config populated with the defaults named in spec.md's
// design notes. cmd/torbobase registers the same values with viper so that
// config-file and env-var overrides take effect before this struct is
// populated.
func Default() Config {
	return Config{
		DataDir:                          "./data",
		IAMDBName:                        "iam.sqlite",
		AuditDBName:                      "audit_events.sqlite",
		RingBufferCapacity:               1000,
		DelegationTimeoutDefaultSeconds:  300,
		DelegationCapabilityTTLSeconds:   300,
		DelegationMaxConcurrentInbound:   2,
		DelegationMaxAcceptedAccessLevel: 2,
		PeerRequestTimeoutSeconds:        10,
		WatchdogIntervalSeconds:          30,
		LogPruneRetentionDays:            30,
		MaxAccessLevel:                   5,
		NodeID:                           "",
		SelfHost:                         "localhost",
		SelfPort:                         7800,
		GatewayPort:                      7800,
		GatewayRateLimitRPS:              20,
		GatewayCORSOrigins:               []string{"http://localhost:3000"},
	}
}

// DelegationTimeoutDefault returns the default delegation timeout as a
// time.Duration.
func (c Config) DelegationTimeoutDefault() time.Duration {
	return time.Duration(c.DelegationTimeoutDefaultSeconds) * time.Second
}

// DelegationCapabilityTTL returns the peer capability cache TTL.
func (c Config) DelegationCapabilityTTL() time.Duration {
	return time.Duration(c.DelegationCapabilityTTLSeconds) * time.Second
}

// PeerRequestTimeout returns the HTTP timeout used for peer requests.
func (c Config) PeerRequestTimeout() time.Duration {
	return time.Duration(c.PeerRequestTimeoutSeconds) * time.Second
}

// WatchdogInterval returns the delegation watchdog tick interval.
func (c Config) WatchdogInterval() time.Duration {
	return time.Duration(c.WatchdogIntervalSeconds) * time.Second
}

// LogPruneRetention returns the access-log retention window.
func (c Config) LogPruneRetention() time.Duration {
	return time.Duration(c.LogPruneRetentionDays) * 24 * time.Hour
}
