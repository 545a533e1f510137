package entities

// GatewayConfig is the gateway's own runtime configuration, loaded once
// at startup through utils.ConfigurationParser. It covers transport and
// duplicate-suppression tuning; it never carries trust or device state,
// which the core keeps in memory only.
type GatewayConfig struct {
	AMQPURL  string `yaml:"amqp_url"`
	LogLevel string `yaml:"log_level"`

	RequestExchange  string `yaml:"request_exchange"`
	ResponseExchange string `yaml:"response_exchange"`
	RPCTimeoutSec    int    `yaml:"rpc_timeout_sec"`

	DuplicationFilterEnabled   bool    `yaml:"duplication_filter_enabled"`
	FilterCapacity             uint    `yaml:"filter_capacity"`
	DuplicationProbability     float64 `yaml:"duplication_probability"`
	ResetFilterUsagePercentage float32 `yaml:"reset_filter_usage_percentage"`

	SocketPath string `yaml:"socket_path"`
}
