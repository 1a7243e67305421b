// Package config loads the CLI's runtime settings from defaults, an
// optional JSON file and command-line flags, later sources overriding
// earlier ones.
package config

// Config holds runtime settings for the vault CLI.
//
// Fields:
//   - ServerEndpointAddr: base URL of the vault server's REST endpoint.
//   - KeystorePath: file holding sealed master keys of linked entities.
//   - DownloadDir: directory attachments are fetched into.
type Config struct {
	ServerEndpointAddr string
	KeystorePath       string
	DownloadDir        string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "http://localhost:8443"
	c.KeystorePath = "keystore.json"
	c.DownloadDir = "download"
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present). Later
// sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
