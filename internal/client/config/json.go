package config

import (
	"encoding/json"
	"os"

	"github.com/emezins/carevault/internal/flagx"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Values
// are copied into the runtime Config after parsing.
type JsonConfig struct {
	ServerEndpointAddr string `json:"server_endpoint_addr"`
	KeystorePath       string `json:"keystore_path"`
	DownloadDir        string `json:"download_dir"`
}

// parseJson overlays Config with values loaded from a JSON file. The
// file path comes from the -c/-config flags via flagx.JsonConfigFlags;
// without one the function returns unchanged. Empty JSON fields leave
// the current value in place. Read and unmarshal errors panic, matching
// the flag parser.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	}
	if jc.KeystorePath != "" {
		cfg.KeystorePath = jc.KeystorePath
	}
	if jc.DownloadDir != "" {
		cfg.DownloadDir = jc.DownloadDir
	}
}
