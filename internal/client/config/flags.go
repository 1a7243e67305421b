package config

import (
	"flag"
	"os"

	"github.com/emezins/carevault/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the vault server (default from Config)
//	-k string   keystore file path (default from Config)
//	-o string   download directory for attachments (default from Config)
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-k", "-o"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "base URL of the vault server")
	fs.StringVar(&cfg.KeystorePath, "k", cfg.KeystorePath, "keystore file path")
	fs.StringVar(&cfg.DownloadDir, "o", cfg.DownloadDir, "download directory for attachments")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
