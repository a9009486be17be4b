package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// RegisterFlags defines the configuration flags on fs. Flag names use
// dashes; the matching file and env keys use underscores.
//
//	-a, --server string       gRPC server address
//	    --transport string    grpc or http
//	    --http-url string     REST base url
//	    --data-dir string     directory for the database, fallback file and log
//	-i, --online-check-interval duration
//	    --sync-interval duration
//	    --log-level string
//	-v, --verbose             mirror the log to stderr
func RegisterFlags(fs *pflag.FlagSet) {
	var d Config
	d.LoadDefaults()

	fs.StringP("server", "a", d.ServerEndpointAddr, "address and port of the gRPC server")
	fs.String("transport", d.Transport, "remote transport: grpc or http")
	fs.String("http-url", d.HTTPBaseURL, "base url of the REST server")
	fs.String("data-dir", d.DataDir, "directory for local data")
	fs.DurationP("online-check-interval", "i", d.OnlineCheckInterval, "online status check interval")
	fs.Duration("sync-interval", d.SyncInterval, "periodic sync interval")
	fs.String("log-level", d.LogLevel, "log level: debug, info, warn, error")
	fs.BoolP("verbose", "v", false, "also write the log to stderr")
}

// bindFlags binds the flags that were set explicitly, so unset flags do
// not shadow file and env values.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if bErr := v.BindPFlag(key, f); bErr != nil {
			err = fmt.Errorf("bind flag %s: %w", f.Name, bErr)
		}
	})
	return err
}
