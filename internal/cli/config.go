// Package cli provides utility functions for command line interface applications.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// InitViperConfig initializes the Viper configuration for a command.
//
// The configuration file is either the one given by --config, or cmdName.{yaml,json,toml} searched for in
// the current directory, /etc/cmdName, /usr/local/etc/cmdName and the executable directory.
// Environment variables prefixed by the upper cased cmdName override it, with _ separating nested keys
// and - replaced by _.
func InitViperConfig(cmdName string, cmd *cobra.Command, vip *viper.Viper) error {
	if v, err := cmd.Flags().GetString("config"); err == nil && v != "" {
		vip.SetConfigFile(v)
	} else {
		vip.SetConfigName(cmdName)
		vip.AddConfigPath(".")
		vip.AddConfigPath("/etc/" + cmdName)
		vip.AddConfigPath("/usr/local/etc/" + cmdName)

		if binPath, err := os.Executable(); err != nil {
			slog.Warn("Failed to get current executable path, not adding it as a config dir", "error", err)
		} else {
			vip.AddConfigPath(filepath.Dir(binPath))
		}
	}
	if err := vip.ReadInConfig(); err != nil {
		var e viper.ConfigFileNotFoundError
		if errors.As(err, &e) {
			slog.Info("No configuration file. We will only use the defaults, env variables or flags.", "error", e)
		} else {
			return fmt.Errorf("invalid configuration file: %w", err)
		}
	} else {
		slog.Info("Using configuration file", "file", vip.ConfigFileUsed())
	}

	prefix := EnvPrefix(cmdName)
	vip.SetEnvPrefix(strings.TrimSuffix(prefix, "_"))
	vip.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	vip.AutomaticEnv()

	// Bind every related variable explicitly, so that they are seen by Unmarshal.
	// More context on https://github.com/spf13/viper/pull/1429.
	for _, e := range os.Environ() {
		if !strings.HasPrefix(e, prefix) {
			continue
		}

		name, _, _ := strings.Cut(e, "=")
		k := strings.ToLower(strings.TrimPrefix(name, prefix))
		if key := matchKey(vip, k); key != "" {
			k = key
		} else {
			k = strings.ReplaceAll(k, "_", ".")
		}
		if err := vip.BindEnv(k, name); err != nil {
			return fmt.Errorf("could not bind environment variable: %w", err)
		}
	}

	return nil
}

// EnvPrefix returns the prefix of the environment variables read for cmdName, including the trailing underscore.
func EnvPrefix(cmdName string) string {
	return strings.ToUpper(strings.ReplaceAll(cmdName, "-", "_")) + "_"
}

// matchKey returns the known key whose environment form is env, if any.
func matchKey(vip *viper.Viper, env string) string {
	r := strings.NewReplacer("-", "_", ".", "_")
	for _, k := range vip.AllKeys() {
		if r.Replace(k) == env {
			return k
		}
	}
	return ""
}

// InstallConfigFlag adds a config flag to the command.
func InstallConfigFlag(cmd *cobra.Command) *string {
	p := cmd.PersistentFlags().String("config", "", "use a specific configuration file")
	_ = cmd.MarkPersistentFlagFilename("config", "yaml", "yml", "json", "toml")
	return p
}
