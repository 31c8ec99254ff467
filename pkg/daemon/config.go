package daemon

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Config is the daemon's effective configuration. Resolution order per
// field: environment variable, then config.toml, then the default.
type Config struct {
	Home string

	PollinationsURL string
	Model           string

	EmbyURL    string
	EmbyAPIKey string

	// AssistantWorkdir is where spawned assistant subprocesses run.
	AssistantWorkdir string

	// ShellCommand is what the watchdog execs to restart the shell.
	ShellCommand []string

	// MaxShellSpawns caps watchdog restarts per daemon session.
	MaxShellSpawns int
}

// fileConfig mirrors config.toml.
type fileConfig struct {
	PollinationsURL  string   `toml:"pollinations_url"`
	Model            string   `toml:"model"`
	AssistantWorkdir string   `toml:"assistant_workdir"`
	ShellCommand     []string `toml:"shell_command"`
	MaxShellSpawns   int      `toml:"max_shell_spawns"`
	Emby             struct {
		Server string `toml:"server"`
		APIKey string `toml:"api_key"`
	} `toml:"emby"`
}

// LoadConfig builds the effective configuration for a base directory. A
// missing .env or config.toml is fine; a malformed config.toml is not.
func LoadConfig(home string) (Config, error) {
	paths := Paths{Home: home}

	// .env feeds the process environment before reads below.
	if err := godotenv.Load(paths.DotEnv()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("daemon: load .env: %w", err)
	}

	var fc fileConfig
	data, err := os.ReadFile(paths.ConfigTOML())
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("daemon: read config.toml: %w", err)
	default:
		if err := toml.Unmarshal(data, &fc); err != nil {
			return Config{}, fmt.Errorf("daemon: parse config.toml: %w", err)
		}
	}

	cfg := Config{
		Home:             home,
		PollinationsURL:  pick(os.Getenv("POLLINATIONS_URL"), fc.PollinationsURL, ""),
		Model:            pick(os.Getenv("GLOOP_MODEL"), fc.Model, ""),
		EmbyURL:          pick(os.Getenv("EMBY_SERVER"), fc.Emby.Server, "http://localhost:8096"),
		EmbyAPIKey:       pick(os.Getenv("EMBY_API_KEY"), fc.Emby.APIKey, ""),
		AssistantWorkdir: pick(os.Getenv("GLOOP_WORKDIR"), fc.AssistantWorkdir, home),
		ShellCommand:     fc.ShellCommand,
		MaxShellSpawns:   fc.MaxShellSpawns,
	}
	if len(cfg.ShellCommand) == 0 {
		cfg.ShellCommand = []string{"gloop-shell"}
	}
	if cfg.MaxShellSpawns <= 0 {
		cfg.MaxShellSpawns = 3
	}
	return cfg, nil
}

func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
