/*
Package config loads hive settings from YAML, JSON or TOML documents.

# Config

Config wraps a decoded document and provides typed accessors that return a
default when a key is missing or holds the wrong type:

	cfg := config.New(map[string]any{
	    "scheduling":    "cooperative",
	    "poll_interval": "5ms",
	})

	model := cfg.String("scheduling", "preemptive") // "cooperative"
	poll := cfg.Duration("poll_interval", time.Millisecond)
	frames := cfg.Sub("transport").Int("max_frame_size", 1<<20)

Durations accept time.ParseDuration strings or bare millisecond counts.
Integers accept the shapes each decoder produces: int from YAML, int64 from
TOML, whole float64 from JSON.

# File Loading

	cfg, err := config.FromFile("hive.toml")

	// Or from bytes
	cfg, err = config.FromYAML(yamlBytes)
	cfg, err = config.FromJSON(jsonBytes)
	cfg, err = config.FromTOML(tomlBytes)

# Settings

LoadSettings overlays a Config on DefaultSettings and validates the result
with go-playground/validator. A violation is returned as an
*errors.ConfigurationError naming the offending field:

	settings, err := config.LoadSettings(cfg)
	if err != nil {
	    return err
	}
	hive := beehive.New(beehive.WithSettings(settings))

# Thread Safety

Config and Settings are read-only after creation and safe for concurrent
use. Modifying the map passed to New afterwards is undefined behavior.
*/
package config
