package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Host      string
	Port      string
	Blocks    []string
	Locations map[string]string
	CacheSize int
}

// Load reads configuration from command-line flags and GEOIP_* environment
// variables, flags winning. Blocks is a comma-separated list of blocks CSV
// paths; Locations a comma-separated list of lang=path entries, which must
// include the English file.
func Load(args []string) (*Config, error) {
	v := viper.New()

	flags := pflag.NewFlagSet("geoipd", pflag.ContinueOnError)
	flags.String("host", "", "address to listen on")
	flags.String("port", "", "port to listen on")
	flags.String("blocks", "", "comma-separated blocks CSV paths")
	flags.String("locations", "", "comma-separated lang=path locations CSV entries")
	flags.Int("cache-size", 0, "resolved response cache entries, 0 disables")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}

	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("port", "3000")
	v.SetDefault("cache-size", 65536)

	v.SetEnvPrefix("GEOIP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	config := &Config{
		Host:      v.GetString("host"),
		Port:      v.GetString("port"),
		CacheSize: v.GetInt("cache-size"),
	}

	config.Blocks = splitList(v.GetString("blocks"))
	if len(config.Blocks) == 0 {
		return nil, fmt.Errorf("blocks CSV path is required (--blocks or GEOIP_BLOCKS)")
	}

	locations, err := parseLocationEntries(v.GetString("locations"))
	if err != nil {
		return nil, err
	}
	config.Locations = locations

	return config, nil
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func parseLocationEntries(value string) (map[string]string, error) {
	entries := splitList(value)
	if len(entries) == 0 {
		return nil, fmt.Errorf("locations CSV paths are required (--locations or GEOIP_LOCATIONS)")
	}

	locations := make(map[string]string, len(entries))
	for _, entry := range entries {
		lang, path, ok := strings.Cut(entry, "=")
		lang = strings.ToLower(strings.TrimSpace(lang))
		path = strings.TrimSpace(path)
		if !ok || lang == "" || path == "" {
			return nil, fmt.Errorf("invalid locations entry %q, want lang=path", entry)
		}
		locations[lang] = path
	}

	if _, ok := locations["en"]; !ok {
		return nil, fmt.Errorf("locations must include an en=path entry")
	}

	return locations, nil
}
