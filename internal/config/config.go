// Package config loads the gateway's environment-variable configuration
// (§6 "Configuration"), plus the SPEC_FULL.md-added optional bot-seed file,
// parsed with a JSON-with-comments reader the way the teacher uses it for
// its own config files.
package config

import (
	"bufio"
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/tinode/jsonco"

	"github.com/ircultra/gateway/internal/store"
)

// Config holds every externally tunable knob.
type Config struct {
	ServerHost     string
	ServerPort     string
	StatePath      string
	AllowedOrigins []string
	RetentionDays  int
	BotSeedPath    string
	MOTD           string
}

// Load reads configuration from the environment, applying the defaults
// from §6.
func Load() *Config {
	c := &Config{
		ServerHost:    getenv("IRC_SERVER_HOST", "0.0.0.0"),
		ServerPort:    firstNonEmpty(os.Getenv("IRC_SERVER_PORT"), os.Getenv("PORT"), "7001"),
		StatePath:     getenv("IRC_STATE_PATH", "data/irc-ultra-state.json"),
		RetentionDays: atoiDefault(os.Getenv("RETENTION_DAYS"), 30),
		BotSeedPath:   os.Getenv("IRC_BOT_SEED_PATH"),
		MOTD:          getenv("IRC_MOTD", "welcome to ircultra"),
	}
	if raw := os.Getenv("IRC_ALLOWED_ORIGINS"); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	}
	return c
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// botSeed is one entry of an optional bot-seed file.
type botSeed struct {
	BotID           string   `json:"botId"`
	Name            string   `json:"name"`
	Version         string   `json:"version"`
	Permissions     []string `json:"permissions"`
	EnabledChannels []string `json:"enabledChannels"`
}

// LoadBotSeeds reads an optional JSON-with-comments file of bot
// definitions and registers any not already present in st. A missing path
// is not an error — bot seeding is best-effort bootstrap sugar.
func LoadBotSeeds(path string, st *store.Store) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	dec := json.NewDecoder(jsonco.New(bufio.NewReader(f)))
	var seeds []botSeed
	if err := dec.Decode(&seeds); err != nil {
		return err
	}
	for _, b := range seeds {
		st.SeedBot(store.Bot{
			BotID:           b.BotID,
			Name:            b.Name,
			Version:         b.Version,
			Permissions:     b.Permissions,
			EnabledChannels: b.EnabledChannels,
		})
	}
	return nil
}
