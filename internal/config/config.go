package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	koanf "github.com/knadh/koanf/v2"
)

// TempDirEnv overrides Mc.TempDir when set.
const TempDirEnv = "TEMP_DIR"

type Mc struct {
	Binary                string `koanf:"binary"`
	Alias                 string `koanf:"alias"`
	TempDir               string `koanf:"tempDir"`
	CommandTimeoutSeconds int    `koanf:"commandTimeoutSeconds"`
}

func (m *Mc) CommandTimeout() time.Duration {
	return time.Duration(m.CommandTimeoutSeconds) * time.Second
}

type Config struct {
	Mc                              *Mc    `koanf:"mc"`
	SecretCreatedByLabel            string `koanf:"secretCreatedByLabel"`
	ValidationWebhookTimeoutSeconds int    `koanf:"validationWebhookTimeoutSeconds"`
	VerifyAnonymousAccess           bool   `koanf:"verifyAnonymousAccess"`
	SyncPeriodMinutes               int    `koanf:"syncPeriodMinutes"`
}

var (
	DefaultConfig = Config{
		Mc: &Mc{
			Binary:                "mc",
			Alias:                 "managedminioinst",
			CommandTimeoutSeconds: 120,
		},
		SecretCreatedByLabel:            "miniok8sbuckets",
		ValidationWebhookTimeoutSeconds: 5,
		VerifyAnonymousAccess:           false,
		SyncPeriodMinutes:               10,
	}
)

func GetConfig(configPath string) (*Config, error) {
	k := koanf.New(".")
	parser := yaml.Parser()
	cfg := &Config{}

	if err := k.Load(structs.Provider(DefaultConfig, "koanf"), nil); err != nil {
		return nil, err
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), parser); err != nil {
			return nil, err
		}
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	if tempDir := os.Getenv(TempDirEnv); tempDir != "" {
		cfg.Mc.TempDir = tempDir
	}

	return cfg, nil
}
