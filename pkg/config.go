package metacache

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const configPathEnv = "CONFIG_PATH"

var defaultConfig = []byte(`
debugMode: false
prettyLogs: false
pageSizeBytes: 4194304
maxCacheSizeMb: 1024
refreshIntervalS: 0
metastore:
  driver: memory
  path: ""
source:
  mode: fs
  filesystemPath: /tmp/metacache
metrics:
  pushIntervalS: 30
`)

// ConfigManager loads baked-in defaults and, when CONFIG_PATH points at a
// json or yaml file, layers that file on top.
type ConfigManager[T any] struct {
	k      *koanf.Koanf
	config T
}

func NewConfigManager[T any]() (*ConfigManager[T], error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaultConfig), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load default config: %w", err)
	}

	if configPath := os.Getenv(configPathEnv); configPath != "" {
		var parser koanf.Parser = yaml.Parser()
		if strings.HasSuffix(configPath, ".json") {
			parser = json.Parser()
		}

		if err := k.Load(file.Provider(configPath), parser); err != nil {
			return nil, fmt.Errorf("failed to load config file <%s>: %w", configPath, err)
		}
	}

	cm := &ConfigManager[T]{k: k}
	if err := k.UnmarshalWithConf("", &cm.config, koanf.UnmarshalConf{Tag: "key"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cm, nil
}

func (cm *ConfigManager[T]) GetConfig() T {
	return cm.config
}
