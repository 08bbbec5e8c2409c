package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// AppName is the canonical application name
const AppName = "chatmirror"

// HomeDir returns the user's chatmirror configuration home: ~/.chatmirror
func HomeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+AppName)
}

// Bootstrap ensures the ~/.chatmirror directory exists with default content.
// Called once at startup. Safe to call multiple times — only creates missing items.
func Bootstrap(logger *zap.Logger) error {
	root := HomeDir()

	// Directory tree
	dirs := []string{
		root,
		filepath.Join(root, "credentials"),
		filepath.Join(root, "logs"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	// Default config — only written if it doesn't exist (never overwrite user edits)
	configPath := filepath.Join(root, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		content, err := defaultConfigYAML()
		if err != nil {
			return fmt.Errorf("render default config: %w", err)
		}
		if err := os.WriteFile(configPath, content, 0644); err != nil {
			logger.Warn("Failed to write default config", zap.String("path", configPath), zap.Error(err))
			return nil
		}
		logger.Info("Chatmirror bootstrap complete",
			zap.String("home", root),
			zap.String("config", configPath),
		)
		return nil
	}

	logger.Debug("Chatmirror home directory OK", zap.String("home", root))
	return nil
}

// defaultConfigYAML 渲染默认配置文件内容
func defaultConfigYAML() ([]byte, error) {
	defaults := map[string]interface{}{
		"gateway": map[string]interface{}{
			"host":          "0.0.0.0",
			"port":          18790,
			"mode":          "local",
			"allow_origins": []string{"*"},
		},
		"database": map[string]interface{}{
			"type": "sqlite",
			"dsn":  filepath.Join(HomeDir(), "mirror.db"),
		},
		"log": map[string]interface{}{
			"level":  "info",
			"format": "json",
		},
		"slots": []string{"default"},
		"bridge": map[string]interface{}{
			"url":       "ws://localhost:3001",
			"token":     "",
			"state_dir": filepath.Join(HomeDir(), "credentials"),
		},
		"session": map[string]interface{}{
			"reconnect_delay": "3s",
		},
		"backfill": map[string]interface{}{
			"concurrency":          3,
			"page_size":            50,
			"max_per_conversation": 500,
			"list_retries":         5,
			"list_retry_delay":     "2s",
		},
		"query": map[string]interface{}{
			"default_limit": 50,
			"max_limit":     200,
		},
	}
	return yaml.Marshal(defaults)
}
