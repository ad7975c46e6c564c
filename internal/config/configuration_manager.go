package config

import (
	"github.com/go-viper/mapstructure/v2"
	"go.uber.org/zap"
)

// ConfigurationCallback is invoked whenever a hot-reloaded Configuration
// replaces the one currently in effect.
type ConfigurationCallback func(oldConfig, newConfig *Configuration) error

// ConfigurationManager provides typed, hot-reloadable access to the
// resilience core's Configuration, layered on top of the generic
// file-watching ConfigManager.
type ConfigurationManager struct {
	configManager *ConfigManager
	currentConfig *Configuration
	logger        *zap.Logger
	callbacks     []ConfigurationCallback
}

// NewConfigurationManager creates a manager seeded with spec-documented
// defaults; call Initialize to start watching resilience.yaml/.json.
func NewConfigurationManager(configManager *ConfigManager, logger *zap.Logger) *ConfigurationManager {
	return &ConfigurationManager{
		configManager: configManager,
		currentConfig: Defaults(),
		logger:        logger,
	}
}

// GetConfig returns a copy of the current Configuration.
func (cm *ConfigurationManager) GetConfig() *Configuration {
	config := *cm.currentConfig
	return &config
}

// RegisterCallback registers a callback invoked on every successful reload.
func (cm *ConfigurationManager) RegisterCallback(callback ConfigurationCallback) {
	cm.callbacks = append(cm.callbacks, callback)
}

// Initialize registers the file watcher handler and loads whichever of
// resilience.yaml/resilience.json is already present in the watched
// directory.
func (cm *ConfigurationManager) Initialize() error {
	cm.configManager.RegisterHandler("resilience.yaml", cm.handleConfigChange)
	cm.configManager.RegisterHandler("resilience.json", cm.handleConfigChange)

	if raw, exists := cm.configManager.GetConfig("resilience.yaml"); exists {
		if err := cm.updateConfigFromMap(raw); err != nil {
			cm.logger.Error("failed to load resilience.yaml", zap.Error(err))
		}
	} else if raw, exists := cm.configManager.GetConfig("resilience.json"); exists {
		if err := cm.updateConfigFromMap(raw); err != nil {
			cm.logger.Error("failed to load resilience.json", zap.Error(err))
		}
	}

	return nil
}

func (cm *ConfigurationManager) handleConfigChange(event ChangeEvent) error {
	cm.logger.Info("resilience configuration changed",
		zap.String("file", event.File),
		zap.String("action", event.Action),
	)

	if event.Action == "delete" {
		old := cm.currentConfig
		cm.currentConfig = Defaults()
		cm.notifyCallbacks(old, cm.currentConfig)
		cm.logger.Info("reverted to default resilience configuration")
		return nil
	}

	return cm.updateConfigFromMap(event.Config)
}

func (cm *ConfigurationManager) updateConfigFromMap(raw map[string]interface{}) error {
	newConfig := Defaults()
	if err := mapstructure.Decode(raw, newConfig); err != nil {
		return err
	}

	old := cm.currentConfig
	cm.currentConfig = newConfig
	cm.notifyCallbacks(old, newConfig)
	return nil
}

func (cm *ConfigurationManager) notifyCallbacks(old, new *Configuration) {
	for _, callback := range cm.callbacks {
		if err := callback(old, new); err != nil {
			cm.logger.Error("configuration callback failed", zap.Error(err))
		}
	}
}
