package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// FeeConfig carries the per-provider fee rate applied at initiation time.
// Rates are fractions, e.g. 0.025 for 2.5%.
type FeeConfig struct {
	Rates map[string]float64 `mapstructure:"rates"`
}

func DefaultFeeConfig() FeeConfig {
	return FeeConfig{
		Rates: map[string]float64{
			"telebirr": 0.025,
			"chapa":    0.035,
		},
	}
}

// RateFor returns the fee rate for a provider, zero when unconfigured.
func (c FeeConfig) RateFor(provider string) float64 {
	return c.Rates[strings.ToLower(strings.TrimSpace(provider))]
}

type FeeConfigHolder struct {
	current atomic.Value // holds FeeConfig
}

// NewStaticFeeConfigHolder returns a holder pinned to cfg, with no file
// watching. Used when the service runs without a mounted config volume.
func NewStaticFeeConfigHolder(cfg FeeConfig) *FeeConfigHolder {
	holder := &FeeConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewFeeConfigHolder() (*FeeConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("fees")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/gebeya/config")
	v.AddConfigPath("/etc/gebeya")
	v.AddConfigPath(".")

	v.SetEnvPrefix("GEBEYA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultFeeConfig()
		v.SetDefault("fees.rates", defaults.Rates)
	}

	var cfg FeeConfig
	if err := v.UnmarshalKey("fees", &cfg); err != nil {
		return nil, err
	}
	if err := validateFeeConfig(cfg); err != nil {
		return nil, err
	}

	holder := &FeeConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated FeeConfig
		if err := v.UnmarshalKey("fees", &updated); err != nil {
			log.Printf("[fee-config] reload failed: %v", err)
			return
		}
		if err := validateFeeConfig(updated); err != nil {
			log.Printf("[fee-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[fee-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *FeeConfigHolder) Get() FeeConfig {
	return h.current.Load().(FeeConfig)
}

func validateFeeConfig(cfg FeeConfig) error {
	for provider, rate := range cfg.Rates {
		if rate < 0 || rate >= 1 {
			return errors.New("fees.rates." + provider + " must be within [0, 1)")
		}
	}
	return nil
}
