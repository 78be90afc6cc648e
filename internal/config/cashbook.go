package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// CashbookConfig names the cash accounts the kiosk tracks and which one
// receives automatic payment postings.
type CashbookConfig struct {
	Companies   []string `mapstructure:"companies"`
	AutoCompany string   `mapstructure:"autoCompany"`
}

func DefaultCashbookConfig() CashbookConfig {
	return CashbookConfig{
		Companies:   []string{"Schuelerfirma", "Pausenverkauf", "Kaffeemaschine"},
		AutoCompany: "Kaffeemaschine",
	}
}

// CashbookConfigHolder exposes the current cashbook config and hot-reloads it
// when kiosk.yml changes on disk.
type CashbookConfigHolder struct {
	current atomic.Value // holds CashbookConfig
}

func NewCashbookConfigHolder() (*CashbookConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("kiosk")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/kiosk")
	v.AddConfigPath(".")

	v.SetEnvPrefix("KIOSK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultCashbookConfig()
		v.SetDefault("cashbook.companies", defaults.Companies)
		v.SetDefault("cashbook.autoCompany", defaults.AutoCompany)
	}

	var cfg CashbookConfig
	if err := v.UnmarshalKey("cashbook", &cfg); err != nil {
		return nil, err
	}
	if err := validateCashbookConfig(cfg); err != nil {
		return nil, err
	}

	holder := &CashbookConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated CashbookConfig
		if err := v.UnmarshalKey("cashbook", &updated); err != nil {
			log.Printf("[cashbook-config] reload failed: %v", err)
			return
		}
		if err := validateCashbookConfig(updated); err != nil {
			log.Printf("[cashbook-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[cashbook-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticCashbookConfigHolder wraps a fixed config without file watching.
func NewStaticCashbookConfigHolder(cfg CashbookConfig) (*CashbookConfigHolder, error) {
	if err := validateCashbookConfig(cfg); err != nil {
		return nil, err
	}
	holder := &CashbookConfigHolder{}
	holder.current.Store(cfg)
	return holder, nil
}

func (h *CashbookConfigHolder) Get() CashbookConfig {
	return h.current.Load().(CashbookConfig)
}

// Knows reports whether the given company is one of the configured accounts.
func (h *CashbookConfigHolder) Knows(company string) bool {
	for _, c := range h.Get().Companies {
		if c == company {
			return true
		}
	}
	return false
}

func validateCashbookConfig(cfg CashbookConfig) error {
	if len(cfg.Companies) == 0 {
		return errors.New("cashbook.companies cannot be empty")
	}
	if cfg.AutoCompany == "" {
		return errors.New("cashbook.autoCompany cannot be empty")
	}
	for _, c := range cfg.Companies {
		if strings.TrimSpace(c) == "" {
			return errors.New("cashbook.companies entries cannot be blank")
		}
	}
	return nil
}
