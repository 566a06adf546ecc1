package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// CurrencyTable maps ISO 4217 codes to their minor-unit exponent. Most
// currencies use two decimal places; the processor treats zero-decimal and
// three-decimal currencies differently, so the exceptions are configurable.
type CurrencyTable struct {
	DefaultExponent int            `mapstructure:"defaultExponent"`
	Exponents       map[string]int `mapstructure:"exponents"`
}

func DefaultCurrencyTable() CurrencyTable {
	return CurrencyTable{
		DefaultExponent: 2,
		Exponents: map[string]int{
			// Zero-decimal currencies per the processor's API reference.
			"BIF": 0, "CLF": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0,
			"KMF": 0, "KRW": 0, "PYG": 0, "RWF": 0, "UGX": 0, "VND": 0,
			"VUV": 0, "XAF": 0, "XOF": 0, "XPF": 0,
			// Three-decimal currencies.
			"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
		},
	}
}

// Exponent returns the minor-unit exponent for a currency code.
func (t CurrencyTable) Exponent(code string) int {
	code = strings.ToUpper(strings.TrimSpace(code))
	if exp, ok := t.Exponents[code]; ok {
		return exp
	}
	return t.DefaultExponent
}

// CurrencyTableHolder holds the active table and supports hot reload.
type CurrencyTableHolder struct {
	current atomic.Value // holds CurrencyTable
}

func NewCurrencyTableHolder() (*CurrencyTableHolder, error) {
	v := viper.New()

	v.SetConfigName("currencies")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/formgate/config") // Volume-mounted config
	v.AddConfigPath("/etc/formgate")            // System config
	v.AddConfigPath(".")                        // Current directory (dev mode)

	v.SetEnvPrefix("FORMGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultCurrencyTable()
		v.SetDefault("currencies.defaultExponent", defaults.DefaultExponent)
		v.SetDefault("currencies.exponents", defaults.Exponents)
	}

	var table CurrencyTable
	if err := v.UnmarshalKey("currencies", &table); err != nil {
		return nil, err
	}
	if err := validateCurrencyTable(table); err != nil {
		return nil, err
	}
	table = normalizeCurrencyTable(table)

	holder := &CurrencyTableHolder{}
	holder.current.Store(table)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated CurrencyTable
		if err := v.UnmarshalKey("currencies", &updated); err != nil {
			log.Printf("[currency-config] reload failed: %v", err)
			return
		}
		if err := validateCurrencyTable(updated); err != nil {
			log.Printf("[currency-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(normalizeCurrencyTable(updated))
		log.Printf("[currency-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *CurrencyTableHolder) Get() CurrencyTable {
	return h.current.Load().(CurrencyTable)
}

func validateCurrencyTable(table CurrencyTable) error {
	if table.DefaultExponent < 0 || table.DefaultExponent > 4 {
		return errors.New("currencies.defaultExponent out of range")
	}
	for code, exp := range table.Exponents {
		if len(strings.TrimSpace(code)) != 3 {
			return errors.New("currencies.exponents keys must be ISO 4217 codes")
		}
		if exp < 0 || exp > 4 {
			return errors.New("currencies.exponents values out of range")
		}
	}
	return nil
}

func normalizeCurrencyTable(table CurrencyTable) CurrencyTable {
	out := CurrencyTable{
		DefaultExponent: table.DefaultExponent,
		Exponents:       make(map[string]int, len(table.Exponents)),
	}
	for code, exp := range table.Exponents {
		out.Exponents[strings.ToUpper(strings.TrimSpace(code))] = exp
	}
	return out
}
