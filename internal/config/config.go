// Package config содержит логику чтения конфигурации фотомагазина.
package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

const (
	defaultRunAddress = "localhost:3001"
	defaultCurrency   = "UAH"
	defaultCORSOrigin = "http://localhost:5173"
	defaultOrderQueue = 64
	defaultAdminName  = "admin"
	defaultLoginRPS   = 1
	defaultLoginBurst = 5
)

// ErrNoPrivateKey возвращается, если не задан приватный ключ платёжного шлюза.
var ErrNoPrivateKey = errors.New("liqpay private key is not set")

// Config содержит параметры конфигурации фотомагазина.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`

	LiqPayPublicKey  string `env:"LIQPAY_PUBLIC_KEY"`
	LiqPayPrivateKey string `env:"LIQPAY_PRIVATE_KEY"`
	LiqPayServerURL  string `env:"LIQPAY_SERVER_URL"`
	LiqPayResultURL  string `env:"LIQPAY_RESULT_URL"`
	LiqPayCurrency   string `env:"LIQPAY_CURRENCY"`

	SessionSecret string   `env:"SESSION_SECRET"`
	CORSOrigins   []string `env:"CORS_ORIGINS" envSeparator:","`

	AdminName     string `env:"ADMIN_NAME"`
	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	OrderQueueSize int `env:"ORDER_QUEUE_SIZE" envDefault:"-1"`

	LoginRPS   float64 `env:"LOGIN_RATE_LIMIT" envDefault:"0"`
	LoginBurst int     `env:"LOGIN_RATE_BURST" envDefault:"0"`

	// TrustedProxies перечисляет IP или CIDR обратных прокси, чьим заголовкам X-Forwarded-For можно верить.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envCfg := *cfg

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.LiqPayPublicKey, "p", "", "liqpay public key")
	flag.StringVar(&cfg.LiqPayPrivateKey, "k", "", "liqpay private key")

	var trustedProxies string
	flag.StringVar(&trustedProxies, "t", "", "comma-separated trusted reverse proxies (IP or CIDR)")

	flag.Parse()

	if len(envCfg.TrustedProxies) == 0 && trustedProxies != "" {
		cfg.TrustedProxies = strings.Split(trustedProxies, ",")
	}

	if envCfg.RunAddress != "" {
		cfg.RunAddress = envCfg.RunAddress
	}
	if envCfg.DatabaseURI != "" {
		cfg.DatabaseURI = envCfg.DatabaseURI
	}
	if envCfg.LiqPayPublicKey != "" {
		cfg.LiqPayPublicKey = envCfg.LiqPayPublicKey
	}
	if envCfg.LiqPayPrivateKey != "" {
		cfg.LiqPayPrivateKey = envCfg.LiqPayPrivateKey
	}

	cfg.applyDefaults()

	if cfg.LiqPayPrivateKey == "" {
		return nil, ErrNoPrivateKey
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.RunAddress == "" {
		c.RunAddress = defaultRunAddress
	}
	if c.LiqPayCurrency == "" {
		c.LiqPayCurrency = defaultCurrency
	}
	if c.AdminName == "" {
		c.AdminName = defaultAdminName
	}

	origins := c.CORSOrigins[:0]
	for _, o := range c.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.CORSOrigins = origins
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{defaultCORSOrigin}
	}

	proxies := c.TrustedProxies[:0]
	for _, p := range c.TrustedProxies {
		if p = strings.TrimSpace(p); p != "" {
			proxies = append(proxies, p)
		}
	}
	c.TrustedProxies = proxies

	if c.OrderQueueSize < 0 {
		c.OrderQueueSize = defaultOrderQueue
	}
	if c.LoginRPS <= 0 {
		c.LoginRPS = defaultLoginRPS
	}
	if c.LoginBurst <= 0 {
		c.LoginBurst = defaultLoginBurst
	}
}
