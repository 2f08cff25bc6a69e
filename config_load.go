package accessgate

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. ACCESSGATE_OTP_TTL.
const EnvPrefix = "ACCESSGATE"

// LoadConfig resolves configuration in priority order: defaults, then the
// YAML file at path (skipped when path is empty), then environment
// variables. A pool or resilience entry present in the file replaces the
// default entry as a whole.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, newEnv()); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newEnv() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func applyEnv(cfg *Config, v *viper.Viper) error {
	if v.IsSet("jwt.access_ttl") {
		cfg.JWT.AccessTTL = v.GetDuration("jwt.access_ttl")
	}
	if v.IsSet("jwt.refresh_ttl") {
		cfg.JWT.RefreshTTL = v.GetDuration("jwt.refresh_ttl")
	}
	if v.IsSet("jwt.remember_me_ttl") {
		cfg.JWT.RememberMeTTL = v.GetDuration("jwt.remember_me_ttl")
	}
	if v.IsSet("jwt.signing_method") {
		cfg.JWT.SigningMethod = strings.ToLower(v.GetString("jwt.signing_method"))
	}
	if v.IsSet("jwt.issuer") {
		cfg.JWT.Issuer = v.GetString("jwt.issuer")
	}
	if v.IsSet("jwt.audience") {
		cfg.JWT.Audience = v.GetString("jwt.audience")
	}
	if v.IsSet("jwt.secret") {
		cfg.JWT.PrivateKey = []byte(v.GetString("jwt.secret"))
	}
	if v.IsSet("jwt.private_key_file") {
		key, err := os.ReadFile(v.GetString("jwt.private_key_file"))
		if err != nil {
			return fmt.Errorf("read jwt private key: %w", err)
		}
		cfg.JWT.PrivateKey = key
	}
	if v.IsSet("jwt.public_key_file") {
		key, err := os.ReadFile(v.GetString("jwt.public_key_file"))
		if err != nil {
			return fmt.Errorf("read jwt public key: %w", err)
		}
		cfg.JWT.PublicKey = key
	}

	if v.IsSet("lockout.revoke_threshold") {
		cfg.Lockout.RevokeThreshold = v.GetInt64("lockout.revoke_threshold")
	}
	if v.IsSet("lockout.window") {
		cfg.Lockout.Window = v.GetDuration("lockout.window")
	}
	if v.IsSet("otp.ttl") {
		cfg.OTP.TTL = v.GetDuration("otp.ttl")
	}
	if v.IsSet("otp.digits") {
		cfg.OTP.Digits = v.GetInt("otp.digits")
	}
	if v.IsSet("verification.enabled") {
		cfg.Verification.Enabled = v.GetBool("verification.enabled")
	}
	if v.IsSet("verification.max_requests") {
		cfg.Verification.MaxRequests = v.GetInt("verification.max_requests")
	}
	if v.IsSet("audit.enabled") {
		cfg.Audit.Enabled = v.GetBool("audit.enabled")
	}
	if v.IsSet("metrics.enabled") {
		cfg.Metrics.Enabled = v.GetBool("metrics.enabled")
	}
	if v.IsSet("security.production_mode") {
		cfg.Security.ProductionMode = v.GetBool("security.production_mode")
	}
	if v.IsSet("security.id_node") {
		cfg.Security.IDNode = v.GetInt64("security.id_node")
	}

	if cfg.Lockout.RevokeThreshold < 0 || cfg.OTP.Digits < 0 {
		return errors.New("negative values are not allowed in environment overrides")
	}
	return nil
}
