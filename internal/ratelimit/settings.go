package ratelimit

import (
	"strings"

	"github.com/computer-anything/blog-backend/internal/config"
)

// Endpoint names used as limiter keys and alert context.
const (
	EndpointLogin          = "login"
	EndpointVerify2FA      = "verify-2fa"
	EndpointForgotPassword = "forgot-password"
	EndpointRegister       = "register"

	EndpointVerifyRegistration = "verify-registration"
	EndpointResendVerification = "resend-verification"
	EndpointResetPassword      = "reset-password"
)

// SettingsConfig captures the limiter rules and backend prefix.
type SettingsConfig struct {
	Rules       map[string]Rule
	RedisPrefix string
}

// LoadSettingsConfig builds the limiter settings from application settings.
func LoadSettingsConfig(settings config.Settings) SettingsConfig {
	table := settings.RateLimits
	cfg := SettingsConfig{
		Rules: map[string]Rule{
			EndpointLogin:          fromConfig(table.Login),
			EndpointVerify2FA:      fromConfig(table.Verify2FA),
			EndpointForgotPassword: fromConfig(table.ForgotPassword),
			EndpointRegister:       fromConfig(table.Register),

			EndpointVerifyRegistration: fromConfig(table.VerifyRegistration),
			EndpointResendVerification: fromConfig(table.ResendVerification),
			EndpointResetPassword:      fromConfig(table.ResetPassword),
		},
		RedisPrefix: strings.TrimSpace(settings.Redis.Prefix),
	}
	return cfg
}

// Rule returns the rule for endpoint; unknown endpoints are unthrottled.
func (c SettingsConfig) Rule(endpoint string) Rule {
	return c.Rules[endpoint]
}

func fromConfig(rule config.RateLimitRule) Rule {
	if rule.Limit < 0 {
		rule.Limit = 0
	}
	return Rule{Limit: rule.Limit, Window: rule.Window}
}
