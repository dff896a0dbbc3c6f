package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Supabase
	out.Supabase = cfg.Supabase
	redact(&out.Supabase.DSN)
	redact(&out.Supabase.Password)
	redact(&out.Supabase.ApiKey)

	// Redis
	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	// Webhook
	out.Webhook = cfg.Webhook
	redact(&out.Webhook.DiscordWebhookURL)
	redact(&out.Webhook.SlackWebhookURL)

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
