package model

import "time"

// ================ Config ================
type ConversationConfig struct {
	MaxMessages     int    `envconfig:"CONVERSATION_MAX_MESSAGES" default:"10"`
	MaxReasoning    int    `envconfig:"CONVERSATION_MAX_REASONING" default:"5"`
	CompressKeep    int    `envconfig:"CONVERSATION_COMPRESS_KEEP" default:"5"`
	PreferenceEvery int    `envconfig:"CONVERSATION_PREFERENCE_EVERY" default:"5"`
	CheckpointTTL   string `envconfig:"CONVERSATION_CHECKPOINT_TTL" default:"24h"`
}

func (c ConversationConfig) Limits() Limits {
	return Limits{MaxMessages: c.MaxMessages, MaxReasoning: c.MaxReasoning}
}

type ReservationConfig struct {
	TTL           string `envconfig:"RESERVATION_TTL" default:"5m"`
	SweepInterval string `envconfig:"RESERVATION_SWEEP_INTERVAL" default:"30s"`
}

func (c ReservationConfig) ParseTTL() (time.Duration, error) {
	return time.ParseDuration(c.TTL)
}

func (c ReservationConfig) ParseSweepInterval() (time.Duration, error) {
	return time.ParseDuration(c.SweepInterval)
}

type ClassifierModelConfig struct {
	Model       string  `envconfig:"CLASSIFIER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"CLASSIFIER_MAX_TOKENS" default:"512"`
	Temperature float32 `envconfig:"CLASSIFIER_TEMPERATURE" default:"0.0"`
	Timeout     string  `envconfig:"CLASSIFIER_TIMEOUT" default:"5s"`
}

type GeneratorModelConfig struct {
	Model       string  `envconfig:"GENERATOR_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"GENERATOR_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"GENERATOR_TEMPERATURE" default:"0.4"`
	Timeout     string  `envconfig:"GENERATOR_TIMEOUT" default:"30s"`
}

type PersonaConfig struct {
	BusinessName string `envconfig:"PERSONA_BUSINESS_NAME" default:"Tienda Hogar"`
	AgentName    string `envconfig:"PERSONA_AGENT_NAME" default:"Taylor"`
}
