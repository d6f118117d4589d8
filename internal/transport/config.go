package transport

import "time"

const (
	DefaultSendBuffer = 64
	DefaultWriteWait  = 2 * time.Second
	DefaultPongWait   = 30 * time.Second

	maxInboundMessage = 4096
)

type HubConfig struct {
	// SendBuffer is how many frames may queue per observer before it is
	// considered too slow and dropped.
	SendBuffer int
	WriteWait  time.Duration
	PongWait   time.Duration

	// AllowedOrigins is checked on upgrade. Empty or "*" allows any origin.
	AllowedOrigins []string
}

func DefaultHubConfig() HubConfig {
	return HubConfig{
		SendBuffer: DefaultSendBuffer,
		WriteWait:  DefaultWriteWait,
		PongWait:   DefaultPongWait,
	}
}

func (c HubConfig) pingPeriod() time.Duration {
	return c.PongWait * 9 / 10
}

func (c HubConfig) withDefaults() HubConfig {
	if c.SendBuffer <= 0 {
		c.SendBuffer = DefaultSendBuffer
	}
	if c.WriteWait <= 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = DefaultPongWait
	}
	return c
}
