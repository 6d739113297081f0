package config

import "time"

const (
	// Connection keepalive
	WriteWait  = 10 * time.Second
	PongWait   = 60 * time.Second
	PingPeriod = (PongWait * 9) / 10

	// Frame and buffer limits
	MaxMessageSize = 64 * 1024
	SendBufferSize = 256

	// Hub
	HubQueueSize     = 256
	RingSweepPeriod  = 5 * time.Second
	DefaultRingLimit = 45 * time.Second

	// Attachments
	MaxAttachmentSize  = 10 << 20
	MaxAttachmentCount = 10
)

// Channel names used by the cross-instance fan-out bridge.
const (
	DeliveryChannel = "chat:deliveries"
	UserChannelFmt  = "user:%d"
)

var ValidRoles = map[string]bool{
	"patient":      true,
	"psychologist": true,
	"admin":        true,
}
