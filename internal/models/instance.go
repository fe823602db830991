package models

import "time"

// Instance status constants. Status only moves through the lifecycle
// rules in the service package; nothing else writes it.
const (
	StatusDisconnected = "DISCONNECTED"
	StatusConnecting   = "CONNECTING"
	StatusConnected    = "CONNECTED"
	StatusFailed       = "FAILED"
)

// Gateway adapter constants
const (
	AdapterBaileys  = "WHATSAPP-BAILEYS"
	AdapterBusiness = "WHATSAPP-BUSINESS"
	AdapterCloud    = "EVOLUTION"
)

// Instance represents a WhatsApp session brokered by the gateway.
// Name is globally unique; the gateway keys instances by it.
type Instance struct {
	ID          string
	UserID      string
	Name        string
	Adapter     string
	Token       string // pairing token issued by the gateway at creation
	Status      string
	PhoneNumber *string
	Settings    InstanceSettings
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// InstanceSettings are behavioral flags passed through to the gateway.
type InstanceSettings struct {
	RejectCall      bool   `json:"rejectCall"`
	MsgCall         string `json:"msgCall"`
	GroupsIgnore    bool   `json:"groupsIgnore"`
	AlwaysOnline    bool   `json:"alwaysOnline"`
	ReadMessages    bool   `json:"readMessages"`
	ReadStatus      bool   `json:"readStatus"`
	SyncFullHistory bool   `json:"syncFullHistory"`
}
