package service

import (
	"log"

	"github.com/wenwu/saas-platform/whatsapp-service/internal/models"
)

// Lifecycle operation names, used in transition guards and error messages.
const (
	opConnect     = "connect"
	opDisconnect  = "disconnect"
	opRestart     = "restart"
	opDelete      = "delete"
	opSendMessage = "send_message"
	opCheckNumber = "check_number"
)

// validateTransition guards every state-changing or state-dependent
// operation. Any (state, op) pair not allowed here fails with
// InvalidTransitionError instead of silently no-op'ing.
func validateTransition(state, op string) error {
	allowed := false
	switch op {
	case opConnect:
		allowed = state == models.StatusDisconnected || state == models.StatusFailed
	case opDisconnect:
		allowed = state == models.StatusConnected
	case opRestart, opDelete:
		allowed = true
	case opSendMessage, opCheckNumber:
		allowed = state == models.StatusConnected
	}

	if !allowed {
		return &InvalidTransitionError{State: state, Op: op}
	}
	return nil
}

// stateFromGateway maps the gateway's connection-state enum onto the
// local lifecycle. An enum we do not recognize maps to FAILED and is
// reported as an anomaly by the caller, never silently ignored.
func stateFromGateway(raw string) (string, bool) {
	switch raw {
	case "open":
		return models.StatusConnected, true
	case "connecting":
		return models.StatusConnecting, true
	case "close":
		return models.StatusDisconnected, true
	default:
		return models.StatusFailed, false
	}
}

// reconcileState applies a gateway report to the stored state and logs
// the anomaly when the gateway enum is unknown.
func reconcileState(instanceName, current, raw string) string {
	mapped, known := stateFromGateway(raw)
	if !known {
		log.Printf("[Lifecycle] Anomaly: instance %s reported unknown gateway state %q, marking FAILED", instanceName, raw)
	}
	if mapped != current {
		log.Printf("[Lifecycle] Instance %s state %s -> %s (gateway reported %q)", instanceName, current, mapped, raw)
	}
	return mapped
}
