package api

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"time"
)

// SecurityLogger writes audit lines that never carry a raw identity.
type SecurityLogger struct {
	logger *log.Logger
}

// NewSecurityLogger creates a new security logger
func NewSecurityLogger(logger *log.Logger) *SecurityLogger {
	if logger == nil {
		logger = log.New(os.Stdout, "[SECURITY] ", log.LstdFlags|log.LUTC)
	}
	return &SecurityLogger{logger: logger}
}

// LogAction records the outcome of a game route. Bury is logged without a
// player so the audit trail cannot tie a burial to its depositor.
func (sl *SecurityLogger) LogAction(requestID, action, wallet, outcome string) {
	player := hashIdentity(wallet)
	if action == "bury" {
		player = "-"
	}
	sl.logger.Printf(
		"game_action request_id=%s action=%s player=%s outcome=%s engine_version=%s timestamp=%s",
		requestID,
		action,
		player,
		outcome,
		EngineVersion,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// LogSecurityEvent logs security-related events (failed validations, suspicious activity)
func (sl *SecurityLogger) LogSecurityEvent(
	requestID string,
	eventType string,
	description string,
	context map[string]interface{},
	remoteAddr string,
) {
	sl.logger.Printf(
		"security_event request_id=%s type=%s description=%q context=%+v remote_addr=%s engine_version=%s timestamp=%s",
		requestID,
		eventType,
		description,
		sanitizeContext(context),
		remoteAddr,
		EngineVersion,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// LogSystemStartup records the listening address and build.
func (sl *SecurityLogger) LogSystemStartup(addr string, info VersionInfo) {
	sl.logger.Printf(
		"system_startup addr=%s engine_version=%s git_commit=%s build_time=%s timestamp=%s",
		addr, info.EngineVersion, info.GitCommit, info.BuildTime,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// LogSystemShutdown records why the process stopped.
func (sl *SecurityLogger) LogSystemShutdown(reason string) {
	sl.logger.Printf(
		"system_shutdown reason=%q engine_version=%s timestamp=%s",
		reason, EngineVersion, time.Now().UTC().Format(time.RFC3339),
	)
}

// hashIdentity shortens a sha256 of the identity for log correlation.
func hashIdentity(id string) string {
	if id == "" {
		return "empty"
	}
	hash := sha256.Sum256([]byte(id))
	return hex.EncodeToString(hash[:])[:16]
}

func sanitizeContext(context map[string]interface{}) map[string]interface{} {
	if context == nil {
		return nil
	}

	sanitized := make(map[string]interface{}, len(context))
	for key, value := range context {
		switch key {
		case "wallet", "player", "identity":
			if strVal, ok := value.(string); ok {
				sanitized[key+"_hash"] = hashIdentity(strVal)
			} else {
				sanitized[key+"_hash"] = fmt.Sprintf("non_string_value_%T", value)
			}
		case "secret", "seed", "token", "authorization":
			sanitized[key] = "[REDACTED]"
		default:
			sanitized[key] = value
		}
	}
	return sanitized
}
