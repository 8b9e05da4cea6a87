package logger

import (
	"context"
	"log/slog"
	"time"
)

// Security audit event types
const (
	EventLoginSuccess       = "login_success"
	EventLoginFailed        = "login_failed"
	EventLogout             = "logout"
	EventTokenCreated       = "token_created"
	EventTokenRevoked       = "token_revoked"
	EventDeviceBlocked      = "device_blocked"
	EventDeviceUnblocked    = "device_unblocked"
	EventPasswordChanged    = "password_changed"
	EventSuspiciousActivity = "suspicious_activity"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	UserID        string
	Username      string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes security events to the structured log.
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// Log writes event at Info level when it succeeded and Warn otherwise.
func (al *AuditLogger) Log(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.Username != "" {
		attrs = append(attrs, slog.String("username", SanitizedUsername(event.Username)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", TruncateUserAgent(event.UserAgent, 100)))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

// LogLoginSuccess records a completed password or token login.
func (al *AuditLogger) LogLoginSuccess(userID, username, method, ip, userAgent string) {
	al.Log(AuditEvent{
		EventType: EventLoginSuccess,
		UserID:    userID,
		Username:  username,
		IPAddress: ip,
		UserAgent: userAgent,
		Success:   true,
		Metadata:  map[string]string{"method": method},
	})
}

func (al *AuditLogger) LogLoginFailure(username, reason, ip, userAgent string) {
	al.Log(AuditEvent{
		EventType:     EventLoginFailed,
		Username:      username,
		IPAddress:     ip,
		UserAgent:     userAgent,
		FailureReason: reason,
	})
}

func (al *AuditLogger) LogLogout(userID, username, ip string) {
	al.Log(AuditEvent{
		EventType: EventLogout,
		UserID:    userID,
		Username:  username,
		IPAddress: ip,
		Success:   true,
	})
}

// LogTokenEvent records creation or revocation of a remember-me token.
func (al *AuditLogger) LogTokenEvent(eventType, userID, selector, reason string) {
	md := map[string]string{"selector": SelectorPrefix(selector)}
	if reason != "" {
		md["reason"] = reason
	}
	al.Log(AuditEvent{
		EventType: eventType,
		UserID:    userID,
		Success:   true,
		Metadata:  md,
	})
}

func (al *AuditLogger) LogDeviceBlocked(ip, userAgent string, attempts int) {
	al.Log(AuditEvent{
		EventType:     EventDeviceBlocked,
		IPAddress:     ip,
		UserAgent:     userAgent,
		FailureReason: "max_failed_attempts",
		Metadata:      map[string]string{"failed_attempts": itoa(attempts)},
	})
}

// LogSuspicious records activity that may indicate token theft or replay.
func (al *AuditLogger) LogSuspicious(userID, reason, ip string, metadata map[string]string) {
	al.Log(AuditEvent{
		EventType:     EventSuspiciousActivity,
		UserID:        userID,
		IPAddress:     ip,
		FailureReason: reason,
		Metadata:      metadata,
	})
}

// LogAccountAction logs general account actions
func (al *AuditLogger) LogAccountAction(eventType, userID, ipAddress string, metadata map[string]string) {
	al.Log(AuditEvent{
		EventType: eventType,
		UserID:    userID,
		IPAddress: ipAddress,
		Success:   true,
		Metadata:  metadata,
	})
}
