package authkit

import (
	"context"
	"errors"
)

const (
	auditEventLoginSuccess             = "login_success"
	auditEventLoginFailure             = "login_failure"
	auditEventRefreshSuccess           = "refresh_success"
	auditEventRefreshInvalid           = "refresh_invalid"
	auditEventOutboundLoginSuccess     = "outbound_login_success"
	auditEventOutboundLoginFailure     = "outbound_login_failure"
	auditEventAccountCreationSuccess   = "account_creation_success"
	auditEventAccountCreationDuplicate = "account_creation_duplicate"
)

// AuditErrorCode is the stable error label written into audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRefreshNotFound    AuditErrorCode = "refresh_not_found"
	auditErrRefreshExpired     AuditErrorCode = "refresh_expired"
	auditErrExchangeFailed     AuditErrorCode = "exchange_failed"
	auditErrIdentityFailed     AuditErrorCode = "identity_fetch_failed"
	auditErrEmailExists        AuditErrorCode = "email_exists"
	auditErrUsernameExists     AuditErrorCode = "username_exists"
	auditErrDuplicateUser      AuditErrorCode = "duplicate_user"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func auditErrorCode(err error) AuditErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrRefreshTokenNotFound):
		return auditErrRefreshNotFound
	case errors.Is(err, ErrRefreshTokenExpired):
		return auditErrRefreshExpired
	case errors.Is(err, ErrExchangeFailed):
		return auditErrExchangeFailed
	case errors.Is(err, ErrIdentityFetchFailed):
		return auditErrIdentityFailed
	case errors.Is(err, ErrEmailExists):
		return auditErrEmailExists
	case errors.Is(err, ErrUsernameExists):
		return auditErrUsernameExists
	case errors.Is(err, ErrDuplicateUser):
		return auditErrDuplicateUser
	default:
		return auditErrInternal
	}
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, userID, username string, err error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: e.now(),
		EventType: eventType,
		UserID:    userID,
		Username:  username,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Error:     string(auditErrorCode(err)),
	}
	if len(metadata) > 0 {
		event.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			if v != "" {
				event.Metadata[k] = v
			}
		}
	}
	e.audit.Emit(ctx, event)
}
