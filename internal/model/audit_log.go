package model

import "time"

// AuditAction тег действия в журнале
type AuditAction string

const (
	AuditRequestCreated      AuditAction = "request.created"
	AuditPaymentRecorded     AuditAction = "payment.recorded"
	AuditPaymentVerified     AuditAction = "payment.verified"
	AuditPaymentRejected     AuditAction = "payment.rejected"
	AuditPackageExpired      AuditAction = "package.expired"
	AuditTutorAssigned       AuditAction = "match.tutor_assigned"
	AuditTutorReassigned     AuditAction = "match.tutor_reassigned"
	AuditMatchDetailsUpdated AuditAction = "match.details_updated"
	AuditEngagementStatus    AuditAction = "match.status_changed"
	AuditSessionsGenerated   AuditAction = "sessions.generated"
	AuditSessionStatus       AuditAction = "session.status_changed"
	AuditSessionRescheduled  AuditAction = "session.rescheduled"
)

// EntityType тип сущности, к которой относится запись
type EntityType string

const (
	EntityRequest EntityType = "request"
	EntityPackage EntityType = "package"
	EntityPayment EntityType = "payment"
	EntityMatch   EntityType = "match"
	EntitySession EntityType = "session"
)

// AuditLogEntry неизменяемая запись журнала аудита
type AuditLogEntry struct {
	ID         int64          `json:"id"`
	ActorID    int64          `json:"actor_id"`
	Action     AuditAction    `json:"action"`
	EntityType EntityType     `json:"entity_type"`
	EntityID   int64          `json:"entity_id"`
	Detail     map[string]any `json:"detail"`
	CreatedAt  time.Time      `json:"created_at"`
}
