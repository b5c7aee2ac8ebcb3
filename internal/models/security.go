package models

import "time"

type SecurityFlagType string

const (
	FlagExternalHelpDetected SecurityFlagType = "external_help_detected"
	FlagCopyPasteDetected    SecurityFlagType = "copy_paste_detected"
	FlagMultipleTabs         SecurityFlagType = "multiple_tabs"
	FlagSuspiciousTiming     SecurityFlagType = "suspicious_timing"
	FlagIPAddressChange      SecurityFlagType = "ip_address_change"
	FlagUserAgentChange      SecurityFlagType = "user_agent_change"
	FlagBrowserFocusLoss     SecurityFlagType = "browser_focus_loss"
)

type FlagSeverity string

const (
	SeverityLow      FlagSeverity = "low"
	SeverityMedium   FlagSeverity = "medium"
	SeverityHigh     FlagSeverity = "high"
	SeverityCritical FlagSeverity = "critical"
)

// SeverityFor derives a severity from a flag type. The mapping is total:
// unknown types classify as low so recording never fails.
func SeverityFor(t SecurityFlagType) FlagSeverity {
	switch t {
	case FlagExternalHelpDetected:
		return SeverityCritical
	case FlagCopyPasteDetected, FlagMultipleTabs:
		return SeverityHigh
	case FlagSuspiciousTiming, FlagIPAddressChange, FlagUserAgentChange:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// SecurityFlag is an append-only integrity event on a session. Severity is
// derived from the type at creation time, never supplied by callers.
type SecurityFlag struct {
	ID        uint             `json:"id" gorm:"primaryKey"`
	SessionID uint             `json:"session_id" gorm:"not null;index"`
	Type      SecurityFlagType `json:"type" gorm:"not null;index"`
	Severity  FlagSeverity     `json:"severity" gorm:"not null"`

	Description string    `json:"description" gorm:"type:text"`
	Timestamp   time.Time `json:"timestamp"`

	Resolved   bool       `json:"resolved" gorm:"default:false"`
	ResolvedBy *string    `json:"resolved_by,omitempty" gorm:"size:100"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

func (SecurityFlag) TableName() string {
	return "security_flags"
}
