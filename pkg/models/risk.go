package models

// RiskLevel orders tool risk from least to most dangerous. Comparison via
// the ordinary integer operators implements the risk ordering from spec
// §GLOSSARY: READ_ONLY < WRITE < DESTRUCTIVE < SHELL.
type RiskLevel int

const (
	RiskReadOnly RiskLevel = iota
	RiskWrite
	RiskDestructive
	RiskShell
)

// String renders the risk level the way it appears in policy reasons and
// audit records (e.g. "risk_too_high:WRITE>READ_ONLY").
func (r RiskLevel) String() string {
	switch r {
	case RiskReadOnly:
		return "READ_ONLY"
	case RiskWrite:
		return "WRITE"
	case RiskDestructive:
		return "DESTRUCTIVE"
	case RiskShell:
		return "SHELL"
	default:
		return "UNKNOWN"
	}
}

// PrivacyScope controls how a tool's arguments and output appear in the
// audit log.
type PrivacyScope string

const (
	PrivacyPublic    PrivacyScope = "public"
	PrivacySensitive PrivacyScope = "sensitive"
	PrivacySecret    PrivacyScope = "secret"
)
