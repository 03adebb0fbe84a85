package storage

import "fmt"

// Outcome is the result of a verify-or-repair attempt.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeRecoveredWithWarning
	OutcomeUnrecoverable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeRecoveredWithWarning:
		return "recovered"
	default:
		return "unrecoverable"
	}
}

// CorruptionKind says how (or whether) damaged state can be brought back.
type CorruptionKind int

const (
	RecoverableViaRename CorruptionKind = iota
	RecoverableViaSalvage
	Unrecoverable
)

func (k CorruptionKind) String() string {
	switch k {
	case RecoverableViaRename:
		return "recoverable via rename"
	case RecoverableViaSalvage:
		return "recoverable via salvage"
	default:
		return "unrecoverable"
	}
}

// CorruptionError describes damaged persistent state. The Unrecoverable kind
// fails a bootstrap step; the recoverable kinds are repaired in place and
// reported as warnings.
type CorruptionError struct {
	Kind   CorruptionKind
	Path   string
	Backup string
	Err    error
}

func (e *CorruptionError) Error() string {
	msg := fmt.Sprintf("storage corruption (%s) at %s", e.Kind, e.Path)
	if e.Backup != "" {
		msg += ", original kept as " + e.Backup
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}
