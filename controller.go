package gic

import "fmt"

// Controller is the generic contract every GIC version implements. A kernel
// holds one Controller value per core, selected at startup by hardware
// discovery, and drives the whole interrupt lifecycle through it without
// knowing which register layout backs it.
//
// Each identifier moves through an implicit state machine held by the
// controller hardware:
//
//	Inactive -> Pending   (the source asserts, subject to the enable mask)
//	Pending  -> Active    (GetAndAcknowledgeInterrupt)
//	Active   -> Inactive  (EndInterrupt)
//	Active   -> Pending   (EndInterrupt while a level-triggered source is
//	                       still asserted)
//
// Calling discipline:
//
//   - InitPrimary must run exactly once, on exactly one core, before any
//     other operation. The caller is responsible for serializing it against
//     every other controller operation; the contract does not enforce this.
//   - PerCPUInit must run once per core, by that core, after InitPrimary and
//     before that core services any interrupt.
//   - EndInterrupt must be called exactly once per successful
//     GetAndAcknowledgeInterrupt result, by the same core. Omitting it
//     starves the core; ending an identifier that is not the most recently
//     acknowledged one on that core, or ending one twice, is a protocol
//     violation with backend-defined behavior.
//
// SPI reconfiguration (SetTrigger, EnableInterrupt, DisableInterrupt) is
// globally visible and may race across cores; callers that reconfigure the
// same identifier concurrently must synchronize externally. SGIs and PPIs are
// core-local and need no cross-core synchronization, as are
// GetAndAcknowledgeInterrupt and EndInterrupt. No operation blocks.
type Controller interface {
	// InitPrimary initialises the whole controller: it enables the
	// distributor and resets every identifier to a quiescent, disabled
	// state. One-time, single-core; see the calling discipline above.
	InitPrimary()

	// PerCPUInit initialises interrupt delivery for the calling core
	// (CPU interface or redistributor wake-up).
	PerCPUInit()

	// SetTrigger configures edge or level sensing for the identifier. Only
	// safe while the identifier is not pending or active; reconfiguring a
	// live interrupt is backend-defined.
	SetTrigger(id IntID, mode TriggerMode)

	// EnableInterrupt unmasks the identifier. Enabling an already-enabled
	// identifier is a no-op. Assertions that occurred while masked are not
	// delivered retroactively: a level source simply re-asserts if still
	// active, an edge assertion during the masked window is typically lost.
	EnableInterrupt(id IntID)

	// DisableInterrupt masks the identifier so its assertions reach no core.
	// Disabling an already-disabled identifier is a no-op.
	DisableInterrupt(id IntID)

	// GetAndAcknowledgeInterrupt returns the calling core's highest-priority
	// pending and enabled interrupt, moving it from Pending to Active. The
	// second result is false when nothing is eligible (a spurious or idle
	// read). It never blocks and is safe to poll.
	GetAndAcknowledgeInterrupt() (IntID, bool)

	// EndInterrupt retires the identifier, moving it from Active back to
	// Inactive (or to Pending for a level source still asserted). Must pair
	// one-to-one with successful acknowledges; see the calling discipline.
	EndInterrupt(id IntID)
}

// State is the per-identifier lifecycle state the controller hardware holds.
// Software normally never observes it directly; the device models in
// internal/gicv2 and internal/gicv3 expose it so the calling discipline can
// be verified.
type State int

const (
	// StateInactive means the interrupt is neither asserted nor being
	// serviced. Initial state of every identifier.
	StateInactive State = iota
	// StatePending means the interrupt has been asserted and is awaiting
	// acknowledgment by a core.
	StatePending
	// StateActive means a core has acknowledged the interrupt and has not
	// yet ended it.
	StateActive
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
