package catalog

import (
	"time"

	"github.com/orinctl/strapd/internal/models"
)

// Timing contract for the built-in sequences. The values mirror the module
// vendor's boot-strap requirements; tolerances are encoded as min/max holds.
const (
	// PowerPress is how long the power strap mimics a front-panel press.
	PowerPress          = 200 * time.Millisecond
	PowerPressTolerance = 20 * time.Millisecond

	// PowerSettle is the rail settling time after releasing the power strap.
	PowerSettle          = 1000 * time.Millisecond
	PowerSettleTolerance = 100 * time.Millisecond

	// ResetPulseMin is the minimum reset assertion width.
	ResetPulseMin = 20 * time.Millisecond

	// RecoveryPreHold is how long REC must be asserted before reset toggles.
	RecoveryPreHold = 100 * time.Millisecond

	// RecoveryPostHold keeps REC asserted after reset releases.
	RecoveryPostHold = 500 * time.Millisecond

	// BridgeWaitTimeout bounds the recovery-release wait on console traffic.
	BridgeWaitTimeout = 10 * time.Second

	// APOPrecharge guarantees a hard power cut before a fault reboot.
	APOPrecharge = 250 * time.Millisecond

	// SequenceCooldown is enforced after every built-in sequence.
	SequenceCooldown = 1000 * time.Millisecond

	// FaultRecoveryMaxRetries bounds brown-out retries during fault recovery.
	FaultRecoveryMaxRetries = 3
)

// builtinLines is the strap routing table for the current board revision.
var builtinLines = []models.Line{
	{
		ID:           models.LineReset,
		Name:         "RESET*",
		MCUPin:       "PA4",
		DriverOutput: "SN74LVC07-2Y",
		HeaderPin:    8,
		Polarity:     models.PolarityActiveLow,
		DefaultLevel: models.LevelReleased,
	},
	{
		ID:           models.LineRecovery,
		Name:         "REC*",
		MCUPin:       "PA3",
		DriverOutput: "SN74LVC07-1Y",
		HeaderPin:    10,
		Polarity:     models.PolarityActiveLow,
		DefaultLevel: models.LevelReleased,
	},
	{
		ID:           models.LinePower,
		Name:         "PWR*",
		MCUPin:       "PA2",
		DriverOutput: "SN74LVC07-2Y",
		HeaderPin:    12,
		Polarity:     models.PolarityActiveLow,
		DefaultLevel: models.LevelReleased,
	},
	{
		ID:           models.LineAPO,
		Name:         "APO",
		MCUPin:       "PA5",
		DriverOutput: "SN74LVC07-1Y",
		HeaderPin:    5,
		Polarity:     models.PolarityActiveLow,
		DefaultLevel: models.LevelReleased,
	},
}

// normalRebootSteps implements the power press / settle / reset pulse recipe.
func normalRebootSteps() []models.Step {
	return []models.Step{
		{
			Line:       models.LinePower,
			Action:     models.ActionAssert,
			Hold:       PowerPress,
			MinHold:    PowerPress - PowerPressTolerance,
			MaxHold:    PowerPress + PowerPressTolerance,
			Completion: models.AfterHold(),
		},
		{
			Line:       models.LinePower,
			Action:     models.ActionRelease,
			Hold:       PowerSettle,
			MinHold:    PowerSettle - PowerSettleTolerance,
			MaxHold:    PowerSettle + PowerSettleTolerance,
			Completion: models.AfterHold(),
		},
		{
			Line:       models.LineReset,
			Action:     models.ActionAssert,
			Hold:       ResetPulseMin,
			MinHold:    ResetPulseMin,
			Completion: models.AfterHold(),
		},
		{
			Line:       models.LineReset,
			Action:     models.ActionRelease,
			Completion: models.AfterHold(),
		},
	}
}

// recoveryCoreSteps is the REC pre-hold, reset pulse and REC post-hold shared
// by both recovery variants.
func recoveryCoreSteps() []models.Step {
	return []models.Step{
		{
			Line:       models.LineRecovery,
			Action:     models.ActionAssert,
			Hold:       RecoveryPreHold,
			MinHold:    RecoveryPreHold,
			Completion: models.AfterHold(),
		},
		{
			Line:       models.LineReset,
			Action:     models.ActionAssert,
			Hold:       ResetPulseMin,
			MinHold:    ResetPulseMin,
			Completion: models.AfterHold(),
		},
		{
			Line:       models.LineReset,
			Action:     models.ActionRelease,
			Completion: models.AfterHold(),
		},
		{
			Line:       models.LineRecovery,
			Action:     models.ActionAssert,
			Hold:       RecoveryPostHold,
			MinHold:    RecoveryPostHold,
			Completion: models.AfterHold(),
		},
	}
}

func builtinTemplates() []*models.Template {
	normal := &models.Template{
		Kind:     models.SequenceNormalReboot,
		Steps:    normalRebootSteps(),
		Cooldown: SequenceCooldown,
	}

	entry := &models.Template{
		Kind: models.SequenceRecoveryEntry,
		Steps: append(recoveryCoreSteps(), models.Step{
			Line:       models.LineRecovery,
			Action:     models.ActionRelease,
			Completion: models.AfterHold(),
		}),
		Cooldown: SequenceCooldown,
	}

	immediate := &models.Template{
		Kind: models.SequenceRecoveryImmediate,
		Steps: append(recoveryCoreSteps(),
			models.Step{
				Line:       models.LineRecovery,
				Action:     models.ActionAssert,
				Completion: models.OnBridgeActivity(BridgeWaitTimeout),
			},
			models.Step{
				Line:       models.LineRecovery,
				Action:     models.ActionRelease,
				Completion: models.AfterHold(),
			},
		),
		Cooldown: SequenceCooldown,
	}

	fault := &models.Template{
		Kind: models.SequenceFaultRecovery,
		Steps: append([]models.Step{
			{
				Line:       models.LineAPO,
				Action:     models.ActionAssert,
				Hold:       APOPrecharge,
				MinHold:    APOPrecharge,
				MaxHold:    APOPrecharge,
				Completion: models.AfterHold(),
			},
			{
				Line:       models.LineAPO,
				Action:     models.ActionRelease,
				Completion: models.AfterHold(),
			},
		}, normalRebootSteps()...),
		Cooldown:   SequenceCooldown,
		MaxRetries: FaultRecoveryMaxRetries,
	}

	return []*models.Template{normal, entry, immediate, fault}
}
