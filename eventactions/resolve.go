package eventactions

import (
	"context"
	"errors"
	"slices"
)

// SaveTypeInput holds everything the save scope decision depends on
type SaveTypeInput struct {
	CanOnlySaveAll    bool
	CanOnlySaveThis   bool
	HasModifiedRrule  bool
	HasFutureOption   bool
	MustResetPartstat bool
	IsInvitation      bool
	InviteActions     InviteActions
}

// SaveConfirmation is what the user is asked to pick from
type SaveConfirmation struct {
	Candidates    []RecurringType
	InviteActions InviteActions
	IsInvitation  bool
}

// OnSaveConfirmation asks the user for a save scope. It may block until
// ctx is done.
type OnSaveConfirmation func(ctx context.Context, c SaveConfirmation) (RecurringType, error)

// DeleteTypeInput holds everything the delete scope decision depends on
type DeleteTypeInput struct {
	CanOnlyDeleteAll           bool
	CanOnlyDeleteThis          bool
	HasDecryptedComponent      bool
	HasFutureOption            bool
	MustResetPartstat          bool
	HasNonCancelledSingleEdits bool
	IsInvitation               bool
	InviteActions              InviteActions
}

// DeleteConfirmation is what the user is asked to pick from
type DeleteConfirmation struct {
	Candidates                 []RecurringType
	HasNonCancelledSingleEdits bool
	InviteActions              InviteActions
	IsInvitation               bool
}

// OnDeleteConfirmation asks the user for a delete scope
type OnDeleteConfirmation func(ctx context.Context, c DeleteConfirmation) (RecurringType, error)

// Resolution is the scope picked for a save or delete
type Resolution struct {
	Type          RecurringType
	InviteActions InviteActions
	Prompted      bool
}

type saveRule struct {
	name       string
	applies    func(SaveTypeInput) bool
	candidates func(SaveTypeInput) []RecurringType
	// confirm marks outcomes that still go through the user
	confirm bool
}

// saveRules is evaluated in order; the first matching rule wins
var saveRules = []saveRule{
	{
		name:       "can only save all",
		applies:    func(in SaveTypeInput) bool { return in.CanOnlySaveAll },
		candidates: func(SaveTypeInput) []RecurringType { return []RecurringType{RecurringAll} },
	},
	{
		name:       "can only save this",
		applies:    func(in SaveTypeInput) bool { return in.CanOnlySaveThis },
		candidates: func(SaveTypeInput) []RecurringType { return []RecurringType{RecurringSingle} },
	},
	{
		name:    "rrule modified",
		applies: func(in SaveTypeInput) bool { return in.HasModifiedRrule },
		candidates: func(in SaveTypeInput) []RecurringType {
			if in.HasFutureOption {
				return []RecurringType{RecurringFuture, RecurringAll}
			}
			return []RecurringType{RecurringAll}
		},
		confirm: true,
	},
	{
		name:    "default",
		applies: func(SaveTypeInput) bool { return true },
		candidates: func(in SaveTypeInput) []RecurringType {
			if in.HasFutureOption {
				return []RecurringType{RecurringSingle, RecurringFuture, RecurringAll}
			}
			return []RecurringType{RecurringSingle, RecurringAll}
		},
		confirm: true,
	},
}

// SaveCandidates returns the scopes offered for a save and whether the
// user has to confirm one of them
func SaveCandidates(in SaveTypeInput) ([]RecurringType, bool) {
	for _, rule := range saveRules {
		if rule.applies(in) {
			return rule.candidates(in), rule.confirm
		}
	}
	return nil, false
}

// ResolveSaveType picks the scope of a recurring save
func ResolveSaveType(ctx context.Context, in SaveTypeInput, confirm OnSaveConfirmation) (Resolution, error) {
	candidates, needsConfirm := SaveCandidates(in)
	if len(candidates) == 0 {
		return Resolution{}, newError(KindConsistency, nil, "no save scope available")
	}

	res := Resolution{Type: candidates[0], InviteActions: in.InviteActions}
	if needsConfirm {
		if confirm == nil {
			return Resolution{}, newError(KindValidation, nil, "save scope needs confirmation but no callback is set")
		}
		choice, err := confirm(ctx, SaveConfirmation{
			Candidates:    slices.Clone(candidates),
			InviteActions: in.InviteActions,
			IsInvitation:  in.IsInvitation,
		})
		if err != nil {
			return Resolution{}, abandoned(err)
		}
		if !slices.Contains(candidates, choice) {
			return Resolution{}, newError(KindConsistency, nil, "confirmed save scope %s is not one of %v", choice, candidates)
		}
		res.Type = choice
		res.Prompted = true
	}

	res.InviteActions.ResetSingleEditsPartstat = res.Type == RecurringAll && in.MustResetPartstat
	return res, nil
}

type deleteRule struct {
	name       string
	applies    func(DeleteTypeInput) bool
	candidates func(DeleteTypeInput) []RecurringType
}

// deleteRules is evaluated in order; the first matching rule wins
var deleteRules = []deleteRule{
	{
		name:       "can only delete all",
		applies:    func(in DeleteTypeInput) bool { return in.CanOnlyDeleteAll || !in.HasDecryptedComponent },
		candidates: func(DeleteTypeInput) []RecurringType { return []RecurringType{RecurringAll} },
	},
	{
		name:       "can only delete this",
		applies:    func(in DeleteTypeInput) bool { return in.CanOnlyDeleteThis },
		candidates: func(DeleteTypeInput) []RecurringType { return []RecurringType{RecurringSingle} },
	},
	{
		name:    "future split possible",
		applies: func(in DeleteTypeInput) bool { return in.HasFutureOption },
		candidates: func(DeleteTypeInput) []RecurringType {
			return []RecurringType{RecurringSingle, RecurringFuture, RecurringAll}
		},
	},
	{
		name:       "default",
		applies:    func(DeleteTypeInput) bool { return true },
		candidates: func(DeleteTypeInput) []RecurringType { return []RecurringType{RecurringSingle, RecurringAll} },
	},
}

// DeleteCandidates returns the scopes offered for a deletion
func DeleteCandidates(in DeleteTypeInput) []RecurringType {
	for _, rule := range deleteRules {
		if rule.applies(in) {
			return rule.candidates(in)
		}
	}
	return nil
}

// ResolveDeleteType picks the scope of a recurring deletion. A single
// candidate is adopted without asking.
func ResolveDeleteType(ctx context.Context, in DeleteTypeInput, confirm OnDeleteConfirmation) (Resolution, error) {
	candidates := DeleteCandidates(in)
	invite := in.InviteActions
	invite.ResetSingleEditsPartstat = len(candidates) == 1 && candidates[0] == RecurringAll && in.MustResetPartstat

	res := Resolution{Type: candidates[0], InviteActions: invite}
	if len(candidates) == 1 {
		return res, nil
	}
	if confirm == nil {
		return Resolution{}, newError(KindValidation, nil, "delete scope needs confirmation but no callback is set")
	}

	choice, err := confirm(ctx, DeleteConfirmation{
		Candidates:                 slices.Clone(candidates),
		HasNonCancelledSingleEdits: in.HasNonCancelledSingleEdits,
		InviteActions:              invite,
		IsInvitation:               in.IsInvitation,
	})
	if err != nil {
		return Resolution{}, abandoned(err)
	}
	if !slices.Contains(candidates, choice) {
		return Resolution{}, newError(KindConsistency, nil, "confirmed delete scope %s is not one of %v", choice, candidates)
	}
	res.Type = choice
	res.Prompted = true
	return res, nil
}

func abandoned(err error) error {
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	return newError(KindAbandoned, err, "scope selection did not complete")
}
