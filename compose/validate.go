// Package compose validates orders and assembles them into packages.
//
// Validation is pure and runs entirely on the composing side: an order that
// fails Validate never joins a package and never reaches the engine.
package compose

import (
	"strings"

	"github.com/pithecene-io/deliorder/types"
)

// Validate checks rec's required fields in a fixed order and returns the
// first missing one as a *types.ValidationError.
//
// Order of checks: action, attachment name (present, then a single path
// element), execution path, then the action-specific fields (source path
// for move; editing name and its extension for rename).
func Validate(rec types.OrderRecord) error {
	if blank(rec.Action) {
		return invalid(types.UndefinedAction)
	}
	action, err := types.ParseAction(rec.Action)
	if err != nil {
		return invalid(types.UndefinedAction)
	}
	if blank(rec.AttachmentName) {
		return invalid(types.UndefinedAttachment)
	}
	if !types.IsPlainName(rec.AttachmentName) {
		return invalid(types.InvalidAttachment)
	}
	if blank(rec.ExecutionPath) {
		return invalid(types.UndefinedExecutionPath)
	}

	switch action {
	case types.ActionMove:
		if blank(rec.SourcePath) {
			return invalid(types.UndefinedSourcePath)
		}
	case types.ActionRename:
		if blank(rec.EditingName) {
			return invalid(types.UndefinedEditingName)
		}
		if !types.HasExtension(rec.EditingName) {
			return invalid(types.UndefinedExtensionName)
		}
	}
	return nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func invalid(kind types.ValidationKind) error {
	return &types.ValidationError{Kind: kind}
}
