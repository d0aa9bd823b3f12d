package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Package kinds carried in the envelope PackageId.
const (
	KindAddon   = "addon"
	KindCommand = "command"
)

// Addon payload types.
const (
	AddonTypeCommand = "command"
)

// ValidationError reports one invalid payload field.
type ValidationError struct {
	Kind   string
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema: kind=%s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("schema: kind=%s field=%s: %s", e.Kind, e.Field, e.Reason)
}

// AddonPackage announces an extension capability to the host.
type AddonPackage struct {
	AddonPackageType string `json:"addonPackageType"`
	AddonPackageData string `json:"addonPackageData"`
}

// CommandAddon describes one registered command inside an AddonPackage.
type CommandAddon struct {
	CommandID       string   `json:"CommandId"`
	CommandName     string   `json:"CommandName"`
	CommandArgTypes []string `json:"CommandArgTypes"`
}

// CommandPackage is a host request to invoke a registered command.
type CommandPackage struct {
	CommandID   string            `json:"CommandId"`
	CommandArgs []json.RawMessage `json:"CommandArgs"`
}

func (c CommandAddon) Validate() error {
	if strings.TrimSpace(c.CommandID) == "" {
		return ValidationError{Kind: KindAddon, Field: "CommandId", Reason: "missing required field"}
	}
	if strings.TrimSpace(c.CommandName) == "" {
		return ValidationError{Kind: KindAddon, Field: "CommandName", Reason: "missing required field"}
	}
	return nil
}

func (c CommandPackage) Validate() error {
	if strings.TrimSpace(c.CommandID) == "" {
		return ValidationError{Kind: KindCommand, Field: "CommandId", Reason: "missing required field"}
	}
	return nil
}

// NewCommandAddon wraps a command description into an addon payload.
func NewCommandAddon(cmd CommandAddon) (AddonPackage, error) {
	if err := cmd.Validate(); err != nil {
		return AddonPackage{}, err
	}
	if cmd.CommandArgTypes == nil {
		cmd.CommandArgTypes = []string{}
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return AddonPackage{}, err
	}
	return AddonPackage{AddonPackageType: AddonTypeCommand, AddonPackageData: string(data)}, nil
}

// DecodeCommandAddon unwraps a command description from an addon payload.
func DecodeCommandAddon(addon AddonPackage) (CommandAddon, error) {
	if addon.AddonPackageType != AddonTypeCommand {
		return CommandAddon{}, ValidationError{Kind: KindAddon, Field: "addonPackageType", Reason: fmt.Sprintf("unsupported type %q", addon.AddonPackageType)}
	}
	var cmd CommandAddon
	if err := json.Unmarshal([]byte(addon.AddonPackageData), &cmd); err != nil {
		return CommandAddon{}, err
	}
	if err := cmd.Validate(); err != nil {
		return CommandAddon{}, err
	}
	return cmd, nil
}

// DecodeCommand parses and validates a command package body.
func DecodeCommand(data []byte) (CommandPackage, error) {
	var cmd CommandPackage
	if err := json.Unmarshal(data, &cmd); err != nil {
		return CommandPackage{}, err
	}
	if err := cmd.Validate(); err != nil {
		return CommandPackage{}, err
	}
	return cmd, nil
}
