package schema

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/danmuck/extpipe/internal/testutil/testlog"
)

func TestCommandAddonRoundTrip(t *testing.T) {
	testlog.Start(t)
	addon, err := NewCommandAddon(CommandAddon{CommandID: "hello.say", CommandName: "Say Hello", CommandArgTypes: []string{"string"}})
	if err != nil {
		t.Fatalf("new addon: %v", err)
	}
	if addon.AddonPackageType != AddonTypeCommand {
		t.Fatalf("unexpected addon type: %q", addon.AddonPackageType)
	}
	raw, err := json.Marshal(addon)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var wire AddonPackage
	if err := json.Unmarshal(raw, &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	cmd, err := DecodeCommandAddon(wire)
	if err != nil {
		t.Fatalf("decode addon: %v", err)
	}
	if cmd.CommandID != "hello.say" || len(cmd.CommandArgTypes) != 1 || cmd.CommandArgTypes[0] != "string" {
		t.Fatalf("unexpected command addon: %+v", cmd)
	}
}

func TestNewCommandAddonMissingFields(t *testing.T) {
	testlog.Start(t)
	_, err := NewCommandAddon(CommandAddon{CommandName: "x"})
	var verr ValidationError
	if !errors.As(err, &verr) || verr.Field != "CommandId" {
		t.Fatalf("expected CommandId validation error, got %v", err)
	}
}

func TestDecodeCommandAddonRejectsUnknownType(t *testing.T) {
	testlog.Start(t)
	if _, err := DecodeCommandAddon(AddonPackage{AddonPackageType: "window"}); err == nil {
		t.Fatalf("expected unsupported type error")
	}
}

func TestDecodeCommand(t *testing.T) {
	testlog.Start(t)
	cmd, err := DecodeCommand([]byte(`{"CommandId":"hello.say","CommandArgs":["dan",3]}`))
	if err != nil {
		t.Fatalf("decode command: %v", err)
	}
	if cmd.CommandID != "hello.say" || len(cmd.CommandArgs) != 2 {
		t.Fatalf("unexpected command: %+v", cmd)
	}
	if string(cmd.CommandArgs[1]) != "3" {
		t.Fatalf("unexpected raw arg: %s", cmd.CommandArgs[1])
	}
}

func TestDecodeCommandRequiresID(t *testing.T) {
	testlog.Start(t)
	if _, err := DecodeCommand([]byte(`{"CommandArgs":[]}`)); err == nil {
		t.Fatalf("expected missing CommandId error")
	}
}
