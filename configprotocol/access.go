package configprotocol

import (
	"github.com/daqkit/daqrun/component"
	"github.com/daqkit/daqrun/internal/daqerr"
)

// commandAccess declares one command's permission requirement and which of
// the two extra guards apply (§4.10 "every command declares the permission
// subset it needs ... Writes are additionally refused in a view-only
// connection class and on a locked component"), grounded on
// config_server_component.h's per-method
// protectObject/protectLockedComponent/protectViewOnlyConnection call
// sequence.
type commandAccess struct {
	Required    component.Permission
	LockedGuard bool
	ViewOnly    bool
}

var commandTable = map[string]commandAccess{
	"GetPropertyValue":          {Required: component.PermRead},
	"SetPropertyValue":          {Required: component.PermRead | component.PermWrite, LockedGuard: true, ViewOnly: true},
	"SetProtectedPropertyValue": {Required: component.PermRead | component.PermWrite, LockedGuard: true, ViewOnly: true},
	"ClearPropertyValue":        {Required: component.PermRead | component.PermWrite, LockedGuard: true, ViewOnly: true},
	"GetSelectionValues":        {Required: component.PermRead},
	"CallProperty":              {Required: component.PermRead | component.PermExecute},
	"BeginUpdate":               {Required: component.PermRead | component.PermWrite, LockedGuard: true, ViewOnly: true},
	"EndUpdate":                 {Required: component.PermRead | component.PermWrite, LockedGuard: true, ViewOnly: true},
	"SetAttributeValue":         {Required: component.PermRead | component.PermWrite, LockedGuard: true, ViewOnly: true},
	"GetAvailableFunctionBlockTypes": {Required: component.PermRead},
	"AddFunctionBlock":          {Required: component.PermRead | component.PermWrite, LockedGuard: true, ViewOnly: true},
	"RemoveFunctionBlock":       {Required: component.PermRead | component.PermWrite, LockedGuard: true, ViewOnly: true},
	"ConnectSignal":             {Required: component.PermRead | component.PermWrite, LockedGuard: true, ViewOnly: true},
	"DisconnectSignal":          {Required: component.PermRead | component.PermWrite, LockedGuard: true, ViewOnly: true},
	"AcceptsSignal":             {Required: component.PermRead},
	"GetComponentConfig":        {Required: component.PermRead},
	"SerializeForUpdate":        {Required: component.PermRead},
	"Update":                    {Required: component.PermRead | component.PermWrite, LockedGuard: true, ViewOnly: true},
}

func lookupCommand(name string) (commandAccess, error) {
	ca, ok := commandTable[name]
	if !ok {
		return commandAccess{}, daqerr.Newf(daqerr.NotSupported, "command %q is not supported by this server", name)
	}
	return ca, nil
}

// protect runs the full access-control walk for one request: permission
// check against target's effective table, then the locked-component and
// view-only-connection guards the command declares (§4.10).
func protect(ca commandAccess, target *component.Component, sess *Session) error {
	if !target.CheckAccess(sess.User.PrimaryRole(), ca.Required) {
		return daqerr.Newf(daqerr.AccessDenied, "role %q lacks required permission on %q", sess.User.PrimaryRole(), target.GlobalID())
	}
	if ca.LockedGuard && target.IsLocked() {
		return daqerr.Newf(daqerr.AccessDenied, "component %q is locked", target.GlobalID())
	}
	if ca.ViewOnly && sess.ConnectionType == ConnectionViewOnly {
		return daqerr.New(daqerr.AccessDenied, "connection is view-only")
	}
	return nil
}
