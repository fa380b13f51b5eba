package configprotocol

import (
	"github.com/daqkit/daqrun/component"
	"github.com/daqkit/daqrun/internal/daqerr"
	"github.com/daqkit/daqrun/valuekernel"
)

// componentConfig adapts a live *component.Component's property values to
// serializer.Serializable, the versioned self-describing form
// GetComponentConfig/SerializeForUpdate render and Update applies back
// (§4.2, §6.2 command list). It is deliberately not registered with a
// serializer.Registry factory: a config is only ever read from or applied
// onto a component that already exists, never constructed from scratch, so
// it only needs the ToMap/FromMap half of Serializable.
type componentConfig struct {
	target *component.Component
}

func (c *componentConfig) TypeID() string { return "ComponentConfig" }

func (c *componentConfig) ToMap(m map[string]interface{}) {
	props := map[string]interface{}{}
	for _, name := range c.target.PropertyNames() {
		v, err := c.target.GetPropertyValue(name)
		if err != nil {
			continue
		}
		props[name] = valuekernel.Serialize(v)
	}
	m["globalId"] = c.target.GlobalID()
	m["properties"] = props
}

// FromMap applies each property found in m onto target via
// SetProtectedPropertyValue, the same protected-write path a remote mirror's
// Update command uses elsewhere in this package (§4.2 "components honour
// RemoteUpdate"). Properties the target does not have (NotFound) and writes
// that return Ignored are skipped, since a client may be restoring a config
// saved against a device tree that has since dropped a property; any other
// decode or write error aborts the update at that property.
func (c *componentConfig) FromMap(m map[string]interface{}) error {
	raw, ok := m["properties"].(map[string]interface{})
	if !ok {
		return daqerr.New(daqerr.InvalidValue, "component config missing properties map")
	}
	for name, entry := range raw {
		valMap, ok := entry.(map[string]interface{})
		if !ok {
			return daqerr.Newf(daqerr.InvalidValue, "property %q is not a tagged value", name)
		}
		v, err := valuekernel.DecodeValue(valMap)
		if err != nil {
			return daqerr.Wrap(daqerr.InvalidValue, err, "decoding property "+name)
		}
		if err := c.target.SetProtectedPropertyValue(name, v); err != nil && !daqerr.IsIgnored(err) {
			if daqerr.KindOf(err) == daqerr.NotFound {
				continue
			}
			return err
		}
	}
	return nil
}
