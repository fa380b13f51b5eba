package configprotocol

import (
	"github.com/daqkit/daqrun/component"
	"github.com/daqkit/daqrun/signal"
)

// renderTree produces the shallow tree-shape view a client mirror needs to
// materialise proxy components at hello time (§4.10 "client pulls a full
// serialisation of the device tree"). It is deliberately not the generic
// tagged serialiser (serializer.SerializeRoot): that format exists to
// reconstruct live, type-manager-backed objects via FromMap, while a mirror
// only ever renders read-only proxies, so a direct path/attribute/children
// view is enough and saves every component/signal/function-block type from
// having to implement serializer.Serializable.
func renderTree(c *component.Component) map[string]interface{} {
	m := map[string]interface{}{
		"globalId":    c.GlobalID(),
		"localId":     c.LocalID(),
		"name":        c.Name(),
		"description": c.Description(),
		"active":      c.Active(),
		"visible":     c.Visible(),
		"locked":      c.IsLocked(),
		"tags":        c.Tags().SortedKeys(),
	}

	folder := c.AsFolder()
	if folder == nil {
		return m
	}
	m["elementInterface"] = folder.ElementInterface
	children := folder.Children()
	out := make([]map[string]interface{}, len(children))
	for i, child := range children {
		out[i] = renderTree(child)
	}
	m["children"] = out
	return m
}

// renderPacket renders one signal.Packet for the wire (§6.2). RawBytes
// round-trips as base64 through Go's standard []byte JSON encoding.
func renderPacket(p signal.Packet) map[string]interface{} {
	switch t := p.(type) {
	case *signal.DataPacket:
		m := map[string]interface{}{
			"kind":        "Data",
			"offset":      t.Offset,
			"sampleCount": t.SampleCount,
		}
		if t.Descriptor != nil {
			m["descriptor"] = renderDescriptor(t.Descriptor)
		}
		if t.RawBytes != nil {
			m["rawBytes"] = t.RawBytes
		}
		if t.ConstantStart != nil {
			m["constantStart"] = t.ConstantStart
		}
		if len(t.ConstantOverrides) > 0 {
			overrides := make([]map[string]interface{}, len(t.ConstantOverrides))
			for i, o := range t.ConstantOverrides {
				overrides[i] = map[string]interface{}{"position": o.Position, "value": o.Value}
			}
			m["constantOverrides"] = overrides
		}
		if t.Domain != nil {
			m["domain"] = renderPacket(t.Domain)
		}
		return m
	case *signal.EventPacket:
		m := map[string]interface{}{
			"kind":    "Event",
			"eventId": t.EventID,
		}
		if t.NewValueDescriptor != nil {
			m["newValueDescriptor"] = renderDescriptor(t.NewValueDescriptor)
		}
		if t.NewDomainDescriptor != nil {
			m["newDomainDescriptor"] = renderDescriptor(t.NewDomainDescriptor)
		}
		return m
	default:
		return map[string]interface{}{"kind": "Unknown"}
	}
}

func renderDescriptor(d *signal.DataDescriptor) map[string]interface{} {
	m := map[string]interface{}{
		"sampleType": int(d.SampleType),
		"ruleType":   int(d.Rule.Type),
		"unit":       d.Unit,
		"name":       d.Name,
	}
	if d.Rule.Type == signal.RuleLinear {
		m["linearStart"] = d.Rule.LinearStart
		m["linearDelta"] = d.Rule.LinearDelta
	}
	return m
}
