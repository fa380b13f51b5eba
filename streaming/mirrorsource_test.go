package streaming

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daqkit/daqrun/signal"
)

func TestParsePacketDecodesDataPacketWithRawBytes(t *testing.T) {
	raw := []byte{1, 2, 3, 4}
	wire := map[string]interface{}{
		"kind":        "Data",
		"offset":      float64(10),
		"sampleCount": float64(4),
		"rawBytes":    base64.StdEncoding.EncodeToString(raw),
		"descriptor": map[string]interface{}{
			"sampleType": float64(signal.SampleFloat64),
			"ruleType":   float64(signal.RuleLinear),
			"unit":       "V",
			"name":       "voltage",
			"linearStart": float64(0),
			"linearDelta": float64(1),
		},
	}

	pkt, err := parsePacket(wire)
	require.NoError(t, err)
	dp, ok := pkt.(*signal.DataPacket)
	require.True(t, ok)
	require.Equal(t, int64(10), dp.Offset)
	require.Equal(t, int64(4), dp.SampleCount)
	require.Equal(t, raw, dp.RawBytes)
	require.NotNil(t, dp.Descriptor)
	require.Equal(t, signal.SampleFloat64, dp.Descriptor.SampleType)
	require.Equal(t, signal.RuleLinear, dp.Descriptor.Rule.Type)
	require.Equal(t, int64(1), dp.Descriptor.Rule.LinearDelta)
}

func TestParsePacketDecodesConstantOverridesAndDomain(t *testing.T) {
	wire := map[string]interface{}{
		"kind":          "Data",
		"offset":        float64(0),
		"sampleCount":   float64(100),
		"constantStart": float64(5),
		"constantOverrides": []interface{}{
			map[string]interface{}{"position": float64(3), "value": float64(9)},
		},
		"domain": map[string]interface{}{
			"kind":        "Data",
			"offset":      float64(0),
			"sampleCount": float64(100),
		},
	}

	pkt, err := parsePacket(wire)
	require.NoError(t, err)
	dp := pkt.(*signal.DataPacket)
	require.InDelta(t, 5, dp.ConstantStart, 0)
	require.Len(t, dp.ConstantOverrides, 1)
	require.EqualValues(t, 3, dp.ConstantOverrides[0].Position)
	require.NotNil(t, dp.Domain)
}

func TestParsePacketDecodesEventPacket(t *testing.T) {
	wire := map[string]interface{}{
		"kind":    "Event",
		"eventId": signal.EventDataDescriptorChanged,
		"newValueDescriptor": map[string]interface{}{
			"sampleType": float64(signal.SampleInt32),
			"ruleType":   float64(signal.RuleExplicit),
			"unit":       "",
			"name":       "",
		},
	}

	pkt, err := parsePacket(wire)
	require.NoError(t, err)
	ep, ok := pkt.(*signal.EventPacket)
	require.True(t, ok)
	require.Equal(t, signal.EventDataDescriptorChanged, ep.EventID)
	require.NotNil(t, ep.NewValueDescriptor)
	require.Equal(t, signal.SampleInt32, ep.NewValueDescriptor.SampleType)
}

func TestParsePacketRejectsUnknownKind(t *testing.T) {
	_, err := parsePacket(map[string]interface{}{"kind": "Bogus"})
	require.Error(t, err)
}
