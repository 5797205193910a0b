package config

// ptr is a small helper for building *float64 schema bounds inline.
func ptr(f float64) *float64 { return &f }

// RegisterDefaultSections wires the section set shipped with the core
// runtime: system identity, sensors, actuators, climate control,
// network, UI, logging, WiFi, and RTC (§4.C's domain stack, expanding
// on the distilled spec's single "config sections" mention).
func RegisterDefaultSections(s *Store) {
	s.RegisterSection("system", map[string]any{
		"device_id":        "modesp-001",
		"tick_period_ms":   100.0,
		"heartbeat_period": 1000.0,
	}, SectionSchema{Fields: []FieldSchema{
		{Path: "device_id", Required: true, Kind: FieldString},
		{Path: "tick_period_ms", Required: true, Kind: FieldNumber, Min: ptr(1), Max: ptr(60000)},
		{Path: "heartbeat_period", Required: true, Kind: FieldNumber, Min: ptr(10), Max: ptr(600000)},
	}})

	s.RegisterSection("sensors", map[string]any{
		"poll_interval_ms": 1000.0,
		"sensors": []any{
			map[string]any{
				"role":        "chamber_temp",
				"type":        "ds18b20",
				"config":      map[string]any{"bus_addr": "28-000000000001"},
				"publish_key": "state.sensor.chamber_temp",
			},
		},
	}, SectionSchema{Fields: []FieldSchema{
		{Path: "poll_interval_ms", Required: true, Kind: FieldNumber, Min: ptr(10), Max: ptr(60000)},
	}})

	s.RegisterSection("actuators", map[string]any{
		"actuators": []any{
			map[string]any{
				"role":        "compressor",
				"type":        "relay",
				"config":      map[string]any{"pin": "compressor"},
				"command_key": "command.actuator.compressor",
				"status_key":  "state.actuator.compressor",
			},
		},
	}, SectionSchema{})

	s.RegisterSection("climate", map[string]any{
		"setpoint_c":     4.0,
		"hysteresis_c":   0.5,
		"defrost_period": 21600.0,
		"enabled":        true,
	}, SectionSchema{Fields: []FieldSchema{
		{Path: "setpoint_c", Required: true, Kind: FieldNumber, Min: ptr(-40), Max: ptr(60)},
		{Path: "hysteresis_c", Required: true, Kind: FieldNumber, Min: ptr(0.1), Max: ptr(10)},
		{Path: "enabled", Required: true, Kind: FieldBool},
	}})

	s.RegisterSection("network", map[string]any{
		"diag_listen_addr": "0.0.0.0:8080",
	}, SectionSchema{Fields: []FieldSchema{
		{Path: "diag_listen_addr", Required: true, Kind: FieldString},
	}})

	s.RegisterSection("ui", map[string]any{
		"units":    "celsius",
		"language": "en",
	}, SectionSchema{})

	s.RegisterSection("logging", map[string]any{
		"level": "info",
	}, SectionSchema{Fields: []FieldSchema{
		{Path: "level", Required: true, Kind: FieldString},
	}})

	s.RegisterSection("wifi", map[string]any{
		"ssid":    "",
		"enabled": false,
	}, SectionSchema{Fields: []FieldSchema{
		{Path: "enabled", Required: true, Kind: FieldBool},
	}})

	s.RegisterSection("rtc", map[string]any{
		"timezone": "UTC",
	}, SectionSchema{})
}
