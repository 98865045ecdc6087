package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string         `json:"event,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Controller    ControllerJSON `json:"controller"`
	Pump          PumpJSON       `json:"pump"`
	Display       [2]string      `json:"display"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	Online        bool           `json:"online"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Counts        CountsJSON     `json:"event_counts"`
	Network       *NetworkJSON   `json:"network,omitempty"`
	Config        ConfigJSON     `json:"config"`
}

// ControllerJSON is the selection and volume block. Modes are numbered
// 1..4; 0 means none.
type ControllerJSON struct {
	SelectedMode int    `json:"selected_mode"`
	Editing      bool   `json:"editing"`
	EditMode     int    `json:"edit_mode"`
	VolumesMl    [4]int `json:"volumes_ml"`
}

// PumpJSON reports the current or last pump run.
type PumpJSON struct {
	State       string `json:"state"`
	Mode        int    `json:"mode,omitempty"`
	VolumeMl    int    `json:"volume_ml,omitempty"`
	RemainingMs int64  `json:"remaining_ms"`
	LastRun     string `json:"last_run,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Presses    int `json:"presses"`
	PumpRuns   int `json:"pump_runs"`
	Saves      int `json:"saves"`
	SaveErrors int `json:"save_errors"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of controller config.
type ConfigJSON struct {
	TickMs      int64    `json:"tick_ms"`
	DebounceMs  int64    `json:"debounce_ms"`
	LongPressMs int64    `json:"long_press_ms"`
	HeartbeatMs int64    `json:"heartbeat_ms"`
	MinMl       int      `json:"min_ml"`
	MaxMl       int      `json:"max_ml"`
	IncrementMl int      `json:"increment_ml"`
	FlowMlPerS  float64  `json:"flow_ml_per_s"`
	Broker      string   `json:"broker"`
	HTTPAddr    string   `json:"http_addr"`
	WSBroker    string   `json:"ws_broker,omitempty"`
	Schedules   []string `json:"schedules,omitempty"`
}

// BuildController returns the selection and volume block.
func BuildController(snap Snapshot) ControllerJSON {
	c := snap.Controller
	return ControllerJSON{
		SelectedMode: c.Selected.Number(),
		Editing:      c.Editing,
		EditMode:     c.EditMode.Number(),
		VolumesMl:    c.Volumes,
	}
}

func buildInner(snap Snapshot) StatusInner {
	c := snap.Controller
	pump := PumpJSON{
		State:       string(c.Pump),
		Mode:        c.PumpMode.Number(),
		VolumeMl:    c.PumpVolume,
		RemainingMs: c.Remaining.Milliseconds(),
	}
	if pump.State == "" {
		pump.State = "UNKNOWN"
	}
	if !c.LastRun.IsZero() {
		pump.LastRun = c.LastRun.UTC().Format(time.RFC3339)
	}

	inner := StatusInner{
		Controller:    BuildController(snap),
		Pump:          pump,
		Display:       snap.Display,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Online:        snap.Online,
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Presses:    c.Counts.Presses,
			PumpRuns:   c.Counts.PumpRuns,
			Saves:      c.Counts.Saves,
			SaveErrors: c.Counts.SaveErrors,
		},
		Config: ConfigJSON{
			TickMs:      snap.Config.TickMs,
			DebounceMs:  snap.Config.DebounceMs,
			LongPressMs: snap.Config.LongPressMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			MinMl:       snap.Config.MinMl,
			MaxMl:       snap.Config.MaxMl,
			IncrementMl: snap.Config.IncrementMl,
			FlowMlPerS:  snap.Config.FlowMlPerS,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			WSBroker:    snap.Config.WSBroker,
			Schedules:   snap.Config.Schedules,
		},
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// FormatController returns the controller block on its own.
func FormatController(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(BuildController(snap), "", "  ")
	return data
}
