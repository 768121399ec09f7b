package service

// Setting keys accepted by the charger settings resource.
const (
	SettingEnabled               = "enabled"
	SettingLedStripBrightness    = "ledStripBrightness"
	SettingDynamicChargerCurrent = "dynamicChargerCurrent"
	SettingMaxChargerCurrent     = "maxChargerCurrent"
)

// Setting is one charger setting, sent upstream as a single-key JSON object.
type Setting struct {
	Key   string
	Value interface{}
}

func (s Setting) payload() map[string]interface{} {
	return map[string]interface{}{s.Key: s.Value}
}

// Enabled builds the enabled setting.
func Enabled(enabled bool) Setting {
	return Setting{Key: SettingEnabled, Value: enabled}
}

// LedStripBrightness builds the LED strip brightness setting, 0-100.
func LedStripBrightness(brightness int) Setting {
	return Setting{Key: SettingLedStripBrightness, Value: brightness}
}

// DynamicChargerCurrent builds the dynamic charger current setting in amperes.
func DynamicChargerCurrent(current float64) Setting {
	return Setting{Key: SettingDynamicChargerCurrent, Value: current}
}

// MaxChargerCurrent builds the max charger current setting in amperes.
func MaxChargerCurrent(current float64) Setting {
	return Setting{Key: SettingMaxChargerCurrent, Value: current}
}
