package registry

// Key and field names in the keyed store. Devices live under "device:<did>";
// the alias index is a pair of hashes kept consistent only by the alias
// transaction.
const (
	// deviceAliasKey maps device key -> alias (forward direction).
	deviceAliasKey = "device:alias"

	// aliasDeviceKey maps alias -> device key (reverse direction).
	aliasDeviceKey = "alias:device"
)

// Device record field names.
const (
	FieldDID     = "did"
	FieldChannel = "channel"
	FieldTTL     = "ttl"
)

// DeviceKey returns the store key holding the record for a device.
func DeviceKey(deviceID string) string {
	return "device:" + deviceID
}

// GroupsKey returns the store key reserved for a device's group memberships.
// The key is only addressable for now; group behavior is future work.
func GroupsKey(deviceID string) string {
	return DeviceKey(deviceID) + ":groups"
}
