// Package bledb resolves the Adafruit vendor service and characteristic UUIDs
// to human readable names for logs and CLI output.
package bledb

import "strings"

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID in normalized form.
const sigBaseSuffix = "00001000800000805f9b34fb"

// AdafruitCompanyID is the Bluetooth SIG company identifier assigned to Adafruit Industries.
const AdafruitCompanyID uint16 = 0x0822

var services = map[string]string{
	"1800": "Generic Access",
	"1801": "Generic Attribute",
	"180a": "Device Information",
	"180f": "Battery Service",

	"adaf0100c33242a893bd25e905756cb8": "Adafruit Temperature",
	"adaf0200c33242a893bd25e905756cb8": "Adafruit Accelerometer",
	"adaf0300c33242a893bd25e905756cb8": "Adafruit Light Sensor",
	"adaf0400c33242a893bd25e905756cb8": "Adafruit Gyroscope",
	"adaf0500c33242a893bd25e905756cb8": "Adafruit Magnetometer",
	"adaf0600c33242a893bd25e905756cb8": "Adafruit Button",
	"adaf0700c33242a893bd25e905756cb8": "Adafruit Humidity",
	"adaf0800c33242a893bd25e905756cb8": "Adafruit Barometric Pressure",
	"adaf0900c33242a893bd25e905756cb8": "Adafruit Addressable Pixel",
	"adaf0a00c33242a893bd25e905756cb8": "Adafruit Color Sensor",
	"adaf0b00c33242a893bd25e905756cb8": "Adafruit Sound",
	"adaf0c00c33242a893bd25e905756cb8": "Adafruit Tone",
	"adaf0d00c33242a893bd25e905756cb8": "Adafruit Quaternion",
}

var characteristics = map[string]string{
	"2a00": "Device Name",
	"2a19": "Battery Level",
	"2a29": "Manufacturer Name String",

	"adaf0001c33242a893bd25e905756cb8": "Adafruit Measurement Period",
	"adaf0002c33242a893bd25e905756cb8": "Adafruit Service Version",
	"adaf0101c33242a893bd25e905756cb8": "Adafruit Temperature",
	"adaf0201c33242a893bd25e905756cb8": "Adafruit Acceleration",
	"adaf0301c33242a893bd25e905756cb8": "Adafruit Light Level",
	"adaf0401c33242a893bd25e905756cb8": "Adafruit Angular Rate",
	"adaf0501c33242a893bd25e905756cb8": "Adafruit Magnetic Field",
	"adaf0601c33242a893bd25e905756cb8": "Adafruit Button State",
	"adaf0701c33242a893bd25e905756cb8": "Adafruit Relative Humidity",
	"adaf0801c33242a893bd25e905756cb8": "Adafruit Pressure",
	"adaf0903c33242a893bd25e905756cb8": "Adafruit Pixel Data",
	"adaf0a01c33242a893bd25e905756cb8": "Adafruit Color",
	"adaf0b01c33242a893bd25e905756cb8": "Adafruit Sound Samples",
	"adaf0b02c33242a893bd25e905756cb8": "Adafruit Sound Channels",
	"adaf0c01c33242a893bd25e905756cb8": "Adafruit Tone",
	"adaf0d01c33242a893bd25e905756cb8": "Adafruit Quaternion",
	"adafd002c33242a893bd25e905756cb8": "Adafruit Quaternion Calibration In",
	"adafd003c33242a893bd25e905756cb8": "Adafruit Quaternion Calibration Out",
}

var vendors = map[uint16]string{
	AdafruitCompanyID: "Adafruit Industries",
	0x004c:            "Apple, Inc.",
	0x0059:            "Nordic Semiconductor ASA",
}

// NormalizeUUID converts a UUID string to the internal lookup format (lowercase, no dashes).
// It strips a 0x prefix and surrounding braces. Full 128-bit UUIDs built on the
// Bluetooth SIG base (0000xxxx-0000-1000-8000-00805f9b34fb) collapse to their 16-bit form.
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	u = strings.TrimPrefix(u, "{")
	u = strings.TrimSuffix(u, "}")
	u = strings.TrimPrefix(u, "0x")
	u = strings.ReplaceAll(u, "-", "")

	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, sigBaseSuffix) {
		return u[4:8]
	}
	return u
}

// NormalizeUUIDs normalizes a slice of UUID strings.
func NormalizeUUIDs(uuids []string) []string {
	out := make([]string, len(uuids))
	for i, u := range uuids {
		out[i] = NormalizeUUID(u)
	}
	return out
}

// LookupService returns the known name of a service, or "" when unknown.
func LookupService(uuid string) string {
	return services[NormalizeUUID(uuid)]
}

// LookupCharacteristic returns the known name of a characteristic, or "" when unknown.
func LookupCharacteristic(uuid string) string {
	return characteristics[NormalizeUUID(uuid)]
}

// LookupVendor returns the company name for a Bluetooth SIG company identifier.
func LookupVendor(id uint16) string {
	return vendors[id]
}
