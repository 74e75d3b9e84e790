// internal/status/constants.go
package status

// Device Status Block layout constants.
// These values define the exported register layout and MUST NOT be configurable.

// ---- BLOCK GEOMETRY ----

// SlotsPerDevice is the fixed number of registers per device.
const SlotsPerDevice = 20

// ---- SLOT INDICES ----

// SlotHealthCode holds the device health state.
const SlotHealthCode = 0

// SlotLastErrorCode holds the last link error kind.
const SlotLastErrorCode = 1

// SlotSecondsInError holds the duration (in seconds) the device has not been healthy.
const SlotSecondsInError = 2

// SlotFirmware holds the firmware version byte.
const SlotFirmware = 3

// ---- RESERVED RANGE ----

// Slots 4-10 are reserved.
const SlotReservedStart = 4
const SlotReservedEnd = 10

// ---- DEVICE NAME ----

// SlotDeviceNameStart is the first slot used for the device name.
// Device name is always placed at the END of the status block.
const SlotDeviceNameStart = 11

// SlotDeviceNameSlots is the number of slots reserved for the device name.
const SlotDeviceNameSlots = 8

// SlotDeviceNameEnd is the last slot used for the device name (inclusive).
const SlotDeviceNameEnd = SlotDeviceNameStart + SlotDeviceNameSlots - 1

// ---- LIMITS ----

// DeviceNameMaxChars is the maximum number of ASCII characters stored for device name.
const DeviceNameMaxChars = 16

// SecondsInErrorMax is where seconds-in-error saturates.
const SecondsInErrorMax = 65535
