// internal/protocol/layout.go
package protocol

// Wire layout constants.
// These values are fixed by device firmware and MUST NOT be configurable.

// ---- IDENTITY ----

// VendorID is the vendor byte reported by READ_VENDOR_DATA.
const VendorID uint8 = 0xEE

// ProductID is the product byte reported by READ_VENDOR_DATA.
const ProductID uint8 = 0x10

// UIDSize is the length of the hardware UID returned by READ_UID.
const UIDSize = 12

// VendorDataSize is the length of the READ_VENDOR_DATA response.
const VendorDataSize = 3

// ---- SENSOR STRUCTURE GEOMETRY ----

const (
	VinCount       = 13
	TempProbeCount = 4
	PowerRailCount = 11
	FanCount       = 9
)

// SensorFrameSize is the READ_SENSORS response length for current firmware.
// Newer firmware may append fields; decoding only requires this many bytes.
const SensorFrameSize = 216

// ---- FIELD OFFSETS (little-endian, natural alignment) ----

const (
	offVin             = 0
	offVdd             = 26
	offVref            = 28
	offTchip           = 30
	offTs              = 32
	offTamb            = 40
	offHum             = 42
	offFanSwitchStatus = 44
	offRGBSwitchStatus = 45
	offRGBExtStatus    = 46
	offFanExtDuty      = 47
	offPower           = 48
	offFans            = 180
)

// Power rail record: Voltage i16, 2 bytes padding, Current i32, Power i32.
const (
	powerRecordSize = 12
	powerOffVoltage = 0
	powerOffCurrent = 4
	powerOffPower   = 8
)

// Fan record: Enable u8, Duty u8, Tach u16.
const (
	fanRecordSize = 4
	fanOffEnable  = 0
	fanOffDuty    = 1
	fanOffTach    = 2
)
