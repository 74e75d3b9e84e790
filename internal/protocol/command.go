// internal/protocol/command.go
package protocol

import "fmt"

// Command is a single-byte request understood by the device.
type Command uint8

const (
	CmdWelcome Command = iota
	CmdReadSensors
	CmdAction
	CmdReadName
	CmdWriteName
	CmdReadFanProfile
	CmdWriteFanProfile
	CmdReadRGB
	CmdWriteRGB
	CmdReadCalibration
	CmdWriteCalibration
	CmdLoadCalibration
	CmdStoreCalibration
	CmdReadUID
	CmdReadVendorData
)

var commandNames = [...]string{
	CmdWelcome:          "WELCOME",
	CmdReadSensors:      "READ_SENSORS",
	CmdAction:           "ACTION",
	CmdReadName:         "READ_NAME",
	CmdWriteName:        "WRITE_NAME",
	CmdReadFanProfile:   "READ_FAN_PROFILE",
	CmdWriteFanProfile:  "WRITE_FAN_PROFILE",
	CmdReadRGB:          "READ_RGB",
	CmdWriteRGB:         "WRITE_RGB",
	CmdReadCalibration:  "READ_CALIBRATION",
	CmdWriteCalibration: "WRITE_CALIBRATION",
	CmdLoadCalibration:  "LOAD_CALIBRATION",
	CmdStoreCalibration: "STORE_CALIBRATION",
	CmdReadUID:          "READ_UID",
	CmdReadVendorData:   "READ_VENDOR_DATA",
}

// Valid reports whether c is a command known to the firmware.
func (c Command) Valid() bool {
	return int(c) < len(commandNames)
}

func (c Command) String() string {
	if !c.Valid() {
		return fmt.Sprintf("CMD(%d)", uint8(c))
	}
	return commandNames[c]
}

// Encode returns the request bytes for cmd.
// Every command is a single byte; payload-carrying writes are not issued by this core.
func Encode(cmd Command) ([]byte, error) {
	if !cmd.Valid() {
		return nil, &Error{Op: "encode", Msg: fmt.Sprintf("unknown command %d", uint8(cmd))}
	}
	return []byte{byte(cmd)}, nil
}

// ResponseShape returns the expected response shape for the read commands
// this core issues.
func ResponseShape(cmd Command) (Shape, bool) {
	switch cmd {
	case CmdReadSensors:
		return ShapeSensors, true
	case CmdReadUID:
		return ShapeUID, true
	case CmdReadVendorData:
		return ShapeVendorData, true
	default:
		return Shape{}, false
	}
}
