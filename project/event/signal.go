package event

import "fmt"

// Signal identifies what an event means. The set is fixed at build time.
type Signal uint8

const (
	Nothing Signal = iota

	MotionEmergency
	MechanismStart
	MechanismStop
	MechanismRehome
	MechanismHomed
	// published by the supervisor as it enters and leaves Armed
	MechanismArmed
	MechanismDisarmed

	ModeManual
	ModeEvent
	ModeDemo
	ModeTrack

	MovementRequest
	MotionQueueStart
	MotionQueueClear
	TrackedTargetRequest
	ExpansionAngleRequest
	PathingComplete

	LightingQueueAdd
	LightingQueueClear
	LightingManualSet
	LightingComplete

	SyncBegin
	CameraCapture

	signalCount
)

var signalNames = [signalCount]string{
	Nothing:               "NOTHING",
	MotionEmergency:       "MOTION_EMERGENCY",
	MechanismStart:        "MECHANISM_START",
	MechanismStop:         "MECHANISM_STOP",
	MechanismRehome:       "MECHANISM_REHOME",
	MechanismHomed:        "MECHANISM_HOMED",
	MechanismArmed:        "MECHANISM_ARMED",
	MechanismDisarmed:     "MECHANISM_DISARMED",
	ModeManual:            "MODE_MANUAL",
	ModeEvent:             "MODE_EVENT",
	ModeDemo:              "MODE_DEMO",
	ModeTrack:             "MODE_TRACK",
	MovementRequest:       "MOVEMENT_REQUEST",
	MotionQueueStart:      "MOTION_QUEUE_START",
	MotionQueueClear:      "MOTION_QUEUE_CLEAR",
	TrackedTargetRequest:  "TRACKED_TARGET_REQUEST",
	ExpansionAngleRequest: "EXPANSION_ANGLE_REQUEST",
	PathingComplete:       "PATHING_COMPLETE",
	LightingQueueAdd:      "LED_QUEUE_ADD",
	LightingQueueClear:    "LED_CLEAR_QUEUE",
	LightingManualSet:     "LED_MANUAL_SET",
	LightingComplete:      "LED_QUEUE_COMPLETE",
	SyncBegin:             "START_QUEUE_SYNC",
	CameraCapture:         "CAMERA_CAPTURE",
}

// Count is the number of defined signals, usable to size lookup tables.
const Count = int(signalCount)

func (s Signal) String() string {
	if int(s) < len(signalNames) && signalNames[s] != "" {
		return signalNames[s]
	}
	return fmt.Sprintf("SIGNAL_%d", uint8(s))
}

// IsEmergency marks signals that bypass FIFO ordering.
func (s Signal) IsEmergency() bool {
	return s == MotionEmergency
}

func (s Signal) Valid() bool {
	return s > Nothing && s < signalCount
}

// Publisher turns a signal and payload into a published event.
type Publisher interface {
	Publish(sig Signal, payload interface{}) error
}
