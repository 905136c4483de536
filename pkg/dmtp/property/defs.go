package property

import "fmt"

// Symbolic names, value types, arities, and defaults below follow the
// property manager's compiled-in table (propman.c). The 16-bit key
// NUMBERS are assigned fresh in ascending, block-per-category order
// (state, comm, GPS, motion, geozone, odometer): the numeric key IDs
// live in a header this port does not carry, and nothing on the wire
// depends on any particular assignment as long as client and server
// agree on this table.
//
// Deliberate divergences from the C table, each noted at its entry:
// identity keys (sta.account, sta.device, sta.uniq) and the odometer
// GPS slots are writable here where the C table marks them read-only,
// because this store enforces attributes on every caller and the
// shell/odometer module seed them through the same API the server
// uses; gps.evtintrv is an addition (the C source hardcodes its
// comport watchdog window).
const (
	// State, 0x00xx: identification and diagnostics.
	PropStateSerial        Key = 0x0010
	PropStateDeviceID      Key = 0x0011
	PropStateAccountID     Key = 0x0012
	PropStateUniqueID      Key = 0x0013
	PropStateDevDiagnostic Key = 0x0020
	PropStateGPSDiagnostic Key = 0x0021

	// Local port configuration, 0x0030+: GPS comport wiring (writable).
	PropCfgGPSPort Key = 0x0030
	PropCfgGPSBps  Key = 0x0031

	// Comm, 0x10xx: transport and session configuration.
	PropCommSpeakFirst       Key = 0x1010
	PropCommFirstBrief       Key = 0x1011
	PropCommMaxConnections   Key = 0x1012 // "total,duplex,windowMinutes"
	PropCommMaxDuplexEvents  Key = 0x1013
	PropCommMaxSimplexEvents Key = 0x1014
	PropCommMinXmitDelay     Key = 0x1015
	PropCommMinXmitRate      Key = 0x1016
	PropCommMaxXmitRate      Key = 0x1017
	PropCommHost             Key = 0x1020
	PropCommPort             Key = 0x1021
	PropCommAPNName          Key = 0x1022
	PropCommAPNUser          Key = 0x1023
	PropCommAPNPass          Key = 0x1024

	// GPS, 0x30xx.
	PropGPSSampleRate    Key = 0x3010
	PropGPSExpiration    Key = 0x3011
	PropGPSClockDelta    Key = 0x3012
	PropGPSEventInterval Key = 0x3013
	PropGPSMinSpeed      Key = 0x3014
	PropGPSDistanceDelta Key = 0x3015

	// Motion, 0x40xx.
	PropMotionStartType       Key = 0x4010
	PropMotionStart           Key = 0x4011
	PropMotionInMotion        Key = 0x4012
	PropMotionStop            Key = 0x4013
	PropMotionStopType        Key = 0x4014
	PropMotionDormantInterval Key = 0x4015
	PropMotionDormantCount    Key = 0x4016
	PropMotionExcessSpeed     Key = 0x4017
	PropMotionMovingInterval  Key = 0x4018

	// GeoZone, 0x41xx.
	PropGeofAdmin       Key = 0x4110 // command: add/remove/save sub-commands
	PropGeofCount       Key = 0x4111
	PropGeofVersion     Key = 0x4112
	PropGeofArriveDelay Key = 0x4113
	PropGeofDepartDelay Key = 0x4114
	PropGeofCurrent     Key = 0x4115

	// Legacy single-point geofence, 0x41A0..0x41A3 (the geofence
	// module the full GeoZone table superseded; its keys came from a
	// custom-property include, so these names are this port's own, in
	// the same style).
	PropCustGeofence1 Key = 0x41A0
	PropCustGeofence2 Key = 0x41A1
	PropCustGeofence3 Key = 0x41A2
	PropCustGeofence4 Key = 0x41A3

	// Odometer, 0x42xx: 8 counters, each a 3-key block.
	PropOdometer0Value Key = 0x4200
	PropOdometer0Limit Key = 0x4201
	PropOdometer0GPS   Key = 0x4202
	PropOdometer1Value Key = 0x4203
	PropOdometer1Limit Key = 0x4204
	PropOdometer1GPS   Key = 0x4205
	PropOdometer2Value Key = 0x4206
	PropOdometer2Limit Key = 0x4207
	PropOdometer2GPS   Key = 0x4208
	PropOdometer3Value Key = 0x4209
	PropOdometer3Limit Key = 0x420A
	PropOdometer3GPS   Key = 0x420B
	PropOdometer4Value Key = 0x420C
	PropOdometer4Limit Key = 0x420D
	PropOdometer4GPS   Key = 0x420E
	PropOdometer5Value Key = 0x420F
	PropOdometer5Limit Key = 0x4210
	PropOdometer5GPS   Key = 0x4211
	PropOdometer6Value Key = 0x4212
	PropOdometer6Limit Key = 0x4213
	PropOdometer6GPS   Key = 0x4214
	PropOdometer7Value Key = 0x4215
	PropOdometer7Limit Key = 0x4216
	PropOdometer7GPS   Key = 0x4217
)

// OdometerKeys returns the (value, limit, lastFixGPS) key triple for
// counter index i (0..7).
func OdometerKeys(i int) (value, limit, gps Key) {
	base := Key(0x4200 + 3*i)
	return base, base + 1, base + 2
}

// DefaultDefs returns the full default property table. Names, types,
// arities, and defaults mirror the C table (gps.smprate=7s,
// gps.expire=300s, mot.stop=600s, com.maxconn=8,4,60, ...).
func DefaultDefs() []Def {
	defs := []Def{
		{Key: PropStateSerial, Name: "sta.serial", Type: TypeString, MaxIndex: 20, Attr: AttrReadOnly},
		{Key: PropStateDeviceID, Name: "sta.device", Type: TypeString, MaxIndex: 20, Attr: AttrSave},
		{Key: PropStateAccountID, Name: "sta.account", Type: TypeString, MaxIndex: 20, Attr: AttrSave},
		{Key: PropStateUniqueID, Name: "sta.uniq", Type: TypeBinary, MaxIndex: 30, Attr: AttrSave},
		{Key: PropStateDevDiagnostic, Name: "sta.devdiag", Type: TypeUInt32, MaxIndex: 5, Attr: AttrReadOnly, Default: "0,0,0,0,0"},
		{Key: PropStateGPSDiagnostic, Name: "sta.gpsdiag", Type: TypeUInt32, MaxIndex: 5, Attr: AttrReadOnly, Default: "0,0,0,0,0"},

		// Writable here (read-only in the C table) so the comport wiring
		// can come from the property file rather than shell internals.
		{Key: PropCfgGPSPort, Name: "cfg.gps.port", Type: TypeString, MaxIndex: 32, Attr: AttrSave},
		{Key: PropCfgGPSBps, Name: "cfg.gps.bps", Type: TypeUInt32, MaxIndex: 1, Attr: AttrSave, Default: "4800"},

		{Key: PropCommSpeakFirst, Name: "com.first", Type: TypeBool, MaxIndex: 1, Attr: AttrSave, Default: "1"},
		{Key: PropCommFirstBrief, Name: "com.brief", Type: TypeBool, MaxIndex: 1, Attr: AttrSave, Default: "0"},
		{Key: PropCommMaxConnections, Name: "com.maxconn", Type: TypeUInt8, MaxIndex: 3, Attr: AttrSave, Default: "8,4,60"},
		{Key: PropCommMaxDuplexEvents, Name: "com.maxduplex", Type: TypeUInt8, MaxIndex: 1, Attr: AttrSave, Default: "10"},
		{Key: PropCommMaxSimplexEvents, Name: "com.maxsimplex", Type: TypeUInt8, MaxIndex: 1, Attr: AttrSave, Default: "2"},
		{Key: PropCommMinXmitDelay, Name: "com.mindelay", Type: TypeUInt16, MaxIndex: 1, Attr: AttrSave, Default: "180"},
		{Key: PropCommMinXmitRate, Name: "com.minrate", Type: TypeUInt32, MaxIndex: 1, Attr: AttrSave, Default: "180"},
		{Key: PropCommMaxXmitRate, Name: "com.maxrate", Type: TypeUInt32, MaxIndex: 1, Attr: AttrSave, Default: "3600"},
		{Key: PropCommHost, Name: "com.host", Type: TypeString, MaxIndex: 64, Attr: AttrSave},
		{Key: PropCommPort, Name: "com.port", Type: TypeUInt16, MaxIndex: 1, Attr: AttrSave, Default: "31000"},
		{Key: PropCommAPNName, Name: "com.apnname", Type: TypeString, MaxIndex: 48, Attr: AttrSave},
		{Key: PropCommAPNUser, Name: "com.apnuser", Type: TypeString, MaxIndex: 32, Attr: AttrSave},
		{Key: PropCommAPNPass, Name: "com.apnpass", Type: TypeString, MaxIndex: 32, Attr: AttrSave},

		{Key: PropGPSSampleRate, Name: "gps.smprate", Type: TypeUInt16, MaxIndex: 1, Attr: AttrSave, Default: "7"},
		{Key: PropGPSExpiration, Name: "gps.expire", Type: TypeUInt16, MaxIndex: 1, Attr: AttrSave, Default: "300"},
		{Key: PropGPSClockDelta, Name: "gps.updclock", Type: TypeUInt16, MaxIndex: 1, Attr: AttrSave, Default: "15"},
		// The comport watchdog window; the C source hardcodes this.
		{Key: PropGPSEventInterval, Name: "gps.evtintrv", Type: TypeUInt32, MaxIndex: 1, Attr: AttrSave, Default: "60"},
		{Key: PropGPSMinSpeed, Name: "gps.minspd", Type: TypeUInt16, MaxIndex: 1, Attr: AttrSave, DecimalShift: 1, Default: "8.0"},
		{Key: PropGPSDistanceDelta, Name: "gps.dstdelt", Type: TypeUInt32, MaxIndex: 1, Attr: AttrSave, Default: "500"},

		{Key: PropMotionStartType, Name: "mot.start.type", Type: TypeUInt8, MaxIndex: 1, Attr: AttrSave, Default: "0"},
		{Key: PropMotionStart, Name: "mot.start", Type: TypeUInt16, MaxIndex: 1, Attr: AttrSave, DecimalShift: 1, Default: "0.0"},
		{Key: PropMotionInMotion, Name: "mot.inmotion", Type: TypeUInt16, MaxIndex: 1, Attr: AttrSave, Default: "0"},
		{Key: PropMotionStop, Name: "mot.stop", Type: TypeUInt16, MaxIndex: 1, Attr: AttrSave, Default: "600"},
		{Key: PropMotionStopType, Name: "mot.stop.type", Type: TypeUInt8, MaxIndex: 1, Attr: AttrSave, Default: "0"},
		{Key: PropMotionDormantInterval, Name: "mot.dorm.rate", Type: TypeUInt32, MaxIndex: 1, Attr: AttrSave, Default: "0"},
		{Key: PropMotionDormantCount, Name: "mot.dorm.cnt", Type: TypeUInt16, MaxIndex: 1, Attr: AttrSave, Default: "1"},
		{Key: PropMotionExcessSpeed, Name: "mot.exspeed", Type: TypeUInt16, MaxIndex: 1, Attr: AttrSave, DecimalShift: 1, Default: "0.0"},
		{Key: PropMotionMovingInterval, Name: "mot.moving", Type: TypeUInt16, MaxIndex: 1, Attr: AttrSave, Default: "0"},

		{Key: PropGeofAdmin, Name: "gf.admin", Type: TypeCommand, MaxIndex: 1, Attr: AttrWriteOnly},
		{Key: PropGeofCount, Name: "gf.count", Type: TypeUInt16, MaxIndex: 1, Attr: AttrReadOnly, Default: "0"},
		{Key: PropGeofVersion, Name: "gf.version", Type: TypeString, MaxIndex: 32, Attr: AttrSave},
		{Key: PropGeofArriveDelay, Name: "gf.arr.delay", Type: TypeUInt32, MaxIndex: 1, Attr: AttrSave, Default: "30"},
		{Key: PropGeofDepartDelay, Name: "gf.dep.delay", Type: TypeUInt32, MaxIndex: 1, Attr: AttrSave, Default: "10"},
		{Key: PropGeofCurrent, Name: "gf.current", Type: TypeUInt32, MaxIndex: 1, Attr: AttrSave, Default: "0"},

		{Key: PropCustGeofence1, Name: "cust.gf.1", Type: TypeGPS, MaxIndex: 1, Attr: AttrSave},
		{Key: PropCustGeofence2, Name: "cust.gf.2", Type: TypeGPS, MaxIndex: 1, Attr: AttrSave},
		{Key: PropCustGeofence3, Name: "cust.gf.3", Type: TypeGPS, MaxIndex: 1, Attr: AttrSave},
		{Key: PropCustGeofence4, Name: "cust.gf.4", Type: TypeGPS, MaxIndex: 1, Attr: AttrSave},
	}
	defs = append(defs, odometerDefs()...)
	return defs
}

func odometerDefs() []Def {
	defs := make([]Def, 0, 24)
	for i := 0; i < 8; i++ {
		value, limit, gps := OdometerKeys(i)
		defs = append(defs,
			Def{Key: value, Name: fmt.Sprintf("odo.%d.value", i), Type: TypeUInt32, MaxIndex: 1, Attr: AttrSave, Default: "0"},
			Def{Key: limit, Name: fmt.Sprintf("odo.%d.limit", i), Type: TypeUInt32, MaxIndex: 1, Attr: AttrSave, Default: "0"},
			Def{Key: gps, Name: fmt.Sprintf("odo.%d.gps", i), Type: TypeGPS, MaxIndex: 1, Attr: AttrSave},
		)
	}
	return defs
}
