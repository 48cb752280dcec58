// Package radio reads tank telemetry from the HC-12 serial receiver.
//
// The Acquirer loops over a single serial channel:
//
//	Idle → Reading → Parsing → Idle
//	          └──→ FaultRecovery → Idle
//
// A read that times out with no data is not an error. After every read
// attempt the input buffer is discarded so a partial frame never merges with
// the next one. Validated frames replace the sensor's entry in the
// telemetry.Store; malformed or checksum-failing lines are logged and
// dropped.
//
// Channel faults (any I/O error from the port) close the port and reopen it
// with the same settings, with no backoff and no retry limit.
//
// # Usage
//
//	open, err := radio.SerialOpener(cfg.Serial)
//	if err != nil {
//	    return err
//	}
//	acq, err := radio.NewAcquirer(radio.Config{
//	    Open:        open,
//	    Store:       store,
//	    Calibration: cal,
//	    ReadTimeout: cfg.GetSerialReadTimeout(),
//	    Logger:      log.Component("radio"),
//	})
//	go acq.Run(ctx)
package radio
