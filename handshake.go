package opcr2

import "go.uber.org/zap"

// awaitReady polls the device with cmd until it answers Ready. A Busy answer
// backs off and tries again; any other answer means the bus lost sync and the
// session is restarted. It reports false once maxAttempts polling rounds have
// failed. Only transport failures are returned as errors.
//
// On success the device is left selected. On failure it is deselected and the
// bus session is open.
func (d *Device) awaitReady(cmd byte) (bool, error) {
	log := d.log.With(zap.Uint8("cmd", cmd))

	if err := d.bus.Begin(); err != nil {
		return false, err
	}

	var in byte
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		// clear anything left over from an aborted transfer
		for i := 0; i < flushBytes; i++ {
			if _, err := d.bus.Exchange(dummy); err != nil {
				return false, err
			}
			d.sleep.Sleep(d.timing.FlushGap)
		}
		d.sleep.Sleep(d.timing.FlushSettle)

		if err := d.bus.Select(true); err != nil {
			return false, err
		}

		var err error
		for poll := 0; poll < maxPolls; poll++ {
			if in, err = d.bus.Exchange(cmd); err != nil {
				return false, err
			}
			d.sleep.Sleep(d.timing.PollInterval)
			if in == Ready {
				break
			}
		}
		if in == Ready {
			break
		}

		if err := d.bus.Select(false); err != nil {
			return false, err
		}

		if in == Busy {
			log.Debug("device busy, backing off",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", d.timing.BusyBackoff))
			d.sleep.Sleep(d.timing.BusyBackoff)
			continue
		}

		log.Debug("unexpected status, resetting bus",
			zap.Int("attempt", attempt),
			zap.Uint8("status", in),
			zap.Duration("backoff", d.timing.ResetBackoff))
		if err := d.bus.End(); err != nil {
			return false, err
		}
		d.sleep.Sleep(d.timing.ResetBackoff)
		if err := d.bus.Begin(); err != nil {
			return false, err
		}
	}
	d.sleep.Sleep(d.timing.ReadySettle)

	if in != Ready {
		log.Debug("device not ready", zap.Uint8("status", in))
		return false, nil
	}
	return true, nil
}
