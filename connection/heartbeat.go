package connection

import "time"

// heartbeat is the liveness monitor: one recurring timer multiplexing two
// states. While no pong is pending, each expiry emits a ping trigger and
// opens the reply window; while one is pending, expiry means no reply
// arrived in time and the connection is aborted. A pong arriving before
// expiry clears the pending state and rearms the interval.
func (c *Conn[I, O]) heartbeat() error {
	c.logger.Infof("Heartbeat started with interval %s", c.opts.PingInterval)
	defer c.logger.Infof("Heartbeat stopped")

	replyDeadline := c.opts.PingTimeout
	if replyDeadline <= 0 {
		// Without a dedicated reply window the interval cadence doubles as
		// the deadline
		replyDeadline = c.opts.PingInterval
	}

	timer := time.NewTimer(c.opts.PingInterval)
	defer timer.Stop()

	pendingPong := false
	for {
		select {
		case <-c.tmb.Dying():
			return nil

		case <-c.pong:
			pendingPong = false
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(c.opts.PingInterval)

		case <-timer.C:
			if pendingPong {
				c.logger.Errorf("no pong within %s, aborting connection", replyDeadline)
				c.transport.Abort()
				c.shutdown(Closure{Kind: ClosureAborted})
				return nil
			}

			select {
			case c.ping <- c.opts.PingPayload:
			case <-c.tmb.Dying():
				return nil
			}
			pendingPong = true
			timer.Reset(replyDeadline)
		}
	}
}
