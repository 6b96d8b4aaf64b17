package checkout

import "time"

// showBanner displays a form-scoped message and hides it after the
// dismiss delay. A newer banner restarts the delay.
func (o *Orchestrator) showBanner(msg string) {
	o.ui.ShowBanner(msg)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.destroyed {
		return
	}
	if o.bannerTimer != nil {
		o.bannerTimer.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(o.cfg.Timeouts.BannerDismiss, func() {
		o.mu.Lock()
		if o.destroyed || o.bannerTimer != t {
			o.mu.Unlock()
			return
		}
		o.bannerTimer = nil
		o.mu.Unlock()
		o.ui.HideBanner()
	})
	o.bannerTimer = t
}
