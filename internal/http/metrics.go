package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"

	"minigolf/engine/internal/input"
)

// golfCollector reads the simulator's counters at scrape time.
type golfCollector struct {
	h *HandlerSet

	uptime        *prometheus.Desc
	ticks         *prometheus.Desc
	tickAvg       *prometheus.Desc
	tickMax       *prometheus.Desc
	tickRate      *prometheus.Desc
	bounces       *prometheus.Desc
	captures      *prometheus.Desc
	shotNumber    *prometheus.Desc
	inMotion      *prometheus.Desc
	clients       *prometheus.Desc
	broadcasts    *prometheus.Desc
	skipped       *prometheus.Desc
	evicted       *prometheus.Desc
	bandwidth     *prometheus.Desc
	bandwidthDeny *prometheus.Desc
	commandDrops  *prometheus.Desc
	bundles       *prometheus.Desc
	failures      *prometheus.Desc
	storedShots   *prometheus.Desc
	storedBytes   *prometheus.Desc
	pruned        *prometheus.Desc
}

func newGolfCollector(h *HandlerSet) *golfCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc("golfsim_"+name, help, labels, nil)
	}
	return &golfCollector{
		h:             h,
		uptime:        desc("uptime_seconds", "Process uptime in seconds."),
		ticks:         desc("ticks_total", "Loop iterations observed."),
		tickAvg:       desc("tick_duration_seconds_avg", "Average loop iteration duration."),
		tickMax:       desc("tick_duration_seconds_max", "Slowest loop iteration."),
		tickRate:      desc("tick_rate_hz", "Average achievable tick rate."),
		bounces:       desc("bounces_total", "Airborne surface contacts resolved."),
		captures:      desc("captures_total", "Balls captured by the hole."),
		shotNumber:    desc("shot_number", "Strokes played since the last reset."),
		inMotion:      desc("ball_in_motion", "Whether a stroke is being simulated."),
		clients:       desc("clients", "Connected WebSocket clients."),
		broadcasts:    desc("broadcasts_total", "Envelopes broadcast to clients."),
		skipped:       desc("skipped_frames_total", "Frames withheld by the bandwidth budget."),
		evicted:       desc("evicted_clients_total", "Clients dropped for falling behind."),
		bandwidth:     desc("bandwidth_available_bytes", "Remaining bandwidth tokens per client.", "client"),
		bandwidthDeny: desc("bandwidth_denied_total", "Total throttled deliveries per client.", "client"),
		commandDrops:  desc("command_drops_total", "Commands rejected by the input gate.", "client", "reason"),
		bundles:       desc("replay_bundles_total", "Replay bundles closed."),
		failures:      desc("replay_failures_total", "Replay write failures."),
		storedShots:   desc("replay_stored_shots", "Replay bundles on disk."),
		storedBytes:   desc("replay_stored_bytes", "Replay bytes on disk."),
		pruned:        desc("replay_pruned_total", "Replay bundles removed by retention."),
	}
}

// Describe implements prometheus.Collector.
func (c *golfCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.uptime, c.ticks, c.tickAvg, c.tickMax, c.tickRate, c.bounces, c.captures,
		c.shotNumber, c.inMotion, c.clients, c.broadcasts, c.skipped, c.evicted,
		c.bandwidth, c.bandwidthDeny, c.commandDrops,
		c.bundles, c.failures, c.storedShots, c.storedBytes, c.pruned,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector. Sources left unset in Options are skipped.
func (c *golfCollector) Collect(ch chan<- prometheus.Metric) {
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, labels...)
	}
	h := c.h

	if h.readiness != nil {
		gauge(c.uptime, float64(int64(h.readiness.Uptime().Seconds())))
	}
	if h.monitor != nil {
		ticks := h.monitor.Snapshot()
		counter(c.ticks, float64(ticks.Samples))
		gauge(c.tickAvg, ticks.Average.Seconds())
		gauge(c.tickMax, ticks.Max.Seconds())
		gauge(c.tickRate, ticks.AverageHz())
		counter(c.bounces, float64(ticks.Bounces))
		counter(c.captures, float64(ticks.Captures))
	}
	if h.session != nil {
		snapshot := h.session.Snapshot()
		inMotion := 0.0
		if snapshot.InMotion {
			inMotion = 1
		}
		gauge(c.shotNumber, float64(snapshot.Shot))
		gauge(c.inMotion, inMotion)
	}
	if h.hubStats != nil {
		stats := h.hubStats()
		gauge(c.clients, float64(stats.Clients))
		counter(c.broadcasts, float64(stats.Broadcasts))
		counter(c.skipped, float64(stats.SkippedFrames))
		counter(c.evicted, float64(stats.Evicted))
		for id, usage := range stats.Bandwidth {
			gauge(c.bandwidth, usage.AvailableBytes, id)
			counter(c.bandwidthDeny, float64(usage.Denied), id)
		}
		for id, drops := range stats.Commands {
			counter(c.commandDrops, float64(drops.Sequence), id, string(input.DropReasonSequence))
			counter(c.commandDrops, float64(drops.RateLimited), id, string(input.DropReasonRateLimited))
		}
	}
	if h.replayStats != nil {
		stats := h.replayStats()
		counter(c.bundles, float64(stats.Bundles))
		counter(c.failures, float64(stats.Failures))
	}
	if h.storageStats != nil {
		stats := h.storageStats()
		gauge(c.storedShots, float64(stats.Shots))
		gauge(c.storedBytes, float64(stats.Bytes))
		counter(c.pruned, float64(stats.Removed))
	}
}
