package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	ReadingsSampled      atomic.Int64
	StoreWriteFailures   atomic.Int64
	AlertsTriggered      atomic.Int64
	SubscribersEvicted   atomic.Int64
	NotificationsQueued  atomic.Int64
	NotificationsDropped atomic.Int64
	NotificationsSent    atomic.Int64
	NotificationFailures atomic.Int64
	StateWriteFailures   atomic.Int64
	BroadcastsPublished  atomic.Int64
)

func HandleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "gateway_readings_sampled_total %d\n", ReadingsSampled.Load())
	fmt.Fprintf(w, "gateway_store_write_failures_total %d\n", StoreWriteFailures.Load())
	fmt.Fprintf(w, "gateway_alerts_triggered_total %d\n", AlertsTriggered.Load())
	fmt.Fprintf(w, "gateway_subscribers_evicted_total %d\n", SubscribersEvicted.Load())
	fmt.Fprintf(w, "gateway_notifications_queued_total %d\n", NotificationsQueued.Load())
	fmt.Fprintf(w, "gateway_notifications_dropped_total %d\n", NotificationsDropped.Load())
	fmt.Fprintf(w, "gateway_notifications_sent_total %d\n", NotificationsSent.Load())
	fmt.Fprintf(w, "gateway_notification_failures_total %d\n", NotificationFailures.Load())
	fmt.Fprintf(w, "gateway_state_write_failures_total %d\n", StateWriteFailures.Load())
	fmt.Fprintf(w, "gateway_broadcasts_published_total %d\n", BroadcastsPublished.Load())
}
